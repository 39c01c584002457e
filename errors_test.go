package relic

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Error_Error(t *testing.T) {
	testCases := []struct {
		name   string
		err    Error
		expect string
	}{
		{
			name:   "message only",
			err:    New("something bad happened"),
			expect: "something bad happened",
		},
		{
			name:   "message with cause",
			err:    New("loading taxon 7", ErrNotFound),
			expect: "loading taxon 7: " + ErrNotFound.Error(),
		},
		{
			name:   "no message falls back to the first cause",
			err:    New("", ErrNotFound),
			expect: ErrNotFound.Error(),
		},
		{
			name:   "empty",
			err:    New(""),
			expect: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)
			assert.Equal(tc.expect, tc.err.Error())
		})
	}
}

func Test_Error_Is(t *testing.T) {
	assert := assert.New(t)

	err := New("decoding field status", fmt.Errorf("bad raw form"), ErrValueMismatch)

	assert.ErrorIs(err, ErrValueMismatch)
	assert.False(errors.Is(err, ErrNotFound))

	wrapped := New("while loading", err)
	assert.ErrorIs(wrapped, ErrValueMismatch)
}
