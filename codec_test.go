package relic_test

import (
	"testing"

	"github.com/dekarrin/relic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Serialize_Scalars(t *testing.T) {
	s := newTaxonSchema(t, nil)

	t.Run("text passes through", func(t *testing.T) {
		assert := assert.New(t)

		raw, err := s.name.Serialize("Talpa")
		assert.NoError(err)
		assert.Equal("Talpa", raw)
	})

	t.Run("booleans store as integers", func(t *testing.T) {
		assert := assert.New(t)

		raw, err := s.extinct.Serialize(true)
		assert.NoError(err)
		assert.Equal(int64(1), raw)

		raw, err = s.extinct.Serialize(false)
		assert.NoError(err)
		assert.Equal(int64(0), raw)
	})

	t.Run("enumerations store as their underlying scalar", func(t *testing.T) {
		assert := assert.New(t)

		raw, err := s.status.Serialize(statusNomenDubium)
		assert.NoError(err)
		assert.Equal(int64(2), raw)
	})

	t.Run("null on a non-nullable field is rejected", func(t *testing.T) {
		assert := assert.New(t)

		_, err := s.name.SerializeNull()
		assert.ErrorIs(err, relic.ErrValueMismatch)
	})

	t.Run("null on a nullable field stores NULL", func(t *testing.T) {
		assert := assert.New(t)

		raw, err := s.status.SerializeNull()
		assert.NoError(err)
		assert.Nil(raw)
	})
}

func Test_Deserialize_Scalars(t *testing.T) {
	s := newTaxonSchema(t, nil)

	t.Run("booleans round trip through integers", func(t *testing.T) {
		assert := assert.New(t)

		v, err := s.extinct.Deserialize(int64(1))
		assert.NoError(err)
		assert.True(v)

		v, err = s.extinct.Deserialize(int64(0))
		assert.NoError(err)
		assert.False(v)
	})

	t.Run("enumerations round trip", func(t *testing.T) {
		assert := assert.New(t)

		v, err := s.status.Deserialize(int64(1))
		assert.NoError(err)
		assert.Equal(statusValid, v)
	})

	t.Run("text column read back as bytes decodes to string", func(t *testing.T) {
		assert := assert.New(t)

		v, err := s.name.Deserialize([]byte("Talpa"))
		assert.NoError(err)
		assert.Equal("Talpa", v)
	})

	t.Run("mismatched raw form is rejected", func(t *testing.T) {
		assert := assert.New(t)

		_, err := s.extinct.Deserialize("maybe")
		assert.ErrorIs(err, relic.ErrValueMismatch)
	})
}

func Test_ReferenceCodec(t *testing.T) {
	t.Run("serializes to the referenced key", func(t *testing.T) {
		assert := assert.New(t)
		s := newTaxonSchema(t, nil)

		parent := s.taxon.Instance(9)
		raw, err := s.parent.Serialize(parent)
		assert.NoError(err)
		assert.Equal(int64(9), raw)
	})

	t.Run("deserializes through the identity cache", func(t *testing.T) {
		assert := assert.New(t)
		s := newTaxonSchema(t, nil)

		live := s.taxon.Instance(9)
		v, err := s.parent.Deserialize(int64(9))
		if !assert.NoError(err) {
			return
		}
		assert.Same(live, v)
	})

	t.Run("rejects a record of another type", func(t *testing.T) {
		assert := assert.New(t)
		s := newTaxonSchema(t, nil)
		other := newTaxonSchema(t, nil)

		_, err := s.parent.Serialize(other.taxon.Instance(1))
		assert.ErrorIs(err, relic.ErrValueMismatch)
	})
}

func Test_SequenceCodec(t *testing.T) {
	t.Run("empty sequence stores NULL", func(t *testing.T) {
		assert := assert.New(t)
		s := newTaxonSchema(t, nil)

		raw, err := s.tags.Serialize([]tag{})
		assert.NoError(err)
		assert.Nil(raw)

		raw, err = s.tags.Serialize(nil)
		assert.NoError(err)
		assert.Nil(raw)
	})

	t.Run("NULL reads back as the empty sequence", func(t *testing.T) {
		assert := assert.New(t)
		s := newTaxonSchema(t, nil)

		vs, err := s.tags.Deserialize(nil)
		assert.NoError(err)
		assert.NotNil(vs)
		assert.Empty(vs)
	})

	t.Run("elements round trip through the element contract", func(t *testing.T) {
		assert := assert.New(t)
		s := newTaxonSchema(t, nil)

		in := []tag{{Label: "holotype", Score: 3}, {Label: "synonym", Score: 1}}
		raw, err := s.tags.Serialize(in)
		require.NoError(t, err)
		require.IsType(t, "", raw)

		out, err := s.tags.Deserialize(raw)
		assert.NoError(err)
		assert.Equal(in, out)
	})

	t.Run("repeated reads of one stored value share a decode", func(t *testing.T) {
		assert := assert.New(t)
		s := newTaxonSchema(t, nil)

		raw, err := s.tags.Serialize([]tag{{Label: "holotype", Score: 3}})
		require.NoError(t, err)

		a, err := s.tags.Deserialize(raw)
		require.NoError(t, err)
		b, err := s.tags.Deserialize(raw)
		require.NoError(t, err)

		a[0].Label = "lectotype"
		assert.Equal("lectotype", b[0].Label)
	})

	t.Run("malformed stored value is rejected", func(t *testing.T) {
		assert := assert.New(t)
		s := newTaxonSchema(t, nil)

		_, err := s.tags.Deserialize("not json")
		assert.ErrorIs(err, relic.ErrValueMismatch)
	})
}
