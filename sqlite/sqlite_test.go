package sqlite_test

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dekarrin/relic"
	"github.com/dekarrin/relic/logging"
	"github.com/dekarrin/relic/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T, fetchSize int) (*sqlite.Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &sqlite.Store{DB: db, FetchSize: fetchSize}, mock
}

func Test_QueryOne(t *testing.T) {
	t.Run("returns the first row", func(t *testing.T) {
		assert := assert.New(t)
		store, mock := newMockStore(t, 0)

		mock.
			ExpectQuery(regexp.QuoteMeta("SELECT * FROM taxon WHERE id = ?")).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.
				NewRows([]string{"id", "name"}).
				AddRow(int64(1), "Talpa").
				AddRow(int64(2), "Mogera"))

		row, err := store.QueryOne("SELECT * FROM taxon WHERE id = ?", []any{int64(1)})

		if !assert.NoError(err) {
			return
		}
		assert.Equal(relic.Row{"id": int64(1), "name": "Talpa"}, row)
	})

	t.Run("no rows is a nil row, not an error", func(t *testing.T) {
		assert := assert.New(t)
		store, mock := newMockStore(t, 0)

		mock.
			ExpectQuery(regexp.QuoteMeta("SELECT * FROM taxon")).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

		row, err := store.QueryOne("SELECT * FROM taxon", nil)

		assert.NoError(err)
		assert.Nil(row)
	})

	t.Run("text read back as bytes becomes a string", func(t *testing.T) {
		assert := assert.New(t)
		store, mock := newMockStore(t, 0)

		mock.
			ExpectQuery(regexp.QuoteMeta("SELECT * FROM taxon")).
			WillReturnRows(sqlmock.
				NewRows([]string{"id", "name"}).
				AddRow(int64(1), []byte("Talpa")))

		row, err := store.QueryOne("SELECT * FROM taxon", nil)

		if !assert.NoError(err) {
			return
		}
		assert.Equal("Talpa", row["name"])
	})
}

func Test_Query_CursorChunks(t *testing.T) {
	assert := assert.New(t)
	store, mock := newMockStore(t, 2)

	rows := sqlmock.NewRows([]string{"id", "name"})
	for i := range 5 {
		rows.AddRow(int64(i+1), fmt.Sprintf("Taxon%d", i))
	}
	mock.
		ExpectQuery(regexp.QuoteMeta("SELECT * FROM taxon")).
		WillReturnRows(rows)

	cur, err := store.Query("SELECT * FROM taxon", nil)
	require.NoError(t, err)
	defer cur.Close()

	chunk, err := cur.Fetch()
	require.NoError(t, err)
	assert.Len(chunk, 2)
	assert.Equal("Taxon0", chunk[0]["name"])
	assert.Equal("Taxon1", chunk[1]["name"])

	chunk, err = cur.Fetch()
	require.NoError(t, err)
	assert.Len(chunk, 2)

	chunk, err = cur.Fetch()
	require.NoError(t, err)
	assert.Len(chunk, 1)
	assert.Equal("Taxon4", chunk[0]["name"])

	chunk, err = cur.Fetch()
	assert.NoError(err)
	assert.Empty(chunk)
}

func Test_Exec(t *testing.T) {
	assert := assert.New(t)
	store, mock := newMockStore(t, 0)

	mock.
		ExpectExec(regexp.QuoteMeta("INSERT INTO taxon(name) VALUES(?)")).
		WithArgs("Talpa").
		WillReturnResult(sqlmock.NewResult(12, 1))

	id, err := store.Exec("INSERT INTO taxon(name) VALUES(?)", []any{"Talpa"})

	assert.NoError(err)
	assert.EqualValues(12, id)
}

type captureLogger struct {
	logging.NoOpLogger
	traced []string
}

func (log *captureLogger) Tracef(msg string, a ...interface{}) {
	log.traced = append(log.traced, fmt.Sprintf(msg, a...))
}

func Test_StatementTracing(t *testing.T) {
	assert := assert.New(t)
	store, mock := newMockStore(t, 0)

	capture := &captureLogger{}
	store.Log = capture

	mock.
		ExpectExec(regexp.QuoteMeta("DELETE FROM taxon WHERE id = ?")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := store.Exec("DELETE FROM taxon WHERE id = ?", []any{int64(3)})
	require.NoError(t, err)

	require.Len(t, capture.traced, 1)
	assert.Equal("DELETE FROM taxon WHERE id = ? [3]", capture.traced[0])
}

func Test_WrapDBError(t *testing.T) {
	assert := assert.New(t)

	assert.ErrorIs(sqlite.WrapDBError(sql.ErrNoRows), relic.ErrNotFound)

	other := errors.New("disk I/O error")
	assert.Same(other, sqlite.WrapDBError(other))
}
