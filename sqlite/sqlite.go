// Package sqlite provides a relic.Gateway backed by SQLite, using the pure-Go
// modernc.org/sqlite driver. Statements run in autocommit mode, so every
// mutation the mapping layer issues is committed on its own, matching the
// gateway contract. The package opens database handles but never creates
// tables; DDL is the caller's concern.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dekarrin/relic"
	"github.com/dekarrin/relic/config"
	"github.com/dekarrin/relic/logging"
	"modernc.org/sqlite"
)

// DefaultFetchSize is the number of rows fetched per chunk during query
// iteration when no other size is configured.
const DefaultFetchSize = 64

// Store is a relic.Gateway over a SQLite database handle. The zero value is
// not usable; create one with New or FromConfig, or fill DB directly (tests
// do this with a mocked handle).
type Store struct {
	DB *sql.DB

	// FetchSize is the chunk size for Cursors returned by Query. Values
	// below 1 fall back to DefaultFetchSize.
	FetchSize int

	// Log receives every executed statement at Trace level. If nil, nothing
	// is traced.
	Log logging.Logger
}

// New opens the SQLite database file at path and returns a Store over it.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, WrapDBError(err)
	}
	return &Store{DB: db, FetchSize: DefaultFetchSize}, nil
}

// FromConfig fills defaults on cfg, validates it, creates the data directory
// if needed, and opens a Store per the configuration.
func FromConfig(cfg config.Store) (*Store, error) {
	cfg = cfg.FillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0770); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	st, err := New(filepath.Join(cfg.DataDir, cfg.DataFile))
	if err != nil {
		return nil, err
	}
	st.FetchSize = cfg.FetchSize

	provider, err := cfg.LogProvider()
	if err != nil {
		return nil, err
	}
	if provider != logging.None {
		st.Log, err = logging.New(provider, cfg.LogFile)
		if err != nil {
			return nil, fmt.Errorf("initialize logging: %w", err)
		}
	}

	return st, nil
}

func (s *Store) trace(query string, params []any) {
	if s.Log != nil {
		s.Log.Tracef("%s %v", query, params)
	}
}

// QueryOne executes the statement and returns its first result row, or nil
// with no error when there are no results.
func (s *Store) QueryOne(query string, params []any) (relic.Row, error) {
	s.trace(query, params)

	rows, err := s.DB.Query(query, params...)
	if err != nil {
		return nil, WrapDBError(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, WrapDBError(err)
	}

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, WrapDBError(err)
		}
		return nil, nil
	}

	return scanRow(rows, cols)
}

// Query executes the statement and returns a cursor that fetches rows in
// chunks of the store's fetch size.
func (s *Store) Query(query string, params []any) (relic.Cursor, error) {
	s.trace(query, params)

	rows, err := s.DB.Query(query, params...)
	if err != nil {
		return nil, WrapDBError(err)
	}

	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, WrapDBError(err)
	}

	size := s.FetchSize
	if size < 1 {
		size = DefaultFetchSize
	}
	return &cursor{rows: rows, cols: cols, size: size}, nil
}

// Exec executes a mutating statement and returns the generated key of an
// inserted row, if any. The statement commits immediately.
func (s *Store) Exec(query string, params []any) (int64, error) {
	s.trace(query, params)

	res, err := s.DB.Exec(query, params...)
	if err != nil {
		return 0, WrapDBError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, WrapDBError(err)
	}
	return id, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.DB.Close()
}

type cursor struct {
	rows *sql.Rows
	cols []string
	size int
	done bool
}

func (c *cursor) Fetch() ([]relic.Row, error) {
	if c.done {
		return nil, nil
	}

	out := make([]relic.Row, 0, c.size)
	for len(out) < c.size && c.rows.Next() {
		row, err := scanRow(c.rows, c.cols)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}

	if len(out) < c.size {
		c.done = true
		if err := c.rows.Err(); err != nil {
			return nil, WrapDBError(err)
		}
	}
	return out, nil
}

func (c *cursor) Close() error {
	return c.rows.Close()
}

func scanRow(rows *sql.Rows, cols []string) (relic.Row, error) {
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, WrapDBError(err)
	}

	row := make(relic.Row, len(cols))
	for i, col := range cols {
		// TEXT columns may scan as []byte depending on the driver
		if b, ok := vals[i].([]byte); ok {
			row[col] = string(b)
		} else {
			row[col] = vals[i]
		}
	}
	return row, nil
}

// WrapDBError wraps an error from the SQLite engine into an error useable by
// the rest of relic. It should be called on any error returned from SQLite
// before the store passes the error back to a caller.
func WrapDBError(err error) error {
	sqliteErr := &sqlite.Error{}
	if errors.As(err, &sqliteErr) {
		primaryCode := sqliteErr.Code() & 0xff
		if primaryCode == 19 {
			return fmt.Errorf("%w: %s", relic.ErrConstraintViolation, err.Error())
		}
		if primaryCode == 1 {
			// this is a generic error and thus the string is not descriptive,
			// so preserve the original error instead
			return err
		}
		return fmt.Errorf("%s", sqlite.ErrorCodeString[sqliteErr.Code()])
	} else if errors.Is(err, sql.ErrNoRows) {
		return relic.ErrNotFound
	}
	return err
}
