// Package relic maps rows in a relational store to typed in-memory records.
// It gives calling code attribute-style field access with lazy row loading,
// typed condition construction, and relationship navigation without
// hand-written statements for the common cases.
//
// A record type is declared once per table by creating a Type, attaching
// field accessors to it, and registering it with a Registry:
//
//	reg := relic.NewRegistry(store)
//
//	Taxon := relic.NewType("taxon")
//	name := relic.String(Taxon, "name")
//	extinct := relic.Bool(Taxon, "extinct", relic.WithDefault(false))
//	parent := relic.SelfRef(Taxon, "parent", relic.AllowNull(), relic.Reverse("children"))
//
//	if err := reg.Register(Taxon); err != nil { ...
//
// Field accessors double as condition builders; queries are immutable values
// lowered to parameterized statement text only when executed:
//
//	living, err := Taxon.Select().Filter(extinct.Eq(false)).OrderBy(name.Asc()).All()
//
// Every live row is represented by at most one *Record per (type, key); the
// per-type identity cache holds instances weakly, so repeated lookups of the
// same key return the same instance for as long as any reference to it is
// held.
//
// relic is single-session and synchronous. Every mutation issues exactly one
// statement which the Gateway commits immediately; no transactions, retries,
// or internal locking are provided, and concurrent use requires external
// synchronization.
package relic

// Row is a single result row as produced by a Gateway, keyed by column name.
// Values hold the storage layer's raw representation of each column.
type Row map[string]any

// Cursor is a lazy, forward-only stream of rows from one executed statement.
// It is not restartable; a fresh execution of the same statement produces a
// fresh Cursor.
type Cursor interface {
	// Fetch returns the next chunk of rows. An empty or nil slice with a nil
	// error indicates the end of the stream.
	Fetch() ([]Row, error)

	// Close releases the underlying result stream. It must be safe to call
	// after the stream is exhausted.
	Close() error
}

// Gateway executes parameterized statements against the backing store. Every
// statement run through Exec is committed on its own; relic never composes
// multi-statement transactions. Implementations are expected to serialize
// access to their connection.
type Gateway interface {
	// QueryOne executes the statement and returns the first result row, or a
	// nil Row with a nil error if there are no results.
	QueryOne(query string, params []any) (Row, error)

	// Query executes the statement and returns a Cursor over its results.
	Query(query string, params []any) (Cursor, error)

	// Exec executes a mutating statement, commits it, and returns the key
	// generated for an inserted row, if any.
	Exec(query string, params []any) (int64, error)
}

// Registry holds the storage gateway together with every registered record
// type, and drives deferred type resolution across them. It is an explicit
// value threaded to each Type at registration, never a hidden global.
type Registry struct {
	gw      Gateway
	types   map[string]*Type
	pending map[*Type]bool
}

// NewRegistry creates a Registry backed by the given gateway.
func NewRegistry(gw Gateway) *Registry {
	return &Registry{
		gw:      gw,
		types:   map[string]*Type{},
		pending: map[*Type]bool{},
	}
}

// Gateway returns the storage gateway the registry was created with.
func (reg *Registry) Gateway() Gateway {
	return reg.gw
}

// Register binds t to the registry and attempts type resolution for every
// field of every type still awaiting it. Fields that name a record type not
// yet registered stay pending and are retried on each subsequent Register
// call; any other resolution failure is returned immediately and is sticky on
// the offending field.
//
// A type may be registered exactly once, and exactly one type may be bound to
// a given table name.
func (reg *Registry) Register(t *Type) error {
	if t.reg != nil {
		return New("type for table " + t.table + " is already registered")
	}
	if _, ok := reg.types[t.table]; ok {
		return New("a type is already registered for table " + t.table)
	}

	t.reg = reg
	reg.types[t.table] = t
	reg.pending[t] = true

	return reg.tryResolveAll()
}

// tryResolveAll re-attempts resolution for every pending type. Types whose
// fields all resolve leave the pending set; types with fields still blocked on
// an unregistered reference stay in it silently.
func (reg *Registry) tryResolveAll() error {
	for t := range reg.pending {
		done, err := t.tryResolveFields()
		if err != nil {
			return err
		}
		if done {
			delete(reg.pending, t)
		}
	}
	return nil
}

func (reg *Registry) typeByTable(name string) *Type {
	return reg.types[name]
}
