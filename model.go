package relic

import (
	"fmt"
	"strings"
)

// Values supplies field values by column name to Type.Create.
type Values map[string]any

// Type is the schema of one record type, bound to exactly one table. Declare
// fields on it with the field declaration functions, then bind it to a
// Registry with Registry.Register. Fields cannot be added after registration.
//
// Every Type carries an implicit read-only "id" field holding the integer
// primary key; it is available through ID for use in conditions.
type Type struct {
	reg     *Registry
	table   string
	order   []*column
	cols    map[string]*column
	derived map[string]*column
	cache   *idCache
}

// NewType creates an unregistered record type bound to the given table name.
func NewType(table string) *Type {
	t := &Type{
		table:   table,
		cols:    map[string]*column{},
		derived: map[string]*column{},
		cache:   newIDCache(),
	}

	id := &column{owner: t, name: "id", decl: shape{kind: shapeKey}}
	t.cols["id"] = id
	t.order = append(t.order, id)
	return t
}

// Table returns the table name the type is bound to.
func (t *Type) Table() string {
	return t.table
}

// ID returns the typed accessor for the implicit primary-key field. The key
// is read-only; Set through this accessor fails with ErrValueMismatch.
func (t *Type) ID() Field[int64] {
	return Field[int64]{col: t.cols["id"]}
}

// tryResolveFields attempts resolution of every field. It reports true when
// none are left pending on an unregistered reference; fatal resolution errors
// are returned as-is.
func (t *Type) tryResolveFields() (bool, error) {
	done := true
	for _, c := range t.order {
		err := c.resolve()
		if err == nil {
			continue
		}
		if isUnresolved(err) {
			done = false
			continue
		}
		return false, err
	}
	return done, nil
}

// installReverse adds a derived reverse-relation query under the given name,
// selecting rows of fk's owning type whose fk field references an instance of
// t. Installing over an existing field or derived name is an error.
func (t *Type) installReverse(name string, fk *column) error {
	if _, ok := t.cols[name]; ok {
		return New(fmt.Sprintf("%s already has a field %s; cannot install reverse relation for %s.%s", t.table, name, fk.owner.table, fk.name), ErrUnsupportedType)
	}
	if _, ok := t.derived[name]; ok {
		return New(fmt.Sprintf("%s already has a reverse relation %s; cannot install it for %s.%s", t.table, name, fk.owner.table, fk.name), ErrUnsupportedType)
	}
	t.derived[name] = fk
	return nil
}

// Create inserts a new row and returns its record instance. For every
// declared field the supplied value is used if present, else the declared
// default; a field with no value, no default, and no null allowance is
// omitted from the statement entirely so the storage layer's own default or
// constraint decides. Supplying a name that matches no declared field, or the
// primary key, fails with ErrValueMismatch before any statement is issued.
// When every column ends up omitted the zero-column statement is still
// issued as-is; whether the store accepts it is the store's call.
//
// The returned instance has an empty shadow; the first field access loads the
// full row.
func (t *Type) Create(vals Values) (*Record, error) {
	if t.reg == nil {
		return nil, New("type for table " + t.table + " is not registered")
	}

	for name := range vals {
		c, ok := t.cols[name]
		if !ok {
			return nil, New(fmt.Sprintf("no field %s on %s", name, t.table), ErrValueMismatch)
		}
		if c.decl.kind == shapeKey {
			return nil, New("the primary key cannot be supplied on create", ErrValueMismatch)
		}
	}

	var colNames []string
	var params []any
	for _, c := range t.order {
		if c.decl.kind == shapeKey {
			continue
		}

		v, supplied := vals[c.name]
		if !supplied {
			if c.hasDefault {
				v = c.def
			} else {
				if err := c.resolve(); err != nil {
					return nil, err
				}
				if !c.res.nullable {
					continue
				}
				v = nil
			}
		}

		raw, err := c.serialize(normalize(v))
		if err != nil {
			return nil, err
		}
		colNames = append(colNames, c.name)
		params = append(params, raw)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(colNames)), ",")
	query := "INSERT INTO " + t.table + "(" + strings.Join(colNames, ",") + ") VALUES(" + placeholders + ")"
	key, err := t.reg.gw.Exec(query, params)
	if err != nil {
		return nil, err
	}

	return t.cache.construct(t, key, nil), nil
}

// Instance returns the record instance for an existing key, without touching
// storage. If a live instance for the key exists it is returned; otherwise a
// fresh instance with an empty shadow is created and cached. The row is not
// checked for existence until the first load.
func (t *Type) Instance(key int64) *Record {
	return t.cache.construct(t, key, nil)
}

// Select returns an unfiltered query over the type.
func (t *Type) Select() Query {
	return Query{typ: t}
}

// materialize turns one result row into a record instance through the
// identity cache, merging the row's columns into the instance's shadow.
func (t *Type) materialize(row Row) (*Record, error) {
	idv, ok := row["id"]
	if !ok {
		return nil, New("result row has no id column", ErrDB)
	}
	key, ok := rawInt(idv)
	if !ok {
		return nil, New(fmt.Sprintf("result row id is %T", idv), ErrDB)
	}

	attrs := make(Row, len(row)-1)
	for k, v := range row {
		if k != "id" {
			attrs[k] = v
		}
	}
	return t.cache.construct(t, key, attrs), nil
}

// Record is one in-memory row instance: an immutable integer primary key plus
// a partially- or fully-loaded shadow of the row's raw column values. At most
// one live Record exists per (type, key).
type Record struct {
	typ    *Type
	id     int64
	shadow map[string]any
}

// ID returns the instance's primary key.
func (r *Record) ID() int64 {
	return r.id
}

// Type returns the record type the instance belongs to.
func (r *Record) Type() *Type {
	return r.typ
}

// Load fetches the full row by primary key and merges it into the shadow. If
// no such row exists, an error wrapping ErrNotFound is returned and the
// shadow is left unchanged.
func (r *Record) Load() error {
	if r.typ.reg == nil {
		return New("type for table " + r.typ.table + " is not registered")
	}

	row, err := r.typ.reg.gw.QueryOne("SELECT * FROM "+r.typ.table+" WHERE id = ?", []any{r.id})
	if err != nil {
		return err
	}
	if row == nil {
		return New(fmt.Sprintf("%s id %d", r.typ.table, r.id), ErrNotFound)
	}

	for k, v := range row {
		r.shadow[k] = v
	}
	return nil
}

// Delete removes the backing row with a single immediately-committed DELETE.
// The instance itself is not evicted from the identity cache and its shadow
// is not cleared; reads of already-loaded fields keep answering from the
// shadow, and a reload fails with ErrNotFound. Further use of a deleted
// instance is a caller error.
func (r *Record) Delete() error {
	if r.typ.reg == nil {
		return New("type for table " + r.typ.table + " is not registered")
	}

	_, err := r.typ.reg.gw.Exec("DELETE FROM "+r.typ.table+" WHERE id = ?", []any{r.id})
	return err
}

// Related returns the derived reverse-relation query installed under the
// given name: all records whose installing foreign-key field references r.
func (r *Record) Related(name string) (Query, error) {
	fk, ok := r.typ.derived[name]
	if !ok {
		return Query{}, New(fmt.Sprintf("no reverse relation %s on %s", name, r.typ.table), ErrValueMismatch)
	}
	return fk.owner.Select().Filter(comparison{col: fk, op: "=", operand: r}), nil
}
