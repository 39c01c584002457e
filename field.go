package relic

import (
	"fmt"
)

// column is the untyped core of a field accessor: one schema column bound to
// exactly one record type, carrying the declared type shape, the optional
// default, and the memoized resolution product. The generic Field wrapper
// layers compile-time typing over it.
type column struct {
	owner      *Type
	name       string
	decl       shape
	baseCodec  Codec
	def        any
	hasDefault bool
	related    string

	res    *resolved
	resErr error
}

// FieldOption adjusts a field accessor at declaration time.
type FieldOption func(*column)

// AllowNull declares the field's type as "T or null". Applying it twice
// produces an optional-of-optional shape, which fails resolution.
func AllowNull() FieldOption {
	return func(c *column) {
		wrapped := c.decl
		c.decl = shape{kind: shapeOptional, elem: &wrapped}
	}
}

// WithDefault sets the value used for the field when a create call does not
// supply one.
func WithDefault(v any) FieldOption {
	return func(c *column) {
		c.def = v
		c.hasDefault = true
	}
}

// Reverse names a derived read-only query installed on the referenced record
// type when this field resolves: for an instance x of the referenced type,
// the derived query selects every row whose value in this field is x. Only
// valid on reference fields.
func Reverse(name string) FieldOption {
	return func(c *column) {
		c.related = name
	}
}

// Field is the typed accessor for one column of a record type. It provides
// get/set access on instances, value serialization, and condition
// construction for queries. The zero Field is not valid; obtain one from the
// declaration functions (String, Int, Bool, Float, Enum, Ref, SelfRef, Seq)
// or from Type.ID.
type Field[T any] struct {
	col *column
}

func declare[T any](t *Type, name string, s shape, codec Codec, opts []FieldOption) Field[T] {
	if t.reg != nil {
		panic(fmt.Sprintf("relic: field %s declared after type %s was registered", name, t.table))
	}
	if _, ok := t.cols[name]; ok {
		panic(fmt.Sprintf("relic: duplicate field %s on type %s", name, t.table))
	}

	c := &column{owner: t, name: name, decl: s, baseCodec: codec}
	for _, opt := range opts {
		opt(c)
	}

	t.cols[name] = c
	t.order = append(t.order, c)
	return Field[T]{col: c}
}

// String declares a text field on t.
func String(t *Type, name string, opts ...FieldOption) Field[string] {
	return declare[string](t, name, shape{kind: shapeString}, stringCodec{}, opts)
}

// Int declares an integer field on t.
func Int(t *Type, name string, opts ...FieldOption) Field[int64] {
	return declare[int64](t, name, shape{kind: shapeInt}, intCodec{}, opts)
}

// Float declares a real-valued field on t.
func Float(t *Type, name string, opts ...FieldOption) Field[float64] {
	return declare[float64](t, name, shape{kind: shapeFloat}, floatCodec{}, opts)
}

// Bool declares a boolean field on t, stored as an integer.
func Bool(t *Type, name string, opts ...FieldOption) Field[bool] {
	return declare[bool](t, name, shape{kind: shapeBool}, boolCodec{}, opts)
}

// Enum declares an enumeration field on t, stored as the enumeration's
// underlying integer scalar.
func Enum[E Enumerated](t *Type, name string, opts ...FieldOption) Field[E] {
	return declare[E](t, name, shape{kind: shapeEnum}, enumCodec[E]{}, opts)
}

// Ref declares a foreign-key field on t referencing the record type bound to
// the named table. The target does not need to be registered yet, or even to
// exist yet; resolution is deferred until it is.
func Ref(t *Type, name, table string, opts ...FieldOption) Field[*Record] {
	return declare[*Record](t, name, shape{kind: shapeRef, table: table}, nil, opts)
}

// SelfRef declares a foreign-key field on t referencing t itself.
func SelfRef(t *Type, name string, opts ...FieldOption) Field[*Record] {
	return declare[*Record](t, name, shape{kind: shapeSelf}, nil, opts)
}

// Seq declares a sequence field on t holding zero or more values of type V,
// stored as a JSON array of each element's serialized form. An empty sequence
// is stored as NULL. conv supplies V's own encode/decode contract.
func Seq[V any](t *Type, name string, conv ValueCodec[V], opts ...FieldOption) Field[[]V] {
	return declare[[]V](t, name, shape{kind: shapeSeq}, newSeqCodec(conv), opts)
}

// Name returns the field's column name.
func (f Field[T]) Name() string {
	return f.col.name
}

// Get returns the field's value on r, loading the full row first if the
// column is not yet present in r's shadow. A NULL column decodes to the zero
// value of T; use GetOK to distinguish the two.
func (f Field[T]) Get(r *Record) (T, error) {
	v, _, err := f.GetOK(r)
	return v, err
}

// GetOK is like Get but additionally reports whether the column held a
// non-null value.
func (f Field[T]) GetOK(r *Record) (T, bool, error) {
	var zero T
	v, err := f.col.value(r)
	if err != nil {
		return zero, false, err
	}
	if v == nil {
		return zero, false, nil
	}
	tv, ok := v.(T)
	if !ok {
		return zero, false, New(fmt.Sprintf("field %s decoded to %T", f.col.name, v), ErrValueMismatch)
	}
	return tv, true, nil
}

// Set serializes v, writes it to r's row with a single immediately-committed
// UPDATE, and records the new raw value in r's shadow. The primary key cannot
// be written.
func (f Field[T]) Set(r *Record, v T) error {
	return f.col.setValue(r, normalize(v))
}

// Serialize converts v to the raw form the field stores, enforcing the
// resolved type's domain.
func (f Field[T]) Serialize(v T) (any, error) {
	return f.col.serialize(normalize(v))
}

// SerializeNull returns the raw form of a null value for the field, which is
// an error wrapping ErrValueMismatch unless the field allows null.
func (f Field[T]) SerializeNull() (any, error) {
	return f.col.serialize(nil)
}

// Deserialize converts a raw stored value back to the field's native type. A
// raw NULL yields the zero value of T.
func (f Field[T]) Deserialize(raw any) (T, error) {
	var zero T
	v, err := f.col.deserialize(raw)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	tv, ok := v.(T)
	if !ok {
		return zero, New(fmt.Sprintf("field %s decoded to %T", f.col.name, v), ErrValueMismatch)
	}
	return tv, nil
}

// serialize converts a native value (already normalized) to raw form,
// handling null ahead of the codec.
func (c *column) serialize(v any) (any, error) {
	if err := c.resolve(); err != nil {
		return nil, err
	}
	if v == nil {
		if !c.res.nullable {
			return nil, New(fmt.Sprintf("field %s does not allow null", c.name), ErrValueMismatch)
		}
		return nil, nil
	}
	return c.res.codec.Encode(v)
}

// deserialize converts a raw stored value to native form, handling null ahead
// of the codec. A NULL in a non-nullable sequence field is the empty
// sequence, so NULL is passed through to that codec.
func (c *column) deserialize(raw any) (any, error) {
	if err := c.resolve(); err != nil {
		return nil, err
	}
	if raw == nil && c.res.nullable {
		return nil, nil
	}
	return c.res.codec.Decode(raw)
}

// value reads the field's raw value from r's shadow, triggering a full-row
// load when absent, and decodes it.
func (c *column) value(r *Record) (any, error) {
	if err := c.resolve(); err != nil {
		return nil, err
	}
	if c.decl.kind == shapeKey {
		return r.id, nil
	}
	if _, ok := r.shadow[c.name]; !ok {
		if err := r.Load(); err != nil {
			return nil, err
		}
	}
	return c.deserialize(r.shadow[c.name])
}

func (c *column) setValue(r *Record, v any) error {
	if c.decl.kind == shapeKey {
		return New("the primary key cannot be written", ErrValueMismatch)
	}
	if c.owner.reg == nil {
		return New("type for table " + c.owner.table + " is not registered")
	}
	raw, err := c.serialize(v)
	if err != nil {
		return err
	}

	query := "UPDATE " + c.owner.table + " SET " + c.name + " = ? WHERE id = ?"
	if _, err := c.owner.reg.gw.Exec(query, []any{raw, r.id}); err != nil {
		return err
	}
	r.shadow[c.name] = raw
	return nil
}
