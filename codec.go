package relic

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Codec converts between a field's native values and the raw representation
// handed to the storage gateway. There is one implementation per field kind
// (scalar, enumeration, foreign-key reference, sequence-of-values); the
// implementation is selected when the field's type resolves, never by
// inspecting values at runtime.
//
// Null handling lives outside the Codec: the owning field accessor maps nil
// to and from a raw NULL before the codec is consulted. The one exception is
// the sequence codec, which owns the empty-sequence <-> NULL equivalence.
type Codec interface {
	// Encode converts a non-nil native value to its raw storage form. Values
	// outside the codec's domain produce an error wrapping ErrValueMismatch.
	Encode(v any) (any, error)

	// Decode converts a raw storage value back to the native form.
	Decode(raw any) (any, error)
}

// Enumerated is the constraint for enumeration field element types: a named
// type whose underlying type is a signed integer. The enumeration's values
// are stored as that underlying scalar.
type Enumerated interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64
}

// ValueCodec holds the encode/decode pair for one element type of a sequence
// field. Encode produces the element's own serialized form, which must be
// representable in JSON; Decode reverses it. The contract mirrors how the
// element type serializes itself elsewhere and is consumed here, not defined
// here.
type ValueCodec[V any] struct {
	Encode func(V) (any, error)
	Decode func(any) (V, error)
}

type stringCodec struct{}

func (stringCodec) Encode(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, New(fmt.Sprintf("cannot store %T as text", v), ErrValueMismatch)
	}
	return s, nil
}

func (stringCodec) Decode(raw any) (any, error) {
	switch rv := raw.(type) {
	case string:
		return rv, nil
	case []byte:
		return string(rv), nil
	default:
		return nil, New(fmt.Sprintf("cannot decode %T as text", raw), ErrValueMismatch)
	}
}

type intCodec struct{}

func (intCodec) Encode(v any) (any, error) {
	switch iv := v.(type) {
	case int64:
		return iv, nil
	case int:
		return int64(iv), nil
	case int32:
		return int64(iv), nil
	default:
		return nil, New(fmt.Sprintf("cannot store %T as an integer", v), ErrValueMismatch)
	}
}

func (intCodec) Decode(raw any) (any, error) {
	n, ok := rawInt(raw)
	if !ok {
		return nil, New(fmt.Sprintf("cannot decode %T as an integer", raw), ErrValueMismatch)
	}
	return n, nil
}

type floatCodec struct{}

func (floatCodec) Encode(v any) (any, error) {
	switch fv := v.(type) {
	case float64:
		return fv, nil
	case float32:
		return float64(fv), nil
	default:
		return nil, New(fmt.Sprintf("cannot store %T as a real", v), ErrValueMismatch)
	}
}

func (floatCodec) Decode(raw any) (any, error) {
	switch rv := raw.(type) {
	case float64:
		return rv, nil
	case int64:
		return float64(rv), nil
	default:
		return nil, New(fmt.Sprintf("cannot decode %T as a real", raw), ErrValueMismatch)
	}
}

type boolCodec struct{}

func (boolCodec) Encode(v any) (any, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, New(fmt.Sprintf("cannot store %T as a boolean", v), ErrValueMismatch)
	}
	if b {
		return int64(1), nil
	}
	return int64(0), nil
}

func (boolCodec) Decode(raw any) (any, error) {
	switch rv := raw.(type) {
	case bool:
		return rv, nil
	default:
		n, ok := rawInt(raw)
		if !ok {
			return nil, New(fmt.Sprintf("cannot decode %T as a boolean", raw), ErrValueMismatch)
		}
		return n != 0, nil
	}
}

type enumCodec[E Enumerated] struct{}

func (enumCodec[E]) Encode(v any) (any, error) {
	ev, ok := v.(E)
	if !ok {
		var want E
		return nil, New(fmt.Sprintf("cannot store %T in a field of %T", v, want), ErrValueMismatch)
	}
	return int64(ev), nil
}

func (enumCodec[E]) Decode(raw any) (any, error) {
	n, ok := rawInt(raw)
	if !ok {
		var want E
		return nil, New(fmt.Sprintf("cannot decode %T as %T", raw, want), ErrValueMismatch)
	}
	return E(n), nil
}

// refCodec stores a referenced record as its primary key and reconstructs it
// through the target type's identity cache, so a decoded reference starts
// with an empty shadow unless the instance is already live.
type refCodec struct {
	target *Type
}

func (c refCodec) Encode(v any) (any, error) {
	r, ok := v.(*Record)
	if !ok {
		return nil, New(fmt.Sprintf("cannot store %T as a reference to %s", v, c.target.table), ErrValueMismatch)
	}
	if r.typ != c.target {
		return nil, New(fmt.Sprintf("cannot store a %s record in a reference to %s", r.typ.table, c.target.table), ErrValueMismatch)
	}
	return r.id, nil
}

func (c refCodec) Decode(raw any) (any, error) {
	n, ok := rawInt(raw)
	if !ok {
		return nil, New(fmt.Sprintf("cannot decode %T as a key for %s", raw, c.target.table), ErrValueMismatch)
	}
	return c.target.Instance(n), nil
}

// seqCodec stores a sequence field as a JSON array of each element's own
// serialized form. An empty sequence is stored as NULL. Decoding memoizes the
// decoded slice keyed on the exact raw string, so repeated reads of the same
// stored value do not re-parse it (and share the decoded backing array).
type seqCodec[V any] struct {
	conv ValueCodec[V]
	memo map[string][]V
}

func newSeqCodec[V any](conv ValueCodec[V]) *seqCodec[V] {
	return &seqCodec[V]{conv: conv, memo: map[string][]V{}}
}

func (c *seqCodec[V]) Encode(v any) (any, error) {
	vs, ok := v.([]V)
	if !ok {
		return nil, New(fmt.Sprintf("cannot store %T as a sequence", v), ErrValueMismatch)
	}
	if len(vs) == 0 {
		return nil, nil
	}
	elems := make([]any, len(vs))
	for i, el := range vs {
		enc, err := c.conv.Encode(el)
		if err != nil {
			return nil, New(fmt.Sprintf("sequence element %d", i), err, ErrValueMismatch)
		}
		elems[i] = enc
	}
	b, err := json.Marshal(elems)
	if err != nil {
		return nil, New("encode sequence", err, ErrValueMismatch)
	}
	return string(b), nil
}

func (c *seqCodec[V]) Decode(raw any) (any, error) {
	var s string
	switch rv := raw.(type) {
	case nil:
		return []V{}, nil
	case string:
		s = rv
	case []byte:
		s = string(rv)
	default:
		return nil, New(fmt.Sprintf("cannot decode %T as a sequence", raw), ErrValueMismatch)
	}

	if cached, ok := c.memo[s]; ok {
		return cached, nil
	}

	var elems []any
	if err := json.Unmarshal([]byte(s), &elems); err != nil {
		return nil, New("decode sequence", err, ErrValueMismatch)
	}
	out := make([]V, len(elems))
	for i, el := range elems {
		dec, err := c.conv.Decode(el)
		if err != nil {
			return nil, New(fmt.Sprintf("sequence element %d", i), err, ErrValueMismatch)
		}
		out[i] = dec
	}
	c.memo[s] = out
	return out, nil
}

// rawInt extracts an integer from the forms storage layers hand back for
// INTEGER columns.
func rawInt(raw any) (int64, bool) {
	switch rv := raw.(type) {
	case int64:
		return rv, true
	case int:
		return int64(rv), true
	case int32:
		return int64(rv), true
	case float64:
		// JSON numbers decode as float64; accept exact integers only.
		if rv == float64(int64(rv)) {
			return int64(rv), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// normalize collapses typed nil pointers and interfaces to an untyped nil so
// null checks see them uniformly. Slices stay as-is; a nil slice is a valid
// empty sequence, not a null.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
	}
	return v
}
