package relic

import (
	"errors"
	"fmt"
)

// shapeKind enumerates the supported declared type shapes. Anything that does
// not reduce to one of these fails resolution with ErrUnsupportedType.
type shapeKind int

const (
	shapeInvalid shapeKind = iota
	shapeKey               // the primary-key placeholder; underlying integer
	shapeString
	shapeInt
	shapeFloat
	shapeBool
	shapeEnum
	shapeSeq
	shapeRef      // reference to a record type by table name
	shapeSelf     // reference to the owning record type
	shapeOptional // "T or null"; exactly one level deep
)

// shape is a field's declared type expression. It is data, not behavior:
// resolution walks it and validates it against the supported forms.
type shape struct {
	kind  shapeKind
	elem  *shape // wrapped shape for shapeOptional
	table string // target table for shapeRef
}

// resolved is the memoized product of type resolution for one column: the
// nullability flag, the referenced record type for reference fields, and the
// codec selected for the underlying kind.
type resolved struct {
	nullable bool
	target   *Type
	codec    Codec
}

func isUnresolved(err error) bool {
	return errors.Is(err, errUnresolved)
}

// resolve produces the column's resolved type exactly once. A return of
// errUnresolved means the declared type names a record type that is not
// registered yet; the column stays pending and resolve may be called again.
// Every other failure is sticky: it is recorded and returned unchanged on all
// later calls.
func (c *column) resolve() error {
	if c.res != nil {
		return nil
	}
	if c.resErr != nil {
		return c.resErr
	}

	r, err := c.resolveShape()
	if err != nil {
		if !errors.Is(err, errUnresolved) {
			c.resErr = err
		}
		return err
	}

	if c.related != "" {
		if r.target == nil {
			c.resErr = New(fmt.Sprintf("field %s: reverse relations require a reference field", c.name), ErrUnsupportedType)
			return c.resErr
		}
		if err := r.target.installReverse(c.related, c); err != nil {
			c.resErr = err
			return c.resErr
		}
	}

	c.res = r
	return nil
}

func (c *column) resolveShape() (*resolved, error) {
	s := c.decl
	nullable := false
	if s.kind == shapeOptional {
		nullable = true
		if s.elem == nil {
			return nil, New(fmt.Sprintf("field %s: optional with no wrapped type", c.name), ErrUnsupportedType)
		}
		s = *s.elem
		if s.kind == shapeOptional {
			return nil, New(fmt.Sprintf("field %s: optional of optional is not supported", c.name), ErrUnsupportedType)
		}
	}

	switch s.kind {
	case shapeKey:
		if nullable {
			return nil, New(fmt.Sprintf("field %s: the key type cannot be optional", c.name), ErrUnsupportedType)
		}
		return &resolved{codec: intCodec{}}, nil
	case shapeString, shapeInt, shapeFloat, shapeBool, shapeEnum, shapeSeq:
		return &resolved{nullable: nullable, codec: c.baseCodec}, nil
	case shapeSelf:
		return &resolved{nullable: nullable, target: c.owner, codec: refCodec{target: c.owner}}, nil
	case shapeRef:
		if c.owner.reg == nil {
			return nil, New(fmt.Sprintf("field %s: owning type %s is not registered", c.name, c.owner.table), errUnresolved)
		}
		target := c.owner.reg.typeByTable(s.table)
		if target == nil {
			return nil, New(fmt.Sprintf("field %s: table %s", c.name, s.table), errUnresolved)
		}
		return &resolved{nullable: nullable, target: target, codec: refCodec{target: target}}, nil
	default:
		return nil, New(fmt.Sprintf("field %s: unsupported declared type", c.name), ErrUnsupportedType)
	}
}
