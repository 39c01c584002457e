package relic

import (
	"fmt"
	"iter"
	"strings"
)

// Condition is one node of a query's predicate expression tree: a comparison,
// a disjunction, a negation, or a set-membership test. Conditions are
// immutable; combine them with Or and Not, or conjoin them by passing several
// to Query.Filter.
type Condition interface {
	stringify() (string, []any, error)
}

// Or returns the disjunction of two conditions.
func Or(left, right Condition) Condition {
	return disjunction{left: left, right: right}
}

// Not returns the negation of a condition.
func Not(cond Condition) Condition {
	return negation{cond: cond}
}

const opInstr = "INSTR"

type comparison struct {
	col     *column
	op      string
	operand any
}

func (cmp comparison) stringify() (string, []any, error) {
	if cmp.operand == nil {
		switch cmp.op {
		case "=":
			return "(" + cmp.col.name + " IS NULL)", nil, nil
		case "!=":
			return "(" + cmp.col.name + " IS NOT NULL)", nil, nil
		default:
			return "", nil, New("operator "+cmp.op+" requires a non-null operand", ErrValueMismatch)
		}
	}

	raw, err := cmp.col.serialize(cmp.operand)
	if err != nil {
		return "", nil, err
	}
	if cmp.op == opInstr {
		return "INSTR(" + cmp.col.name + ", ?)", []any{raw}, nil
	}
	return "(" + cmp.col.name + " " + cmp.op + " ?)", []any{raw}, nil
}

type disjunction struct {
	left, right Condition
}

func (d disjunction) stringify() (string, []any, error) {
	left, leftParams, err := d.left.stringify()
	if err != nil {
		return "", nil, err
	}
	right, rightParams, err := d.right.stringify()
	if err != nil {
		return "", nil, err
	}
	return "(" + left + " OR " + right + ")", append(leftParams, rightParams...), nil
}

type negation struct {
	cond Condition
}

func (n negation) stringify() (string, []any, error) {
	inner, params, err := n.cond.stringify()
	if err != nil {
		return "", nil, err
	}
	return "NOT " + inner, params, nil
}

// membership is a set-membership test; each member is serialized through the
// field's codec individually, one placeholder per member.
type membership struct {
	col      *column
	positive bool
	values   []any
}

func (m membership) stringify() (string, []any, error) {
	params := make([]any, len(m.values))
	placeholders := make([]string, len(m.values))
	for i, v := range m.values {
		raw, err := m.col.serialize(v)
		if err != nil {
			return "", nil, err
		}
		params[i] = raw
		placeholders[i] = "?"
	}

	op := "IN"
	if !m.positive {
		op = "NOT IN"
	}
	return "(" + m.col.name + " " + op + " (" + strings.Join(placeholders, ", ") + "))", params, nil
}

// Eq returns a condition testing the field for equality with v. A nil operand
// (for reference fields) lowers to an IS NULL test.
func (f Field[T]) Eq(v T) Condition {
	return comparison{col: f.col, op: "=", operand: normalize(v)}
}

// Ne returns a condition testing the field for inequality with v. A nil
// operand (for reference fields) lowers to an IS NOT NULL test.
func (f Field[T]) Ne(v T) Condition {
	return comparison{col: f.col, op: "!=", operand: normalize(v)}
}

// Lt returns a condition testing the field for being less than v.
func (f Field[T]) Lt(v T) Condition {
	return comparison{col: f.col, op: "<", operand: normalize(v)}
}

// Le returns a condition testing the field for being less than or equal to v.
func (f Field[T]) Le(v T) Condition {
	return comparison{col: f.col, op: "<=", operand: normalize(v)}
}

// Gt returns a condition testing the field for being greater than v.
func (f Field[T]) Gt(v T) Condition {
	return comparison{col: f.col, op: ">", operand: normalize(v)}
}

// Ge returns a condition testing the field for being greater than or equal to
// v.
func (f Field[T]) Ge(v T) Condition {
	return comparison{col: f.col, op: ">=", operand: normalize(v)}
}

// Contains returns a condition testing that v occurs as a substring of the
// field's value.
func (f Field[T]) Contains(v T) Condition {
	return comparison{col: f.col, op: opInstr, operand: normalize(v)}
}

// IsNull returns a condition testing the field for NULL.
func (f Field[T]) IsNull() Condition {
	return comparison{col: f.col, op: "="}
}

// NotNull returns a condition testing the field for NOT NULL.
func (f Field[T]) NotNull() Condition {
	return comparison{col: f.col, op: "!="}
}

// In returns a condition testing the field for membership in vals.
func (f Field[T]) In(vals ...T) Condition {
	return membership{col: f.col, positive: true, values: anySlice(vals)}
}

// NotIn returns a condition testing the field for exclusion from vals.
func (f Field[T]) NotIn(vals ...T) Condition {
	return membership{col: f.col, values: anySlice(vals)}
}

// Asc returns an ascending sort key on the field.
func (f Field[T]) Asc() OrderKey {
	return OrderKey{col: f.col, ascending: true}
}

// Desc returns a descending sort key on the field.
func (f Field[T]) Desc() OrderKey {
	return OrderKey{col: f.col}
}

func anySlice[T any](vals []T) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = normalize(v)
	}
	return out
}

// OrderKey is one sort key of a query: a field and a direction.
type OrderKey struct {
	col       *column
	ascending bool
}

func (o OrderKey) stringify() string {
	if o.ascending {
		return o.col.name + " ASC"
	}
	return o.col.name + " DESC"
}

// Query is an immutable specification of a SELECT over one record type: zero
// or more conditions conjoined with AND, zero or more sort keys, and an
// optional row limit. Every builder method returns a new Query; the statement
// text is only computed when the query executes. A Query holds no cursor
// state, so iterating it again re-executes it from the start.
type Query struct {
	typ   *Type
	conds []Condition
	order []OrderKey
	limit *int
}

// Filter returns a copy of the query with the given conditions appended to
// its conjunction.
func (q Query) Filter(conds ...Condition) Query {
	nq := q
	nq.conds = append(append([]Condition(nil), q.conds...), conds...)
	return nq
}

// OrderBy returns a copy of the query with the given sort keys appended, in
// declaration order.
func (q Query) OrderBy(keys ...OrderKey) Query {
	nq := q
	nq.order = append(append([]OrderKey(nil), q.order...), keys...)
	return nq
}

// Limit returns a copy of the query with its row limit set to n.
func (q Query) Limit(n int) Query {
	nq := q
	nq.limit = &n
	return nq
}

// Stringify lowers the query to statement text and ordered positional
// parameters, selecting the given columns expression.
func (q Query) Stringify(columns string) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(columns)
	sb.WriteString(" FROM ")
	sb.WriteString(q.typ.table)

	var params []any
	if len(q.conds) > 0 {
		parts := make([]string, len(q.conds))
		for i, cond := range q.conds {
			text, condParams, err := cond.stringify()
			if err != nil {
				return "", nil, err
			}
			parts[i] = text
			params = append(params, condParams...)
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(parts, " AND "))
	}

	if len(q.order) > 0 {
		keys := make([]string, len(q.order))
		for i, o := range q.order {
			keys[i] = o.stringify()
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(keys, ", "))
	}

	if q.limit != nil {
		sb.WriteString(" LIMIT ?")
		params = append(params, *q.limit)
	}

	return sb.String(), params, nil
}

// Count executes a COUNT(*) variant of the query's filter clause and returns
// the number of matching rows without materializing any records.
func (q Query) Count() (int64, error) {
	if q.typ.reg == nil {
		return 0, New("type for table " + q.typ.table + " is not registered")
	}

	text, params, err := q.Stringify("COUNT(*)")
	if err != nil {
		return 0, err
	}
	row, err := q.typ.reg.gw.QueryOne(text, params)
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, New("count query returned no row", ErrDB)
	}
	for _, v := range row {
		n, ok := rawInt(v)
		if !ok {
			return 0, New(fmt.Sprintf("count query returned %T", v), ErrDB)
		}
		return n, nil
	}
	return 0, New("count query returned an empty row", ErrDB)
}

// Iter executes the query and returns a lazy, forward-only sequence of the
// matching records. Rows are fetched in chunks from the gateway and
// materialized through the identity cache, so a key appearing more than once
// yields the same instance with merged shadow data. Breaking out of the loop
// early releases the underlying result stream; ranging again re-executes the
// query from the start.
func (q Query) Iter() iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		if q.typ.reg == nil {
			yield(nil, New("type for table "+q.typ.table+" is not registered"))
			return
		}

		text, params, err := q.Stringify("*")
		if err != nil {
			yield(nil, err)
			return
		}

		cur, err := q.typ.reg.gw.Query(text, params)
		if err != nil {
			yield(nil, err)
			return
		}
		defer cur.Close()

		for {
			rows, err := cur.Fetch()
			if err != nil {
				yield(nil, err)
				return
			}
			if len(rows) == 0 {
				return
			}
			for _, row := range rows {
				rec, err := q.typ.materialize(row)
				if !yield(rec, err) || err != nil {
					return
				}
			}
		}
	}
}

// All executes the query and collects every matching record.
func (q Query) All() ([]*Record, error) {
	var out []*Record
	for rec, err := range q.Iter() {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// First executes the query with a row limit of one and returns the first
// matching record, or an error wrapping ErrNotFound if there are none.
func (q Query) First() (*Record, error) {
	for rec, err := range q.Limit(1).Iter() {
		return rec, err
	}
	return nil, New("query matched no rows", ErrNotFound)
}
