package docstore

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// DocumentID is the pseudo-field that filters and orders on the document ID.
const DocumentID = "__name__"

// Op is a filter operator.
type Op string

const (
	OpEqual Op = "=="
	OpIn    Op = "in"
)

// Direction is a sort direction.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Filter restricts a query to documents whose field matches Value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Order sorts query results by a (dotted) field.
type Order struct {
	Field string
	Dir   Direction
}

// Query selects documents from a single collection. Documents missing an
// ordering field sort before all others, and ties are broken by document ID.
type Query struct {
	Collection CollectionRef
	Filters    []Filter
	Orders     []Order
	Limit      int
}

// NewQuery starts a query over every document in coll.
func NewQuery(coll CollectionRef) Query {
	return Query{Collection: coll}
}

// Where returns a copy of q with an additional filter. Values are
// normalized to their stored representation; OpIn expects a slice.
func (q Query) Where(field string, op Op, value any) Query {
	nv, err := normalize(value)
	if err != nil {
		nv = fmt.Sprint(value)
	}
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Op: op, Value: nv})
	return q
}

// OrderBy returns a copy of q with an additional sort key.
func (q Query) OrderBy(field string, dir Direction) Query {
	orders := make([]Order, len(q.Orders), len(q.Orders)+1)
	copy(orders, q.Orders)
	q.Orders = append(orders, Order{Field: field, Dir: dir})
	return q
}

// LimitTo returns a copy of q returning at most n documents.
func (q Query) LimitTo(n int) Query {
	q.Limit = n
	return q
}

// Validate checks operators and operand shapes.
func (q Query) Validate() error {
	if q.Collection.Path == "" {
		return fmt.Errorf("docstore: query without collection")
	}
	for _, f := range q.Filters {
		switch f.Op {
		case OpEqual:
		case OpIn:
			if _, ok := f.Value.([]any); !ok {
				return fmt.Errorf("docstore: %q in filter needs a list operand", f.Field)
			}
		default:
			return fmt.Errorf("docstore: unsupported operator %q", f.Op)
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("docstore: negative limit")
	}
	return nil
}

// Matches reports whether d satisfies every filter of q.
func (q Query) Matches(d Document) bool {
	for _, f := range q.Filters {
		v, ok := d.Field(f.Field)
		if !ok {
			return false
		}
		switch f.Op {
		case OpEqual:
			if !valuesEqual(v, f.Value) {
				return false
			}
		case OpIn:
			list, _ := f.Value.([]any)
			found := false
			for _, candidate := range list {
				if valuesEqual(v, candidate) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Apply filters, sorts and limits docs in memory. Backends fetch a
// collection and call Apply so that every backend orders identically.
func (q Query) Apply(docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if q.Matches(d) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		for _, o := range q.Orders {
			a, _ := out[i].Field(o.Field)
			b, _ := out[j].Field(o.Field)
			c := compareValues(a, b)
			if c == 0 {
				continue
			}
			if o.Dir == Desc {
				return c > 0
			}
			return c < 0
		}
		return out[i].Ref.ID < out[j].Ref.ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func valuesEqual(a, b any) bool {
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			if as == bs {
				return true
			}
			ta, errA := time.Parse(time.RFC3339Nano, as)
			tb, errB := time.Parse(time.RFC3339Nano, bs)
			return errA == nil && errB == nil && ta.Equal(tb)
		}
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders nil first, then booleans, numbers, strings (RFC 3339
// timestamps chronologically) and finally anything else by its printed form.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case nil:
		return 0
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		bv := b.(string)
		ta, errA := time.Parse(time.RFC3339Nano, av)
		tb, errB := time.Parse(time.RFC3339Nano, bv)
		if errA == nil && errB == nil {
			return ta.Compare(tb)
		}
		return strings.Compare(av, bv)
	default:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}
