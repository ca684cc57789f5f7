package queue

import "strconv"

// Kind tags the accumulator's current shape.
type Kind int

const (
	// KindEmpty means no result has merged yet.
	KindEmpty Kind = iota

	// KindScalar holds exactly one unkeyed result.
	KindScalar

	// KindList holds two or more unkeyed results in merge order.
	KindList

	// KindMap holds keyed results; earlier unkeyed results are re-keyed
	// by their positional index.
	KindMap
)

// Accumulator absorbs heterogeneous per-job results. It is a tagged union
// with explicit promotion rules:
//
//   - the first unkeyed result makes it a scalar;
//   - a second unkeyed result promotes scalar to list, preserving order;
//   - the first keyed result promotes scalar or list to map, re-keying
//     previously merged unkeyed values by their positional index rendered
//     as a decimal string ("0", "1", ...).
//
// Merging never discards previously accumulated values. An Accumulator is
// owned by a single queue or scheduler instance and reset only on a fresh
// run; it is not safe for concurrent use.
type Accumulator struct {
	kind   Kind
	scalar interface{}
	list   []interface{}
	keyed  map[string]interface{}
	next   int // next positional index for unkeyed merges
	count  int
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Kind returns the current shape.
func (a *Accumulator) Kind() Kind {
	return a.kind
}

// Len returns the number of retained results. Re-merging an existing key
// replaces its value without inflating the count.
func (a *Accumulator) Len() int {
	return a.count
}

// Merge absorbs one result. An empty key merges positionally; a non-empty
// key forces the map shape, and merging a key twice overwrites the
// earlier value.
func (a *Accumulator) Merge(key string, value interface{}) {
	if key == "" {
		a.count++
		a.mergeUnkeyed(value)
		return
	}
	a.promoteToMap()
	if _, replaced := a.keyed[key]; !replaced {
		a.count++
	}
	a.keyed[key] = value
}

func (a *Accumulator) mergeUnkeyed(value interface{}) {
	switch a.kind {
	case KindEmpty:
		a.kind = KindScalar
		a.scalar = value
		a.next = 1
	case KindScalar:
		a.kind = KindList
		a.list = []interface{}{a.scalar, value}
		a.scalar = nil
		a.next = 2
	case KindList:
		a.list = append(a.list, value)
		a.next++
	case KindMap:
		a.keyed[strconv.Itoa(a.next)] = value
		a.next++
	}
}

func (a *Accumulator) promoteToMap() {
	switch a.kind {
	case KindEmpty:
		a.keyed = map[string]interface{}{}
	case KindScalar:
		a.keyed = map[string]interface{}{"0": a.scalar}
		a.scalar = nil
	case KindList:
		a.keyed = make(map[string]interface{}, len(a.list))
		for i, v := range a.list {
			a.keyed[strconv.Itoa(i)] = v
		}
		a.list = nil
	case KindMap:
		return
	}
	a.kind = KindMap
}

// Value returns the accumulated result in its natural shape: nil when
// empty, the bare value for a scalar, a copied slice for a list, and a
// copied map for keyed results.
func (a *Accumulator) Value() interface{} {
	switch a.kind {
	case KindScalar:
		return a.scalar
	case KindList:
		out := make([]interface{}, len(a.list))
		copy(out, a.list)
		return out
	case KindMap:
		out := make(map[string]interface{}, len(a.keyed))
		for k, v := range a.keyed {
			out[k] = v
		}
		return out
	default:
		return nil
	}
}
