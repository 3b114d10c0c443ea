package nested

import (
	"reflect"
	"slices"
	"strings"

	"github.com/sipeed/picocrud/pkg/domain"
	"github.com/sipeed/picocrud/pkg/domain/child"
)

// ---------------------------------------------------------------------------
// Collection mutator: pure in-memory operations over one child collection
// ---------------------------------------------------------------------------

// Outcome classifies a mutation result.
type Outcome int

const (
	Applied Outcome = iota
	NotFound
	Conflict
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	}
	return "unknown"
}

// Result is returned by every mutator function. When Outcome is not Applied
// the collection was left untouched.
type Result[C child.Element] struct {
	Outcome Outcome
	// Affected holds the elements that were inserted, replaced in, or removed.
	Affected []C
	// Unmatched lists input ids with no counterpart (ReplaceByIdentity).
	Unmatched []domain.EntityID
	// Conflicts lists ids that already exist or repeat within the input.
	Conflicts []domain.EntityID
}

func (r Result[C]) OK() bool { return r.Outcome == Applied }

// maxIDDraws bounds re-draws when a generated id collides.
const maxIDDraws = 8

// FindAll returns every element satisfying spec, in collection order.
func FindAll[C child.Element](coll []C, spec domain.Specification[C]) []C {
	out := make([]C, 0)
	for _, c := range coll {
		if spec.IsMatching(c) {
			out = append(out, c)
		}
	}
	return out
}

// ReplaceFirstMatch swaps the first element satisfying spec for replacement.
// The replacement takes over the matched element's id and position.
func ReplaceFirstMatch[C child.Element](coll *[]C, spec domain.Specification[C], replacement C) Result[C] {
	for i, c := range *coll {
		if spec.IsMatching(c) {
			replacement.SetChildID(c.ChildID())
			(*coll)[i] = replacement
			return Result[C]{Outcome: Applied, Affected: []C{replacement}}
		}
	}
	return Result[C]{Outcome: NotFound}
}

// RemoveFirstMatch removes the first element satisfying spec.
func RemoveFirstMatch[C child.Element](coll *[]C, spec domain.Specification[C]) Result[C] {
	for i, c := range *coll {
		if spec.IsMatching(c) {
			*coll = slices.Delete(*coll, i, i+1)
			return Result[C]{Outcome: Applied, Affected: []C{c}}
		}
	}
	return Result[C]{Outcome: NotFound}
}

// RemoveAllMatches removes every element satisfying spec. Removing nothing is
// a NotFound result.
func RemoveAllMatches[C child.Element](coll *[]C, spec domain.Specification[C]) Result[C] {
	kept := make([]C, 0, len(*coll))
	var removed []C
	for _, c := range *coll {
		if spec.IsMatching(c) {
			removed = append(removed, c)
			continue
		}
		kept = append(kept, c)
	}
	if len(removed) == 0 {
		return Result[C]{Outcome: NotFound}
	}
	*coll = kept
	return Result[C]{Outcome: Applied, Affected: removed}
}

// ReplaceByIdentity replaces, for every input, the element with the same id.
// All inputs are resolved before anything is written; if any input has no
// counterpart the collection is untouched and every miss is reported. Inputs
// repeating an id are a Conflict.
func ReplaceByIdentity[C child.Element](coll *[]C, inputs []C) Result[C] {
	index := make(map[domain.EntityID]int, len(*coll))
	for i, c := range *coll {
		if _, seen := index[c.ChildID()]; !seen {
			index[c.ChildID()] = i
		}
	}

	seen := make(map[domain.EntityID]bool, len(inputs))
	var conflicts []domain.EntityID
	for _, in := range inputs {
		id := in.ChildID()
		if !id.IsZero() && seen[id] {
			conflicts = append(conflicts, id)
		}
		seen[id] = true
	}
	if len(conflicts) > 0 {
		return Result[C]{Outcome: Conflict, Conflicts: conflicts}
	}

	positions := make([]int, len(inputs))
	var unmatched []domain.EntityID
	for n, in := range inputs {
		i, ok := index[in.ChildID()]
		if !ok || in.ChildID().IsZero() {
			unmatched = append(unmatched, in.ChildID())
			continue
		}
		positions[n] = i
	}
	if len(unmatched) > 0 {
		return Result[C]{Outcome: NotFound, Unmatched: unmatched}
	}

	for n, in := range inputs {
		(*coll)[positions[n]] = in
	}
	return Result[C]{Outcome: Applied, Affected: slices.Clone(inputs)}
}

// AppendWithGeneratedIDs assigns an id from ids to every input whose id is
// blank, then appends all inputs and re-sorts the collection by id. Explicit
// ids that already exist, or repeat within the batch, are a Conflict.
func AppendWithGeneratedIDs[C child.Element](coll *[]C, inputs []C, ids domain.IDAllocator) Result[C] {
	taken := make(map[domain.EntityID]bool, len(*coll)+len(inputs))
	for _, c := range *coll {
		taken[c.ChildID()] = true
	}

	assigned := make([]domain.EntityID, len(inputs))
	var conflicts []domain.EntityID
	for n, in := range inputs {
		id := in.ChildID()
		if id.IsZero() {
			id = draw(ids, taken)
		}
		if id.IsZero() || taken[id] {
			conflicts = append(conflicts, id)
			continue
		}
		taken[id] = true
		assigned[n] = id
	}
	if len(conflicts) > 0 {
		return Result[C]{Outcome: Conflict, Conflicts: conflicts}
	}

	for n, in := range inputs {
		in.SetChildID(assigned[n])
	}
	*coll = append(*coll, inputs...)
	SortByID(*coll)
	return Result[C]{Outcome: Applied, Affected: slices.Clone(inputs)}
}

func draw(ids domain.IDAllocator, taken map[domain.EntityID]bool) domain.EntityID {
	id := ids.NewID()
	for i := 1; i < maxIDDraws && (taken[id] || id.IsZero()); i++ {
		id = ids.NewID()
	}
	return id
}

// SortByID orders a collection by child id. The sort is stable so elements
// sharing an id keep their relative order.
func SortByID[C child.Element](coll []C) {
	slices.SortStableFunc(coll, func(a, b C) int {
		return strings.Compare(string(a.ChildID()), string(b.ChildID()))
	})
}

// isNil reports a nil interface or nil pointer element, which JSON decoding
// produces for "null" array entries.
func isNil[C any](c C) bool {
	v := reflect.ValueOf(any(c))
	return !v.IsValid() || (v.Kind() == reflect.Pointer && v.IsNil())
}
