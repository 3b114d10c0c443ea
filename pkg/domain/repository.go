package domain

import "context"

// ---------------------------------------------------------------------------
// Repository pattern: persistence abstraction for parent aggregates
// ---------------------------------------------------------------------------

// Repository defines the generic CRUD contract for aggregate persistence.
// FindByID returns an error matching ErrDomainNotFound when nothing is stored
// under id.
type Repository[T any] interface {
	FindByID(ctx context.Context, id EntityID) (*T, error)
	// Save persists an aggregate (create or update).
	Save(ctx context.Context, entity *T) error
	Delete(ctx context.Context, id EntityID) error
	FindAll(ctx context.Context) ([]*T, error)
	Count(ctx context.Context) (int, error)
}

// ---------------------------------------------------------------------------
// Specification pattern: composable predicates over candidates
// ---------------------------------------------------------------------------

// Specification decides whether a candidate satisfies a filter. It must be
// pure: no side effects, same answer for the same candidate.
type Specification[T any] interface {
	IsMatching(candidate T) bool
}

// SpecFunc adapts a plain predicate to Specification.
type SpecFunc[T any] func(candidate T) bool

func (f SpecFunc[T]) IsMatching(candidate T) bool { return f(candidate) }

// AndSpec combines two specifications with AND logic.
type AndSpec[T any] struct {
	Left  Specification[T]
	Right Specification[T]
}

func (s AndSpec[T]) IsMatching(candidate T) bool {
	return s.Left.IsMatching(candidate) && s.Right.IsMatching(candidate)
}

// OrSpec combines two specifications with OR logic.
type OrSpec[T any] struct {
	Left  Specification[T]
	Right Specification[T]
}

func (s OrSpec[T]) IsMatching(candidate T) bool {
	return s.Left.IsMatching(candidate) || s.Right.IsMatching(candidate)
}

// NotSpec negates a specification.
type NotSpec[T any] struct {
	Spec Specification[T]
}

func (s NotSpec[T]) IsMatching(candidate T) bool {
	return !s.Spec.IsMatching(candidate)
}

// All combines any number of specifications with AND logic. With no
// arguments it matches everything.
func All[T any](specs ...Specification[T]) Specification[T] {
	return SpecFunc[T](func(candidate T) bool {
		for _, s := range specs {
			if !s.IsMatching(candidate) {
				return false
			}
		}
		return true
	})
}
