// Package nested is the child-collection mutation engine. An Engine binds
// one collection kind on one parent type and runs every operation as
// fetch, capability check, mutate, persist.
package nested

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sipeed/picocrud/pkg/domain"
	"github.com/sipeed/picocrud/pkg/domain/child"
	"github.com/sipeed/picocrud/pkg/logger"
)

const tracerName = "github.com/sipeed/picocrud/pkg/nested"

// Recorder observes finished engine calls. status is the code the operation
// maps to on every transport.
type Recorder interface {
	ObserveOperation(kind string, op domain.Operation, status int, elapsed time.Duration)
}

type settings struct {
	ids      domain.IDAllocator
	events   domain.EventBus
	recorder Recorder
	tracer   trace.Tracer
}

// Option configures an Engine.
type Option func(*settings)

// WithIDAllocator replaces the default UUID allocator.
func WithIDAllocator(ids domain.IDAllocator) Option {
	return func(s *settings) { s.ids = ids }
}

// WithEventBus publishes a child.* event after every successful persist.
func WithEventBus(bus domain.EventBus) Option {
	return func(s *settings) { s.events = bus }
}

func WithRecorder(r Recorder) Option {
	return func(s *settings) { s.recorder = r }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *settings) { s.tracer = t }
}

// Engine runs child operations for collection kind C on parents of type P.
// It holds no per-call state and is safe for concurrent use.
//
// There is no locking and no version check between Fetch and Persist: two
// concurrent operations on the same parent may both succeed, and the later
// Persist wins. Callers that need stronger guarantees must serialize per
// parent or use an Accessor that rejects stale writes.
type Engine[P any, C child.Element] struct {
	slot     Slot[P, C]
	accessor Accessor[P]
	settings
}

// New binds slot and accessor into an Engine.
func New[P any, C child.Element](slot Slot[P, C], accessor Accessor[P], opts ...Option) *Engine[P, C] {
	s := settings{ids: domain.UUIDAllocator{}}
	for _, opt := range opts {
		opt(&s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	return &Engine[P, C]{slot: slot, accessor: accessor, settings: s}
}

// Kind returns the collection kind the engine is bound to.
func (e *Engine[P, C]) Kind() child.Kind { return e.slot.Kind }

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// Get returns the children matching criteria. An empty result is not an error.
func (e *Engine[P, C]) Get(ctx context.Context, parentID domain.EntityID, criteria child.Criteria, user domain.User) ([]C, error) {
	_, found, err := e.run(ctx, domain.OpGet, parentID, user, func(coll *[]C) ([]C, error) {
		if err := criteria.Unsupported(e.slot.Kind); err != nil {
			return nil, err
		}
		return FindAll(*coll, child.For[C](criteria)), nil
	})
	return found, err
}

// GetByID returns the child with id, or a child not-found error.
func (e *Engine[P, C]) GetByID(ctx context.Context, parentID, id domain.EntityID, user domain.User) (C, error) {
	var zero C
	_, found, err := e.run(ctx, domain.OpGetByID, parentID, user, func(coll *[]C) ([]C, error) {
		matches := FindAll(*coll, child.For[C](child.ByID(id)))
		if len(matches) == 0 {
			return nil, e.notFound(parentID, child.ByID(id), nil)
		}
		return matches[:1], nil
	})
	if err != nil {
		return zero, err
	}
	return found[0], nil
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// Save appends element, assigning an id if it has none. It returns the
// persisted parent and the saved element.
func (e *Engine[P, C]) Save(ctx context.Context, parentID domain.EntityID, element C, user domain.User) (P, []C, error) {
	return e.save(ctx, domain.OpSave, parentID, []C{element}, user)
}

// SaveMany appends every element in one write. Any id conflict fails the
// whole batch.
func (e *Engine[P, C]) SaveMany(ctx context.Context, parentID domain.EntityID, elements []C, user domain.User) (P, []C, error) {
	return e.save(ctx, domain.OpSaveMany, parentID, elements, user)
}

func (e *Engine[P, C]) save(ctx context.Context, op domain.Operation, parentID domain.EntityID, elements []C, user domain.User) (P, []C, error) {
	return e.run(ctx, op, parentID, user, func(coll *[]C) ([]C, error) {
		if err := requireElements(e.slot.Kind, elements); err != nil {
			return nil, err
		}
		res := AppendWithGeneratedIDs(coll, elements, e.ids)
		if res.Outcome == Conflict {
			return nil, &domain.ConflictError{Kind: string(e.slot.Kind), IDs: res.Conflicts}
		}
		return res.Affected, nil
	})
}

// Update replaces the first child matching criteria with replacement. The
// replacement keeps the matched child's id.
func (e *Engine[P, C]) Update(ctx context.Context, parentID domain.EntityID, criteria child.Criteria, replacement C, user domain.User) (P, []C, error) {
	return e.update(ctx, domain.OpUpdate, parentID, criteria, replacement, user)
}

// UpdateByID replaces the child with id.
func (e *Engine[P, C]) UpdateByID(ctx context.Context, parentID, id domain.EntityID, replacement C, user domain.User) (P, []C, error) {
	return e.update(ctx, domain.OpUpdateByID, parentID, child.ByID(id), replacement, user)
}

func (e *Engine[P, C]) update(ctx context.Context, op domain.Operation, parentID domain.EntityID, criteria child.Criteria, replacement C, user domain.User) (P, []C, error) {
	return e.run(ctx, op, parentID, user, func(coll *[]C) ([]C, error) {
		if err := requireCriteria(e.slot.Kind, criteria); err != nil {
			return nil, err
		}
		if err := requireElements(e.slot.Kind, []C{replacement}); err != nil {
			return nil, err
		}
		res := ReplaceFirstMatch(coll, child.For[C](criteria), replacement)
		if !res.OK() {
			return nil, e.notFound(parentID, criteria, nil)
		}
		return res.Affected, nil
	})
}

// UpdateMany replaces, by id, every element in replacements. If any id has no
// counterpart nothing is written and the error lists every unmatched id.
func (e *Engine[P, C]) UpdateMany(ctx context.Context, parentID domain.EntityID, replacements []C, user domain.User) (P, []C, error) {
	return e.run(ctx, domain.OpUpdateMany, parentID, user, func(coll *[]C) ([]C, error) {
		if err := requireElements(e.slot.Kind, replacements); err != nil {
			return nil, err
		}
		res := ReplaceByIdentity(coll, replacements)
		if res.Outcome == Conflict {
			return nil, domain.BadRequestf("%s: repeated id(s) %v", e.slot.Kind, res.Conflicts)
		}
		if !res.OK() {
			return nil, e.notFound(parentID, child.Criteria{}, res.Unmatched)
		}
		return res.Affected, nil
	})
}

// Delete removes the first child matching criteria. Writes never accept
// empty criteria.
func (e *Engine[P, C]) Delete(ctx context.Context, parentID domain.EntityID, criteria child.Criteria, user domain.User) (P, []C, error) {
	return e.remove(ctx, domain.OpDelete, parentID, criteria, false, user)
}

// DeleteByID removes the child with id.
func (e *Engine[P, C]) DeleteByID(ctx context.Context, parentID, id domain.EntityID, user domain.User) (P, []C, error) {
	return e.remove(ctx, domain.OpDeleteByID, parentID, child.ByID(id), false, user)
}

// DeleteMany removes every child matching criteria. Removing nothing is a
// not-found error.
func (e *Engine[P, C]) DeleteMany(ctx context.Context, parentID domain.EntityID, criteria child.Criteria, user domain.User) (P, []C, error) {
	return e.remove(ctx, domain.OpDeleteMany, parentID, criteria, true, user)
}

func (e *Engine[P, C]) remove(ctx context.Context, op domain.Operation, parentID domain.EntityID, criteria child.Criteria, all bool, user domain.User) (P, []C, error) {
	return e.run(ctx, op, parentID, user, func(coll *[]C) ([]C, error) {
		if err := requireCriteria(e.slot.Kind, criteria); err != nil {
			return nil, err
		}
		spec := child.For[C](criteria)
		var res Result[C]
		if all {
			res = RemoveAllMatches(coll, spec)
		} else {
			res = RemoveFirstMatch(coll, spec)
		}
		if !res.OK() {
			return nil, e.notFound(parentID, criteria, nil)
		}
		return res.Affected, nil
	})
}

// ---------------------------------------------------------------------------
// Pipeline
// ---------------------------------------------------------------------------

// run is the fetch, check, mutate, persist pipeline shared by every
// operation. Context cancellation is honoured between steps; a cancelled
// call never persists.
func (e *Engine[P, C]) run(ctx context.Context, op domain.Operation, parentID domain.EntityID, user domain.User, mutate func(coll *[]C) ([]C, error)) (_ P, _ []C, err error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "nested."+string(op), trace.WithAttributes(
		attribute.String("child.kind", string(e.slot.Kind)),
		attribute.String("parent.id", string(parentID)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.DebugCF("nested", "Child operation failed", map[string]interface{}{
				"kind":      string(e.slot.Kind),
				"operation": string(op),
				"parent_id": string(parentID),
				"error":     err,
			})
		}
		span.End()
		if e.recorder != nil {
			status := op.Status()
			if err != nil {
				status = domain.StatusOf(err)
			}
			e.recorder.ObserveOperation(string(e.slot.Kind), op, status, time.Since(start))
		}
	}()

	var zero P
	if err := ctx.Err(); err != nil {
		return zero, nil, err
	}

	parent, err := e.accessor.Fetch(ctx, parentID, user)
	if err != nil {
		return zero, nil, err
	}
	if isNil(parent) {
		return zero, nil, &domain.DomainNotFoundError{ID: parentID}
	}
	if err := ctx.Err(); err != nil {
		return zero, nil, err
	}

	coll, ok := e.slot.Ref(parent)
	if !ok || coll == nil {
		return zero, nil, domain.NewTypeMismatch(string(e.slot.Kind), parent)
	}

	affected, err := mutate(coll)
	if err != nil {
		return zero, nil, err
	}
	if !op.Mutates() {
		return parent, affected, nil
	}
	if err := ctx.Err(); err != nil {
		return zero, nil, err
	}

	persisted, err := e.accessor.Persist(ctx, parentID, parent, user)
	if err != nil {
		return zero, nil, err
	}
	e.publish(op, parentID, affected, user)
	return persisted, affected, nil
}

func (e *Engine[P, C]) publish(op domain.Operation, parentID domain.EntityID, affected []C, user domain.User) {
	if e.events == nil {
		return
	}
	ids := make([]domain.EntityID, len(affected))
	for i, c := range affected {
		ids[i] = c.ChildID()
	}
	e.events.Publish(domain.NewEvent(op.EventType(), parentID, domain.ChildChange{
		Kind:      string(e.slot.Kind),
		Operation: op,
		ChildIDs:  ids,
		UserID:    user.ID,
	}))
}

func (e *Engine[P, C]) notFound(parentID domain.EntityID, criteria child.Criteria, unmatched []domain.EntityID) error {
	nf := &domain.ChildNotFoundError{Kind: string(e.slot.Kind), ParentID: parentID, Unmatched: unmatched}
	if !criteria.IsEmpty() {
		nf.Criteria = criteria.String()
	}
	return nf
}

// requireCriteria guards the writes that select by criteria: empty criteria
// would match every child.
func requireCriteria(kind child.Kind, criteria child.Criteria) error {
	if criteria.IsEmpty() {
		return domain.BadRequestf("%s: criteria are required", kind)
	}
	return criteria.Unsupported(kind)
}

func requireElements[C child.Element](kind child.Kind, elements []C) error {
	if len(elements) == 0 {
		return domain.BadRequestf("%s: at least one element is required", kind)
	}
	for i, el := range elements {
		if isNil(el) {
			return domain.BadRequestf("%s: element %d is null", kind, i)
		}
	}
	return nil
}
