package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sipeed/picocrud/pkg/domain"
	"github.com/sipeed/picocrud/pkg/domain/child"
	"github.com/sipeed/picocrud/pkg/domain/resource"
	"github.com/sipeed/picocrud/pkg/nested"
)

// ---------------------------------------------------------------------------
// Command / Reply: the transport-neutral shape of a child operation
// ---------------------------------------------------------------------------

// Command describes one child operation. Which fields are read depends on
// Operation:
//
//	get                         Criteria
//	get-by-id, *-by-id          ID
//	*-by-name/key/type/related  Value
//	update, delete, delete-many Criteria
//	save, update*               Element
//	save-many, update-many      Elements
type Command struct {
	Operation domain.Operation `json:"operation"`
	Kind      child.Kind       `json:"kind"`
	ParentID  domain.EntityID  `json:"parent_id"`
	ID        domain.EntityID  `json:"id,omitempty"`
	Value     string           `json:"value,omitempty"`
	Criteria  child.Criteria   `json:"criteria,omitempty"`
	Element   json.RawMessage  `json:"element,omitempty"`
	Elements  json.RawMessage  `json:"elements,omitempty"`
}

// Reply is the result of a dispatched Command. Status is the operation's
// success code. Parent is nil for reads.
type Reply struct {
	Operation domain.Operation   `json:"operation"`
	Kind      child.Kind         `json:"kind"`
	Status    int                `json:"status"`
	Parent    *resource.Resource `json:"parent,omitempty"`
	Children  any                `json:"children"`
}

// ByFieldOperation maps "update"/"delete" plus a field onto the matching
// *-by-field operation.
func ByFieldOperation(verb string, f child.Field) (domain.Operation, error) {
	var ops map[child.Field]domain.Operation
	switch verb {
	case "update":
		ops = map[child.Field]domain.Operation{
			child.FieldID:        domain.OpUpdateByID,
			child.FieldName:      domain.OpUpdateByName,
			child.FieldKey:       domain.OpUpdateByKey,
			child.FieldType:      domain.OpUpdateByType,
			child.FieldRelatedID: domain.OpUpdateByRelatedID,
		}
	case "delete":
		ops = map[child.Field]domain.Operation{
			child.FieldID:        domain.OpDeleteByID,
			child.FieldName:      domain.OpDeleteByName,
			child.FieldKey:       domain.OpDeleteByKey,
			child.FieldType:      domain.OpDeleteByType,
			child.FieldRelatedID: domain.OpDeleteByRelatedID,
		}
	default:
		return "", domain.BadRequestf("unknown verb %q", verb)
	}
	op, ok := ops[f]
	if !ok {
		return "", domain.BadRequestf("cannot %s by %s", verb, f)
	}
	return op, nil
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

// Dispatcher routes Commands to the engine bound for the command's kind.
// Every transport goes through it so they all agree on semantics and
// status codes.
type Dispatcher struct {
	bindings map[child.Kind]binding
}

type binding interface {
	dispatch(ctx context.Context, cmd Command, user domain.User) (Reply, error)
}

// NewDispatcher binds one engine per child kind on resources.
func NewDispatcher(accessor nested.Accessor[*resource.Resource], opts ...nested.Option) *Dispatcher {
	type P = *resource.Resource
	d := &Dispatcher{bindings: make(map[child.Kind]binding)}

	chars := bind(nested.New(nested.Characteristics[P](), accessor, opts...))
	keyedOps(chars)
	d.bindings[child.KindCharacteristic] = chars

	media := bind(nested.New(nested.ContactMedia[P](), accessor, opts...))
	namedOps(media)
	typedOps(media)
	d.bindings[child.KindContactMedium] = media

	validations := bind(nested.New(nested.ObjectValidations[P](), accessor, opts...))
	namedOps(validations)
	d.bindings[child.KindObjectValidation] = validations

	actions := bind(nested.New(nested.RelatedActions[P](), accessor, opts...))
	namedOps(actions)
	d.bindings[child.KindRelatedAction] = actions

	for _, slot := range []nested.Slot[P, *child.RelatedObject]{
		nested.RelatedParties[P](),
		nested.RelatedIntegrations[P](),
		nested.RelatedProcesses[P](),
		nested.RelatedDomains[P](),
	} {
		related := bind(nested.New(slot, accessor, opts...))
		relatedOps(related)
		d.bindings[slot.Kind] = related
	}
	return d
}

// Execute validates cmd and runs it.
func (d *Dispatcher) Execute(ctx context.Context, cmd Command, user domain.User) (Reply, error) {
	if !cmd.Operation.Valid() {
		return Reply{}, domain.BadRequestf("unknown operation %q", cmd.Operation)
	}
	if cmd.ParentID.IsZero() {
		return Reply{}, domain.BadRequestf("parent_id is required")
	}
	b, ok := d.bindings[cmd.Kind]
	if !ok {
		return Reply{}, domain.BadRequestf("unknown child kind %q", cmd.Kind)
	}
	return b.dispatch(ctx, cmd, user)
}

// Kinds lists the bound child kinds.
func (d *Dispatcher) Kinds() []child.Kind {
	out := make([]child.Kind, 0, len(d.bindings))
	for _, k := range child.AllKinds() {
		if _, ok := d.bindings[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Per-kind binding
// ---------------------------------------------------------------------------

type (
	updateByFunc[C child.Element] func(ctx context.Context, parentID domain.EntityID, value string, replacement C, user domain.User) (*resource.Resource, []C, error)
	deleteByFunc[C child.Element] func(ctx context.Context, parentID domain.EntityID, value string, user domain.User) (*resource.Resource, []C, error)
)

type kindBinding[C child.Element] struct {
	engine    *nested.Engine[*resource.Resource, C]
	updatesBy map[domain.Operation]updateByFunc[C]
	deletesBy map[domain.Operation]deleteByFunc[C]
}

func bind[C child.Element](engine *nested.Engine[*resource.Resource, C]) *kindBinding[C] {
	return &kindBinding[C]{
		engine:    engine,
		updatesBy: make(map[domain.Operation]updateByFunc[C]),
		deletesBy: make(map[domain.Operation]deleteByFunc[C]),
	}
}

// Natural-key registrations; each compiles only for kinds exposing the key.

func namedOps[C child.NamedElement](b *kindBinding[C]) {
	b.updatesBy[domain.OpUpdateByName] = func(ctx context.Context, pid domain.EntityID, v string, r C, u domain.User) (*resource.Resource, []C, error) {
		return nested.UpdateByName(ctx, b.engine, pid, v, r, u)
	}
	b.deletesBy[domain.OpDeleteByName] = func(ctx context.Context, pid domain.EntityID, v string, u domain.User) (*resource.Resource, []C, error) {
		return nested.DeleteByName(ctx, b.engine, pid, v, u)
	}
}

func keyedOps[C child.KeyedElement](b *kindBinding[C]) {
	b.updatesBy[domain.OpUpdateByKey] = func(ctx context.Context, pid domain.EntityID, v string, r C, u domain.User) (*resource.Resource, []C, error) {
		return nested.UpdateByKey(ctx, b.engine, pid, v, r, u)
	}
	b.deletesBy[domain.OpDeleteByKey] = func(ctx context.Context, pid domain.EntityID, v string, u domain.User) (*resource.Resource, []C, error) {
		return nested.DeleteByKey(ctx, b.engine, pid, v, u)
	}
}

func typedOps[C child.TypedElement](b *kindBinding[C]) {
	b.updatesBy[domain.OpUpdateByType] = func(ctx context.Context, pid domain.EntityID, v string, r C, u domain.User) (*resource.Resource, []C, error) {
		return nested.UpdateByType(ctx, b.engine, pid, v, r, u)
	}
	b.deletesBy[domain.OpDeleteByType] = func(ctx context.Context, pid domain.EntityID, v string, u domain.User) (*resource.Resource, []C, error) {
		return nested.DeleteByType(ctx, b.engine, pid, v, u)
	}
}

func relatedOps[C child.RelatedElement](b *kindBinding[C]) {
	b.updatesBy[domain.OpUpdateByRelatedID] = func(ctx context.Context, pid domain.EntityID, v string, r C, u domain.User) (*resource.Resource, []C, error) {
		return nested.UpdateByRelatedID(ctx, b.engine, pid, v, r, u)
	}
	b.deletesBy[domain.OpDeleteByRelatedID] = func(ctx context.Context, pid domain.EntityID, v string, u domain.User) (*resource.Resource, []C, error) {
		return nested.DeleteByRelatedID(ctx, b.engine, pid, v, u)
	}
}

func (b *kindBinding[C]) dispatch(ctx context.Context, cmd Command, user domain.User) (Reply, error) {
	var (
		parent   *resource.Resource
		children []C
		err      error
	)
	e := b.engine

	switch op := cmd.Operation; op {
	case domain.OpGet:
		children, err = e.Get(ctx, cmd.ParentID, cmd.Criteria, user)

	case domain.OpGetByID:
		if err = requireID(cmd); err == nil {
			var one C
			if one, err = e.GetByID(ctx, cmd.ParentID, cmd.ID, user); err == nil {
				children = []C{one}
			}
		}

	case domain.OpSave:
		var el C
		if el, err = decodeOne[C](cmd); err == nil {
			parent, children, err = e.Save(ctx, cmd.ParentID, el, user)
		}

	case domain.OpSaveMany:
		var els []C
		if els, err = decodeMany[C](cmd); err == nil {
			parent, children, err = e.SaveMany(ctx, cmd.ParentID, els, user)
		}

	case domain.OpUpdate:
		var el C
		if el, err = decodeOne[C](cmd); err == nil {
			parent, children, err = e.Update(ctx, cmd.ParentID, cmd.Criteria, el, user)
		}

	case domain.OpUpdateByID:
		var el C
		if err = requireID(cmd); err == nil {
			if el, err = decodeOne[C](cmd); err == nil {
				parent, children, err = e.UpdateByID(ctx, cmd.ParentID, cmd.ID, el, user)
			}
		}

	case domain.OpUpdateMany:
		var els []C
		if els, err = decodeMany[C](cmd); err == nil {
			parent, children, err = e.UpdateMany(ctx, cmd.ParentID, els, user)
		}

	case domain.OpDelete:
		parent, children, err = e.Delete(ctx, cmd.ParentID, cmd.Criteria, user)

	case domain.OpDeleteByID:
		if err = requireID(cmd); err == nil {
			parent, children, err = e.DeleteByID(ctx, cmd.ParentID, cmd.ID, user)
		}

	case domain.OpDeleteMany:
		parent, children, err = e.DeleteMany(ctx, cmd.ParentID, cmd.Criteria, user)

	case domain.OpUpdateByName, domain.OpUpdateByKey, domain.OpUpdateByType, domain.OpUpdateByRelatedID:
		fn, ok := b.updatesBy[op]
		if !ok {
			return Reply{}, unsupported(op, e.Kind())
		}
		var el C
		if err = requireValue(cmd); err == nil {
			if el, err = decodeOne[C](cmd); err == nil {
				parent, children, err = fn(ctx, cmd.ParentID, cmd.Value, el, user)
			}
		}

	case domain.OpDeleteByName, domain.OpDeleteByKey, domain.OpDeleteByType, domain.OpDeleteByRelatedID:
		fn, ok := b.deletesBy[op]
		if !ok {
			return Reply{}, unsupported(op, e.Kind())
		}
		if err = requireValue(cmd); err == nil {
			parent, children, err = fn(ctx, cmd.ParentID, cmd.Value, user)
		}

	default:
		return Reply{}, unsupported(op, e.Kind())
	}

	if err != nil {
		return Reply{}, err
	}
	if children == nil {
		children = make([]C, 0)
	}
	return Reply{
		Operation: cmd.Operation,
		Kind:      e.Kind(),
		Status:    cmd.Operation.Status(),
		Parent:    parent,
		Children:  children,
	}, nil
}

func unsupported(op domain.Operation, kind child.Kind) error {
	return domain.BadRequestf("%s is not supported for %s", op, kind)
}

func requireID(cmd Command) error {
	if cmd.ID.IsZero() {
		return domain.BadRequestf("%s requires id", cmd.Operation)
	}
	return nil
}

func requireValue(cmd Command) error {
	if cmd.Value == "" {
		return domain.BadRequestf("%s requires value", cmd.Operation)
	}
	return nil
}

func decodeOne[C child.Element](cmd Command) (C, error) {
	var el C
	if len(cmd.Element) == 0 {
		return el, domain.BadRequestf("%s requires element", cmd.Operation)
	}
	if err := json.Unmarshal(cmd.Element, &el); err != nil {
		return el, domain.BadRequestf("decode element: %v", err)
	}
	if err := validate(el); err != nil {
		return el, err
	}
	return el, nil
}

func decodeMany[C child.Element](cmd Command) ([]C, error) {
	if len(cmd.Elements) == 0 {
		return nil, domain.BadRequestf("%s requires elements", cmd.Operation)
	}
	var els []C
	if err := json.Unmarshal(cmd.Elements, &els); err != nil {
		return nil, domain.BadRequestf("decode elements: %v", err)
	}
	for i, el := range els {
		if err := validate(el); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
	}
	return els, nil
}

func validate(el child.Element) error {
	if v, ok := el.(child.Validator); ok {
		return v.Validate()
	}
	return nil
}
