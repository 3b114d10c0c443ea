// Package child defines the element kinds that live inside parent
// aggregates (characteristics, contact media, validations, related actions
// and related objects), their natural keys, and the criteria used to find
// them.
package child

import "github.com/sipeed/picocrud/pkg/domain"

// ---------------------------------------------------------------------------
// Element capabilities
// ---------------------------------------------------------------------------

// Element is anything stored in a child collection. Implementations are
// pointer types so the engine can assign identifiers in place.
type Element interface {
	ChildID() domain.EntityID
	SetChildID(id domain.EntityID)
}

// Named elements can be addressed by name.
type Named interface {
	ChildName() string
}

// Keyed elements can be addressed by key.
type Keyed interface {
	ChildKey() string
}

// Typed elements can be addressed by type.
type Typed interface {
	ChildType() string
}

// Related elements can be addressed by the id of the object they point to.
type Related interface {
	ChildRelatedID() string
}

// Validator is implemented by elements that check their own required fields.
type Validator interface {
	Validate() error
}

type NamedElement interface {
	Element
	Named
}

type KeyedElement interface {
	Element
	Keyed
}

type TypedElement interface {
	Element
	Typed
}

type RelatedElement interface {
	Element
	Related
}

// ---------------------------------------------------------------------------
// Fields
// ---------------------------------------------------------------------------

// Field names an addressable attribute of an element.
type Field string

const (
	FieldID        Field = "id"
	FieldName      Field = "name"
	FieldKey       Field = "key"
	FieldType      Field = "type"
	FieldRelatedID Field = "related_id"
)

// AllFields returns every field in the order criteria are rendered.
func AllFields() []Field {
	return []Field{FieldID, FieldName, FieldKey, FieldType, FieldRelatedID}
}

func (f Field) String() string { return string(f) }

// ParseField accepts the canonical name plus the camel/kebab spellings used
// in URLs ("relatedId", "related-id").
func ParseField(s string) (Field, error) {
	switch s {
	case "id":
		return FieldID, nil
	case "name":
		return FieldName, nil
	case "key":
		return FieldKey, nil
	case "type":
		return FieldType, nil
	case "related_id", "relatedId", "related-id":
		return FieldRelatedID, nil
	}
	return "", domain.BadRequestf("unknown field %q", s)
}

// Value extracts field f from e. ok is false when the element kind does not
// expose the field.
func Value(e Element, f Field) (value string, ok bool) {
	switch f {
	case FieldID:
		return string(e.ChildID()), true
	case FieldName:
		if n, ok := e.(Named); ok {
			return n.ChildName(), true
		}
	case FieldKey:
		if k, ok := e.(Keyed); ok {
			return k.ChildKey(), true
		}
	case FieldType:
		if t, ok := e.(Typed); ok {
			return t.ChildType(), true
		}
	case FieldRelatedID:
		if r, ok := e.(Related); ok {
			return r.ChildRelatedID(), true
		}
	}
	return "", false
}

// ---------------------------------------------------------------------------
// Kinds
// ---------------------------------------------------------------------------

// Kind names a child collection on a parent aggregate.
type Kind string

const (
	KindCharacteristic     Kind = "characteristic"
	KindContactMedium      Kind = "contact-medium"
	KindObjectValidation   Kind = "object-validation"
	KindRelatedAction      Kind = "related-action"
	KindRelatedParty       Kind = "related-party"
	KindRelatedIntegration Kind = "related-integration"
	KindRelatedProcess     Kind = "related-process"
	KindRelatedDomain      Kind = "related-domain"
)

func AllKinds() []Kind {
	return []Kind{
		KindCharacteristic, KindContactMedium, KindObjectValidation, KindRelatedAction,
		KindRelatedParty, KindRelatedIntegration, KindRelatedProcess, KindRelatedDomain,
	}
}

func (k Kind) String() string { return string(k) }

func (k Kind) Valid() bool {
	for _, kk := range AllKinds() {
		if kk == k {
			return true
		}
	}
	return false
}

// ParseKind validates a kind coming from a transport.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", domain.BadRequestf("unknown child kind %q", s)
	}
	return k, nil
}

// NaturalKeys lists the fields, besides id, that the kind can be updated and
// deleted by.
func (k Kind) NaturalKeys() []Field {
	switch k {
	case KindCharacteristic:
		return []Field{FieldKey}
	case KindContactMedium:
		return []Field{FieldName, FieldType}
	case KindObjectValidation, KindRelatedAction:
		return []Field{FieldName}
	case KindRelatedParty, KindRelatedIntegration, KindRelatedProcess, KindRelatedDomain:
		return []Field{FieldRelatedID}
	}
	return nil
}

// Supports reports whether f is id or one of the kind's natural keys.
func (k Kind) Supports(f Field) bool {
	if f == FieldID {
		return true
	}
	for _, nk := range k.NaturalKeys() {
		if nk == f {
			return true
		}
	}
	return false
}

// requireField is shared by the Validate methods.
func requireField(kind Kind, field Field, value string) error {
	if value == "" {
		return domain.BadRequestf("%s: %s is required", kind, field)
	}
	return nil
}

func errNull(kind Kind) error {
	return domain.BadRequestf("%s: element is null", kind)
}
