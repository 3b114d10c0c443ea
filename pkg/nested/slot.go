package nested

import (
	"context"

	"github.com/sipeed/picocrud/pkg/domain"
	"github.com/sipeed/picocrud/pkg/domain/child"
)

// Slot locates one child collection on a parent of type P. Ref returns false
// when the parent does not hold the collection; the engine turns that into a
// bad request.
type Slot[P any, C child.Element] struct {
	Kind child.Kind
	Ref  func(parent P) (*[]C, bool)
}

// Typed slots. The container constraint is checked at compile time.

func Characteristics[P child.CharacteristicContainer]() Slot[P, *child.Characteristic] {
	return Slot[P, *child.Characteristic]{
		Kind: child.KindCharacteristic,
		Ref:  func(p P) (*[]*child.Characteristic, bool) { return p.CharacteristicsRef(), true },
	}
}

func ContactMedia[P child.ContactMediumContainer]() Slot[P, *child.ContactMedium] {
	return Slot[P, *child.ContactMedium]{
		Kind: child.KindContactMedium,
		Ref:  func(p P) (*[]*child.ContactMedium, bool) { return p.ContactMediaRef(), true },
	}
}

func ObjectValidations[P child.ObjectValidationContainer]() Slot[P, *child.ObjectValidation] {
	return Slot[P, *child.ObjectValidation]{
		Kind: child.KindObjectValidation,
		Ref:  func(p P) (*[]*child.ObjectValidation, bool) { return p.ObjectValidationsRef(), true },
	}
}

func RelatedActions[P child.RelatedActionContainer]() Slot[P, *child.RelatedAction] {
	return Slot[P, *child.RelatedAction]{
		Kind: child.KindRelatedAction,
		Ref:  func(p P) (*[]*child.RelatedAction, bool) { return p.RelatedActionsRef(), true },
	}
}

func RelatedParties[P child.RelatedPartyContainer]() Slot[P, *child.RelatedObject] {
	return Slot[P, *child.RelatedObject]{
		Kind: child.KindRelatedParty,
		Ref:  func(p P) (*[]*child.RelatedObject, bool) { return p.RelatedPartiesRef(), true },
	}
}

func RelatedIntegrations[P child.RelatedIntegrationContainer]() Slot[P, *child.RelatedObject] {
	return Slot[P, *child.RelatedObject]{
		Kind: child.KindRelatedIntegration,
		Ref:  func(p P) (*[]*child.RelatedObject, bool) { return p.RelatedIntegrationsRef(), true },
	}
}

func RelatedProcesses[P child.RelatedProcessContainer]() Slot[P, *child.RelatedObject] {
	return Slot[P, *child.RelatedObject]{
		Kind: child.KindRelatedProcess,
		Ref:  func(p P) (*[]*child.RelatedObject, bool) { return p.RelatedProcessesRef(), true },
	}
}

func RelatedDomains[P child.RelatedDomainContainer]() Slot[P, *child.RelatedObject] {
	return Slot[P, *child.RelatedObject]{
		Kind: child.KindRelatedDomain,
		Ref:  func(p P) (*[]*child.RelatedObject, bool) { return p.RelatedDomainsRef(), true },
	}
}

// Negotiate builds a slot for parents whose static type does not prove the
// capability (P is often an interface or any). The container interface for
// kind is checked on every call.
func Negotiate[P any, C child.Element](kind child.Kind) Slot[P, C] {
	return Slot[P, C]{
		Kind: kind,
		Ref: func(p P) (*[]C, bool) {
			ref, ok := ContainerRef(kind, p)
			if !ok {
				return nil, false
			}
			typed, ok := ref.(*[]C)
			return typed, ok
		},
	}
}

// ContainerRef returns a pointer to the collection for kind held by parent,
// as an untyped value, or false when parent lacks the capability.
func ContainerRef(kind child.Kind, parent any) (any, bool) {
	switch kind {
	case child.KindCharacteristic:
		if c, ok := parent.(child.CharacteristicContainer); ok {
			return c.CharacteristicsRef(), true
		}
	case child.KindContactMedium:
		if c, ok := parent.(child.ContactMediumContainer); ok {
			return c.ContactMediaRef(), true
		}
	case child.KindObjectValidation:
		if c, ok := parent.(child.ObjectValidationContainer); ok {
			return c.ObjectValidationsRef(), true
		}
	case child.KindRelatedAction:
		if c, ok := parent.(child.RelatedActionContainer); ok {
			return c.RelatedActionsRef(), true
		}
	case child.KindRelatedParty:
		if c, ok := parent.(child.RelatedPartyContainer); ok {
			return c.RelatedPartiesRef(), true
		}
	case child.KindRelatedIntegration:
		if c, ok := parent.(child.RelatedIntegrationContainer); ok {
			return c.RelatedIntegrationsRef(), true
		}
	case child.KindRelatedProcess:
		if c, ok := parent.(child.RelatedProcessContainer); ok {
			return c.RelatedProcessesRef(), true
		}
	case child.KindRelatedDomain:
		if c, ok := parent.(child.RelatedDomainContainer); ok {
			return c.RelatedDomainsRef(), true
		}
	}
	return nil, false
}

// Accessor loads and stores parent aggregates. Fetch returns an error
// matching domain.ErrDomainNotFound when id is unknown. The value returned by
// Fetch is treated as a private working copy for one operation.
type Accessor[P any] interface {
	Fetch(ctx context.Context, id domain.EntityID, user domain.User) (P, error)
	Persist(ctx context.Context, id domain.EntityID, parent P, user domain.User) (P, error)
}
