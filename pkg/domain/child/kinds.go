package child

import "github.com/sipeed/picocrud/pkg/domain"

// ---------------------------------------------------------------------------
// Characteristic: addressed by key
// ---------------------------------------------------------------------------

// Characteristic is a key/value attribute of the parent.
type Characteristic struct {
	ID        domain.EntityID `json:"id"`
	Key       string          `json:"key"`
	Value     string          `json:"value"`
	ValueType string          `json:"value_type,omitempty"`
}

func (c *Characteristic) ChildID() domain.EntityID      { return c.ID }
func (c *Characteristic) SetChildID(id domain.EntityID) { c.ID = id }
func (c *Characteristic) ChildKey() string              { return c.Key }

func (c *Characteristic) Validate() error {
	if c == nil {
		return errNull(KindCharacteristic)
	}
	return requireField(KindCharacteristic, FieldKey, c.Key)
}

// ---------------------------------------------------------------------------
// ContactMedium: addressed by name or type
// ---------------------------------------------------------------------------

// ContactMedium is a way to reach the parent (email, phone, address...).
type ContactMedium struct {
	ID        domain.EntityID `json:"id"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Value     string          `json:"value"`
	Preferred bool            `json:"preferred,omitempty"`
}

func (c *ContactMedium) ChildID() domain.EntityID      { return c.ID }
func (c *ContactMedium) SetChildID(id domain.EntityID) { c.ID = id }
func (c *ContactMedium) ChildName() string             { return c.Name }
func (c *ContactMedium) ChildType() string             { return c.Type }

func (c *ContactMedium) Validate() error {
	if c == nil {
		return errNull(KindContactMedium)
	}
	if err := requireField(KindContactMedium, FieldName, c.Name); err != nil {
		return err
	}
	return requireField(KindContactMedium, FieldType, c.Type)
}

// ---------------------------------------------------------------------------
// ObjectValidation: addressed by name
// ---------------------------------------------------------------------------

// ObjectValidation records the outcome of a named validation rule.
type ObjectValidation struct {
	ID      domain.EntityID `json:"id"`
	Name    string          `json:"name"`
	Status  string          `json:"status,omitempty"`
	Message string          `json:"message,omitempty"`
}

func (v *ObjectValidation) ChildID() domain.EntityID      { return v.ID }
func (v *ObjectValidation) SetChildID(id domain.EntityID) { v.ID = id }
func (v *ObjectValidation) ChildName() string             { return v.Name }

func (v *ObjectValidation) Validate() error {
	if v == nil {
		return errNull(KindObjectValidation)
	}
	return requireField(KindObjectValidation, FieldName, v.Name)
}

// ---------------------------------------------------------------------------
// RelatedAction: addressed by name
// ---------------------------------------------------------------------------

// RelatedAction is a named action available on, or pending for, the parent.
type RelatedAction struct {
	ID        domain.EntityID `json:"id"`
	Name      string          `json:"name"`
	Status    string          `json:"status,omitempty"`
	Mandatory bool            `json:"mandatory,omitempty"`
}

func (a *RelatedAction) ChildID() domain.EntityID      { return a.ID }
func (a *RelatedAction) SetChildID(id domain.EntityID) { a.ID = id }
func (a *RelatedAction) ChildName() string             { return a.Name }

func (a *RelatedAction) Validate() error {
	if a == nil {
		return errNull(KindRelatedAction)
	}
	return requireField(KindRelatedAction, FieldName, a.Name)
}

// ---------------------------------------------------------------------------
// RelatedObject: addressed by related id
// ---------------------------------------------------------------------------

// RelatedObject links the parent to another object by id. It backs the
// related party, integration, process and domain collections.
type RelatedObject struct {
	ID        domain.EntityID `json:"id"`
	RelatedID string          `json:"related_id"`
	Role      string          `json:"role,omitempty"`
	Enabled   bool            `json:"enabled"`
}

func (r *RelatedObject) ChildID() domain.EntityID      { return r.ID }
func (r *RelatedObject) SetChildID(id domain.EntityID) { r.ID = id }
func (r *RelatedObject) ChildRelatedID() string        { return r.RelatedID }

func (r *RelatedObject) Validate() error {
	if r == nil {
		return domain.BadRequestf("related object: element is null")
	}
	if r.RelatedID == "" {
		return domain.BadRequestf("related object: %s is required", FieldRelatedID)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Container capabilities: implemented by parent aggregates
// ---------------------------------------------------------------------------

type CharacteristicContainer interface {
	CharacteristicsRef() *[]*Characteristic
}

type ContactMediumContainer interface {
	ContactMediaRef() *[]*ContactMedium
}

type ObjectValidationContainer interface {
	ObjectValidationsRef() *[]*ObjectValidation
}

type RelatedActionContainer interface {
	RelatedActionsRef() *[]*RelatedAction
}

type RelatedPartyContainer interface {
	RelatedPartiesRef() *[]*RelatedObject
}

type RelatedIntegrationContainer interface {
	RelatedIntegrationsRef() *[]*RelatedObject
}

type RelatedProcessContainer interface {
	RelatedProcessesRef() *[]*RelatedObject
}

type RelatedDomainContainer interface {
	RelatedDomainsRef() *[]*RelatedObject
}

var (
	_ KeyedElement   = (*Characteristic)(nil)
	_ NamedElement   = (*ContactMedium)(nil)
	_ TypedElement   = (*ContactMedium)(nil)
	_ NamedElement   = (*ObjectValidation)(nil)
	_ NamedElement   = (*RelatedAction)(nil)
	_ RelatedElement = (*RelatedObject)(nil)
)
