// Package resource defines the Resource bounded context: a generic parent
// aggregate that carries every child collection kind.
package resource

import (
	"github.com/sipeed/picocrud/pkg/domain"
	"github.com/sipeed/picocrud/pkg/domain/child"
)

// ---------------------------------------------------------------------------
// Resource aggregate root
// ---------------------------------------------------------------------------

// Resource is the parent aggregate the child engine mutates. Collections are
// kept sorted by child id.
type Resource struct {
	domain.AggregateRoot

	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Status      Status      `json:"status"`
	Tags        domain.Tags `json:"tags,omitempty"`

	Characteristics     []*child.Characteristic   `json:"characteristics"`
	ContactMedia        []*child.ContactMedium    `json:"contact_media"`
	ObjectValidations   []*child.ObjectValidation `json:"object_validations"`
	RelatedActions      []*child.RelatedAction    `json:"related_actions"`
	RelatedParties      []*child.RelatedObject    `json:"related_parties"`
	RelatedIntegrations []*child.RelatedObject    `json:"related_integrations"`
	RelatedProcesses    []*child.RelatedObject    `json:"related_processes"`
	RelatedDomains      []*child.RelatedObject    `json:"related_domains"`

	CreatedAt domain.Timestamp `json:"created_at"`
	UpdatedAt domain.Timestamp `json:"updated_at"`
	UpdatedBy string           `json:"updated_by,omitempty"`
}

// New creates an active Resource with empty collections.
func New(name, description string) *Resource {
	r := &Resource{
		Name:                name,
		Description:         description,
		Status:              StatusActive,
		Characteristics:     make([]*child.Characteristic, 0),
		ContactMedia:        make([]*child.ContactMedium, 0),
		ObjectValidations:   make([]*child.ObjectValidation, 0),
		RelatedActions:      make([]*child.RelatedAction, 0),
		RelatedParties:      make([]*child.RelatedObject, 0),
		RelatedIntegrations: make([]*child.RelatedObject, 0),
		RelatedProcesses:    make([]*child.RelatedObject, 0),
		RelatedDomains:      make([]*child.RelatedObject, 0),
		CreatedAt:           domain.Now(),
		UpdatedAt:           domain.Now(),
	}
	r.SetID(domain.NewID())
	r.RecordEvent(domain.NewEvent(domain.EventResourceCreated, r.ID(), map[string]string{"name": name}))
	return r
}

func (r *Resource) Validate() error {
	if r.Name == "" {
		return ErrEmptyName
	}
	if !r.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// Touch stamps the aggregate as modified by user.
func (r *Resource) Touch(user domain.User) {
	r.UpdatedAt = domain.Now()
	r.UpdatedBy = user.ID
}

// Archive moves the resource out of the active set. Child operations keep
// working on archived resources.
func (r *Resource) Archive() {
	r.Status = StatusArchived
	r.UpdatedAt = domain.Now()
	r.RecordEvent(domain.NewEvent(domain.EventResourceUpdated, r.ID(), map[string]string{"status": string(r.Status)}))
}

// ---------------------------------------------------------------------------
// Container capabilities
// ---------------------------------------------------------------------------

func (r *Resource) CharacteristicsRef() *[]*child.Characteristic     { return &r.Characteristics }
func (r *Resource) ContactMediaRef() *[]*child.ContactMedium         { return &r.ContactMedia }
func (r *Resource) ObjectValidationsRef() *[]*child.ObjectValidation { return &r.ObjectValidations }
func (r *Resource) RelatedActionsRef() *[]*child.RelatedAction       { return &r.RelatedActions }
func (r *Resource) RelatedPartiesRef() *[]*child.RelatedObject       { return &r.RelatedParties }
func (r *Resource) RelatedIntegrationsRef() *[]*child.RelatedObject  { return &r.RelatedIntegrations }
func (r *Resource) RelatedProcessesRef() *[]*child.RelatedObject     { return &r.RelatedProcesses }
func (r *Resource) RelatedDomainsRef() *[]*child.RelatedObject       { return &r.RelatedDomains }

var (
	_ child.CharacteristicContainer     = (*Resource)(nil)
	_ child.ContactMediumContainer      = (*Resource)(nil)
	_ child.ObjectValidationContainer   = (*Resource)(nil)
	_ child.RelatedActionContainer      = (*Resource)(nil)
	_ child.RelatedPartyContainer       = (*Resource)(nil)
	_ child.RelatedIntegrationContainer = (*Resource)(nil)
	_ child.RelatedProcessContainer     = (*Resource)(nil)
	_ child.RelatedDomainContainer      = (*Resource)(nil)
)

// ---------------------------------------------------------------------------
// Value objects
// ---------------------------------------------------------------------------

// Status tracks the lifecycle state of a resource.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

func (s Status) String() string { return string(s) }

func (s Status) Valid() bool { return s == StatusActive || s == StatusArchived }

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

// Repository persists Resource aggregates.
type Repository interface {
	domain.Repository[Resource]
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

type ResourceError string

func (e ResourceError) Error() string { return string(e) }

// Is lets validation failures classify as bad requests.
func (e ResourceError) Is(target error) bool { return target == domain.ErrBadRequest }

const (
	ErrEmptyName     ResourceError = "resource name cannot be empty"
	ErrInvalidStatus ResourceError = "invalid resource status"
)
