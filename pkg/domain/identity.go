// Package domain provides the shared kernel for picocrud: identities,
// aggregate roots, criteria, events and the error taxonomy every bounded
// context and transport agrees on.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Entity identity
// ---------------------------------------------------------------------------

// EntityID is a typed identifier shared by parent aggregates and child elements.
type EntityID string

// NewID returns a random (version 4) UUID.
func NewID() EntityID {
	return EntityID(uuid.NewString())
}

// String implements fmt.Stringer.
func (id EntityID) String() string { return string(id) }

// IsZero reports whether the ID is empty or only whitespace. Blank IDs are
// treated as absent when children are saved.
func (id EntityID) IsZero() bool { return strings.TrimSpace(string(id)) == "" }

// IDAllocator hands out identifiers for child elements that arrive without one.
// Implementations must be safe for concurrent use.
type IDAllocator interface {
	NewID() EntityID
}

// IDAllocatorFunc adapts a plain function to IDAllocator.
type IDAllocatorFunc func() EntityID

func (f IDAllocatorFunc) NewID() EntityID { return f() }

// UUIDAllocator is the default allocator: client-side UUIDs, no storage round-trip.
type UUIDAllocator struct{}

func (UUIDAllocator) NewID() EntityID { return NewID() }

// ---------------------------------------------------------------------------
// Timestamp value object
// ---------------------------------------------------------------------------

// Timestamp wraps time.Time so aggregates serialize UTC consistently.
type Timestamp struct {
	time.Time
}

// Now returns the current UTC timestamp.
func Now() Timestamp { return Timestamp{time.Now().UTC()} }

// TimestampFrom wraps an existing time.Time.
func TimestampFrom(t time.Time) Timestamp { return Timestamp{t.UTC()} }

// ---------------------------------------------------------------------------
// Aggregate root base
// ---------------------------------------------------------------------------

// AggregateRoot is embedded by parent aggregates. The identity is serialized
// as "id"; pending events are not serialized.
type AggregateRoot struct {
	Identity EntityID `json:"id"`
	events   []Event
}

func (a *AggregateRoot) ID() EntityID { return a.Identity }

// SetID sets the aggregate's identity (used on create and reconstitution).
func (a *AggregateRoot) SetID(id EntityID) { a.Identity = id }

// RecordEvent appends a domain event to be dispatched after persistence.
func (a *AggregateRoot) RecordEvent(e Event) {
	a.events = append(a.events, e)
}

// PullEvents returns and clears all pending domain events.
func (a *AggregateRoot) PullEvents() []Event {
	events := a.events
	a.events = nil
	return events
}

func (a *AggregateRoot) HasPendingEvents() bool {
	return len(a.events) > 0
}
