package resource

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/sipeed/picocrud/pkg/domain"
	"github.com/sipeed/picocrud/pkg/domain/child"
)

func TestNewResource(t *testing.T) {
	r := New("printer", "office printer")
	if r.ID().IsZero() {
		t.Fatal("expected an id")
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	events := r.PullEvents()
	if len(events) != 1 || events[0].EventType() != domain.EventResourceCreated {
		t.Fatalf("events = %+v", events)
	}
	if r.HasPendingEvents() {
		t.Error("PullEvents should clear pending events")
	}
}

func TestValidateRejectsEmptyName(t *testing.T) {
	r := New("", "")
	err := r.Validate()
	if !errors.Is(err, ErrEmptyName) || !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestContainerRefsAlias(t *testing.T) {
	r := New("printer", "")
	ref := r.ContactMediaRef()
	*ref = append(*ref, &child.ContactMedium{ID: "c1", Name: "work", Type: "email"})
	if len(r.ContactMedia) != 1 {
		t.Fatalf("ContactMediaRef did not alias the field")
	}
}

func TestJSONKeepsIdentity(t *testing.T) {
	r := New("printer", "")
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	var back Resource
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.ID() != r.ID() {
		t.Errorf("ID after round trip = %q, want %q", back.ID(), r.ID())
	}
}
