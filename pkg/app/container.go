// Package app provides the application services that sit between the
// transports and the domain: parent-aggregate use cases and the child
// command dispatcher.
package app

import (
	"github.com/sipeed/picocrud/pkg/domain"
	"github.com/sipeed/picocrud/pkg/domain/resource"
	"github.com/sipeed/picocrud/pkg/nested"
)

// ---------------------------------------------------------------------------
// Application container: dependency injection root
// ---------------------------------------------------------------------------

// Container holds the application services and their dependencies.
type Container struct {
	EventBus domain.EventBus

	Resources  resource.Repository
	Service    *ResourceService
	Dispatcher *Dispatcher
}

// NewContainer wires the resource service as the accessor behind every child
// engine. Engine options (recorder, tracer, id allocator) are passed through;
// the event bus is added automatically.
func NewContainer(eventBus domain.EventBus, resources resource.Repository, opts ...nested.Option) *Container {
	svc := NewResourceService(resources, eventBus)
	if eventBus != nil {
		opts = append([]nested.Option{nested.WithEventBus(eventBus)}, opts...)
	}
	return &Container{
		EventBus:   eventBus,
		Resources:  resources,
		Service:    svc,
		Dispatcher: NewDispatcher(svc, opts...),
	}
}

// PublishEvents dispatches pending events from an aggregate and clears them.
func (c *Container) PublishEvents(aggregate interface {
	PullEvents() []domain.Event
}) {
	events := aggregate.PullEvents()
	if c.EventBus == nil {
		return
	}
	for _, event := range events {
		c.EventBus.Publish(event)
	}
}
