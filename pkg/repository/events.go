package repository

import (
	"context"
	"sync"
)

// Phase names a lifecycle point. Every phase is dispatched twice: once under
// the bare phase name and once as "<phase>.<EntityName>".
type Phase string

const (
	BeforeSave   Phase = "beforeSave"
	AfterSave    Phase = "afterSave"
	BeforeInsert Phase = "beforeInsert"
	AfterInsert  Phase = "afterInsert"
	BeforeUpdate Phase = "beforeUpdate"
	AfterUpdate  Phase = "afterUpdate"
	BeforeDelete Phase = "beforeDelete"
	AfterDelete  Phase = "afterDelete"
	AfterLoad    Phase = "afterLoad"
)

// EventName returns the type-specific event name for a phase
func EventName(phase Phase, entityName string) string {
	return string(phase) + "." + entityName
}

// Dispatcher delivers lifecycle events. Dispatch must not retain entity
// beyond the call unless the listener owns that decision.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, entity Entity)
}

// Event is what an EventBus listener receives.
type Event struct {
	Name   string
	Entity Entity
}

// Listener handles one event.
type Listener func(ctx context.Context, event Event)

// EventBus is an in-process Dispatcher. Listeners run synchronously in
// subscription order.
type EventBus struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
}

// NewEventBus creates an empty bus
func NewEventBus() *EventBus {
	return &EventBus{listeners: make(map[string][]Listener)}
}

// Subscribe registers listener for the event name
func (b *EventBus) Subscribe(name string, listener Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[name] = append(b.listeners[name], listener)
}

// SubscribePhase registers listener for the generic name of a phase, or the
// entity-specific one when entityName is set.
func (b *EventBus) SubscribePhase(phase Phase, entityName string, listener Listener) {
	name := string(phase)
	if entityName != "" {
		name = EventName(phase, entityName)
	}
	b.Subscribe(name, listener)
}

// Dispatch calls every listener registered for name
func (b *EventBus) Dispatch(ctx context.Context, name string, entity Entity) {
	b.mu.RLock()
	listeners := append([]Listener(nil), b.listeners[name]...)
	b.mu.RUnlock()

	event := Event{Name: name, Entity: entity}
	for _, listener := range listeners {
		listener(ctx, event)
	}
}

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, string, Entity) {}
