package event

import (
	"reflect"
	"sync"
)

// Bus is a typed publish/subscribe hub for lifecycle events. Dispatch is
// immediate and in publish order; handlers run on the publisher's goroutine.
type Bus struct {
	mu       sync.Mutex // protects handler registration
	handlers map[reflect.Type][]any
}

func NewBus() *Bus {
	return &Bus{
		handlers: make(map[reflect.Type][]any),
	}
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.handlers[t] = append(b.handlers[t], fn)
}

// Publish delivers an event to every subscribed handler, in registration
// order, before returning.
func Publish[T any](b *Bus, ev T) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.mu.Lock()
	handlers := b.handlers[t]
	b.mu.Unlock()
	for _, h := range handlers {
		h.(func(T))(ev)
	}
}
