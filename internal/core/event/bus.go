package event

import (
	"reflect"
	"sync"
)

type queued struct {
	key   reflect.Type
	event any
}

// Bus is a double-buffered event bus. Events emitted before a Flush are
// delivered by that Flush, in emission order; events emitted by handlers
// during a Flush wait for the next one. Emit and Subscribe may be called
// from any goroutine; Flush must be called from one goroutine at a time.
type Bus struct {
	mu       sync.Mutex // protects back and handlers
	front    []queued
	back     []queued
	handlers map[reflect.Type][]func(any)
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[reflect.Type][]func(any))}
}

func keyOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Emit queues an event into the back buffer. A nil bus drops the event.
func Emit[T any](b *Bus, event T) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.back = append(b.back, queued{key: keyOf[T](), event: event})
	b.mu.Unlock()
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := keyOf[T]()
	b.handlers[k] = append(b.handlers[k], func(e any) { fn(e.(T)) })
}

// Pending returns the number of events waiting for the next Flush.
func (b *Bus) Pending() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.back)
}

// Flush swaps the buffers and dispatches the front one. A nil bus is a
// no-op.
func (b *Bus) Flush() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.front, b.back = b.back, b.front[:0]
	snapshot := make(map[reflect.Type][]func(any), len(b.handlers))
	for k, hs := range b.handlers {
		snapshot[k] = hs
	}
	b.mu.Unlock()

	for i, q := range b.front {
		for _, h := range snapshot[q.key] {
			h(q.event)
		}
		b.front[i] = queued{}
	}
	b.front = b.front[:0]
}
