// Package event is the window's event bus: named events carrying JSON
// payloads, delivered to every listener registered for the name.
package event

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"
)

var (
	// ErrClosed is returned by Emit after Close.
	ErrClosed = errors.New("event: bus is closed")

	// ErrInvalidName is returned for an empty event name.
	ErrInvalidName = errors.New("event: invalid event name")

	// ErrInvalidPayload is returned when a payload is not valid JSON.
	ErrInvalidPayload = errors.New("event: payload is not valid JSON")

	// ErrListenerPanic marks a listener that panicked during delivery.
	ErrListenerPanic = errors.New("event: listener panicked")
)

// ListenerError reports which event a failing listener was handling.
type ListenerError struct {
	Event string
	Err   error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("listener for %q: %v", e.Event, e.Err)
}

func (e *ListenerError) Unwrap() error { return e.Err }

// Message is one delivered event.
type Message struct {
	Name    string
	Payload []byte
	Seq     uint64
}

// Get reads a payload field by gjson path.
func (m Message) Get(path string) gjson.Result {
	return gjson.GetBytes(m.Payload, path)
}

// Listener handles a delivered message. It runs on the emitting goroutine.
type Listener func(Message)

type listener struct {
	id uint64
	fn Listener
}

// Stats are cumulative bus counters.
type Stats struct {
	Emitted   uint64
	Delivered uint64
	Failed    uint64
}

// Bus fans events out to listeners. Emit is safe for concurrent use;
// each call delivers synchronously, in registration order.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]listener
	nextID    uint64
	closed    bool

	seq       atomic.Uint64
	emitted   atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
}

// NewBus returns an open bus with no listeners.
func NewBus() *Bus {
	return &Bus{listeners: make(map[string][]listener)}
}

// Listen registers fn for events called name and returns a function that
// removes it again.
func (b *Bus) Listen(name string, fn Listener) (unlisten func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.listeners[name] = append(b.listeners[name], listener{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(name, id) })
	}
}

func (b *Bus) remove(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ls := b.listeners[name]
	for i, l := range ls {
		if l.id == id {
			// copy so in-flight deliveries keep their snapshot
			next := make([]listener, 0, len(ls)-1)
			next = append(next, ls[:i]...)
			next = append(next, ls[i+1:]...)
			if len(next) == 0 {
				delete(b.listeners, name)
			} else {
				b.listeners[name] = next
			}
			return
		}
	}
}

// Emit delivers payload to every listener of name. An event with no
// listeners is not an error.
func (b *Bus) Emit(name string, payload []byte) error {
	if name == "" {
		return ErrInvalidName
	}
	if !gjson.ValidBytes(payload) {
		return ErrInvalidPayload
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	ls := b.listeners[name]
	b.mu.RUnlock()

	msg := Message{Name: name, Payload: payload, Seq: b.seq.Add(1)}
	b.emitted.Add(1)

	var errs []error
	for _, l := range ls {
		if err := deliver(l.fn, msg); err != nil {
			b.failed.Add(1)
			errs = append(errs, err)
			continue
		}
		b.delivered.Add(1)
	}
	return errors.Join(errs...)
}

func deliver(fn Listener, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ListenerError{Event: msg.Name, Err: fmt.Errorf("%w: %v", ErrListenerPanic, r)}
		}
	}()
	fn(msg)
	return nil
}

// ListenerCount returns how many listeners are registered for name.
func (b *Bus) ListenerCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[name])
}

// Stats returns a snapshot of the counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Emitted:   b.emitted.Load(),
		Delivered: b.delivered.Load(),
		Failed:    b.failed.Load(),
	}
}

// Close rejects further emits and drops all listeners.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.listeners = make(map[string][]listener)
}
