// Package relay carries terminal output from native callback threads to the
// event bus through a bounded queue drained by a single dispatcher.
package relay

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/tidwall/sjson"
	"golang.org/x/text/encoding/unicode"
)

// Event names understood by the terminal view.
const (
	EventWriteTerminal = "write-terminal"
	EventClearTerminal = "clear-terminal"
)

// Emitter publishes a named event with a JSON payload.
type Emitter interface {
	Emit(name string, payload []byte) error
}

// Overflow selects what a write does when the queue is full.
type Overflow int

const (
	// Block makes the producing thread wait for room.
	Block Overflow = iota
	// Drop discards the write and counts it.
	Drop
)

// ParseOverflow maps a config value to an Overflow; unknown values block.
func ParseOverflow(s string) Overflow {
	if s == "drop" {
		return Drop
	}
	return Block
}

func (o Overflow) String() string {
	if o == Drop {
		return "drop"
	}
	return "block"
}

// DefaultQueueSize bounds the queue when no option is given.
const DefaultQueueSize = 1024

// how often a dropping relay may log about it
const dropLogInterval = time.Second

type item struct {
	name    string
	payload []byte
}

// Stats are cumulative relay counters.
type Stats struct {
	Queued    uint64
	Delivered uint64
	Failed    uint64 // emitter returned an error; event dropped
	Dropped   uint64 // queue full in Drop mode, or relay closed
}

// Relay implements native.TerminalSink.
type Relay struct {
	emit     Emitter
	log      *slog.Logger
	overflow Overflow
	queue    chan item

	mu        sync.RWMutex // guards closed against in-flight sends
	closed    bool
	closing   chan struct{} // closed first by Close; wakes blocked senders
	closeOnce sync.Once
	started   atomic.Bool
	done      chan struct{}

	queued    atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	lastDrop  atomic.Int64
}

// Option configures a Relay.
type Option func(*Relay)

// WithQueueSize bounds the queue. Values below 1 keep the default.
func WithQueueSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.queue = make(chan item, n)
		}
	}
}

// WithOverflow sets the full-queue policy.
func WithOverflow(o Overflow) Option {
	return func(r *Relay) { r.overflow = o }
}

// WithLogger sets the logger for delivery failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) {
		if l != nil {
			r.log = l
		}
	}
}

// New builds a relay in front of emit. Call Start before writing.
func New(emit Emitter, opts ...Option) *Relay {
	r := &Relay{
		emit:  emit,
		log:   slog.Default(),
		queue:   make(chan item, DefaultQueueSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With("component", "relay")
	return r
}

// Start launches the dispatcher. Calling it again is a no-op.
func (r *Relay) Start() {
	if r.started.Swap(true) {
		return
	}
	go r.dispatch()
}

func (r *Relay) dispatch() {
	defer close(r.done)
	for it := range r.queue {
		if err := r.emit.Emit(it.name, it.payload); err != nil {
			r.failed.Add(1)
			r.log.Warn("event delivery failed; dropped", "event", it.name, "err", err)
			continue
		}
		r.delivered.Add(1)
	}
}

// Write queues terminal output. Both strings are decoded leniently: invalid
// UTF-8 becomes U+FFFD. Write never fails; on a closed relay or a full queue
// in Drop mode the output is counted and discarded.
func (r *Relay) Write(terminalID, data string) {
	terminalID, data = decode(terminalID), decode(data)
	payload, _ := sjson.SetBytes(nil, "terminalId", terminalID)
	payload, _ = sjson.SetBytes(payload, "data", data)
	r.enqueue(item{name: EventWriteTerminal, payload: payload})
}

// WriteBytes is Write for byte slices.
func (r *Relay) WriteBytes(terminalID string, data []byte) {
	r.Write(terminalID, string(data))
}

// Clear asks listeners to clear the terminal.
func (r *Relay) Clear(terminalID string) {
	payload, _ := sjson.SetBytes(nil, "terminalId", decode(terminalID))
	r.enqueue(item{name: EventClearTerminal, payload: payload})
}

func (r *Relay) enqueue(it item) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop("closed")
		return
	}
	if r.overflow == Drop {
		select {
		case r.queue <- it:
			r.queued.Add(1)
		default:
			r.drop("queue full")
		}
		return
	}
	select {
	case r.queue <- it:
		r.queued.Add(1)
	case <-r.closing:
		r.drop("closed")
	}
}

func (r *Relay) drop(reason string) {
	n := r.dropped.Add(1)
	now := time.Now().UnixNano()
	last := r.lastDrop.Load()
	if now-last < int64(dropLogInterval) || !r.lastDrop.CompareAndSwap(last, now) {
		return
	}
	r.log.Warn("terminal output dropped", "reason", reason, "total", n)
}

// Stats returns a snapshot of the counters.
func (r *Relay) Stats() Stats {
	return Stats{
		Queued:    r.queued.Load(),
		Delivered: r.delivered.Load(),
		Failed:    r.failed.Load(),
		Dropped:   r.dropped.Load(),
	}
}

// Close stops accepting writes and waits, bounded by ctx, for the queue to
// drain. Closing twice is a no-op.
func (r *Relay) Close(ctx context.Context) error {
	// senders parked on a full queue hold the read lock until this fires
	r.closeOnce.Do(func() { close(r.closing) })
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	if !r.started.Load() {
		// nobody will drain; count what was left behind
		for range r.queue {
			r.dropped.Add(1)
		}
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// decode replaces invalid UTF-8 sequences with U+FFFD.
func decode(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	// decoders carry state, so each call gets its own
	out, err := unicode.UTF8.NewDecoder().String(s)
	if err != nil {
		return string([]rune(s))
	}
	return out
}
