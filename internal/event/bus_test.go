package event

import (
	"errors"
	"sync"
	"testing"
)

func TestBus_EmitDeliversToListenersOfName(t *testing.T) {
	b := NewBus()
	var got []Message
	b.Listen("write-terminal", func(m Message) { got = append(got, m) })
	b.Listen("other", func(m Message) { t.Errorf("wrong listener called for %s", m.Name) })

	if err := b.Emit("write-terminal", []byte(`{"terminalId":"t1","data":"hi"}`)); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("delivered: got %d, want 1", len(got))
	}
	if got[0].Get("terminalId").String() != "t1" || got[0].Get("data").String() != "hi" {
		t.Fatalf("payload fields mismatch: %s", got[0].Payload)
	}
	if got[0].Seq != 1 {
		t.Fatalf("seq: got %d, want 1", got[0].Seq)
	}
}

func TestBus_Unlisten(t *testing.T) {
	b := NewBus()
	n := 0
	unlisten := b.Listen("e", func(Message) { n++ })
	_ = b.Emit("e", []byte(`{}`))
	unlisten()
	unlisten() // idempotent
	_ = b.Emit("e", []byte(`{}`))
	if n != 1 {
		t.Fatalf("calls: got %d, want 1", n)
	}
	if b.ListenerCount("e") != 0 {
		t.Fatalf("listener not removed")
	}
}

func TestBus_Errors(t *testing.T) {
	b := NewBus()
	if err := b.Emit("", []byte(`{}`)); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("empty name: got %v", err)
	}
	if err := b.Emit("e", []byte(`{"unterminated`)); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("bad payload: got %v", err)
	}
	if err := b.Emit("nobody-listens", []byte(`{}`)); err != nil {
		t.Fatalf("no listeners should not be an error: %v", err)
	}
	b.Close()
	if err := b.Emit("e", []byte(`{}`)); !errors.Is(err, ErrClosed) {
		t.Fatalf("after Close: got %v", err)
	}
}

func TestBus_ListenerPanicIsContained(t *testing.T) {
	b := NewBus()
	reached := false
	b.Listen("e", func(Message) { panic("boom") })
	b.Listen("e", func(Message) { reached = true })

	err := b.Emit("e", []byte(`{}`))
	if !errors.Is(err, ErrListenerPanic) {
		t.Fatalf("got %v, want ErrListenerPanic", err)
	}
	var le *ListenerError
	if !errors.As(err, &le) || le.Event != "e" {
		t.Fatalf("expected *ListenerError for event e, got %v", err)
	}
	if !reached {
		t.Fatalf("a panicking listener must not block the others")
	}
	if s := b.Stats(); s.Emitted != 1 || s.Delivered != 1 || s.Failed != 1 {
		t.Fatalf("stats: %+v", s)
	}
}

func TestBus_ConcurrentEmit(t *testing.T) {
	b := NewBus()
	var mu sync.Mutex
	seen := make(map[uint64]bool)
	b.Listen("e", func(m Message) {
		mu.Lock()
		seen[m.Seq] = true
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for g := 0; g < 20; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if err := b.Emit("e", []byte(`{}`)); err != nil {
					t.Errorf("Emit: %v", err)
				}
			}
		}()
	}
	wg.Wait()
	if len(seen) != 1000 {
		t.Fatalf("distinct deliveries: got %d, want 1000", len(seen))
	}
}
