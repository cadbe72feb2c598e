package native

import (
	"fmt"
	"runtime"
	"sync"
)

// Emulator exclusively owns one native emulator instance. The native
// destructor runs exactly once, on Close or, failing that, from a finalizer.
// Step and Close are serialized so a step can never reach a freed handle.
type Emulator struct {
	mu     sync.Mutex
	lib    *Library
	handle uintptr
	closed bool
	steps  uint64
}

// NewEmulator asks the native factory for a fresh instance.
func NewEmulator(lib *Library) (*Emulator, error) {
	if !lib.SupportsHandles() {
		return nil, fmt.Errorf("%w: %s/%s/%s", ErrUnsupported, symCreate, symStep, symDestroy)
	}
	h := lib.Create()
	if h == 0 {
		return nil, ErrNullHandle
	}
	e := &Emulator{lib: lib, handle: h}
	runtime.SetFinalizer(e, func(e *Emulator) { e.release() })
	return e, nil
}

// Step advances the instance by one unit of emulated work.
func (e *Emulator) Step() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.lib.Step(e.handle)
	e.steps++
	return nil
}

// StepN runs n steps, holding the lock for the whole batch.
func (e *Emulator) StepN(n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	for i := 0; i < n; i++ {
		e.lib.Step(e.handle)
	}
	if n > 0 {
		e.steps += uint64(n)
	}
	return nil
}

// Steps is the number of native step calls issued so far.
func (e *Emulator) Steps() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.steps
}

// Closed reports whether the native instance was already destroyed.
func (e *Emulator) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Close destroys the native instance. Further calls are no-ops.
func (e *Emulator) Close() error {
	if e.release() {
		runtime.SetFinalizer(e, nil)
	}
	return nil
}

// release issues the destroy call if nobody did yet and reports whether it did.
func (e *Emulator) release() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.closed = true
	h := e.handle
	e.handle = 0
	e.lib.Destroy(h)
	return true
}
