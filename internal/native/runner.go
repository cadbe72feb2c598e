package native

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Runner is a session driven from Go: Start creates one Emulator and steps
// it on a goroutine until Stop, which joins the goroutine and destroys the
// instance. It serves libraries that only export create/step/destroy.
type Runner struct {
	mu   sync.Mutex // serializes Start/Stop/SetDeviceTree
	lib  *Library
	log  *slog.Logger
	opts options
	dt   deviceTree

	emu   *Emulator
	stop  chan struct{}
	done  chan struct{}
	runID string

	running atomic.Bool
	errMu   sync.Mutex
	lastErr error
}

// NewRunner wraps the handle API of lib.
func NewRunner(lib *Library, opts ...Option) (*Runner, error) {
	if !lib.SupportsHandles() {
		return nil, fmt.Errorf("%w: %s/%s/%s", ErrUnsupported, symCreate, symStep, symDestroy)
	}
	o := buildOptions(opts)
	return &Runner{lib: lib, opts: o, log: o.logger.With("component", "native.runner")}, nil
}

// Start creates the emulator instance and begins stepping it. A null handle
// is reported here, synchronously.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		select {
		case <-r.done:
			// previous run ended by itself; reclaim it before starting over
			r.teardownLocked()
		default:
			return ErrAlreadyRunning
		}
	}
	if r.dt.apply(r.lib) {
		r.log.Debug("device tree applied", "bytes", len(r.dt.data))
	}
	e, err := NewEmulator(r.lib)
	if err != nil {
		return err
	}
	r.setErr(nil)
	r.emu = e
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	r.runID = uuid.NewString()
	r.running.Store(true)
	go r.loop(e, r.stop, r.done)
	r.log.Info("emulation started", "run", r.runID, "batch", r.opts.batch)
	return nil
}

func (r *Runner) loop(e *Emulator, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer r.running.Store(false)
	for {
		select {
		case <-stop:
			return
		default:
		}
		if err := e.StepN(r.opts.batch); err != nil {
			r.setErr(err)
			return
		}
	}
}

// Stop signals the stepping goroutine, waits for it and destroys the
// instance. Stopping an idle runner is a no-op.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		return nil
	}
	close(r.stop)
	<-r.done
	steps := r.emu.Steps()
	r.teardownLocked()
	r.log.Info("emulation stopped", "run", r.runID, "steps", steps)
	return nil
}

func (r *Runner) teardownLocked() {
	if r.emu != nil {
		_ = r.emu.Close()
	}
	r.emu = nil
	r.stop = nil
	r.done = nil
}

// IsRunning reports whether the stepping goroutine is live.
func (r *Runner) IsRunning() bool { return r.running.Load() }

// RunID identifies the current or most recent run.
func (r *Runner) RunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID
}

// Err returns the error that ended the last run early, if any.
func (r *Runner) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.lastErr
}

func (r *Runner) setErr(err error) {
	r.errMu.Lock()
	r.lastErr = err
	r.errMu.Unlock()
}

// SetDeviceTree stores a private copy of src, applied before the next instance is created.
func (r *Runner) SetDeviceTree(src []byte) error {
	if !r.lib.SupportsDeviceTree() {
		return fmt.Errorf("%w: %s", ErrUnsupported, symSetDeviceTreeSource)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running.Load() {
		return ErrRunning
	}
	r.dt.set(src)
	return nil
}

// Close stops a live run and releases the device tree buffer.
func (r *Runner) Close() error {
	err := r.Stop()
	r.mu.Lock()
	r.dt = deviceTree{}
	r.mu.Unlock()
	return err
}
