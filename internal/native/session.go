package native

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Session drives the process-wide emulation session the native core runs on
// its own thread. Calls are serialized, so a start followed by a stop reaches
// the core in that order, once each. Every Start and Stop is forwarded; what a
// second start or an idle stop means is up to the core.
type Session struct {
	mu      sync.Mutex
	lib     *Library
	log     *slog.Logger
	dt      deviceTree
	running bool
	runID   string
}

// NewSession wraps the start/stop/is-running entry points of lib.
func NewSession(lib *Library, opts ...Option) (*Session, error) {
	if !lib.SupportsSession() {
		return nil, fmt.Errorf("%w: %s/%s/%s", ErrUnsupported, symStartEmulation, symStopEmulation, symIsEmulationRunning)
	}
	o := buildOptions(opts)
	return &Session{lib: lib, log: o.logger.With("component", "native.session")}, nil
}

// Start asks the core to begin running. The pending device tree, if any,
// is handed over first. Starting a live session restarts it in the core.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dt.apply(s.lib) {
		s.log.Debug("device tree applied", "bytes", len(s.dt.data))
	}
	prev := s.runID
	restart := s.running
	s.runID = uuid.NewString()
	s.lib.StartEmulation()
	s.running = true
	if restart {
		s.log.Info("emulation restarted", "run", s.runID, "previous", prev)
	} else {
		s.log.Info("emulation started", "run", s.runID)
	}
	return nil
}

// Stop asks the core to halt and returns once the native call does.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lib.StopEmulation()
	if s.running {
		s.log.Info("emulation stopped", "run", s.runID)
	}
	s.running = false
	return nil
}

// IsRunning reports whether a run started here is still live in the core.
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	// the core reports running before any start, so both sides must agree
	return s.running && s.lib.IsEmulationRunning()
}

// RunID identifies the current or most recent run.
func (s *Session) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// SetDeviceTree stores a private copy of src for the next Start.
func (s *Session) SetDeviceTree(src []byte) error {
	if !s.lib.SupportsDeviceTree() {
		return fmt.Errorf("%w: %s", ErrUnsupported, symSetDeviceTreeSource)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrRunning
	}
	s.dt.set(src)
	return nil
}

// Close stops a live run and releases the device tree buffer. A session
// that never started, or was already stopped, makes no native call here.
func (s *Session) Close() error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	var err error
	if running {
		err = s.Stop()
	}
	s.mu.Lock()
	s.dt = deviceTree{}
	s.mu.Unlock()
	return err
}
