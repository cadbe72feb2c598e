// Package shell is the command surface the window invokes by name.
package shell

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Command names exposed to the window.
const (
	CmdStartEmulation = "start_emulation"
	CmdStopEmulation  = "stop_emulation"
)

var (
	// ErrUnknownCommand is returned by Invoke for an unregistered name.
	ErrUnknownCommand = errors.New("shell: unknown command")

	// ErrDuplicateCommand is returned by Register when the name is taken.
	ErrDuplicateCommand = errors.New("shell: command already registered")
)

// CommandError wraps a failure returned by a command.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Controller is the emulation session the commands drive.
type Controller interface {
	Start() error
	Stop() error
	IsRunning() bool
}

// DeviceTreeSetter is implemented by controllers that accept a device tree before start.
type DeviceTreeSetter interface {
	SetDeviceTree(src []byte) error
}

// Clearer clears a terminal view.
type Clearer interface {
	Clear(terminalID string)
}

// CommandFunc runs one command.
type CommandFunc func(ctx context.Context) error

// Shell holds the registered commands. Invocations are serialized, so two
// commands issued in order reach the controller in that order.
type Shell struct {
	ctrl Controller
	log  *slog.Logger

	clear     Clearer
	terminals []string

	invokeMu sync.Mutex
	mu       sync.RWMutex
	cmds     map[string]CommandFunc

	dtMu      sync.Mutex
	pendingDT []byte
	dtGen     uint64
}

// Option configures a Shell.
type Option func(*Shell)

// WithLogger sets the shell's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Shell) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClearOnStart clears the given terminals before each start.
func WithClearOnStart(c Clearer, terminalIDs ...string) Option {
	return func(s *Shell) {
		s.clear = c
		s.terminals = append([]string(nil), terminalIDs...)
	}
}

// New registers start_emulation and stop_emulation against ctrl.
func New(ctrl Controller, opts ...Option) *Shell {
	s := &Shell{
		ctrl: ctrl,
		log:  slog.Default(),
		cmds: make(map[string]CommandFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "shell")
	_ = s.Register(CmdStartEmulation, s.startEmulation)
	_ = s.Register(CmdStopEmulation, s.stopEmulation)
	return s
}

// Register adds a command under name.
func (s *Shell) Register(name string, fn CommandFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cmds[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, name)
	}
	s.cmds[name] = fn
	return nil
}

// Commands lists the registered names, sorted.
func (s *Shell) Commands() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.cmds))
	for n := range s.cmds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the named command and waits for it to return.
func (s *Shell) Invoke(ctx context.Context, name string) error {
	s.mu.RLock()
	fn, ok := s.cmds[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	s.invokeMu.Lock()
	defer s.invokeMu.Unlock()
	if err := ctx.Err(); err != nil {
		return &CommandError{Command: name, Err: err}
	}
	s.log.Debug("invoke", "command", name)
	if err := fn(ctx); err != nil {
		s.log.Warn("command failed", "command", name, "err", err)
		return &CommandError{Command: name, Err: err}
	}
	return nil
}

// IsRunning reports the controller's run state for status displays.
func (s *Shell) IsRunning() bool { return s.ctrl.IsRunning() }

// QueueDeviceTree keeps src for the next start_emulation. The latest call wins.
func (s *Shell) QueueDeviceTree(src []byte) {
	s.dtMu.Lock()
	s.pendingDT = append([]byte(nil), src...)
	s.dtGen++
	s.dtMu.Unlock()
}

func (s *Shell) startEmulation(context.Context) error {
	if s.ctrl.IsRunning() {
		// the live console and the loaded tree stay; the controller decides
		return s.ctrl.Start()
	}
	if err := s.applyDeviceTree(); err != nil {
		return err
	}
	if s.clear != nil {
		for _, id := range s.terminals {
			s.clear.Clear(id)
		}
	}
	return s.ctrl.Start()
}

func (s *Shell) stopEmulation(context.Context) error {
	return s.ctrl.Stop()
}

func (s *Shell) applyDeviceTree() error {
	s.dtMu.Lock()
	src, gen := s.pendingDT, s.dtGen
	s.dtMu.Unlock()
	if src == nil {
		return nil
	}
	setter, ok := s.ctrl.(DeviceTreeSetter)
	if !ok {
		s.log.Warn("controller takes no device tree; ignored", "bytes", len(src))
		return nil
	}
	if s.ctrl.IsRunning() {
		// picked up by the start after the next stop
		return nil
	}
	if err := setter.SetDeviceTree(src); err != nil {
		return fmt.Errorf("set device tree: %w", err)
	}
	s.dtMu.Lock()
	if s.dtGen == gen {
		s.pendingDT = nil
	}
	s.dtMu.Unlock()
	return nil
}
