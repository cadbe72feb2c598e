// Package native binds the externally built RISC-V emulator library.
//
// The library is loaded at runtime with purego, so the Go side builds without
// a C toolchain. In cgo builds the package additionally exports the
// send_terminal_data symbol the native core calls for console output.
package native

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/ebitengine/purego"
)

// EnvLibraryPath overrides the default library location.
const EnvLibraryPath = "RVEMU_LIB_PATH"

// Library is the table of native entry points. Fields are nil when the
// loaded library does not export the matching symbol. Tests build a Library
// from Go closures directly.
type Library struct {
	Create  func() uintptr
	Destroy func(handle uintptr)
	Step    func(handle uintptr)

	StartEmulation     func()
	StopEmulation      func()
	IsEmulationRunning func() bool

	SetDeviceTreeSource func(source *byte, length uintptr)

	path      string
	missing   []string
	closeOnce sync.Once
	unload    func() error

	dtMu sync.Mutex
	dt   deviceTree
}

// symbol names as exported by the native library
const (
	symCreate              = "create"
	symDestroy             = "destroy"
	symStep                = "step"
	symStartEmulation      = "start_emulation"
	symStopEmulation       = "stop_emulation"
	symIsEmulationRunning  = "is_emulation_running"
	symSetDeviceTreeSource = "set_device_tree_source"
)

// LibraryPath resolves which shared library to load: an explicit path wins,
// then $RVEMU_LIB_PATH, then the platform default name searched by the loader.
func LibraryPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv(EnvLibraryPath); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "darwin":
		return "libemulator.dylib"
	case "windows":
		return "emulator.dll"
	default:
		return "libemulator.so"
	}
}

// Path is the file the library was loaded from, empty for injected tables.
func (l *Library) Path() string { return l.path }

// Missing lists the symbols the loaded library did not export.
func (l *Library) Missing() []string { return append([]string(nil), l.missing...) }

// SupportsHandles reports whether create/step/destroy are all bound.
func (l *Library) SupportsHandles() bool {
	return l != nil && l.Create != nil && l.Destroy != nil && l.Step != nil
}

// SupportsSession reports whether the global start/stop/is-running API is bound.
func (l *Library) SupportsSession() bool {
	return l != nil && l.StartEmulation != nil && l.StopEmulation != nil && l.IsEmulationRunning != nil
}

// SupportsDeviceTree reports whether set_device_tree_source is bound.
func (l *Library) SupportsDeviceTree() bool {
	return l != nil && l.SetDeviceTreeSource != nil
}

// SetDeviceTree hands src to the core right away for callers that drive an
// Emulator directly. The library keeps its own copy referenced until the
// next call or Close.
func (l *Library) SetDeviceTree(src []byte) error {
	if !l.SupportsDeviceTree() {
		return fmt.Errorf("%w: %s", ErrUnsupported, symSetDeviceTreeSource)
	}
	if len(src) == 0 {
		return nil
	}
	l.dtMu.Lock()
	defer l.dtMu.Unlock()
	l.dt.set(src)
	l.dt.apply(l)
	return nil
}

// Close unloads the library. Handles created from it must be closed first.
func (l *Library) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.unload != nil {
			err = l.unload()
		}
	})
	return err
}

// bind fills the function table from a symbol resolver. Symbols the
// resolver cannot find are recorded as missing and left nil.
func (l *Library) bind(lookup func(name string) (uintptr, error)) error {
	table := []struct {
		name string
		fn   any
	}{
		{symCreate, &l.Create},
		{symDestroy, &l.Destroy},
		{symStep, &l.Step},
		{symStartEmulation, &l.StartEmulation},
		{symStopEmulation, &l.StopEmulation},
		{symIsEmulationRunning, &l.IsEmulationRunning},
		{symSetDeviceTreeSource, &l.SetDeviceTreeSource},
	}
	for _, s := range table {
		addr, err := lookup(s.name)
		if err != nil || addr == 0 {
			l.missing = append(l.missing, s.name)
			continue
		}
		purego.RegisterFunc(s.fn, addr)
	}
	if !l.SupportsHandles() && !l.SupportsSession() {
		return fmt.Errorf("%w: %s (missing %v)", ErrUnsupportedLibrary, l.path, l.missing)
	}
	return nil
}
