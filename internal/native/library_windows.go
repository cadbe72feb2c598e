//go:build windows

package native

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// Open loads the emulator DLL at path and binds every symbol it exports.
func Open(path string) (*Library, error) {
	h, err := windows.LoadLibrary(path)
	if err != nil {
		return nil, fmt.Errorf("load emulator library %s: %w", path, err)
	}
	lib := &Library{
		path:   path,
		unload: func() error { return windows.FreeLibrary(h) },
	}
	if err := lib.bind(func(name string) (uintptr, error) {
		return windows.GetProcAddress(h, name)
	}); err != nil {
		_ = windows.FreeLibrary(h)
		return nil, err
	}
	return lib, nil
}
