//go:build darwin || freebsd || linux

package native

import (
	"fmt"

	"github.com/ebitengine/purego"
)

// Open loads the emulator library at path and binds every symbol it exports.
func Open(path string) (*Library, error) {
	// Lazy binding: send_terminal_data only has to resolve once the core
	// first writes to a terminal, against an executable linked with -rdynamic.
	h, err := purego.Dlopen(path, purego.RTLD_LAZY|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("load emulator library %s: %w", path, err)
	}
	lib := &Library{
		path:   path,
		unload: func() error { return purego.Dlclose(h) },
	}
	if err := lib.bind(func(name string) (uintptr, error) {
		return purego.Dlsym(h, name)
	}); err != nil {
		_ = purego.Dlclose(h)
		return nil, err
	}
	return lib, nil
}
