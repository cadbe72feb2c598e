package native

import "log/slog"

// DefaultBatch is how many steps the runner issues between stop checks.
const DefaultBatch = 4096

type options struct {
	logger *slog.Logger
	batch  int
}

// Option configures a Session or Runner.
type Option func(*options)

// WithLogger sets the logger used for run lifecycle messages.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithBatch sets the runner's step batch size. Ignored by Session.
func WithBatch(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batch = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default(), batch: DefaultBatch}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// deviceTree holds the caller's device tree under a copy-in contract: the
// bytes are private to this side, stay referenced until replaced, and are
// handed to the core right before a start.
type deviceTree struct {
	data    []byte
	pending bool
}

func (d *deviceTree) set(src []byte) {
	d.data = append(make([]byte, 0, len(src)), src...)
	d.pending = true
}

// apply passes the pending buffer to set_device_tree_source, if any.
func (d *deviceTree) apply(lib *Library) bool {
	if !d.pending || len(d.data) == 0 || lib.SetDeviceTreeSource == nil {
		return false
	}
	lib.SetDeviceTreeSource(&d.data[0], uintptr(len(d.data)))
	d.pending = false
	return true
}
