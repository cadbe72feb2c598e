package native

import "errors"

var (
	// ErrNullHandle is returned when the native factory hands back a null instance.
	ErrNullHandle = errors.New("native: create returned a null handle")

	// ErrClosed is returned by operations on an emulator that was already destroyed.
	ErrClosed = errors.New("native: emulator is closed")

	// ErrUnsupported is returned when the loaded library lacks the symbols an operation needs.
	ErrUnsupported = errors.New("native: operation not supported by library")

	// ErrUnsupportedLibrary is returned by Open when a library exposes neither
	// the handle API nor the session API.
	ErrUnsupportedLibrary = errors.New("native: library exposes no usable emulator API")

	// ErrAlreadyRunning is returned by Runner.Start while its stepping loop is live.
	ErrAlreadyRunning = errors.New("native: emulation already running")

	// ErrRunning is returned when an operation must happen before start.
	ErrRunning = errors.New("native: not allowed while emulation is running")
)
