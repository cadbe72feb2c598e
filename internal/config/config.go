// Package config holds the desktop shell settings, read from a TOML file and
// overridden by command-line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Driver modes for the native core.
const (
	ModeSession = "session" // start/stop entry points, the core owns its thread
	ModeHandle  = "handle"  // create/step/destroy driven from Go
	ModeAuto    = "auto"    // handle if available, else session
)

// DefaultTerminal is the terminal the core writes its console to.
const DefaultTerminal = "linux-terminal"

var ErrInvalid = errors.New("config: invalid value")

// ParseError wraps a TOML decode failure with the file it came from.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("config %s: %v", e.Path, e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

type Native struct {
	Library string `toml:"library"` // empty: $RVEMU_LIB_PATH or the platform default
	Mode    string `toml:"mode"`
	Batch   int    `toml:"batch"` // steps per batch in handle mode
}

type Window struct {
	Title      string `toml:"title"`
	Scale      int    `toml:"scale"`
	Cols       int    `toml:"cols"`
	Rows       int    `toml:"rows"`
	Fullscreen bool   `toml:"fullscreen"`
}

type Relay struct {
	QueueSize int    `toml:"queue_size"`
	Overflow  string `toml:"overflow"` // block or drop
}

type Terminal struct {
	IDs          []string `toml:"ids"`
	Scrollback   int      `toml:"scrollback"`
	Bell         bool     `toml:"bell"`
	ClearOnStart bool     `toml:"clear_on_start"`
}

type DeviceTree struct {
	Path  string `toml:"path"`
	Watch bool   `toml:"watch"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // text or json
	File   string `toml:"file"`   // empty: stderr
}

// Config contains every section of the settings file.
type Config struct {
	Native     Native     `toml:"native"`
	Window     Window     `toml:"window"`
	Relay      Relay      `toml:"relay"`
	Terminal   Terminal   `toml:"terminal"`
	DeviceTree DeviceTree `toml:"devicetree"`
	Log        Log        `toml:"log"`
}

// Defaults fills missing fields with reasonable defaults.
func (c *Config) Defaults() {
	if c.Native.Mode == "" {
		c.Native.Mode = ModeAuto
	}
	if c.Native.Batch <= 0 {
		c.Native.Batch = 4096
	}
	if c.Window.Title == "" {
		c.Window.Title = "rvemu"
	}
	if c.Window.Scale <= 0 {
		c.Window.Scale = 1
	}
	if c.Window.Cols <= 0 {
		c.Window.Cols = 100
	}
	if c.Window.Rows <= 0 {
		c.Window.Rows = 32
	}
	if c.Relay.QueueSize <= 0 {
		c.Relay.QueueSize = 1024
	}
	if c.Relay.Overflow == "" {
		c.Relay.Overflow = "block"
	}
	if len(c.Terminal.IDs) == 0 {
		c.Terminal.IDs = []string{DefaultTerminal}
	}
	if c.Terminal.Scrollback <= 0 {
		c.Terminal.Scrollback = 1000 // same as the web frontend's xterm
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Default returns a Config with Defaults applied and the bell and
// clear-on-start behaviour switched on.
func Default() Config {
	c := Config{Terminal: Terminal{Bell: true, ClearOnStart: true}}
	c.Defaults()
	return c
}

// Validate checks enumerations. Call it after Defaults.
func (c *Config) Validate() error {
	var errs []error
	switch c.Native.Mode {
	case ModeAuto, ModeSession, ModeHandle:
	default:
		errs = append(errs, fmt.Errorf("%w: native.mode %q (want auto, session or handle)", ErrInvalid, c.Native.Mode))
	}
	switch strings.ToLower(c.Relay.Overflow) {
	case "block", "drop":
	default:
		errs = append(errs, fmt.Errorf("%w: relay.overflow %q (want block or drop)", ErrInvalid, c.Relay.Overflow))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("%w: log.level %q", ErrInvalid, c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%w: log.format %q (want text or json)", ErrInvalid, c.Log.Format))
	}
	for _, id := range c.Terminal.IDs {
		if strings.TrimSpace(id) == "" {
			errs = append(errs, fmt.Errorf("%w: empty terminal id", ErrInvalid))
			break
		}
	}
	return errors.Join(errs...)
}

// Load reads path over Default(). A missing file is not an error; the
// defaults are returned.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return c, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := Decode(data, &c); err != nil {
		return c, &ParseError{Path: path, Err: err}
	}
	c.Defaults()
	return c, c.Validate()
}

// Decode unmarshals TOML into c, rejecting unknown keys so typos surface.
func Decode(data []byte, c *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(c)
}

// Save writes c as TOML.
func Save(path string, c Config) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
