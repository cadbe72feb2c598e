package ui

// Config contains window and terminal view settings.
type Config struct {
	Title      string // window title
	Scale      int    // integer upscaling factor
	Cols       int    // terminal columns shown
	Rows       int    // terminal rows shown
	Fullscreen bool
	Bell       bool // play a tone on BEL
}

// Defaults fills missing fields with reasonable defaults.
func (c *Config) Defaults() {
	if c.Title == "" {
		c.Title = "rvemu"
	}
	if c.Scale <= 0 {
		c.Scale = 1
	}
	if c.Cols <= 0 {
		c.Cols = 100
	}
	if c.Rows <= 0 {
		c.Rows = 32
	}
}
