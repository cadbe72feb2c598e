// Package term keeps the text the emulated machine writes to its terminals.
// It understands the handful of control characters a serial console emits
// and strips ANSI escape sequences; everything else is plain text.
package term

import (
	"strings"
	"sync"
)

const (
	DefaultCols       = 80
	DefaultScrollback = 1000
	tabWidth          = 8
)

type escState int

const (
	escNone escState = iota
	escStart
	escCSI
	escOSC
	escOSCEnd // ESC seen inside OSC, expecting '\'
)

// Screen is one terminal: committed lines plus the line under the cursor.
type Screen struct {
	mu         sync.Mutex
	cols       int
	scrollback int
	lines      []string
	cur        []rune
	col        int
	esc        escState
	bells      uint64
}

// NewScreen returns an empty screen. Non-positive sizes fall back to the
// defaults.
func NewScreen(cols, scrollback int) *Screen {
	if cols <= 0 {
		cols = DefaultCols
	}
	if scrollback <= 0 {
		scrollback = DefaultScrollback
	}
	return &Screen{cols: cols, scrollback: scrollback}
}

// Cols is the wrap width.
func (s *Screen) Cols() int { return s.cols }

// Write feeds s to the screen and reports how many BEL characters it held.
// Escape sequences split across calls are handled.
func (s *Screen) Write(data string) (bells int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range data {
		switch s.esc {
		case escStart:
			switch r {
			case '[':
				s.esc = escCSI
			case ']':
				s.esc = escOSC
			default:
				s.esc = escNone
			}
			continue
		case escCSI:
			if r >= 0x40 && r <= 0x7e {
				s.esc = escNone
			}
			continue
		case escOSC:
			switch r {
			case 0x07:
				s.esc = escNone
			case 0x1b:
				s.esc = escOSCEnd
			}
			continue
		case escOSCEnd:
			if r == '\\' {
				s.esc = escNone
			} else {
				s.esc = escOSC
			}
			continue
		}

		switch r {
		case 0x1b:
			s.esc = escStart
		case '\n':
			s.newline()
		case '\r':
			s.col = 0
		case '\b':
			if s.col > 0 {
				s.col--
			}
		case '\t':
			next := (s.col/tabWidth + 1) * tabWidth
			if next > s.cols {
				next = s.cols
			}
			for s.col < next {
				s.put(' ')
			}
		case 0x07:
			bells++
		default:
			if r < 0x20 || r == 0x7f {
				continue
			}
			s.put(r)
		}
	}
	s.bells += uint64(bells)
	return bells
}

func (s *Screen) put(r rune) {
	if s.col >= s.cols {
		s.newline()
	}
	if s.col < len(s.cur) {
		s.cur[s.col] = r
	} else {
		for len(s.cur) < s.col {
			s.cur = append(s.cur, ' ')
		}
		s.cur = append(s.cur, r)
	}
	s.col++
}

func (s *Screen) newline() {
	s.lines = append(s.lines, string(s.cur))
	s.cur = s.cur[:0]
	s.col = 0
	if over := len(s.lines) - s.scrollback; over > 0 {
		n := copy(s.lines, s.lines[over:])
		clear(s.lines[n:])
		s.lines = s.lines[:n]
	}
}

// Len counts the lines View can return, including a non-empty cursor line.
func (s *Screen) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lenLocked()
}

func (s *Screen) lenLocked() int {
	if len(s.cur) > 0 {
		return len(s.lines) + 1
	}
	return len(s.lines)
}

// Lines returns up to the last n lines.
func (s *Screen) Lines(n int) []string { return s.View(n, 0) }

// View returns up to rows lines ending offset lines above the bottom.
func (s *Screen) View(rows, offset int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rows <= 0 {
		return nil
	}
	total := s.lenLocked()
	if offset < 0 {
		offset = 0
	}
	end := total - offset
	if end < 0 {
		end = 0
	}
	start := end - rows
	if start < 0 {
		start = 0
	}
	out := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		if i < len(s.lines) {
			out = append(out, s.lines[i])
		} else {
			out = append(out, string(s.cur))
		}
	}
	return out
}

// String joins the whole scrollback, mostly for tests and dumps.
func (s *Screen) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	for i, l := range s.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l)
	}
	if len(s.cur) > 0 {
		if len(s.lines) > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(s.cur))
	}
	return b.String()
}

// Bells is the running BEL count.
func (s *Screen) Bells() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bells
}

// Clear drops all text and any half-read escape sequence.
func (s *Screen) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = nil
	s.cur = s.cur[:0]
	s.col = 0
	s.esc = escNone
}
