package main

import "strings"

// tailRing keeps the last n bytes written to it.
type tailRing struct {
	buf  []byte
	idx  int
	fill int
}

func newTailRing(n int) *tailRing {
	if n < 256 {
		n = 256
	}
	return &tailRing{buf: make([]byte, n)}
}

func (r *tailRing) Write(p []byte) (int, error) {
	for _, ch := range p {
		r.buf[r.idx] = ch
		r.idx = (r.idx + 1) % len(r.buf)
		if r.fill < len(r.buf) {
			r.fill++
		}
	}
	return len(p), nil
}

// Bytes returns the retained bytes in the order they were written.
func (r *tailRing) Bytes() []byte {
	out := make([]byte, 0, r.fill)
	start := (r.idx - r.fill + len(r.buf)) % len(r.buf)
	for j := 0; j < r.fill; j++ {
		out = append(out, r.buf[(start+j)%len(r.buf)])
	}
	return out
}

// matcher finds a substring, case-insensitively, in a stream that arrives in
// arbitrary chunks. Only a needle-sized window is retained between chunks.
type matcher struct {
	needle string
	window string
}

func newMatcher(needle string) *matcher {
	return &matcher{needle: strings.ToLower(needle)}
}

func (m *matcher) feed(s string) bool {
	if m.needle == "" {
		return false
	}
	m.window += strings.ToLower(s)
	if strings.Contains(m.window, m.needle) {
		return true
	}
	if keep := len(m.needle) - 1; len(m.window) > keep {
		m.window = m.window[len(m.window)-keep:]
	}
	return false
}
