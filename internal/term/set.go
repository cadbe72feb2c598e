package term

import "sync"

// Set holds one Screen per terminal id in first-seen order.
type Set struct {
	mu         sync.Mutex
	cols       int
	scrollback int
	screens    map[string]*Screen
	order      []string
}

// NewSet pre-creates screens for ids so they show up before any output.
func NewSet(cols, scrollback int, ids ...string) *Set {
	s := &Set{cols: cols, scrollback: scrollback, screens: make(map[string]*Screen)}
	for _, id := range ids {
		s.Get(id)
	}
	return s
}

// Get returns the screen for id, creating it on first use.
func (s *Set) Get(id string) *Screen {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.screens[id]; ok {
		return sc
	}
	sc := NewScreen(s.cols, s.scrollback)
	s.screens[id] = sc
	s.order = append(s.order, id)
	return sc
}

// IDs lists terminals in the order they appeared.
func (s *Set) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Write appends data to terminal id and returns the BEL count.
func (s *Set) Write(id, data string) int { return s.Get(id).Write(data) }

// Clear empties terminal id. Unknown ids are created empty.
func (s *Set) Clear(id string) { s.Get(id).Clear() }
