package term

// Viewport tracks which terminal is shown and how far it is scrolled back.
// It belongs to the draw loop and is not safe for concurrent use.
type Viewport struct {
	set    *Set
	rows   int
	active int
	offset int
}

func NewViewport(set *Set, rows int) *Viewport {
	if rows <= 0 {
		rows = 1
	}
	return &Viewport{set: set, rows: rows}
}

// Active is the id of the shown terminal, or "" if the set is empty.
func (v *Viewport) Active() string {
	ids := v.set.IDs()
	if len(ids) == 0 {
		return ""
	}
	if v.active >= len(ids) {
		v.active = 0
	}
	return ids[v.active]
}

// Position reports the active index and the terminal count.
func (v *Viewport) Position() (index, count int) {
	v.Active()
	return v.active, len(v.set.IDs())
}

// Next cycles to the following terminal and snaps to the bottom.
func (v *Viewport) Next() {
	if n := len(v.set.IDs()); n > 0 {
		v.active = (v.active + 1) % n
	}
	v.offset = 0
}

// Scroll moves back (positive) or forward (negative) through scrollback.
func (v *Viewport) Scroll(delta int) {
	v.offset += delta
	v.clamp()
}

// PageUp and PageDown scroll by a screen less one line of overlap.
func (v *Viewport) PageUp()   { v.Scroll(v.page()) }
func (v *Viewport) PageDown() { v.Scroll(-v.page()) }

func (v *Viewport) page() int {
	if v.rows > 1 {
		return v.rows - 1
	}
	return 1
}

// Offset is how many lines the view sits above the bottom.
func (v *Viewport) Offset() int { return v.offset }

func (v *Viewport) clamp() {
	max := 0
	if id := v.Active(); id != "" {
		max = v.set.Get(id).Len() - v.rows
	}
	if v.offset > max {
		v.offset = max
	}
	if v.offset < 0 {
		v.offset = 0
	}
}

// Lines returns the visible rows of the active terminal.
func (v *Viewport) Lines() []string {
	id := v.Active()
	if id == "" {
		return nil
	}
	v.clamp()
	return v.set.Get(id).View(v.rows, v.offset)
}
