package ui

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
)

func (a *App) drawMainMenu(screen *ebiten.Image) {
	start := "  Start emulation"
	if a.cmd.IsRunning() {
		start = "  Start emulation (running)"
	}
	lines := []string{
		"Menu:",
		start,
		"  Stop emulation",
		"  Clear terminal",
		"  Reload device tree",
		"  Close",
	}
	for i, s := range lines {
		prefix := "  "
		if i == a.menuIdx+1 {
			prefix = "> "
		}
		ebitenutil.DebugPrintAt(screen, prefix+s, 10, 10+i*14)
	}
	// quick hints, keep on-screen
	hint := "Up/Down: select  Enter: run  Esc/Backspace: back  F11: fullscreen"
	ebitenutil.DebugPrintAt(screen, a.truncateText(hint, a.maxCharsForText(10)), 10, 10+(len(lines)+1)*14)
}
