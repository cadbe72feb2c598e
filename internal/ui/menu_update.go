package ui

import (
	"github.com/FabianRolfMatthiasNoll/RISCVEmulator/internal/shell"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// menu entries, in display order
const (
	menuStart = iota
	menuStop
	menuClear
	menuReload
	menuClose
	menuCount
)

func (a *App) updateMainMenu() {
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowUp) && a.menuIdx > 0 {
		a.menuIdx--
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowDown) && a.menuIdx < menuCount-1 {
		a.menuIdx++
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		switch a.menuIdx {
		case menuStart:
			a.invoke(shell.CmdStartEmulation)
			a.showMenu = false
		case menuStop:
			a.invoke(shell.CmdStopEmulation)
			a.showMenu = false
		case menuClear:
			if id := a.view.Active(); id != "" {
				a.screens.Clear(id)
				a.toast("Cleared " + id)
			}
			a.showMenu = false
		case menuReload:
			if a.reload == nil {
				a.toast("No device tree configured")
				break
			}
			if err := a.reload(); err != nil {
				a.log.Error("device tree reload failed", "err", err)
				a.toast("Reload failed: " + err.Error())
			} else {
				a.toast("Device tree queued for next start")
			}
			a.showMenu = false
		case menuClose:
			a.showMenu = false
		}
	}
	// Back with Backspace
	if inpututil.IsKeyJustPressed(ebiten.KeyBackspace) {
		a.showMenu = false
	}
}
