// Package ui is the desktop window: the terminal the emulated machine writes
// to, a status line and a small command menu.
package ui

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/FabianRolfMatthiasNoll/RISCVEmulator/internal/relay"
	"github.com/FabianRolfMatthiasNoll/RISCVEmulator/internal/shell"
	"github.com/FabianRolfMatthiasNoll/RISCVEmulator/internal/term"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

// debug font cell
const (
	charW  = 6
	lineH  = 16
	margin = 4
)

var (
	colorBackground = color.RGBA{0x10, 0x12, 0x16, 0xff}
	colorStatus     = color.RGBA{0x24, 0x2a, 0x33, 0xff}
	colorOverlay    = color.RGBA{0, 0, 0, 0xb0}
)

// Commander runs the shell commands.
type Commander interface {
	Invoke(ctx context.Context, name string) error
	IsRunning() bool
}

// StatsSource reports relay counters for the status line.
type StatsSource interface {
	Stats() relay.Stats
}

type cmdResult struct {
	name string
	err  error
}

type App struct {
	cfg     Config
	log     *slog.Logger
	cmd     Commander
	screens *term.Set
	view    *term.Viewport
	stats   StatsSource
	reload  func() error
	detach  func()

	results  chan cmdResult
	inflight int
	bells    atomic.Int64
	bell     *bell

	overlay *ebiten.Image

	// overlay/menu
	showMenu bool
	menuIdx  int

	toastMsg   string
	toastUntil time.Time
}

type Option func(*App)

func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.log = l
		}
	}
}

// WithRelayStats shows relay counters on the status line.
func WithRelayStats(s StatsSource) Option { return func(a *App) { a.stats = s } }

// WithReload enables the "Reload device tree" menu entry.
func WithReload(fn func() error) Option { return func(a *App) { a.reload = fn } }

// NewApp sizes the window and subscribes the screens to terminal events.
func NewApp(cfg Config, cmd Commander, screens *term.Set, bus term.Subscriber, opts ...Option) *App {
	cfg.Defaults()
	a := &App{
		cfg:     cfg,
		log:     slog.Default(),
		cmd:     cmd,
		screens: screens,
		view:    term.NewViewport(screens, cfg.Rows),
		results: make(chan cmdResult, 8),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With("component", "ui")
	a.detach = screens.Attach(bus, func(n int) { a.bells.Add(int64(n)) })
	if cfg.Bell {
		a.bell = newBell()
	}

	w, h := a.Layout(0, 0)
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(w*cfg.Scale, h*cfg.Scale)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetFullscreen(cfg.Fullscreen)
	return a
}

// Run blocks until the window closes.
func (a *App) Run() error {
	defer a.detach()
	defer a.bell.close()
	return ebiten.RunGame(a)
}

func (a *App) Update() error {
	a.collectResults()

	if n := a.bells.Swap(0); n > 0 && a.cfg.Bell {
		a.bell.ring()
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyF11) {
		ebiten.SetFullscreen(!ebiten.IsFullscreen())
	}

	// Toggle menu (Escape)
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		a.showMenu = !a.showMenu
		a.menuIdx = 0
		return nil
	}
	if a.showMenu {
		a.updateMainMenu()
		return nil
	}

	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyF5):
		a.invoke(shell.CmdStartEmulation)
	case inpututil.IsKeyJustPressed(ebiten.KeyF6):
		a.invoke(shell.CmdStopEmulation)
	case inpututil.IsKeyJustPressed(ebiten.KeyTab):
		a.view.Next()
	case repeating(ebiten.KeyPageUp):
		a.view.PageUp()
	case repeating(ebiten.KeyPageDown):
		a.view.PageDown()
	case inpututil.IsKeyJustPressed(ebiten.KeyEnd):
		a.view.Scroll(-a.view.Offset())
	}
	return nil
}

// repeating is true on the first press and then every few ticks while held.
func repeating(k ebiten.Key) bool {
	d := inpututil.KeyPressDuration(k)
	return d == 1 || (d > 20 && d%4 == 0)
}

// invoke runs a command off the game loop; collectResults reports it.
func (a *App) invoke(name string) {
	a.inflight++
	go func() {
		err := a.cmd.Invoke(context.Background(), name)
		a.results <- cmdResult{name: name, err: err}
	}()
}

func (a *App) collectResults() {
	for {
		select {
		case r := <-a.results:
			a.inflight--
			if r.err != nil {
				a.log.Error("command failed", "command", r.name, "err", r.err)
				a.toast(r.err.Error())
				continue
			}
			a.log.Info("command done", "command", r.name)
			switch r.name {
			case shell.CmdStartEmulation:
				a.toast("Emulation started")
			case shell.CmdStopEmulation:
				a.toast("Emulation stopped")
			}
		default:
			return
		}
	}
}

func (a *App) toast(msg string) {
	a.toastMsg = msg
	a.toastUntil = time.Now().Add(2500 * time.Millisecond)
}

func (a *App) Draw(screen *ebiten.Image) {
	screen.Fill(colorBackground)
	w, _ := a.Layout(0, 0)

	// status line
	vector.DrawFilledRect(screen, 0, 0, float32(w), lineH+2, colorStatus, false)
	ebitenutil.DebugPrintAt(screen, a.truncateText(a.statusText(), a.cfg.Cols), margin, 1)

	for i, line := range a.view.Lines() {
		ebitenutil.DebugPrintAt(screen, a.truncateText(line, a.cfg.Cols), margin, lineH+margin+i*lineH)
	}

	if a.showMenu {
		if a.overlay == nil {
			a.overlay = ebiten.NewImage(1, 1)
			a.overlay.Fill(colorOverlay)
		}
		op := &ebiten.DrawImageOptions{}
		bw, bh := screen.Bounds().Dx(), screen.Bounds().Dy()
		op.GeoM.Scale(float64(bw), float64(bh))
		screen.DrawImage(a.overlay, op)
		a.drawMainMenu(screen)
	}

	if a.toastMsg != "" && time.Now().Before(a.toastUntil) {
		_, h := a.Layout(0, 0)
		msg := a.truncateText(a.toastMsg, a.cfg.Cols)
		vector.DrawFilledRect(screen, 0, float32(h-lineH-2), float32(w), lineH+2, colorStatus, false)
		ebitenutil.DebugPrintAt(screen, msg, margin, h-lineH-1)
	}
}

func (a *App) statusText() string {
	state := "STOPPED"
	if a.cmd.IsRunning() {
		state = "RUNNING"
	}
	if a.inflight > 0 {
		state += "..."
	}
	s := state + "  no terminal"
	if idx, n := a.view.Position(); n > 0 {
		s = fmt.Sprintf("%s  %s [%d/%d]", state, a.view.Active(), idx+1, n)
	}
	if off := a.view.Offset(); off > 0 {
		s += fmt.Sprintf("  scroll -%d", off)
	}
	if a.stats != nil {
		st := a.stats.Stats()
		s += fmt.Sprintf("  out=%d drop=%d fail=%d", st.Delivered, st.Dropped, st.Failed)
	}
	return s + "  F5 start  F6 stop  Tab next  Esc menu"
}

// Layout keeps a fixed character grid; the window scales it.
func (a *App) Layout(outW, outH int) (int, int) {
	return a.cfg.Cols*charW + 2*margin, (a.cfg.Rows+2)*lineH + margin
}

func (a *App) maxCharsForText(x int) int {
	w, _ := a.Layout(0, 0)
	n := (w - x - margin) / charW
	if n < 1 {
		n = 1
	}
	return n
}

func (a *App) truncateText(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
