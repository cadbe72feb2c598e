package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FabianRolfMatthiasNoll/RISCVEmulator/internal/config"
	"github.com/FabianRolfMatthiasNoll/RISCVEmulator/internal/devicetree"
	"github.com/FabianRolfMatthiasNoll/RISCVEmulator/internal/event"
	"github.com/FabianRolfMatthiasNoll/RISCVEmulator/internal/logging"
	"github.com/FabianRolfMatthiasNoll/RISCVEmulator/internal/native"
	"github.com/FabianRolfMatthiasNoll/RISCVEmulator/internal/relay"
	"github.com/FabianRolfMatthiasNoll/RISCVEmulator/internal/shell"
	"github.com/FabianRolfMatthiasNoll/RISCVEmulator/internal/term"
	"github.com/FabianRolfMatthiasNoll/RISCVEmulator/internal/ui"
)

type CLIFlags struct {
	ConfigPath string
	Library    string
	Mode       string
	DeviceTree string
	Watch      bool
	Scale      int
	Title      string
	LogLevel   string
	LogFormat  string
	AutoStart  bool
	WriteConf  bool // write the effective config back to ConfigPath and exit

	set map[string]bool
}

func parseFlags() CLIFlags {
	var f CLIFlags
	flag.StringVar(&f.ConfigPath, "config", "rvemu.toml", "path to TOML settings (missing file: defaults)")
	flag.StringVar(&f.Library, "lib", "", "native emulator library (default $"+native.EnvLibraryPath+" or platform name)")
	flag.StringVar(&f.Mode, "mode", "", "native driver: auto, session or handle")
	flag.StringVar(&f.DeviceTree, "dt", "", "device tree (.dts/.dtb, may be archived) handed over on start")
	flag.BoolVar(&f.Watch, "watch", false, "reload the device tree when the file changes")
	flag.IntVar(&f.Scale, "scale", 0, "window scale")
	flag.StringVar(&f.Title, "title", "", "window title")
	flag.StringVar(&f.LogLevel, "log-level", "", "debug, info, warn or error")
	flag.StringVar(&f.LogFormat, "log-format", "", "text or json")
	flag.BoolVar(&f.AutoStart, "start", false, "start emulation as soon as the window opens")
	flag.BoolVar(&f.WriteConf, "write-config", false, "write the effective settings to -config and exit")
	flag.Parse()

	f.set = make(map[string]bool)
	flag.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f
}

// apply lets explicitly passed flags win over the settings file.
func (f CLIFlags) apply(c *config.Config) {
	if f.set["lib"] {
		c.Native.Library = f.Library
	}
	if f.set["mode"] {
		c.Native.Mode = f.Mode
	}
	if f.set["dt"] {
		c.DeviceTree.Path = f.DeviceTree
	}
	if f.set["watch"] {
		c.DeviceTree.Watch = f.Watch
	}
	if f.set["scale"] {
		c.Window.Scale = f.Scale
	}
	if f.set["title"] {
		c.Window.Title = f.Title
	}
	if f.set["log-level"] {
		c.Log.Level = f.LogLevel
	}
	if f.set["log-format"] {
		c.Log.Format = f.LogFormat
	}
	c.Defaults()
}

// driver is what the shell drives: a Session or a Runner.
type driver interface {
	shell.Controller
	shell.DeviceTreeSetter
	Close() error
}

func newDriver(lib *native.Library, c config.Native, logger *slog.Logger) (driver, error) {
	opts := []native.Option{native.WithLogger(logger), native.WithBatch(c.Batch)}
	switch c.Mode {
	case config.ModeSession:
		return native.NewSession(lib, opts...)
	case config.ModeHandle:
		return native.NewRunner(lib, opts...)
	}
	if lib.SupportsHandles() {
		return native.NewRunner(lib, opts...)
	}
	return native.NewSession(lib, opts...)
}

func main() {
	f := parseFlags()
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	f.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if f.WriteConf {
		if err := config.Save(f.ConfigPath, cfg); err != nil {
			log.Fatalf("%v", err)
		}
		log.Printf("wrote %s", f.ConfigPath)
		return
	}

	logger, closeLog, err := logging.Open(cfg.Log)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	slog.SetDefault(logger)

	err = run(cfg, f.AutoStart, logger)
	closeLog()
	if err != nil {
		log.Fatalf("rvemu: %v", err)
	}
}

func run(cfg config.Config, autoStart bool, logger *slog.Logger) error {
	path := native.LibraryPath(cfg.Native.Library)
	lib, err := native.Open(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	defer lib.Close()
	if missing := lib.Missing(); len(missing) > 0 {
		logger.Info("native library loaded", "path", lib.Path(), "missing", strings.Join(missing, ","))
	} else {
		logger.Info("native library loaded", "path", lib.Path())
	}

	drv, err := newDriver(lib, cfg.Native, logger)
	if err != nil {
		return err
	}
	defer drv.Close()

	bus := event.NewBus()
	defer bus.Close()

	rl := relay.New(bus,
		relay.WithQueueSize(cfg.Relay.QueueSize),
		relay.WithOverflow(relay.ParseOverflow(strings.ToLower(cfg.Relay.Overflow))),
		relay.WithLogger(logger),
	)
	rl.Start()
	prev := native.SetTerminalSink(rl)
	defer native.SetTerminalSink(prev)

	shellOpts := []shell.Option{shell.WithLogger(logger)}
	if cfg.Terminal.ClearOnStart {
		shellOpts = append(shellOpts, shell.WithClearOnStart(rl, cfg.Terminal.IDs...))
	}
	sh := shell.New(drv, shellOpts...)

	screens := term.NewSet(cfg.Window.Cols, cfg.Terminal.Scrollback, cfg.Terminal.IDs...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	var reload func() error
	if dt := cfg.DeviceTree.Path; dt != "" {
		if !lib.SupportsDeviceTree() {
			logger.Warn("library takes no device tree; ignoring", "path", dt)
		} else {
			reload = func() error {
				src, err := devicetree.Load(dt)
				if err != nil {
					return err
				}
				sh.QueueDeviceTree(src.Bytes())
				logger.Info("device tree queued", "name", src.Name, "format", src.Format)
				return nil
			}
			if err := reload(); err != nil {
				return fmt.Errorf("device tree: %w", err)
			}
			if cfg.DeviceTree.Watch {
				w := devicetree.NewWatcher(dt, func(src *devicetree.Source) {
					sh.QueueDeviceTree(src.Bytes())
				}, logger)
				g.Go(func() error { return w.Run(gctx) })
			}
		}
	}

	app := ui.NewApp(ui.Config{
		Title:      cfg.Window.Title,
		Scale:      cfg.Window.Scale,
		Cols:       cfg.Window.Cols,
		Rows:       cfg.Window.Rows,
		Fullscreen: cfg.Window.Fullscreen,
		Bell:       cfg.Terminal.Bell,
	}, sh, screens, bus,
		ui.WithLogger(logger),
		ui.WithRelayStats(rl),
		ui.WithReload(reload),
	)

	if autoStart {
		if err := sh.Invoke(ctx, shell.CmdStartEmulation); err != nil {
			logger.Error("autostart failed", "err", err)
		}
	}

	runErr := app.Run()

	if sh.IsRunning() {
		if err := sh.Invoke(context.Background(), shell.CmdStopEmulation); err != nil {
			logger.Error("stop on exit failed", "err", err)
		}
	}
	cancel()
	watchErr := g.Wait()

	sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer scancel()
	if err := rl.Close(sctx); err != nil {
		logger.Warn("relay did not drain", "err", err)
	}
	st := rl.Stats()
	logger.Info("shutdown", "delivered", st.Delivered, "dropped", st.Dropped+native.DroppedTerminalWrites(), "failed", st.Failed)
	return errors.Join(runErr, watchErr)
}
