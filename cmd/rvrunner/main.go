package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/FabianRolfMatthiasNoll/RISCVEmulator/internal/config"
	"github.com/FabianRolfMatthiasNoll/RISCVEmulator/internal/devicetree"
	"github.com/FabianRolfMatthiasNoll/RISCVEmulator/internal/event"
	"github.com/FabianRolfMatthiasNoll/RISCVEmulator/internal/logging"
	"github.com/FabianRolfMatthiasNoll/RISCVEmulator/internal/native"
	"github.com/FabianRolfMatthiasNoll/RISCVEmulator/internal/relay"
)

func main() {
	libPath := flag.String("lib", "", "native emulator library (default $"+native.EnvLibraryPath+" or platform name)")
	dtPath := flag.String("dt", "", "optional device tree (.dts/.dtb, may be archived)")
	steps := flag.Uint64("steps", 50_000_000, "max native steps to run")
	batch := flag.Int("batch", native.DefaultBatch, "steps between output checks")
	until := flag.String("until", "login:", "stop when terminal output contains this substring (case-insensitive); empty to disable")
	timeout := flag.Duration("timeout", 0, "optional wall-clock timeout (e.g. 30s, 2m); 0 disables")
	terminal := flag.String("terminal", "", "only stream this terminal id; empty streams all")
	tail := flag.Int("tail", 8192, "number of recent output bytes to print on timeout")
	logLevel := flag.String("log-level", "warn", "debug, info, warn or error")
	flag.Parse()

	logger, err := logging.New(os.Stderr, config.Log{Level: *logLevel, Format: "text"})
	if err != nil {
		log.Fatalf("%v", err)
	}

	lib, err := native.Open(native.LibraryPath(*libPath))
	if err != nil {
		log.Fatalf("load library: %v", err)
	}
	defer lib.Close()

	if *dtPath != "" {
		src, err := devicetree.Load(*dtPath)
		if err != nil {
			log.Fatalf("device tree: %v", err)
		}
		if err := lib.SetDeviceTree(src.Bytes()); err != nil {
			log.Fatalf("device tree: %v", err)
		}
		logger.Info("device tree set", "name", src.Name, "format", src.Format)
	}

	// Stream terminal output to stdout and keep a ring of the last bytes
	ring := newTailRing(*tail)
	match := newMatcher(*until)
	found := make(chan struct{})
	var foundOnce sync.Once

	bus := event.NewBus()
	defer bus.Close()
	bus.Listen(relay.EventWriteTerminal, func(m event.Message) {
		if *terminal != "" && m.Get("terminalId").String() != *terminal {
			return
		}
		data := m.Get("data").String()
		os.Stdout.WriteString(data)
		ring.Write([]byte(data))
		if match.feed(data) {
			foundOnce.Do(func() { close(found) })
		}
	})

	rl := relay.New(bus, relay.WithLogger(logger))
	rl.Start()
	native.SetTerminalSink(rl)

	e, err := native.NewEmulator(lib)
	if err != nil {
		log.Fatalf("create emulator: %v", err)
	}

	start := time.Now()
	var deadline <-chan time.Time
	if *timeout > 0 {
		t := time.NewTimer(*timeout)
		defer t.Stop()
		deadline = t.C
	}
	if *batch <= 0 {
		*batch = 1
	}

	code := 0
	var reason string
loop:
	for e.Steps() < *steps {
		n := uint64(*batch)
		if left := *steps - e.Steps(); left < n {
			n = left
		}
		if err := e.StepN(int(n)); err != nil {
			log.Fatalf("step: %v", err)
		}
		select {
		case <-found:
			reason = fmt.Sprintf("Detected '%s' in terminal output.", *until)
			break loop
		case <-deadline:
			reason = fmt.Sprintf("Timeout after %s.", time.Since(start).Truncate(time.Millisecond))
			code = 2
			break loop
		default:
		}
	}

	ran := e.Steps()
	e.Close()
	native.SetTerminalSink(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := rl.Close(ctx); err != nil {
		logger.Warn("relay did not drain", "err", err)
	}
	cancel()

	// output still queued when the step budget ran out may hold the match
	if reason == "" && *until != "" {
		select {
		case <-found:
			reason = fmt.Sprintf("Detected '%s' in terminal output.", *until)
		default:
			reason = fmt.Sprintf("'%s' not seen.", *until)
			code = 1
		}
	}

	if reason != "" {
		fmt.Printf("\n%s\n", reason)
	}
	if code == 2 {
		if b := ring.Bytes(); len(b) > 0 {
			fmt.Printf("\n--- recent output (last %d bytes) ---\n%s\n--- end output ---\n", len(b), b)
		}
	}
	st := rl.Stats()
	fmt.Printf("\nDone: steps=%d events=%d dropped=%d elapsed=%s\n", ran, st.Delivered, st.Dropped+native.DroppedTerminalWrites(), time.Since(start).Truncate(time.Millisecond))
	if code != 0 {
		lib.Close()
		os.Exit(code)
	}
}
