package native

import "sync/atomic"

// TerminalSink receives console output produced by the native core. Write
// is called from native threads, concurrently and at arbitrary rates; the
// strings carry raw bytes and may not be valid UTF-8.
type TerminalSink interface {
	Write(terminalID, data string)
}

type sinkBox struct{ s TerminalSink }

var (
	terminalSink    atomic.Pointer[sinkBox]
	droppedTerminal atomic.Uint64
)

// SetTerminalSink installs the receiver for send_terminal_data and returns
// the previous one. The exported C symbol carries no context pointer, so
// this is the one piece of process-wide state in the package.
func SetTerminalSink(s TerminalSink) TerminalSink {
	var box *sinkBox
	if s != nil {
		box = &sinkBox{s: s}
	}
	prev := terminalSink.Swap(box)
	if prev == nil {
		return nil
	}
	return prev.s
}

// DroppedTerminalWrites counts writes that arrived with no sink installed.
func DroppedTerminalWrites() uint64 { return droppedTerminal.Load() }

func deliverTerminalData(terminalID, data string) {
	box := terminalSink.Load()
	if box == nil {
		droppedTerminal.Add(1)
		return
	}
	box.s.Write(terminalID, data)
}
