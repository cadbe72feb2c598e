//go:build cgo

package native

import "testing"

func TestSendTerminalData_CStrings(t *testing.T) {
	rec := &recordingSink{}
	prev := SetTerminalSink(rec)
	defer SetTerminalSink(prev)

	id, text := "linux-terminal", "boot\xff\r\n"
	callSendTerminalData(&id, &text)
	cut := "before\x00after"
	callSendTerminalData(&id, &cut)

	if len(rec.writes) != 2 {
		t.Fatalf("writes: got %d, want 2", len(rec.writes))
	}
	if rec.writes[0] != [2]string{"linux-terminal", "boot\xff\r\n"} {
		t.Fatalf("first write: %q", rec.writes[0])
	}
	// the core's strings end at the first NUL
	if rec.writes[1][1] != "before" {
		t.Fatalf("second write: got %q, want %q", rec.writes[1][1], "before")
	}
}

func TestSendTerminalData_NullArguments(t *testing.T) {
	rec := &recordingSink{}
	prev := SetTerminalSink(rec)
	defer SetTerminalSink(prev)

	id, text := "linux-terminal", "lost"
	before := DroppedTerminalWrites()
	callSendTerminalData(nil, &text)
	callSendTerminalData(&id, nil)

	if got := DroppedTerminalWrites() - before; got != 2 {
		t.Fatalf("dropped: got %d, want 2", got)
	}
	if len(rec.writes) != 0 {
		t.Fatalf("NULL arguments must not reach the sink: %q", rec.writes)
	}
}
