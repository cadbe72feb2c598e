package native

import (
	"errors"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRunner_StartStepsUntilStop(t *testing.T) {
	f := newFakeCore()
	r, err := NewRunner(f.library(), WithBatch(16))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !r.IsRunning() {
		t.Fatalf("expected running after Start")
	}
	waitFor(t, func() bool { return f.totalSteps() >= 64 })

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if r.IsRunning() {
		t.Fatalf("expected stopped after Stop")
	}
	stepped := f.totalSteps()
	time.Sleep(10 * time.Millisecond)
	if f.totalSteps() != stepped {
		t.Fatalf("steps continued after Stop")
	}
	if got := f.count("create"); got != 1 {
		t.Fatalf("create calls: got %d, want 1", got)
	}
	if got := f.count("destroy"); got != 1 {
		t.Fatalf("destroy calls: got %d, want 1", got)
	}
	if f.useAfterFree() != 0 {
		t.Fatalf("step reached a destroyed handle")
	}
}

func TestRunner_StartTwice(t *testing.T) {
	f := newFakeCore()
	r, _ := NewRunner(f.library(), WithBatch(1))
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()
	if err := r.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start: got %v, want ErrAlreadyRunning", err)
	}
	if got := f.count("create"); got != 1 {
		t.Fatalf("create calls: got %d, want 1", got)
	}
}

func TestRunner_RestartUsesFreshHandle(t *testing.T) {
	f := newFakeCore()
	r, _ := NewRunner(f.library(), WithBatch(4))
	for i := 0; i < 3; i++ {
		if err := r.Start(); err != nil {
			t.Fatalf("Start #%d: %v", i, err)
		}
		if err := r.Stop(); err != nil {
			t.Fatalf("Stop #%d: %v", i, err)
		}
	}
	if c, d := f.count("create"), f.count("destroy"); c != 3 || d != 3 {
		t.Fatalf("create/destroy: got %d/%d, want 3/3", c, d)
	}
}

func TestRunner_NullHandleSurfacesOnStart(t *testing.T) {
	f := newFakeCore()
	f.nullCreate = true
	r, _ := NewRunner(f.library())
	if err := r.Start(); !errors.Is(err, ErrNullHandle) {
		t.Fatalf("got %v, want ErrNullHandle", err)
	}
	if r.IsRunning() {
		t.Fatalf("runner must not report running after a failed start")
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop after failed start: %v", err)
	}
	if got := f.count("destroy"); got != 0 {
		t.Fatalf("destroy calls: got %d, want 0", got)
	}
}

func TestRunner_DeviceTreeBeforeCreate(t *testing.T) {
	f := newFakeCore()
	r, _ := NewRunner(f.library())
	if err := r.SetDeviceTree([]byte{0xd0, 0x0d, 0xfe, 0xed}); err != nil {
		t.Fatalf("SetDeviceTree: %v", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.SetDeviceTree([]byte{1}); !errors.Is(err, ErrRunning) {
		t.Fatalf("SetDeviceTree while running: got %v, want ErrRunning", err)
	}
	_ = r.Close()

	log := f.callLog()
	if len(log) < 2 || log[0] != "dts" || log[1] != "create" {
		t.Fatalf("device tree must be applied before create: %v", log)
	}
}

func TestRunner_StopIdle(t *testing.T) {
	f := newFakeCore()
	r, _ := NewRunner(f.library())
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop on idle runner: %v", err)
	}
	if len(f.callLog()) != 0 {
		t.Fatalf("idle Stop must not call into the core: %v", f.callLog())
	}
}

func TestNewRunner_Unsupported(t *testing.T) {
	lib := newFakeCore().library()
	lib.Destroy = nil
	if _, err := NewRunner(lib); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("got %v, want ErrUnsupported", err)
	}
}
