package native

import (
	"sync"
	"unsafe"
)

// fakeCore stands in for the native library and records every call.
type fakeCore struct {
	mu         sync.Mutex
	calls      []string
	next       uintptr
	destroyed  map[uintptr]int
	steps      map[uintptr]int
	afterFree  int // steps issued on a destroyed handle
	nullCreate bool
	running    bool
	dts        [][]byte
}

func newFakeCore() *fakeCore {
	return &fakeCore{
		next:      0x1000,
		destroyed: make(map[uintptr]int),
		steps:     make(map[uintptr]int),
	}
}

func (f *fakeCore) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeCore) library() *Library {
	return &Library{
		Create: func() uintptr {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.record("create")
			if f.nullCreate {
				return 0
			}
			f.next += 0x10
			return f.next
		},
		Destroy: func(h uintptr) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.record("destroy")
			f.destroyed[h]++
		},
		Step: func(h uintptr) {
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.destroyed[h] > 0 {
				f.afterFree++
			}
			f.steps[h]++
		},
		StartEmulation: func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.record("start")
			f.running = true
		},
		StopEmulation: func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.record("stop")
			f.running = false
		},
		IsEmulationRunning: func() bool {
			f.mu.Lock()
			defer f.mu.Unlock()
			return f.running
		},
		SetDeviceTreeSource: func(src *byte, n uintptr) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.record("dts")
			// copy-in: the core keeps its own copy
			f.dts = append(f.dts, append([]byte(nil), unsafe.Slice(src, int(n))...))
		},
	}
}

func (f *fakeCore) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCore) count(call string) int {
	n := 0
	for _, c := range f.callLog() {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeCore) totalSteps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.steps {
		n += s
	}
	return n
}

func (f *fakeCore) useAfterFree() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.afterFree
}
