package term

import (
	"github.com/FabianRolfMatthiasNoll/RISCVEmulator/internal/event"
	"github.com/FabianRolfMatthiasNoll/RISCVEmulator/internal/relay"
)

// Subscriber is the listening half of the event bus.
type Subscriber interface {
	Listen(name string, fn event.Listener) (unlisten func())
}

// Attach feeds write-terminal and clear-terminal events into the set.
// onBell, if not nil, gets the BEL count of every write that rang.
// Payloads without a terminalId are ignored.
func (s *Set) Attach(bus Subscriber, onBell func(n int)) (detach func()) {
	offWrite := bus.Listen(relay.EventWriteTerminal, func(m event.Message) {
		id := m.Get("terminalId")
		if !id.Exists() {
			return
		}
		if n := s.Write(id.String(), m.Get("data").String()); n > 0 && onBell != nil {
			onBell(n)
		}
	})
	offClear := bus.Listen(relay.EventClearTerminal, func(m event.Message) {
		if id := m.Get("terminalId"); id.Exists() {
			s.Clear(id.String())
		}
	})
	return func() {
		offWrite()
		offClear()
	}
}
