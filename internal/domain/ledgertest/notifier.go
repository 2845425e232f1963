package ledgertest

import (
	"context"
	"sync"

	"github.com/dispatchly/ledger-api/internal/pkg/events"
)

// Notifier records events instead of publishing them.
type Notifier struct {
	mu     sync.Mutex
	events []events.Event
}

func (n *Notifier) Notify(_ context.Context, ev events.Event) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}

// OfType returns the recorded events of type typ in order.
func (n *Notifier) OfType(typ string) []events.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []events.Event
	for _, ev := range n.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}
