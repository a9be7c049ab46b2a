package cart

import (
	"io"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"
)

// Op names the mutation that produced an Event.
type Op string

const (
	OpAdd    Op = "add"
	OpUpdate Op = "update"
	OpRemove Op = "remove"
	OpClear  Op = "clear"
)

// Event describes the cart after a persisted mutation.
type Event struct {
	Op        Op
	Lines     []Line
	ItemCount int
	Total     decimal.Decimal
}

// Notifier fans cart change events out to subscribers. Subscribers run
// synchronously on the publishing goroutine, in subscription order.
type Notifier struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
	logger *slog.Logger
}

type subscription struct {
	id int
	fn func(Event)
}

// NewNotifier creates a Notifier. A nil logger discards output.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Notifier{logger: logger}
}

// Subscribe registers fn and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (n *Notifier) Subscribe(fn func(Event)) (unsubscribe func()) {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.subs = append(n.subs, subscription{id: id, fn: fn})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			for i, s := range n.subs {
				if s.id == id {
					n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers ev to every current subscriber. A panicking subscriber is
// logged and does not stop delivery to the rest.
func (n *Notifier) Publish(ev Event) {
	n.mu.RLock()
	subs := make([]subscription, len(n.subs))
	copy(subs, n.subs)
	n.mu.RUnlock()

	for _, s := range subs {
		n.deliver(s, ev)
	}
}

func (n *Notifier) deliver(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("cart subscriber panicked", "op", ev.Op, "panic", r)
		}
	}()
	s.fn(ev)
}
