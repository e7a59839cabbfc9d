// Package eventbus is the process-wide publish/subscribe hub. Subscribers
// are dispatched by descending priority, ties in subscription order, and
// every published event is recorded in a bounded history regardless of
// whether delivery succeeded.
package eventbus

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/rf4watch/utils"
)

// DefaultHistorySize bounds the event history when New is given a size <= 0.
const DefaultHistorySize = 1000

// Event is a published message.
type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
}

// Handler receives an event. A returned error or panic is logged and does
// not affect other handlers.
type Handler func(ctx context.Context, ev Event) error

// SubscriptionID identifies a subscription for Unsubscribe.
type SubscriptionID uint64

type subscription struct {
	id       SubscriptionID
	priority int
	handler  Handler
}

// Bus is safe for concurrent use. Construct one per process and pass it to
// every component that publishes or subscribes.
type Bus struct {
	mu      sync.Mutex
	nextID  SubscriptionID
	subs    map[string][]subscription
	history *utils.Ring[Event]
}

// New creates a Bus whose history holds at most historySize events.
func New(historySize int) *Bus {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Bus{
		subs:    map[string][]subscription{},
		history: utils.NewRing[Event](historySize),
	}
}

// Subscribe registers h for events named name. Higher priority handlers run
// first; equal priorities run in subscription order.
func (b *Bus) Subscribe(name string, h Handler, priority int) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s := subscription{id: b.nextID, priority: priority, handler: h}
	list := b.subs[name]
	// insert after every entry with priority >= s.priority
	i := sort.Search(len(list), func(i int) bool { return list[i].priority < priority })
	b.subs[name] = slices.Insert(list, i, s)
	return s.id
}

// Unsubscribe removes a subscription, reporting whether it existed.
func (b *Bus) Unsubscribe(name string, id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[name]
	idx := slices.IndexFunc(list, func(s subscription) bool { return s.id == id })
	if idx < 0 {
		return false
	}
	list = slices.Delete(list, idx, idx+1)
	if len(list) == 0 {
		delete(b.subs, name)
	} else {
		b.subs[name] = list
	}
	return true
}

// Publish records the event in history and then delivers it synchronously to
// the current subscribers of name. Handlers run outside the bus lock, so they
// may publish or subscribe themselves.
func (b *Bus) Publish(ctx context.Context, name string, payload any, source string) Event {
	ev := Event{
		ID:        utils.NewID(),
		Name:      name,
		Payload:   payload,
		Timestamp: time.Now(),
		Source:    source,
	}
	b.mu.Lock()
	b.history.Push(ev)
	handlers := slices.Clone(b.subs[name])
	b.mu.Unlock()

	logger := log.WithFunc("eventbus.Publish")
	for _, s := range handlers {
		if err := utils.Guard(func() error { return s.handler(ctx, ev) }); err != nil {
			logger.Warnf(ctx, "handler %d for %s failed: %v", s.id, name, err)
		}
	}
	return ev
}

// History returns up to limit most recent events, oldest first. An empty name
// matches every event; limit <= 0 returns all retained.
func (b *Bus) History(name string, limit int) []Event {
	if name == "" {
		return b.history.Last(limit)
	}
	return b.history.Filter(limit, func(ev Event) bool { return ev.Name == name })
}

// ClearHistory drops all recorded events.
func (b *Bus) ClearHistory() {
	b.history.Reset()
}

// HasSubscribers reports whether name has at least one subscriber.
func (b *Bus) HasSubscribers(name string) bool {
	return b.SubscriberCount(name) > 0
}

// SubscriberCount returns the number of subscribers for name.
func (b *Bus) SubscriberCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[name])
}

// Events lists the event names with at least one subscriber, sorted.
func (b *Bus) Events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.subs))
	for n := range b.subs {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
