package channel

import (
	"sync"
	"sync/atomic"

	"github.com/bft-labs/relay/pkg/log"
	"github.com/bft-labs/relay/pkg/protocol"
)

// Message is an application message delivered to subscribers.
type Message = protocol.Message

// MessageHandler receives inbound messages.
type MessageHandler func(Message)

// Subscription is a registered message handler. It is the token used to
// unsubscribe that handler.
type Subscription struct {
	name    string
	all     bool
	fn      MessageHandler
	removed atomic.Bool
}

// Name returns the message name the subscription filters on, or "" for a
// subscription to all names.
func (s *Subscription) Name() string {
	return s.name
}

// All reports whether the subscription receives every message name.
func (s *Subscription) All() bool {
	return s.all
}

// Active reports whether the subscription is still registered.
func (s *Subscription) Active() bool {
	return !s.removed.Load()
}

func (s *Subscription) matches(name string) bool {
	return s.all || s.name == name
}

// Registry holds message subscriptions in registration order.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries []*Subscription
	logger  log.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger log.Logger) *Registry {
	return &Registry{logger: log.OrNoop(logger)}
}

// Subscribe registers fn for messages named name.
func (r *Registry) Subscribe(name string, fn MessageHandler) *Subscription {
	return r.add(&Subscription{name: name, fn: fn})
}

// SubscribeAll registers fn for every message regardless of name.
func (r *Registry) SubscribeAll(fn MessageHandler) *Subscription {
	return r.add(&Subscription{all: true, fn: fn})
}

func (r *Registry) add(s *Subscription) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, s)
	return s
}

// Unsubscribe removes subscriptions for name. With no subscriptions given it
// removes every subscription for name; otherwise only the given ones that
// filter on name. Subscriptions to all names are never touched. It returns
// the number removed; zero is not an error.
func (r *Registry) Unsubscribe(name string, subs ...*Subscription) int {
	return r.remove(func(s *Subscription) bool {
		if s.all || s.name != name {
			return false
		}
		return len(subs) == 0 || containsSub(subs, s)
	})
}

// UnsubscribeAll removes subscriptions to all names: the given ones, or every
// one of them when none are given.
func (r *Registry) UnsubscribeAll(subs ...*Subscription) int {
	return r.remove(func(s *Subscription) bool {
		return s.all && (len(subs) == 0 || containsSub(subs, s))
	})
}

// Clear removes every subscription.
func (r *Registry) Clear() int {
	return r.remove(func(*Subscription) bool { return true })
}

func (r *Registry) remove(match func(*Subscription) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := make([]*Subscription, 0, len(r.entries))
	removed := 0
	for _, s := range r.entries {
		if match(s) {
			s.removed.Store(true)
			removed++
			continue
		}
		kept = append(kept, s)
	}
	r.entries = kept
	return removed
}

// Len returns the number of registered subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Deliver invokes every subscription matching msg.Name, in registration
// order, and returns how many ran. A panicking handler is logged and does
// not stop delivery to the rest.
func (r *Registry) Deliver(msg Message) int {
	r.mu.RLock()
	snapshot := make([]*Subscription, 0, len(r.entries))
	for _, s := range r.entries {
		if s.matches(msg.Name) {
			snapshot = append(snapshot, s)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, s := range snapshot {
		if s.removed.Load() {
			continue
		}
		r.call(s, msg)
		delivered++
	}
	return delivered
}

func (r *Registry) call(s *Subscription, msg Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("subscriber panicked",
				log.String("name", msg.Name),
				log.String("id", msg.ID),
				log.Any("panic", rec),
			)
		}
	}()
	s.fn(msg)
}

func containsSub(subs []*Subscription, s *Subscription) bool {
	for _, x := range subs {
		if x == s {
			return true
		}
	}
	return false
}
