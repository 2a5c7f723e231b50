package migration

import (
	"log/slog"
	"sync"

	"github.com/johnwards/prefmigrate/internal/session"
)

// subscriberBuffer bounds how many progress updates a slow stream may lag
// behind before its queued ticks are coalesced.
const subscriberBuffer = 64

// Event is one message delivered to progress stream subscribers.
type Event struct {
	// Name is "progress" or "close".
	Name     string
	Progress session.Progress
}

// Broadcaster is the session host of the HTTP surface. It fans progress
// notifications out to every connected event stream.
type Broadcaster struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[*Subscription]struct{}

	done     chan struct{}
	shutdown sync.Once
}

var _ session.Host = (*Broadcaster)(nil)

// NewBroadcaster creates a Broadcaster. A nil logger uses slog.Default().
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		logger: logger.With("component", "progress-broadcaster"),
		subs:   map[*Subscription]struct{}{},
		done:   make(chan struct{}),
	}
}

// Shutdown ends every open event stream. It is meant for
// http.Server.RegisterOnShutdown, since streams never go idle on their own.
func (b *Broadcaster) Shutdown() {
	b.shutdown.Do(func() { close(b.done) })
}

// Done is closed once Shutdown has been called.
func (b *Broadcaster) Done() <-chan struct{} { return b.done }

// Subscription is one stream's queue of pending events.
type Subscription struct {
	logger *slog.Logger

	mu    sync.Mutex
	queue []Event
	ready chan struct{}
}

// Ready is signalled whenever events are waiting to be drained.
func (s *Subscription) Ready() <-chan struct{} { return s.ready }

// Drain removes and returns every pending event in publish order.
func (s *Subscription) Drain() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.queue
	s.queue = nil
	return out
}

// push appends ev. When the queue is full, queued progress ticks of the same
// stage are collapsed into the latest one; stage changes and close events
// survive.
func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	if len(s.queue) > subscriberBuffer {
		s.queue = coalesce(s.queue)
		if over := len(s.queue) - subscriberBuffer; over > 0 {
			s.logger.Warn("progress stream full, dropping oldest events", "dropped", over)
			s.queue = append([]Event(nil), s.queue[over:]...)
		}
	}
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Subscribe registers a new stream. The returned func unregisters it and
// must be called exactly once.
func (b *Broadcaster) Subscribe() (*Subscription, func()) {
	sub := &Subscription{logger: b.logger, ready: make(chan struct{}, 1)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub, func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
	}
}

// Subscribers returns the number of connected streams.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// ProgressChanged implements session.Host.
func (b *Broadcaster) ProgressChanged(p session.Progress) {
	b.publish(Event{Name: "progress", Progress: p})
}

// CloseRequested implements session.Host.
func (b *Broadcaster) CloseRequested() {
	b.publish(Event{Name: "close"})
}

func (b *Broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		sub.push(ev)
	}
}

// coalesce drops every progress event that is directly followed by another
// progress event of the same stage.
func coalesce(events []Event) []Event {
	out := events[:0]
	for i, e := range events {
		if i+1 < len(events) {
			next := events[i+1]
			if e.Name == "progress" && next.Name == "progress" && next.Progress.Stage == e.Progress.Stage {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}
