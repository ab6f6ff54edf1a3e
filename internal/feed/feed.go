// Package feed fans new events out to live observers.
package feed

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/observability"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Sink receives every published event. Send must not block.
type Sink interface {
	Send(e *domain.Event)
}

// Options configures a Feed.
type Options struct {
	Buffer int
	Sinks  []Sink
	Logger *zap.Logger
}

// Feed is a best-effort broadcaster. Publish never blocks: a subscriber
// whose queue is full loses its oldest queued event.
type Feed struct {
	buffer int
	sinks  []Sink
	logger *zap.Logger

	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

// New creates a Feed.
func New(opts Options) *Feed {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Feed{
		buffer: opts.Buffer,
		sinks:  opts.Sinks,
		logger: opts.Logger,
		subs:   make(map[*Subscription]struct{}),
	}
}

// Subscription is one observer's queue.
type Subscription struct {
	feed    *Feed
	ch      chan *domain.Event
	mu      sync.Mutex
	dropped atomic.Uint64
	once    sync.Once
}

// Subscribe registers a new observer.
func (f *Feed) Subscribe() *Subscription {
	s := &Subscription{feed: f, ch: make(chan *domain.Event, f.buffer)}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(s.ch)
		return s
	}
	f.subs[s] = struct{}{}
	observability.UpdateFeedSubscribers(len(f.subs))
	return s
}

// C returns the event channel. It is closed when the subscription or the
// feed is closed.
func (s *Subscription) C() <-chan *domain.Event {
	return s.ch
}

// Dropped returns how many events this subscriber lost to overflow.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unregisters the subscription.
func (s *Subscription) Close() {
	f := s.feed
	f.mu.Lock()
	if _, ok := f.subs[s]; ok {
		delete(f.subs, s)
		observability.UpdateFeedSubscribers(len(f.subs))
	}
	f.mu.Unlock()
	s.shutdown()
}

func (s *Subscription) shutdown() {
	s.once.Do(func() {
		s.mu.Lock()
		close(s.ch)
		s.mu.Unlock()
	})
}

// deliver enqueues e, evicting the oldest queued event when full.
func (s *Subscription) deliver(e *domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		select {
		case s.ch <- e:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
			observability.RecordFeedDropped()
		default:
		}
	}
}

// Publish delivers e to every subscriber and sink.
func (f *Feed) Publish(e *domain.Event) {
	if e == nil {
		return
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	for s := range f.subs {
		s.deliver(e)
	}
	for _, sink := range f.sinks {
		sink.Send(e)
	}
}

// Subscribers returns the number of active subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Close closes every subscription. Later publishes are ignored.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	subs := f.subs
	f.subs = make(map[*Subscription]struct{})
	f.mu.Unlock()

	for s := range subs {
		s.shutdown()
	}
	observability.UpdateFeedSubscribers(0)
}
