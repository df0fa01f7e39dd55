package store

import (
	"sync"

	"github.com/google/uuid"
)

// Subscription is a closeable listener handle. Delivery never blocks the
// writer; events queue until the consumer reads them.
type Subscription struct {
	id     string
	path   string
	events chan Event
	notify chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	queue   []Event
	closed  bool
	onClose func()
}

func newSubscription(path string, onClose func()) *Subscription {
	return newSubscriptionWithID(uuid.NewString(), path, onClose)
}

func newSubscriptionWithID(id, path string, onClose func()) *Subscription {
	s := &Subscription{
		id:      id,
		path:    path,
		events:  make(chan Event),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		onClose: onClose,
	}
	go s.pump()
	return s
}

func (s *Subscription) ID() string { return s.id }

func (s *Subscription) Path() string { return s.path }

// Events is closed once the subscription is closed.
func (s *Subscription) Events() <-chan Event { return s.events }

// Close releases the listener. Closing twice returns ErrSubscriptionClosed.
func (s *Subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSubscriptionClosed
	}
	s.closed = true
	s.queue = nil
	onClose := s.onClose
	s.mu.Unlock()

	close(s.done)
	if onClose != nil {
		onClose()
	}
	return nil
}

func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.events)
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, ev := range batch {
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		}

		select {
		case <-s.notify:
		case <-s.done:
			return
		}
	}
}
