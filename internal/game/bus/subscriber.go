package bus

import (
	"fmt"
	"sync"
)

// Subscriber routes published notices to a buffered channel read by one
// connection's writer goroutine.
type Subscriber struct {
	id     string
	events chan []byte
	mu     sync.Mutex
	closed bool
}

// NewSubscriber creates a Subscriber for the given session id.
//
// Precondition: id must be non-empty.
// Postcondition: Returns a Subscriber with an open events channel.
func NewSubscriber(id string, bufferSize int) *Subscriber {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Subscriber{
		id:     id,
		events: make(chan []byte, bufferSize),
	}
}

// ID returns the session identifier.
func (s *Subscriber) ID() string {
	return s.id
}

// Push enqueues data without blocking.
//
// Postcondition: Returns an error if the subscriber is closed or its buffer is full.
func (s *Subscriber) Push(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("subscriber %s is closed", s.id)
	}
	select {
	case s.events <- data:
		return nil
	default:
		return fmt.Errorf("subscriber %s buffer full", s.id)
	}
}

// Events returns the read-only events channel. It is closed by Close.
func (s *Subscriber) Events() <-chan []byte {
	return s.events
}

// Close closes the events channel. Safe to call more than once.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

// IsClosed reports whether Close has been called.
func (s *Subscriber) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
