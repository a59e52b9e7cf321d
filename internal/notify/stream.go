package notify

import "sync"

// DefaultBuffer is how many undelivered notifications a Stream holds.
const DefaultBuffer = 8

// Stream is a Sink backed by a buffered channel. The reader (an SSE handler)
// ranges over C until Done closes.
type Stream struct {
	ch   chan Notification
	done chan struct{}
	once sync.Once
	mu   sync.RWMutex
}

func NewStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Stream{
		ch:   make(chan Notification, buffer),
		done: make(chan struct{}),
	}
}

// Show enqueues n without blocking. It drops n with ErrFull when the reader
// has fallen behind and with ErrClosed after Close.
func (s *Stream) Show(n Notification) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	select {
	case s.ch <- n:
		return nil
	default:
		return ErrFull
	}
}

// C delivers queued notifications.
func (s *Stream) C() <-chan Notification {
	return s.ch
}

// Done is closed by Close.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Close is idempotent. Show holds the read lock while sending, so once Close
// takes the write lock no send can race with it.
func (s *Stream) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		close(s.done)
		s.mu.Unlock()
	})
}
