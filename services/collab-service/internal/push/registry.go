package push

import (
	"log/slog"
	"sync"
)

// EventConnected is the synthetic first event sent on every new stream.
const EventConnected = "connected"

// Event is one named push frame.
type Event struct {
	Name    string
	Payload any
}

const streamBuffer = 16

// Stream is one live connection's outgoing queue. At most one stream per user
// is registered at a time.
type Stream struct {
	userID string
	events chan Event
	done   chan struct{}
	once   sync.Once
}

// Events is the channel the transport handler drains.
func (s *Stream) Events() <-chan Event { return s.events }

// Done is closed when the stream is torn down (replaced, undeliverable, or
// disconnected).
func (s *Stream) Done() <-chan struct{} { return s.done }

func (s *Stream) close() {
	s.once.Do(func() { close(s.done) })
}

// Registry is the process-local map of connected users. It is never the
// durable record: a user without a stream simply polls the inbox.
type Registry struct {
	logger *slog.Logger

	mu      sync.Mutex
	streams map[string]*Stream
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:  logger,
		streams: make(map[string]*Stream),
	}
}

// Connect registers a stream for the user and queues the connectivity
// confirmation. A previous stream for the same user is closed and replaced;
// the registry keeps only the latest connection.
func (r *Registry) Connect(userID string) *Stream {
	s := &Stream{
		userID: userID,
		events: make(chan Event, streamBuffer),
		done:   make(chan struct{}),
	}
	s.events <- Event{Name: EventConnected, Payload: map[string]string{"user_id": userID}}

	r.mu.Lock()
	prev := r.streams[userID]
	r.streams[userID] = s
	r.mu.Unlock()

	if prev != nil {
		prev.close()
		r.logger.Debug("replaced live stream", "user_id", userID)
	}
	return s
}

// Disconnect removes the stream if it is still the registered one for its
// user. A stream replaced by a newer connection leaves the newer entry alone.
func (r *Registry) Disconnect(s *Stream) {
	if s == nil {
		return
	}
	r.mu.Lock()
	if r.streams[s.userID] == s {
		delete(r.streams, s.userID)
	}
	r.mu.Unlock()
	s.close()
}

// Send queues an event for the user's stream, best-effort. No registered
// stream: silent no-op, nothing queued, nothing retried. A stream that cannot
// accept the event (client stopped draining) is torn down and deregistered;
// the durable notification row is unaffected.
func (r *Registry) Send(userID, name string, payload any) {
	r.mu.Lock()
	s := r.streams[userID]
	r.mu.Unlock()
	if s == nil {
		return
	}

	select {
	case <-s.done:
		return
	case s.events <- Event{Name: name, Payload: payload}:
		return
	default:
	}

	r.logger.Warn("live stream backed up, dropping connection", "user_id", userID)
	r.Disconnect(s)
}

// Connected reports whether a user currently holds a live stream.
func (r *Registry) Connected(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streams[userID] != nil
}
