package hub

import (
	"sync"
	"time"

	"github.com/lattice-exchange/core/pkg/idgen"
	"golang.org/x/time/rate"
)

// mailboxSize bounds each session's outbound buffer; the hub never blocks a
// publisher on a slow consumer (§4.6) — once full, pushes are dropped for
// that session and, past dropThreshold consecutive drops, the session is
// disconnected as a persistent violator of its own slowness.
const mailboxSize = 256

// Session is one duplex client connection. Message handling is
// single-threaded per session (§4.6 "single-threaded cooperative per
// session"); only deliver and the activity/heartbeat bookkeeping are safe to
// call from other goroutines (the hub's fan-out).
type Session struct {
	ID string

	mu            sync.Mutex
	authenticated bool
	userID        string
	subscriptions map[string]bool

	send chan ServerMessage
	done chan struct{} // closed exactly once, by the hub, to signal the write pump to stop

	limiter      *rate.Limiter
	lastActivity time.Time

	droppedInARow int
	closed        bool
}

func newSession(id string) *Session {
	return &Session{
		ID:            id,
		subscriptions: make(map[string]bool),
		send:          make(chan ServerMessage, mailboxSize),
		done:          make(chan struct{}),
		limiter:       newRequestLimiter(),
		lastActivity:  time.Now(),
	}
}

// NewSession creates a Session with a fresh id, for the transport layer
// (pkg/api's WebSocket upgrade handler) to register with the Hub.
func NewSession() *Session {
	return newSession(idgen.NewID())
}

// Outbox is the channel the write pump drains to deliver pushes/responses to
// the client connection.
func (s *Session) Outbox() <-chan ServerMessage {
	return s.send
}

// Done is closed exactly once, by markClosed, to signal the write pump to
// stop without the send channel itself being closed out from under a
// concurrent deliver() (§4.6 "never blocks a publisher").
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// touch records request activity for the 60s liveness timeout (§4.6).
func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

func (s *Session) allowRequest() bool {
	return s.limiter.Allow()
}

func (s *Session) authenticate(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = true
	s.userID = userID
}

func (s *Session) isAuthenticated() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.authenticated
}

// subscribe adds topic, enforcing the concurrent subscription cap (§4.6).
// Returns false if the session is already at the cap.
func (s *Session) subscribe(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscriptions[topic] {
		return true
	}
	if len(s.subscriptions) >= maxSubscriptions {
		return false
	}
	s.subscriptions[topic] = true
	return true
}

func (s *Session) unsubscribe(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, topic)
}

func (s *Session) isSubscribed(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscriptions[topic]
}

func (s *Session) topicList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.subscriptions))
	for t := range s.subscriptions {
		out = append(out, t)
	}
	return out
}

// deliver enqueues msg onto the session's mailbox without blocking. A full
// mailbox means this session is too slow to keep up; the send is dropped and
// the hub's housekeeping loop disconnects sessions that accumulate too many
// drops (§4.6 "drops or disconnects according to policy").
func (s *Session) deliver(msg ServerMessage) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	select {
	case s.send <- msg:
		s.mu.Lock()
		s.droppedInARow = 0
		s.mu.Unlock()
	default:
		s.mu.Lock()
		s.droppedInARow++
		s.mu.Unlock()
	}
}

// const dropThreshold is how many consecutive full-mailbox drops mark a
// session for disconnection as a persistent slow consumer.
const dropThreshold = 50

func (s *Session) tooSlow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.droppedInARow >= dropThreshold
}

// markClosed flags the session as closed and signals done exactly once, so
// the write pump stops reading from send without anyone closing that channel
// out from under a concurrent deliver() (§4.6 "never blocks a publisher").
func (s *Session) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}
