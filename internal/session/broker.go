package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is the process-wide session record.
type Session struct {
	ID            string    `json:"sessionId"`
	InitializedAt time.Time `json:"initializedAt"`
}

// Info is the side-effect free view of the broker state.
type Info struct {
	Initialized bool    `json:"initialized"`
	SessionID   *string `json:"sessionId,omitempty"`
}

// Resolution is the outcome of checking a caller's claimed session id.
// Every call proceeds against the singleton backend whatever the outcome.
type Resolution struct {
	SessionID string // live session id, empty before initialize
	Claimed   string // id the caller presented, possibly empty
	Matched   bool
}

// Broker owns the singleton session. The state moves from uninitialized
// to initialized exactly once and never back.
type Broker struct {
	mu      sync.RWMutex
	session *Session

	now   func() time.Time
	newID func() string
}

// NewBroker creates an uninitialized broker.
func NewBroker() *Broker {
	return &Broker{
		now:   time.Now,
		newID: func() string { return uuid.Must(uuid.NewV7()).String() },
	}
}

// Initialize returns the singleton session, creating it on the first call.
// created reports whether this call performed the transition; a false value
// is the normal already-initialized outcome.
func (b *Broker) Initialize() (s Session, created bool) {
	b.mu.RLock()
	if b.session != nil {
		s = *b.session
		b.mu.RUnlock()
		return s, false
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		return *b.session, false
	}
	b.session = &Session{ID: b.newID(), InitializedAt: b.now()}
	return *b.session, true
}

// Current returns the session and whether it exists.
func (b *Broker) Current() (Session, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.session == nil {
		return Session{}, false
	}
	return *b.session, true
}

// Resolve checks a claimed session id against the live session. It never
// rejects: absent and unknown ids resolve to the singleton like a match.
func (b *Broker) Resolve(claimed string) Resolution {
	s, ok := b.Current()
	r := Resolution{Claimed: claimed}
	if ok {
		r.SessionID = s.ID
		r.Matched = claimed != "" && claimed == s.ID
	}
	return r
}

// Info reports the current state.
func (b *Broker) Info() Info {
	s, ok := b.Current()
	if !ok {
		return Info{}
	}
	return Info{Initialized: true, SessionID: &s.ID}
}

type resolutionKey struct{}

// WithResolution returns a context carrying r.
func WithResolution(ctx context.Context, r Resolution) context.Context {
	return context.WithValue(ctx, resolutionKey{}, r)
}

// ResolutionFrom returns the resolution stored in ctx, if any.
func ResolutionFrom(ctx context.Context) (Resolution, bool) {
	r, ok := ctx.Value(resolutionKey{}).(Resolution)
	return r, ok
}
