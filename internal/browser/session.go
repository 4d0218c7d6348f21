// internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Session is one isolated browsing identity with a single active page.
// Operations on a session are serialized through Do; sessions never block each other.
type Session struct {
	id      string
	context BrowsingContext
	page    Page
	clock   func() time.Time
	logger  *zap.Logger

	// sem is a one-slot semaphore. Unlike sync.Mutex it lets waiters give up
	// when their context is cancelled.
	sem chan struct{}

	mu         sync.Mutex
	principal  string
	// currentURL is read from the page only while the session is held.
	currentURL string
	createdAt  time.Time
	lastUsedAt time.Time
	closed     bool
}

// SessionInfo is a point-in-time description of a registered session.
type SessionInfo struct {
	ID         string    `json:"session_id"`
	Principal  string    `json:"principal,omitempty"`
	CurrentURL string    `json:"url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

func newSession(id string, bctx BrowsingContext, page Page, clock func() time.Time, logger *zap.Logger) *Session {
	now := clock()
	return &Session{
		id:         id,
		context:    bctx,
		page:       page,
		clock:      clock,
		logger:     logger.With(zap.String("session_id", id)),
		sem:        make(chan struct{}, 1),
		currentURL: page.URL(),
		createdAt:  now,
		lastUsedAt: now,
	}
}

// ID returns the opaque session identifier.
func (s *Session) ID() string { return s.id }

// Do runs fn with exclusive use of the session page. Waiting for the session
// honours ctx; once fn starts it runs to completion.
func (s *Session) Do(ctx context.Context, fn func(ctx context.Context, page Page) error) error {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("waiting for session %s: %w", s.id, ctx.Err())
	}
	defer s.release()

	if s.isClosed() {
		return fmt.Errorf("%w: %s", ErrInvalidSession, s.id)
	}

	s.touch()
	defer s.touch()
	defer s.recordURL()
	return fn(ctx, s.page)
}

func (s *Session) recordURL() {
	url := s.page.URL()
	s.mu.Lock()
	s.currentURL = url
	s.mu.Unlock()
}

func (s *Session) tryAcquire() bool {
	select {
	case s.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Session) release() { <-s.sem }

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsedAt = s.clock()
	s.mu.Unlock()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Principal returns the identity the session last authenticated as, or "".
func (s *Session) Principal() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal
}

// SetPrincipal records a successful authentication.
func (s *Session) SetPrincipal(email string) {
	s.mu.Lock()
	s.principal = email
	s.mu.Unlock()
}

// LastUsedAt returns when the session last started or finished an operation.
func (s *Session) LastUsedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsedAt
}

// Info snapshots the session metadata. It never touches the page, so the URL
// is the one observed when the last operation finished.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:         s.id,
		Principal:  s.principal,
		CurrentURL: s.currentURL,
		CreatedAt:  s.createdAt,
		LastUsedAt: s.lastUsedAt,
	}
}

// close releases the page and the browsing context. It is safe to call more
// than once; only the first call touches the browser.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	AttemptAll(s.logger,
		Step("close_page", s.page.Close),
		Step("close_context", s.context.Close),
	)
	s.logger.Debug("Session closed.")
}
