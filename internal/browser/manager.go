// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/nextron-mcp/internal/config"
)

// Manager is the session registry. It owns the shared engine and every open session.
type Manager struct {
	engine *EngineHandle
	cfg    config.BrowserConfig
	logger *zap.Logger
	now    func() time.Time

	sessions map[string]*Session
	// pending counts sessions being created, so the limit holds under concurrency.
	pending int
	// inflight tracks the same creations so Shutdown can wait for them.
	inflight sync.WaitGroup
	closed   bool
	released bool
	mu       sync.RWMutex
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for session timestamps and reaping.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a registry. The engine is not started until the first session is requested.
func NewManager(launch Launcher, cfg config.BrowserConfig, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		logger:   logger.Named("session_manager"),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.engine = NewEngineHandle(launch, m.logger)
	m.logger.Info("Session manager created (engine launch deferred).",
		zap.Int("max_sessions", cfg.MaxSessions),
		zap.Duration("idle_timeout", cfg.IdleTimeout))
	return m
}

// Engine exposes the engine handle, mainly for health reporting.
func (m *Manager) Engine() *EngineHandle { return m.engine }

// NewSession opens an isolated browsing context with one page and registers it.
func (m *Manager) NewSession(ctx context.Context) (string, error) {
	if err := m.reserve(); err != nil {
		return "", err
	}
	defer m.unreserve()

	engine, err := m.engine.Acquire(ctx)
	if err != nil {
		return "", err
	}

	bctx, err := engine.NewContext(ContextOptions{
		ViewportWidth:  m.cfg.ViewportWidth,
		ViewportHeight: m.cfg.ViewportHeight,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create browsing context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		AttemptAll(m.logger, Step("close_context", bctx.Close))
		return "", fmt.Errorf("failed to create page: %w", err)
	}
	if m.cfg.DefaultTimeout > 0 {
		page.SetDefaultTimeout(m.cfg.DefaultTimeout)
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	s := newSession(id, bctx, page, m.now, m.logger)

	m.mu.Lock()
	if m.closed {
		released := m.released
		m.mu.Unlock()
		s.close()
		// Shutdown gave up waiting and released the engine; this creation may
		// have launched it again.
		if released {
			m.engine.Release()
		}
		return "", ErrManagerClosed
	}
	m.sessions[id] = s
	total := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("New session created.", zap.String("session_id", id), zap.Int("open_sessions", total))
	return id, nil
}

func (m *Manager) reserve() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	if m.cfg.MaxSessions > 0 && len(m.sessions)+m.pending >= m.cfg.MaxSessions {
		return fmt.Errorf("%w: %d sessions open", ErrSessionLimit, m.cfg.MaxSessions)
	}
	m.pending++
	m.inflight.Add(1)
	return nil
}

func (m *Manager) unreserve() {
	m.mu.Lock()
	m.pending--
	m.mu.Unlock()
	m.inflight.Done()
}

// Get looks a session up without side effects.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSession, id)
	}
	return s, nil
}

// Close unregisters a session and releases its page and context. It reports
// whether the id was registered; close failures are logged, not returned.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.close()
	m.logger.Info("Session closed.", zap.String("session_id", id))
	return true
}

// List returns the registered sessions ordered by creation time.
func (m *Manager) List() []SessionInfo {
	m.mu.RLock()
	infos := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.Info())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ReapIdle closes sessions whose last use is older than the idle timeout.
// Sessions with an operation in flight are skipped. It returns how many were closed.
func (m *Manager) ReapIdle(now time.Time) int {
	if m.cfg.IdleTimeout <= 0 {
		return 0
	}

	m.mu.RLock()
	var idle []*Session
	for _, s := range m.sessions {
		if now.Sub(s.LastUsedAt()) > m.cfg.IdleTimeout {
			idle = append(idle, s)
		}
	}
	m.mu.RUnlock()

	reaped := 0
	for _, s := range idle {
		if !s.tryAcquire() {
			continue
		}
		m.mu.Lock()
		registered := m.sessions[s.id] == s
		if registered {
			delete(m.sessions, s.id)
		}
		m.mu.Unlock()

		if registered {
			s.close()
			reaped++
			m.logger.Info("Idle session reaped.", zap.String("session_id", s.id))
		}
		s.release()
	}
	return reaped
}

// RunJanitor reaps idle sessions every interval until ctx is done. It returns
// immediately when idle reaping is disabled.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) {
	if m.cfg.IdleTimeout <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.ReapIdle(m.now()); n > 0 {
				m.logger.Debug("Janitor pass complete.", zap.Int("reaped", n))
			}
		}
	}
}

// Shutdown refuses new sessions, waits for creations already in flight, closes
// every session concurrently and then releases the engine. It is idempotent and
// never fails; if ctx expires first the engine is released anyway.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.waitInflight(ctx)

	m.mu.Lock()
	toClose := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		toClose = append(toClose, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	m.logger.Info("Shutting down session manager.", zap.Int("sessions", len(toClose)))

	var g errgroup.Group
	for _, s := range toClose {
		g.Go(func() error {
			s.close()
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for sessions to close; releasing engine anyway.", zap.Error(ctx.Err()))
	}

	m.mu.Lock()
	m.released = true
	m.mu.Unlock()
	m.engine.Release()
	m.logger.Info("Session manager shutdown complete.")
}

func (m *Manager) waitInflight(ctx context.Context) {
	drained := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for in-flight session creations.", zap.Error(ctx.Err()))
	}
}
