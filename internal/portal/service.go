package portal

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/nextron-mcp/internal/browser"
	"github.com/xkilldash9x/nextron-mcp/internal/config"
)

// MsgLoggedIn is reported by a successful Login.
const MsgLoggedIn = "Login efetuado"

// LoginResult is returned by Service.Login.
type LoginResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"mensagem"`
	Email   string `json:"email,omitempty"`
}

// SearchResult is returned by Service.SearchClient.
type SearchResult struct {
	OK      bool              `json:"ok"`
	Total   int               `json:"total"`
	Results []ExtractedRecord `json:"resultados"`
}

// Health summarizes the server state.
type Health struct {
	Status        string `json:"status"`
	Sessions      int    `json:"sessions"`
	EngineRunning bool   `json:"engine_running"`
}

// Service is the entry point for tool handlers. Every session-scoped operation
// holds the session for its full duration and authenticates first.
type Service struct {
	sessions  *browser.Manager
	auth      *Authenticator
	proposals *ProposalForm
	listing   *ClientListing
	// limiter paces operations against the portal across every session.
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewService wires the portal flows to a session registry.
func NewService(sessions *browser.Manager, cfg config.PortalConfig, logger *zap.Logger) *Service {
	logger = logger.Named("portal")
	return &Service{
		sessions:  sessions,
		auth:      NewAuthenticator(cfg, logger),
		proposals: NewProposalForm(cfg, logger),
		listing:   NewClientListing(cfg, logger),
		limiter:   newLimiter(cfg),
		logger:    logger,
	}
}

func newLimiter(cfg config.PortalConfig) *rate.Limiter {
	if cfg.RateLimit <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.RateBurst, 1))
}

// NewSession opens a new isolated browser session and returns its id.
func (s *Service) NewSession(ctx context.Context) (string, error) {
	return s.sessions.NewSession(ctx)
}

// CloseSession closes a session, reporting whether it existed.
func (s *Service) CloseSession(id string) bool {
	return s.sessions.Close(id)
}

// ListSessions describes the open sessions.
func (s *Service) ListSessions() []browser.SessionInfo {
	return s.sessions.List()
}

// Health reports liveness and a few counters.
func (s *Service) Health() Health {
	return Health{
		Status:        "ok",
		Sessions:      s.sessions.Len(),
		EngineRunning: s.sessions.Engine().Running(),
	}
}

// Login authenticates a session, using override credentials where given and
// configured ones otherwise.
func (s *Service) Login(ctx context.Context, id string, override Credentials) (LoginResult, error) {
	var principal string
	err := s.withSession(ctx, id, func(ctx context.Context, sess *browser.Session, page browser.Page) error {
		var err error
		principal, err = s.authenticate(ctx, sess, page, override)
		return err
	})
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{OK: true, Message: MsgLoggedIn, Email: principal}, nil
}

// GenerateProposal validates in, then authenticates the session and submits a proposal.
// Invalid input is rejected before the session is looked up.
func (s *Service) GenerateProposal(ctx context.Context, id string, in ProposalInput) (Outcome, error) {
	if err := in.Validate(); err != nil {
		return Outcome{}, err
	}

	var outcome Outcome
	err := s.withSession(ctx, id, func(ctx context.Context, sess *browser.Session, page browser.Page) error {
		if _, err := s.authenticate(ctx, sess, page, Credentials{}); err != nil {
			return err
		}
		s.logger.Info("Generating proposal.",
			zap.String("session_id", id),
			zap.String("nome", in.FullName),
			zap.String("email", in.Email),
			zap.String("telefone", in.Phone),
			zap.String("valor", in.Amount),
			zap.String("distribuidora", in.Distributor))

		var err error
		outcome, err = s.proposals.Submit(ctx, page, in)
		return err
	})
	return outcome, err
}

// SearchClient authenticates the session and searches the client grid by email.
func (s *Service) SearchClient(ctx context.Context, id, email string) (SearchResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return SearchResult{}, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}

	var records []ExtractedRecord
	err := s.withSession(ctx, id, func(ctx context.Context, sess *browser.Session, page browser.Page) error {
		if _, err := s.authenticate(ctx, sess, page, Credentials{}); err != nil {
			return err
		}
		s.logger.Info("Searching clients.", zap.String("session_id", id), zap.String("email", email))

		var err error
		records, err = s.listing.Search(ctx, page, email)
		return err
	})
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{OK: true, Total: len(records), Results: records}, nil
}

// Shutdown closes all sessions and releases the browser engine.
func (s *Service) Shutdown(ctx context.Context) {
	s.sessions.Shutdown(ctx)
}

func (s *Service) withSession(ctx context.Context, id string, fn func(context.Context, *browser.Session, browser.Page) error) error {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return err
	}
	return sess.Do(ctx, func(ctx context.Context, page browser.Page) error {
		if err := s.limiter.Wait(ctx); err != nil {
			s.logger.Warn("Gave up waiting for the portal rate limiter.", zap.String("session_id", id), zap.Error(err))
			return fmt.Errorf("waiting for rate limiter: %w", err)
		}
		return fn(ctx, sess, page)
	})
}

func (s *Service) authenticate(ctx context.Context, sess *browser.Session, page browser.Page, override Credentials) (string, error) {
	principal, err := s.auth.EnsureAuthenticated(ctx, page, override, sess.Principal())
	if err != nil {
		return "", err
	}
	sess.SetPrincipal(principal)
	return principal, nil
}
