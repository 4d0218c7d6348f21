package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/nextron-mcp/internal/browser"
	"github.com/xkilldash9x/nextron-mcp/internal/config"
)

// Authenticator brings a session page into a logged-in state.
//
// Detection works by opening the protected proposal form: landing exactly on
// it means the session is already authenticated. Anything else is treated as
// the login page. After submitting the form, the only success signal is a URL
// under the base URL that no longer contains the login marker.
type Authenticator struct {
	cfg    config.PortalConfig
	urls   Endpoints
	logger *zap.Logger
}

// NewAuthenticator creates an Authenticator for the configured portal.
func NewAuthenticator(cfg config.PortalConfig, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		cfg:    cfg,
		urls:   NewEndpoints(cfg.BaseURL),
		logger: logger.Named("auth"),
	}
}

// EnsureAuthenticated logs page in if needed and returns the email it is
// authenticated as. current is the principal already recorded for the session;
// when the page is already authenticated it is kept, since no login happened.
// The caller must hold the session.
func (a *Authenticator) EnsureAuthenticated(ctx context.Context, page browser.Page, override Credentials, current string) (string, error) {
	creds := override.Resolve(a.cfg)
	if !creds.Complete() {
		return "", ErrMissingCredentials
	}

	protected := a.urls.ProposalForm()
	a.logger.Debug("Checking authentication via protected page.", zap.String("url", protected))
	if err := page.Goto(protected); err != nil {
		return "", fmt.Errorf("opening %s: %w", protected, err)
	}

	if page.URL() == protected {
		principal := current
		if principal == "" {
			principal = creds.Email
		}
		a.logger.Debug("Session already authenticated.", zap.String("email", principal))
		return principal, nil
	}

	a.logger.Info("Redirected to login; authenticating.",
		zap.String("url", page.URL()),
		zap.Object("credentials", creds))

	if err := page.WaitForSelector(selLoginEmail, a.cfg.ElementTimeout); err != nil {
		return "", fmt.Errorf("waiting for login form: %w", err)
	}
	if err := page.Fill(selLoginEmail, creds.Email); err != nil {
		return "", fmt.Errorf("filling email: %w", err)
	}
	if err := page.Fill(selLoginPassword, creds.Password); err != nil {
		return "", fmt.Errorf("filling password: %w", err)
	}
	if err := page.Click(selSubmit); err != nil {
		return "", fmt.Errorf("submitting login form: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := page.WaitForURL(a.loggedIn, a.cfg.LoginTimeout); err != nil {
		if errors.Is(err, browser.ErrTimeout) {
			a.logger.Error("Login failed: timed out waiting for redirect.", zap.String("url", page.URL()))
			return "", fmt.Errorf("%w: %w", ErrAuthenticationTimeout, err)
		}
		return "", fmt.Errorf("waiting for post-login redirect: %w", err)
	}

	a.logger.Info("Login succeeded.", zap.String("email", creds.Email), zap.String("url", page.URL()))
	return creds.Email, nil
}

// loggedIn is the post-submit success predicate.
func (a *Authenticator) loggedIn(url string) bool {
	return strings.HasPrefix(url, a.urls.Base) && !strings.Contains(url, a.cfg.LoginMarker)
}
