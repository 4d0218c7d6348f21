// internal/browser/driver.go
package browser

import (
	"context"
	"time"
)

// Launcher starts a browser engine. It is called at most once per EngineHandle
// lifetime (until Release).
type Launcher func(ctx context.Context) (Engine, error)

// Engine is a running browser process plus the driver that controls it.
type Engine interface {
	NewContext(opts ContextOptions) (BrowsingContext, error)
	Version() string
	// Close terminates the browser process.
	Close() error
	// Stop shuts the driver down. It is called after Close, even if Close failed.
	Stop() error
}

// ContextOptions configures a new isolated browsing context.
type ContextOptions struct {
	ViewportWidth  int
	ViewportHeight int
}

// BrowsingContext is an isolated container of cookies and storage.
type BrowsingContext interface {
	NewPage() (Page, error)
	Close() error
}

// Page is the subset of page automation the portal flows rely on.
// A zero timeout means the page default.
// A Page is not safe for concurrent use; callers hold the owning Session.
type Page interface {
	// Goto navigates and returns once DOMContentLoaded fired.
	Goto(url string) error
	URL() string
	SetDefaultTimeout(d time.Duration)
	WaitForSelector(selector string, timeout time.Duration) error
	WaitForURL(match func(url string) bool, timeout time.Duration) error
	Fill(selector, value string) error
	Click(selector string) error
	Locator(selector string) Locator
	// GetByRole matches elements with an ARIA role whose accessible name contains
	// name, case-sensitively. An empty name matches every element with the role.
	GetByRole(role, name string) Locator
	Close() error
}

// Locator addresses zero or more elements lazily.
type Locator interface {
	Count() (int, error)
	Nth(i int) Locator
	First() Locator
	Filter(hasText string) Locator
	Click(timeout time.Duration) error
	Fill(value string, timeout time.Duration) error
	SelectOption(value string, timeout time.Duration) error
	InnerText() (string, error)
	// GetAttribute returns "" when the attribute is missing.
	GetAttribute(name string) (string, error)
}
