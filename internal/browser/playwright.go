// internal/browser/playwright.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/nextron-mcp/internal/config"
)

const playwrightInstallTimeout = 5 * time.Minute

// defaultLaunchArgs are prepended to the configured arguments; they keep
// Chromium stable inside containers.
var defaultLaunchArgs = []string{
	"--disable-gpu",
	"--disable-dev-shm-usage",
}

// PlaywrightLauncher returns a Launcher that starts Chromium through playwright-go.
func PlaywrightLauncher(cfg config.BrowserConfig, logger *zap.Logger) Launcher {
	logger = logger.Named("playwright")
	return func(ctx context.Context) (Engine, error) {
		// Driver output must not reach stdout, which carries the stdio transport.
		runOpts := &playwright.RunOptions{
			Browsers: []string{"chromium"},
			Verbose:  false,
			Stdout:   io.Discard,
			Stderr:   io.Discard,
		}

		if cfg.Install {
			if err := installBrowsers(ctx, runOpts, logger); err != nil {
				return nil, err
			}
		}

		pw, err := playwright.Run(runOpts)
		if err != nil {
			return nil, fmt.Errorf("failed to start playwright driver: %w", err)
		}

		launchOpts := playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(cfg.Headless),
			Args:     append(append([]string{}, defaultLaunchArgs...), cfg.Args...),
		}
		if cfg.LaunchTimeout > 0 {
			launchOpts.Timeout = playwright.Float(millis(cfg.LaunchTimeout))
		}

		b, err := pw.Chromium.Launch(launchOpts)
		if err != nil {
			AttemptAll(logger, Step("stop_driver", pw.Stop))
			return nil, fmt.Errorf("failed to launch chromium: %w", err)
		}
		return &pwEngine{pw: pw, browser: b}, nil
	}
}

func installBrowsers(ctx context.Context, opts *playwright.RunOptions, logger *zap.Logger) error {
	logger.Info("Verifying Playwright browser installation...")
	installCtx, cancel := context.WithTimeout(ctx, playwrightInstallTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- playwright.Install(opts)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to install playwright browsers: %w", err)
		}
		return nil
	case <-installCtx.Done():
		return fmt.Errorf("timeout waiting for Playwright installation: %w", installCtx.Err())
	}
}

func millis(d time.Duration) float64 {
	return float64(d / time.Millisecond)
}

// timeoutOpt converts d into playwright's optional millisecond timeout.
func timeoutOpt(d time.Duration) *float64 {
	if d <= 0 {
		return nil
	}
	return playwright.Float(millis(d))
}

// translate maps playwright timeouts onto ErrTimeout, keeping the original error in the chain.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

type pwEngine struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

func (e *pwEngine) NewContext(opts ContextOptions) (BrowsingContext, error) {
	ctxOpts := playwright.BrowserNewContextOptions{}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		ctxOpts.Viewport = &playwright.Size{Width: opts.ViewportWidth, Height: opts.ViewportHeight}
	}
	bctx, err := e.browser.NewContext(ctxOpts)
	if err != nil {
		return nil, err
	}
	return &pwContext{ctx: bctx}, nil
}

func (e *pwEngine) Version() string { return e.browser.Version() }
func (e *pwEngine) Close() error    { return e.browser.Close() }
func (e *pwEngine) Stop() error     { return e.pw.Stop() }

type pwContext struct {
	ctx playwright.BrowserContext
}

func (c *pwContext) NewPage() (Page, error) {
	p, err := c.ctx.NewPage()
	if err != nil {
		return nil, err
	}
	return &pwPage{page: p}, nil
}

func (c *pwContext) Close() error { return c.ctx.Close() }

type pwPage struct {
	page playwright.Page
}

func (p *pwPage) Goto(url string) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	return translate(err)
}

func (p *pwPage) URL() string { return p.page.URL() }

func (p *pwPage) SetDefaultTimeout(d time.Duration) {
	p.page.SetDefaultTimeout(millis(d))
}

func (p *pwPage) WaitForSelector(selector string, timeout time.Duration) error {
	_, err := p.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: timeoutOpt(timeout),
	})
	return translate(err)
}

func (p *pwPage) WaitForURL(match func(url string) bool, timeout time.Duration) error {
	return translate(p.page.WaitForURL(match, playwright.PageWaitForURLOptions{
		Timeout:   timeoutOpt(timeout),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}))
}

func (p *pwPage) Fill(selector, value string) error {
	return translate(p.page.Locator(selector).Fill(value))
}

func (p *pwPage) Click(selector string) error {
	return translate(p.page.Locator(selector).Click())
}

func (p *pwPage) Locator(selector string) Locator {
	return &pwLocator{loc: p.page.Locator(selector)}
}

func (p *pwPage) GetByRole(role, name string) Locator {
	opts := playwright.PageGetByRoleOptions{}
	if name != "" {
		// A plain string would match case-insensitively.
		opts.Name = regexp.MustCompile(regexp.QuoteMeta(name))
	}
	return &pwLocator{loc: p.page.GetByRole(playwright.AriaRole(role), opts)}
}

func (p *pwPage) Close() error { return p.page.Close() }

type pwLocator struct {
	loc playwright.Locator
}

func (l *pwLocator) Count() (int, error) {
	n, err := l.loc.Count()
	return n, translate(err)
}

func (l *pwLocator) Nth(i int) Locator { return &pwLocator{loc: l.loc.Nth(i)} }
func (l *pwLocator) First() Locator    { return &pwLocator{loc: l.loc.First()} }

func (l *pwLocator) Filter(hasText string) Locator {
	return &pwLocator{loc: l.loc.Filter(playwright.LocatorFilterOptions{HasText: hasText})}
}

func (l *pwLocator) Click(timeout time.Duration) error {
	return translate(l.loc.Click(playwright.LocatorClickOptions{Timeout: timeoutOpt(timeout)}))
}

func (l *pwLocator) Fill(value string, timeout time.Duration) error {
	return translate(l.loc.Fill(value, playwright.LocatorFillOptions{Timeout: timeoutOpt(timeout)}))
}

func (l *pwLocator) SelectOption(value string, timeout time.Duration) error {
	_, err := l.loc.SelectOption(
		playwright.SelectOptionValues{Values: &[]string{value}},
		playwright.LocatorSelectOptionOptions{Timeout: timeoutOpt(timeout)},
	)
	return translate(err)
}

func (l *pwLocator) InnerText() (string, error) {
	text, err := l.loc.InnerText()
	return text, translate(err)
}

func (l *pwLocator) GetAttribute(name string) (string, error) {
	v, err := l.loc.GetAttribute(name)
	return v, translate(err)
}
