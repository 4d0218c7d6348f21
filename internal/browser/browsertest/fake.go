// Package browsertest provides scriptable in-memory doubles for the browser
// driver interfaces, so registry and portal flows can be tested without Chromium.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xkilldash9x/nextron-mcp/internal/browser"
)

// RoleKey is the element key a page uses for GetByRole(role, name).
func RoleKey(role, name string) string {
	return fmt.Sprintf("role=%s[name=%q]", role, name)
}

func timeoutErr(what string) error {
	return fmt.Errorf("%w: waiting for %s", browser.ErrTimeout, what)
}

// -- Launcher --

// Launcher hands out a single FakeEngine and counts launches.
type Launcher struct {
	Engine *Engine
	// Err, when set, is returned instead of the engine.
	Err error
	// Delay is slept before the engine is returned, widening launch races in tests.
	Delay time.Duration

	launches atomic.Int32
}

// NewLauncher creates a launcher around a fresh Engine.
func NewLauncher() *Launcher {
	return &Launcher{Engine: NewEngine()}
}

// Launch satisfies browser.Launcher.
func (l *Launcher) Launch(ctx context.Context) (browser.Engine, error) {
	l.launches.Add(1)
	if l.Delay > 0 {
		select {
		case <-time.After(l.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if l.Err != nil {
		return nil, l.Err
	}
	return l.Engine, nil
}

// Launches reports how many times Launch was called.
func (l *Launcher) Launches() int { return int(l.launches.Load()) }

// -- Engine --

// Engine is a fake browser. Every page it creates is passed to PageSetup.
type Engine struct {
	mu            sync.Mutex
	PageSetup     func(*Page)
	NewContextErr error
	NewPageErr    error
	CloseErr      error
	StopErr       error

	contexts []*Context
	closes   int
	stops    int
}

// NewEngine creates an idle fake engine.
func NewEngine() *Engine { return &Engine{} }

func (e *Engine) NewContext(browser.ContextOptions) (browser.BrowsingContext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.NewContextErr != nil {
		return nil, e.NewContextErr
	}
	c := &Context{engine: e, newPageErr: e.NewPageErr}
	e.contexts = append(e.contexts, c)
	return c, nil
}

func (e *Engine) Version() string { return "fake-chromium/1.0" }

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closes++
	return e.CloseErr
}

func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stops++
	return e.StopErr
}

// Closes reports how many times the browser was closed.
func (e *Engine) Closes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closes
}

// Stops reports how many times the driver was stopped.
func (e *Engine) Stops() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stops
}

// Contexts returns every context created so far.
func (e *Engine) Contexts() []*Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Context(nil), e.contexts...)
}

// Pages returns every page created so far, in creation order.
func (e *Engine) Pages() []*Page {
	var pages []*Page
	for _, c := range e.Contexts() {
		pages = append(pages, c.Pages()...)
	}
	return pages
}

// -- Context --

// Context is a fake isolated browsing context.
type Context struct {
	engine     *Engine
	newPageErr error

	mu     sync.Mutex
	pages  []*Page
	closed bool
}

func (c *Context) NewPage() (browser.Page, error) {
	if c.newPageErr != nil {
		return nil, c.newPageErr
	}
	p := NewPage()
	c.mu.Lock()
	c.pages = append(c.pages, p)
	c.mu.Unlock()

	c.engine.mu.Lock()
	setup := c.engine.PageSetup
	c.engine.mu.Unlock()
	if setup != nil {
		setup(p)
	}
	return p, nil
}

func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Pages returns the pages opened in this context.
func (c *Context) Pages() []*Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Page(nil), c.pages...)
}

// -- Page --

// Element is one fake DOM node addressed by a selector or role key.
type Element struct {
	Text    string
	Attrs   map[string]string
	Options []string
}

// FillCall records one fill action.
type FillCall struct {
	Target string
	Value  string
}

// Page is a scriptable fake page. Selectors are matched literally.
type Page struct {
	mu sync.Mutex

	url            string
	defaultTimeout time.Duration
	closed         bool
	opDelay        time.Duration

	present  map[string]bool
	elements map[string][]*Element
	failFill map[string]error
	onClick  map[string]func(*Page)
	redirect func(string) string
	onGoto   func(string)

	navigations []string
	fills       []FillCall
	clicks      []string
	ops         []string
}

// NewPage creates a blank page at about:blank.
func NewPage() *Page {
	return &Page{
		url:      "about:blank",
		present:  make(map[string]bool),
		elements: make(map[string][]*Element),
		failFill: make(map[string]error),
		onClick:  make(map[string]func(*Page)),
	}
}

// --- scripting ---

// SetURL moves the page to url without recording a navigation.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
}

// Present marks selectors as existing for WaitForSelector, Fill and Click.
func (p *Page) Present(selectors ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range selectors {
		p.present[s] = true
	}
}

// SetElements replaces the elements matched by key (a selector or RoleKey).
func (p *Page) SetElements(key string, els ...*Element) {
	p.mu.Lock()
	p.elements[key] = els
	p.mu.Unlock()
}

// FailFill makes fills on key return err.
func (p *Page) FailFill(key string, err error) {
	p.mu.Lock()
	p.failFill[key] = err
	p.mu.Unlock()
}

// OnClick runs fn after a successful click on key.
func (p *Page) OnClick(key string, fn func(*Page)) {
	p.mu.Lock()
	p.onClick[key] = fn
	p.mu.Unlock()
}

// Redirect decides where a navigation lands.
func (p *Page) Redirect(fn func(requested string) string) {
	p.mu.Lock()
	p.redirect = fn
	p.mu.Unlock()
}

// OnGoto runs fn inside every navigation, before it completes.
func (p *Page) OnGoto(fn func(url string)) {
	p.mu.Lock()
	p.onGoto = fn
	p.mu.Unlock()
}

// SetOpDelay makes every operation take at least d.
func (p *Page) SetOpDelay(d time.Duration) {
	p.mu.Lock()
	p.opDelay = d
	p.mu.Unlock()
}

// --- inspection ---

// Navigations returns the requested URLs in order.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

// Fills returns every fill in order.
func (p *Page) Fills() []FillCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]FillCall(nil), p.fills...)
}

// Clicks returns every click target in order.
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// Ops returns the begin/end log of every operation.
func (p *Page) Ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ops...)
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// DefaultTimeout returns the last value passed to SetDefaultTimeout.
func (p *Page) DefaultTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.defaultTimeout
}

// --- browser.Page ---

// begin logs the start of an operation and returns the matching end call.
func (p *Page) begin(op string) func() {
	p.mu.Lock()
	p.ops = append(p.ops, "begin "+op)
	delay := p.opDelay
	p.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return func() {
		p.mu.Lock()
		p.ops = append(p.ops, "end "+op)
		p.mu.Unlock()
	}
}

func (p *Page) exists(key string) bool {
	return p.present[key] || len(p.elements[key]) > 0
}

func (p *Page) Goto(url string) error {
	defer p.begin("goto " + url)()

	p.mu.Lock()
	p.navigations = append(p.navigations, url)
	hook, redirect := p.onGoto, p.redirect
	p.mu.Unlock()

	if hook != nil {
		hook(url)
	}
	landed := url
	if redirect != nil {
		landed = redirect(url)
	}
	p.SetURL(landed)
	return nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) SetDefaultTimeout(d time.Duration) {
	p.mu.Lock()
	p.defaultTimeout = d
	p.mu.Unlock()
}

func (p *Page) WaitForSelector(selector string, _ time.Duration) error {
	defer p.begin("wait " + selector)()
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.exists(selector) {
		return timeoutErr(selector)
	}
	return nil
}

func (p *Page) WaitForURL(match func(string) bool, _ time.Duration) error {
	defer p.begin("wait_url")()
	if !match(p.URL()) {
		return timeoutErr("url")
	}
	return nil
}

func (p *Page) Fill(selector, value string) error {
	return p.fill(selector, value)
}

func (p *Page) fill(key, value string) error {
	defer p.begin("fill " + key)()
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failFill[key]; err != nil {
		return err
	}
	if !p.exists(key) {
		return timeoutErr(key)
	}
	p.fills = append(p.fills, FillCall{Target: key, Value: value})
	return nil
}

func (p *Page) Click(selector string) error {
	return p.click(selector)
}

func (p *Page) click(key string) error {
	defer p.begin("click " + key)()
	p.mu.Lock()
	if !p.exists(key) {
		p.mu.Unlock()
		return timeoutErr(key)
	}
	p.clicks = append(p.clicks, key)
	hook := p.onClick[key]
	p.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *Page) Locator(selector string) browser.Locator {
	return &Locator{page: p, key: selector, index: -1}
}

func (p *Page) GetByRole(role, name string) browser.Locator {
	return &Locator{page: p, key: RoleKey(role, name), index: -1}
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// -- Locator --

// Locator resolves lazily against the page's scripted elements.
type Locator struct {
	page    *Page
	key     string
	hasText string
	index   int
}

func (l *Locator) resolve() []*Element {
	l.page.mu.Lock()
	all := l.page.elements[l.key]
	l.page.mu.Unlock()

	var matched []*Element
	for _, el := range all {
		if l.hasText == "" || strings.Contains(el.Text, l.hasText) {
			matched = append(matched, el)
		}
	}
	if l.index < 0 {
		return matched
	}
	if l.index >= len(matched) {
		return nil
	}
	return matched[l.index : l.index+1]
}

func (l *Locator) one() (*Element, error) {
	els := l.resolve()
	if len(els) == 0 {
		return nil, timeoutErr(l.key)
	}
	return els[0], nil
}

func (l *Locator) Count() (int, error) {
	defer l.page.begin("count " + l.key)()
	return len(l.resolve()), nil
}

func (l *Locator) Nth(i int) browser.Locator {
	return &Locator{page: l.page, key: l.key, hasText: l.hasText, index: i}
}

func (l *Locator) First() browser.Locator { return l.Nth(0) }

func (l *Locator) Filter(hasText string) browser.Locator {
	return &Locator{page: l.page, key: l.key, hasText: hasText, index: l.index}
}

func (l *Locator) Click(time.Duration) error {
	if _, err := l.one(); err != nil {
		return err
	}
	return l.page.click(l.key)
}

func (l *Locator) Fill(value string, _ time.Duration) error {
	l.page.mu.Lock()
	failErr := l.page.failFill[l.key]
	l.page.mu.Unlock()
	if failErr != nil {
		return failErr
	}
	if _, err := l.one(); err != nil {
		return err
	}
	return l.page.fill(l.key, value)
}

func (l *Locator) SelectOption(value string, _ time.Duration) error {
	defer l.page.begin("select " + l.key)()
	el, err := l.one()
	if err != nil {
		return err
	}
	for _, opt := range el.Options {
		if opt == value {
			l.page.mu.Lock()
			l.page.fills = append(l.page.fills, FillCall{Target: l.key, Value: value})
			l.page.mu.Unlock()
			return nil
		}
	}
	return errors.New("did not find some options")
}

func (l *Locator) InnerText() (string, error) {
	defer l.page.begin("inner_text " + l.key)()
	el, err := l.one()
	if err != nil {
		return "", err
	}
	return el.Text, nil
}

func (l *Locator) GetAttribute(name string) (string, error) {
	el, err := l.one()
	if err != nil {
		return "", err
	}
	return el.Attrs[name], nil
}

var (
	_ browser.Engine          = (*Engine)(nil)
	_ browser.BrowsingContext = (*Context)(nil)
	_ browser.Page            = (*Page)(nil)
	_ browser.Locator         = (*Locator)(nil)
)
