// internal/browser/helpers_test.go
package browser_test

import (
	"bytes"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/nextron-mcp/internal/browser"
	"github.com/xkilldash9x/nextron-mcp/internal/browser/browsertest"
	"github.com/xkilldash9x/nextron-mcp/internal/config"
)

// testingWriter routes zap output to t.Log so concurrent test logs stay attributed.
type testingWriter struct {
	t *testing.T
}

func (tw *testingWriter) Write(p []byte) (n int, err error) {
	defer func() {
		// t.Log panics once the test has finished.
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "[late log] %s: %s\n", tw.t.Name(), bytes.TrimRight(p, "\n"))
			n, err = len(p), nil
		}
	}()
	tw.t.Log(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}

func newTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(&testingWriter{t: t}),
		zap.DebugLevel,
	)
	return zap.New(core)
}

func testBrowserConfig() config.BrowserConfig {
	return config.BrowserConfig{
		Headless:       true,
		DefaultTimeout: 30 * time.Second,
		ViewportWidth:  1280,
		ViewportHeight: 720,
	}
}

func newTestManager(t *testing.T, cfg config.BrowserConfig, opts ...browser.Option) (*browser.Manager, *browsertest.Launcher) {
	t.Helper()
	launcher := browsertest.NewLauncher()
	return browser.NewManager(launcher.Launch, cfg, newTestLogger(t), opts...), launcher
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
