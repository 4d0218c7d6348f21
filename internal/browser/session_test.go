// Filename: browser/session_test.go
package browser_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/nextron-mcp/internal/browser"
	"github.com/xkilldash9x/nextron-mcp/internal/browser/browsertest"
)

func TestSession_DoSerializesOperations(t *testing.T) {
	m, _ := newTestManager(t, testBrowserConfig())
	id, err := m.NewSession(context.Background())
	require.NoError(t, err)
	s, err := m.Get(id)
	require.NoError(t, err)

	var (
		mu       sync.Mutex
		inFlight int
		maxSeen  int
	)
	op := func(context.Context, browser.Page) error {
		mu.Lock()
		inFlight++
		if inFlight > maxSeen {
			maxSeen = inFlight
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Do(context.Background(), op))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestSession_DifferentSessionsOverlap(t *testing.T) {
	m, _ := newTestManager(t, testBrowserConfig())
	ctx := context.Background()

	ids := make([]string, 2)
	for i := range ids {
		id, err := m.NewSession(ctx)
		require.NoError(t, err)
		ids[i] = id
	}

	// Each operation waits until both are inside Do. Serialization across
	// sessions would make the barrier time out.
	var arrived sync.WaitGroup
	arrived.Add(len(ids))
	barrier := make(chan struct{})
	go func() {
		arrived.Wait()
		close(barrier)
	}()

	var wg sync.WaitGroup
	for _, id := range ids {
		s, err := m.Get(id)
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Do(ctx, func(context.Context, browser.Page) error {
				arrived.Done()
				select {
				case <-barrier:
					return nil
				case <-time.After(2 * time.Second):
					t.Error("sessions did not run concurrently")
					return nil
				}
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestSession_DoHonoursContextWhileWaiting(t *testing.T) {
	m, _ := newTestManager(t, testBrowserConfig())
	id, err := m.NewSession(context.Background())
	require.NoError(t, err)
	s, err := m.Get(id)
	require.NoError(t, err)

	holding := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.Do(context.Background(), func(context.Context, browser.Page) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ran := false
	err = s.Do(ctx, func(context.Context, browser.Page) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ran)
	close(release)
}

func TestSession_DoAfterClose(t *testing.T) {
	m, _ := newTestManager(t, testBrowserConfig())
	id, err := m.NewSession(context.Background())
	require.NoError(t, err)
	s, err := m.Get(id)
	require.NoError(t, err)

	require.True(t, m.Close(id))
	err = s.Do(context.Background(), func(context.Context, browser.Page) error {
		t.Fatal("operation must not run on a closed session")
		return nil
	})
	assert.ErrorIs(t, err, browser.ErrInvalidSession)
}

func TestSession_DoTouchesLastUsed(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
	m, _ := newTestManager(t, testBrowserConfig(), browser.WithClock(clock.Now))
	id, err := m.NewSession(context.Background())
	require.NoError(t, err)
	s, err := m.Get(id)
	require.NoError(t, err)

	created := s.LastUsedAt()
	clock.Advance(time.Minute)
	require.NoError(t, s.Do(context.Background(), func(context.Context, browser.Page) error { return nil }))
	assert.Equal(t, created.Add(time.Minute), s.LastUsedAt())
}

func TestSession_InfoDoesNotReadPageDuringOperation(t *testing.T) {
	m, _ := newTestManager(t, testBrowserConfig())
	id, err := m.NewSession(context.Background())
	require.NoError(t, err)
	s, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "about:blank", s.Info().CurrentURL)

	moved := make(chan struct{})
	finish := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Do(context.Background(), func(_ context.Context, page browser.Page) error {
			page.(*browsertest.Page).SetURL("https://portal.test/hub")
			close(moved)
			<-finish
			return nil
		})
	}()

	<-moved
	assert.Equal(t, "about:blank", s.Info().CurrentURL, "the page is busy, so the last settled URL is reported")
	close(finish)
	require.NoError(t, <-done)
	assert.Equal(t, "https://portal.test/hub", s.Info().CurrentURL)
}
