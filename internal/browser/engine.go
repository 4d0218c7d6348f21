// internal/browser/engine.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// EngineHandle owns the single shared browser engine. The engine is launched
// lazily on the first Acquire and at most once until Release.
type EngineHandle struct {
	launch Launcher
	logger *zap.Logger

	running atomic.Pointer[engineBox]
	mu      sync.Mutex
}

// engineBox lets the interface value live behind an atomic pointer.
type engineBox struct{ engine Engine }

// NewEngineHandle creates a handle that uses launch to start the engine on demand.
func NewEngineHandle(launch Launcher, logger *zap.Logger) *EngineHandle {
	return &EngineHandle{
		launch: launch,
		logger: logger.Named("engine"),
	}
}

// Acquire returns the running engine, launching it if needed. Concurrent
// callers observe exactly one launch.
func (h *EngineHandle) Acquire(ctx context.Context) (Engine, error) {
	if box := h.running.Load(); box != nil {
		return box.engine, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if box := h.running.Load(); box != nil {
		return box.engine, nil
	}

	h.logger.Info("Launching browser engine.")
	engine, err := h.launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}
	h.running.Store(&engineBox{engine: engine})
	h.logger.Info("Browser engine ready.", zap.String("browser_version", engine.Version()))
	return engine, nil
}

// Running reports whether an engine is currently launched.
func (h *EngineHandle) Running() bool {
	return h.running.Load() != nil
}

// Release closes the browser and stops the driver. Both steps are attempted even
// if the first fails; failures are logged, never returned. Releasing an idle
// handle is a no-op.
func (h *EngineHandle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()

	box := h.running.Swap(nil)
	if box == nil {
		return
	}

	h.logger.Info("Releasing browser engine.")
	AttemptAll(h.logger,
		Step("close_browser", box.engine.Close),
		Step("stop_driver", box.engine.Stop),
	)
}
