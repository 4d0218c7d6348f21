// internal/browser/errors.go
package browser

import "errors"

var (
	// ErrInvalidSession is returned when a session id is not registered.
	ErrInvalidSession = errors.New("invalid session")
	// ErrSessionLimit is returned by NewSession when browser.max_sessions sessions are already open.
	ErrSessionLimit = errors.New("session limit reached")
	// ErrTimeout marks a bounded wait that expired. Driver adapters translate their
	// own timeout errors into this value.
	ErrTimeout = errors.New("timed out")
	// ErrEngineUnavailable wraps failures to start the browser engine.
	ErrEngineUnavailable = errors.New("browser engine unavailable")
	// ErrManagerClosed is returned by NewSession once Shutdown has started.
	ErrManagerClosed = errors.New("session manager is shut down")
)
