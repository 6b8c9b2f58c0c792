package thor

import (
	"sync"
	"time"
)

// StartupHandler runs once during application startup, in registration
// order, with access to the shared state bag. Returning an error aborts
// startup.
type StartupHandler func(state map[string]interface{}) error

// ShutdownHandler runs once during application shutdown, in reverse
// registration order.
type ShutdownHandler func(state map[string]interface{})

// Lifecycle tracks application-wide startup/shutdown hooks, a shared
// state bag handed to those hooks and returned by State, and the in-flight
// request count used to drain requests gracefully on shutdown, per spec
// §4.13. The state bag is not placed on a Request's State automatically.
type Lifecycle struct {
	// ShutdownTimeout bounds how long Shutdown waits for in-flight
	// requests to drain before proceeding regardless. Default 30s.
	ShutdownTimeout time.Duration

	// Logger, if set, receives a warning when ShutdownTimeout elapses
	// with requests still in-flight.
	Logger *Logger

	mu               sync.Mutex
	cond             *sync.Cond
	state            map[string]interface{}
	startupHandlers  []StartupHandler
	shutdownHandlers []ShutdownHandler
	inFlight         int64
	shuttingDown     bool
}

// NewLifecycle returns a Lifecycle with an empty state bag and the default
// 30-second shutdown timeout.
func NewLifecycle() *Lifecycle {
	lc := &Lifecycle{
		ShutdownTimeout: 30 * time.Second,
		state:           map[string]interface{}{},
	}
	lc.cond = sync.NewCond(&lc.mu)
	return lc
}

// OnStartup registers f to run during Startup, in registration order.
func (lc *Lifecycle) OnStartup(f StartupHandler) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.startupHandlers = append(lc.startupHandlers, f)
}

// OnShutdown registers f to run during Shutdown, in reverse registration
// order.
func (lc *Lifecycle) OnShutdown(f ShutdownHandler) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.shutdownHandlers = append(lc.shutdownHandlers, f)
}

// State returns the shared state bag. Writes are confined to
// startup/shutdown handlers by convention; request-processing code should
// treat it as read-only unless it takes its own lock, per spec §5.
func (lc *Lifecycle) State() map[string]interface{} {
	return lc.state
}

// Startup runs the registered startup handlers in order. If any returns an
// error, Startup stops immediately and returns it (the equivalent of
// emitting lifespan.startup.failed).
func (lc *Lifecycle) Startup() error {
	lc.mu.Lock()
	handlers := append([]StartupHandler(nil), lc.startupHandlers...)
	lc.mu.Unlock()

	for _, h := range handlers {
		if err := h(lc.state); err != nil {
			return err
		}
	}
	return nil
}

// BeginRequest marks one request as in-flight and returns a function the
// caller MUST defer to mark it complete. The in-flight counter is the
// value §8's testable property 5 refers to.
func (lc *Lifecycle) BeginRequest() func() {
	lc.mu.Lock()
	lc.inFlight++
	lc.mu.Unlock()

	var done bool
	return func() {
		lc.mu.Lock()
		if !done {
			done = true
			lc.inFlight--
			if lc.inFlight == 0 {
				lc.cond.Broadcast()
			}
		}
		lc.mu.Unlock()
	}
}

// InFlight returns the number of requests currently dispatched but not yet
// complete.
func (lc *Lifecycle) InFlight() int64 {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.inFlight
}

// ShuttingDown reports whether Shutdown has been called.
func (lc *Lifecycle) ShuttingDown() bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.shuttingDown
}

// Shutdown marks the application as shutting down, waits for the
// quiescent signal (in-flight count reaching zero) up to ShutdownTimeout,
// then runs the registered shutdown handlers in reverse order regardless
// of whether the wait timed out. If the wait does time out, it logs a
// warning and proceeds, per spec §4.13 point 3.
func (lc *Lifecycle) Shutdown() {
	lc.mu.Lock()
	lc.shuttingDown = true
	lc.mu.Unlock()

	if !lc.waitQuiescent(lc.ShutdownTimeout) {
		if lc.Logger != nil {
			lc.Logger.Warnf("shutdown timeout elapsed with %d requests still in-flight", lc.InFlight())
		}
	}

	lc.mu.Lock()
	handlers := append([]ShutdownHandler(nil), lc.shutdownHandlers...)
	lc.mu.Unlock()

	for i := len(handlers) - 1; i >= 0; i-- {
		handlers[i](lc.state)
	}
}

// waitQuiescent blocks until the in-flight count reaches zero or timeout
// elapses, returning false in the latter case. It uses a condition
// variable rather than polling, per spec §5's "no busy loops" rule.
func (lc *Lifecycle) waitQuiescent(timeout time.Duration) bool {
	quiescent := make(chan struct{})
	go func() {
		lc.mu.Lock()
		for lc.inFlight > 0 {
			lc.cond.Wait()
		}
		lc.mu.Unlock()
		close(quiescent)
	}()

	select {
	case <-quiescent:
		return true
	case <-time.After(timeout):
		return false
	}
}
