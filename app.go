package thor

import (
	"context"
	"errors"
	"net/http"
	"sync"
)

// App is the application entrypoint: it owns the router, the composed
// gas chain, the lifecycle manager, and the error handler that wraps
// everything else, per spec §2's control-flow diagram (host adapter →
// entrypoint → middleware chain → router → handler → response streamer).
type App struct {
	Config    *Config
	Router    *Router
	Lifecycle *Lifecycle
	Logger    *Logger

	mu        sync.RWMutex
	gases     []Gas
	built     Handler
	builtOnce bool

	server *http.Server
}

// New returns an App configured from cfg (DefaultConfig() if nil), with an
// empty router and a fresh Lifecycle.
func New(cfg *Config) *App {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := NewLogger(cfg.AppName)
	logger.Format = cfg.LogFormat
	logger.Enabled = true

	lc := NewLifecycle()
	lc.Logger = logger
	if cfg.ShutdownTimeout > 0 {
		lc.ShutdownTimeout = cfg.ShutdownTimeout
	}

	return &App{
		Config:    cfg,
		Router:    NewRouter(),
		Lifecycle: lc,
		Logger:    logger,
	}
}

// Use appends a gas to the chain. The first gas registered is the
// outermost wrapper (first to see the request, last to see the response),
// per spec §4.5. Registering invalidates the built chain.
func (a *App) Use(g Gas) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gases = append(a.gases, g)
	a.builtOnce = false
}

// Handle registers a route for methods at path, wrapped only by the app's
// gas chain (not by itself, which is applied once at dispatch time).
func (a *App) Handle(methods []string, path string, name string, h Handler) *Route {
	return a.Router.Handle(methods, path, name, h)
}

// GET, POST, PUT, PATCH, DELETE register a single-method route.
func (a *App) GET(path string, h Handler) *Route    { return a.Handle([]string{"GET"}, path, "", h) }
func (a *App) POST(path string, h Handler) *Route   { return a.Handle([]string{"POST"}, path, "", h) }
func (a *App) PUT(path string, h Handler) *Route    { return a.Handle([]string{"PUT"}, path, "", h) }
func (a *App) PATCH(path string, h Handler) *Route  { return a.Handle([]string{"PATCH"}, path, "", h) }
func (a *App) DELETE(path string, h Handler) *Route { return a.Handle([]string{"DELETE"}, path, "", h) }

// WS registers a WebSocket route under the reserved WEBSOCKET
// pseudo-method, per spec §4.3.
func (a *App) WS(path string, h Handler) *Route {
	return a.Handle([]string{WebSocketMethod}, path, "", h)
}

// Group returns a sub-router prefixed at prefix. Routes registered on the
// returned Group are wrapped with any gases added via Group.Use in
// addition to the App's own chain, and are registered directly on the
// App's router (incremental registration, per spec §4.3).
func (a *App) Group(prefix string) *Group {
	return &Group{prefix: prefix, app: a}
}

// handler lazily builds (or rebuilds, after Use) the full dispatch chain:
// the error handler outermost, wrapping every app-level gas, wrapping the
// terminal router-dispatch handler.
func (a *App) handler() Handler {
	a.mu.RLock()
	if a.builtOnce {
		h := a.built
		a.mu.RUnlock()
		return h
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.builtOnce {
		return a.built
	}

	terminal := a.dispatch
	h := chain(terminal, a.gases...)
	h = ErrorHandlerGas(a.Logger, ErrorHandlerConfig{Debug: a.Config.DebugMode})(h)

	a.built = h
	a.builtOnce = true
	return h
}

// dispatch resolves req against the router and invokes the matched
// handler, or returns the appropriate not-found/method-not-allowed error.
func (a *App) dispatch(req *Request, res *Response) error {
	result := a.Router.Lookup(req.Method(), req.Path())
	if result.Route == nil {
		if result.MethodNotAllowed {
			return ErrMethodNotAllowed("method not allowed for this path")
		}
		return ErrNotFound("no matching route")
	}
	for k, v := range result.Params {
		req.PathParams[k] = v
	}
	return result.Route.Handler(req, res)
}

// ServeHTTP implements http.Handler. A WebSocket upgrade request is routed
// through DispatchWebSocket against the WEBSOCKET pseudo-method instead of
// the ordinary gas chain, per spec §4.14.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	done := a.Lifecycle.BeginRequest()
	defer done()

	req := NewRequest(r, a.Config.MaxBodySize)
	if IsWebSocketUpgrade(req) {
		if err := DispatchWebSocket(a.Router, w, r, a.Config.MaxBodySize); err != nil && a.Logger != nil {
			a.Logger.Errorf("websocket dispatch error: %v", err)
		}
		return
	}

	res := NewResponse(w)
	h := a.handler()
	if err := h(req, res); err != nil && a.Logger != nil {
		// ErrorHandlerGas converts every error into a response; this
		// branch only fires if a gas registered outside that wrapping
		// (there is none by construction) lets an error through.
		a.Logger.Errorf("unhandled error escaped the error handler: %v", err)
	}
}

// Run performs Lifecycle.Startup, then serves HTTP on Config.Address until
// ctx is canceled, at which point it calls Lifecycle.Shutdown and drains
// in-flight requests per spec §4.13.
func (a *App) Run(ctx context.Context) error {
	if err := a.Lifecycle.Startup(); err != nil {
		return err
	}

	a.server = &http.Server{Addr: a.Config.Address, Handler: a}

	serveErr := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case err := <-serveErr:
		a.Lifecycle.Shutdown()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Lifecycle.ShutdownTimeout)
		defer cancel()
		a.Lifecycle.Shutdown()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-serveErr
	}
}

// Close immediately closes the underlying listener without waiting for
// in-flight requests; prefer Run's ctx-driven graceful Shutdown path.
func (a *App) Close() error {
	if a.server == nil {
		return nil
	}
	return a.server.Close()
}
