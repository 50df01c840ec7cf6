package engine

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
)

// Handler is the signature of every JSON route. Handlers return a Response
// instead of writing to the ResponseWriter so that error handling stays uniform.
type Handler func(r *http.Request, ps httprouter.Params) Response

type Authenticator interface {
	WithAuthn(Handler) Handler
}

type noopAuthenticator struct{}

func (noopAuthenticator) WithAuthn(fn Handler) Handler { return fn }

type Router struct {
	router *httprouter.Router

	// Authenticator can be used to pass an authenticator implementation to other handlers.
	Authenticator
}

// NewRouter allocates a router. notFound is optional.
func NewRouter(notFound http.Handler) *Router {
	r := httprouter.New()
	r.RedirectTrailingSlash = false
	if notFound != nil {
		r.NotFound = notFound
	}
	r.PanicHandler = func(w http.ResponseWriter, req *http.Request, v any) {
		slog.Error("panic while handling http request", "url", req.URL.Path, "panic", v)
		Error(nil).write(w, req)
	}
	return &Router{router: r, Authenticator: noopAuthenticator{}}
}

// Serve wires up the stdlib http server to the engine.
func (r *Router) Serve(addr string) Proc {
	return func(ctx context.Context) error {
		svr := &http.Server{Handler: r, Addr: addr, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			<-ctx.Done()
			slog.Warn("gracefully shutting down http server...")
			svr.Shutdown(context.Background())
		}()
		if err := svr.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		slog.Info("the http server has shut down")
		return nil
	}
}

func (r *Router) ServeHTTP(w http.ResponseWriter, rr *http.Request) { r.router.ServeHTTP(w, rr) }

// Handle registers a Handler for the given method and httprouter path (e.g. /api/events/:id).
func (r *Router) Handle(method, path string, fn Handler) {
	r.router.Handle(method, path, func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		start := time.Now()
		ww := &responseWrapper{ResponseWriter: w, status: 200}

		resp := fn(req, ps)
		if resp == nil {
			resp = Empty()
		}
		resp.write(ww, req)

		slog.Info("http request", "url", req.URL.Path, "method", req.Method, "userAgent", req.UserAgent(), "latencyMS", time.Since(start).Milliseconds(), "status", ww.status)
	})
}

// HandleFunc registers a plain http.HandlerFunc, bypassing the Response helpers.
// Useful for probes and anything that streams its own body.
func (r *Router) HandleFunc(method, path string, fn http.HandlerFunc) {
	r.router.HandlerFunc(method, path, fn)
}

type responseWrapper struct {
	http.ResponseWriter
	status int
}

func (w *responseWrapper) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
