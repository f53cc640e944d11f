package server

import (
	"net/http"
	"strings"
)

// BasicRouter is a simple HTTP router implementing the [Router] interface.
//
// Uses [http.ServeMux] internally for routing, so paths may carry wildcards such as {provider}.
type BasicRouter struct {
	mux         *http.ServeMux
	middlewares []Middleware
	routes      map[string]*methodHandler
}

// methodHandler dispatches one path to a handler per HTTP method.
type methodHandler struct {
	handlers   map[string]http.Handler
	methods    []string
	notAllowed http.Handler
}

func (m *methodHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if h, ok := m.handlers[strings.ToUpper(req.Method)]; ok {
		h.ServeHTTP(w, req)
		return
	}
	m.notAllowed.ServeHTTP(w, req)
}

// NewBasicRouter creates a new [BasicRouter] instance.
func NewBasicRouter() *BasicRouter {
	return &BasicRouter{
		mux:         http.NewServeMux(),
		middlewares: []Middleware{},
		routes:      map[string]*methodHandler{},
	}
}

// Use adds [Middleware] to the [Router] instance's middleware stack, applied in the order it's added.
//
// Middleware only wraps handlers registered after the call.
func (r *BasicRouter) Use(middleware ...Middleware) {
	r.middlewares = append(r.middlewares, middleware...)
}

// Handle registers a handler for the specified HTTP method and path.
//
// The handler is wrapped with all registered middleware. A path may be registered once per method; other methods
// get a JSON 405 listing the allowed ones.
func (r *BasicRouter) Handle(method, path string, handler http.Handler) {
	method = strings.ToUpper(method)

	route, ok := r.routes[path]
	if !ok {
		route = &methodHandler{handlers: map[string]http.Handler{}}
		route.notAllowed = r.Apply(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Allow", strings.Join(route.methods, ", "))
			writeJSON(w, http.StatusMethodNotAllowed, ErrorBody{
				Error:            "method_not_allowed",
				ErrorDescription: req.Method + " is not allowed on " + req.URL.Path,
			})
		}))
		r.routes[path] = route
		r.mux.Handle(path, route)
	}

	if _, dup := route.handlers[method]; !dup {
		route.methods = append(route.methods, method)
	}
	route.handlers[method] = r.Apply(handler)
}

// Handler registers a custom Handler implementation.
//
// All routes returned by [Handler.Routes] are registered with this handler.
func (r *BasicRouter) Handler(handler Handler) {
	wrapped := r.Apply(handler)

	for _, route := range handler.Routes() {
		r.mux.Handle(route, wrapped)
	}
}

// ServeHTTP implements [http.Handler] for the entire router.
func (r *BasicRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Apply wraps a handler with all registered middleware.
//
// Middleware is applied in reverse order (last added wraps first).
func (r *BasicRouter) Apply(handler http.Handler) http.Handler {
	wrapped := handler

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		wrapped = r.middlewares[i](wrapped)
	}

	return wrapped
}
