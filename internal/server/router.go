package server

import (
	"net/http"
	"slices"
)

// CallbackRouter serves the handlers of the local `auth login` listener.
//
// Only GET and HEAD reach a handler: the authorization server redirects the browser, so any other method is not a
// callback. Unknown paths get the [http.ServeMux] 404.
type CallbackRouter struct {
	mux         *http.ServeMux
	middlewares []Middleware
	routes      []string
}

// NewCallbackRouter creates an empty [CallbackRouter].
func NewCallbackRouter() *CallbackRouter {
	return &CallbackRouter{mux: http.NewServeMux()}
}

// Use appends middleware. It applies to handlers mounted afterwards; the first added runs outermost.
func (r *CallbackRouter) Use(middleware ...Middleware) {
	r.middlewares = append(r.middlewares, middleware...)
}

// Mount registers h on every path it reports from [Handler.Routes].
func (r *CallbackRouter) Mount(h Handler) {
	wrapped := r.wrap(redirectOnly(h))
	for _, route := range h.Routes() {
		r.mux.Handle(route, wrapped)
		r.routes = append(r.routes, route)
	}
}

// Routes lists the mounted paths in registration order.
func (r *CallbackRouter) Routes() []string {
	return slices.Clone(r.routes)
}

// ServeHTTP implements [http.Handler].
func (r *CallbackRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *CallbackRouter) wrap(h http.Handler) http.Handler {
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		h = r.middlewares[i](h)
	}
	return h
}

func redirectOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet && req.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next.ServeHTTP(w, req)
	})
}
