package transport

import (
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/you-humble/crudkit/internal/envelope"
)

const redirectSuffix = "_redirect"

// Route is one registry entry. Path uses ServeMux wildcard syntax,
// e.g. /api/note/{id}.
type Route struct {
	Name    string
	Path    string
	Methods []string
}

// Router binds envelope handlers into an http.ServeMux and keeps an
// explicit registry of what it bound, which the route map reads.
type Router struct {
	mux        *http.ServeMux
	serializer envelope.Serializer
	apiPrefix  string
	hidden     []string

	mu     sync.RWMutex
	routes []Route
}

type RouterOption func(*Router)

// WithSerializer sets the value transform applied before JSON encoding.
func WithSerializer(s envelope.Serializer) RouterOption {
	return func(r *Router) { r.serializer = s }
}

// WithAPIPrefix sets the path prefix the route map and catch-all cover.
// Default /api.
func WithAPIPrefix(prefix string) RouterOption {
	return func(r *Router) {
		r.apiPrefix = "/" + strings.Trim(prefix, "/")
	}
}

// WithHiddenPrefixes keeps routes under the given paths out of the
// route map. They are still served.
func WithHiddenPrefixes(prefixes ...string) RouterOption {
	return func(r *Router) { r.hidden = append(r.hidden, prefixes...) }
}

func NewRouter(mux *http.ServeMux, opts ...RouterOption) *Router {
	if mux == nil {
		mux = http.NewServeMux()
	}
	r := &Router{mux: mux, apiPrefix: "/api"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) APIPrefix() string { return r.apiPrefix }

func (r *Router) Serializer() envelope.Serializer { return r.serializer }

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Handle registers h for every method at path under name. Without
// methods it defaults to GET. A path ending in "/" is matched exactly,
// and the same path without the slash is registered as
// <name>_redirect, answering with 308 so POST, PUT, PATCH and DELETE
// keep their body through the redirect.
func (r *Router) Handle(name, path string, h HandlerFunc, methods ...string) {
	if len(methods) == 0 {
		methods = []string{http.MethodGet}
	}

	handler := r.Adapt(h)
	for _, m := range methods {
		r.mux.Handle(m+" "+exactPattern(path), handler)
	}
	r.record(Route{Name: name, Path: path, Methods: methods})

	if len(path) > 1 && strings.HasSuffix(path, "/") {
		bare := strings.TrimSuffix(path, "/")
		for _, m := range methods {
			r.mux.Handle(m+" "+bare, http.HandlerFunc(redirectWithSlash))
		}
		r.record(Route{Name: name + redirectSuffix, Path: bare, Methods: methods})
	}
}

// HandleHTTP registers a plain http.Handler, e.g. a file server. It
// is recorded in the registry like any other route.
func (r *Router) HandleHTTP(name, pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)

	method, path := "", pattern
	if i := strings.IndexByte(pattern, ' '); i > 0 {
		method, path = pattern[:i], strings.TrimSpace(pattern[i+1:])
	}
	var methods []string
	if method != "" {
		methods = []string{method}
	}
	r.record(Route{Name: name, Path: path, Methods: methods})
}

// Routes returns a copy of the registry in registration order.
func (r *Router) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Route, len(r.routes))
	for i, rt := range r.routes {
		rt.Methods = slices.Clone(rt.Methods)
		out[i] = rt
	}
	return out
}

func (r *Router) record(rt Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, rt)
}

func exactPattern(path string) string {
	if strings.HasSuffix(path, "/") {
		return path + "{$}"
	}
	return path
}

func redirectWithSlash(w http.ResponseWriter, req *http.Request) {
	u := req.URL.EscapedPath() + "/"
	if req.URL.RawQuery != "" {
		u += "?" + req.URL.RawQuery
	}
	http.Redirect(w, req, u, http.StatusPermanentRedirect)
}
