package transport

import (
	"net/http"
	"strings"

	"github.com/you-humble/crudkit/internal/envelope"
)

const (
	routeMapName = "api_map"
	notFoundName = "api_404"
)

var allMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodOptions,
}

// MountAPI adds the self-description endpoint at <prefix>/ and a
// catch-all under the prefix that answers 404 in envelope form.
// Call it once; routes registered later still show up in the map.
func (r *Router) MountAPI() {
	r.Handle(routeMapName, r.apiPrefix+"/", func(*http.Request) (envelope.Result, error) {
		return envelope.OK(map[string]any{"endpoints": r.RouteMap()}), nil
	})

	r.mux.Handle(r.apiPrefix+"/{path...}", r.Adapt(func(*http.Request) (envelope.Result, error) {
		return envelope.Result{}, envelope.NewError("Not Found", http.StatusNotFound)
	}))
	r.record(Route{Name: notFoundName, Path: r.apiPrefix + "/{path...}", Methods: allMethods})
}

// RouteEntry is one leaf of the route map.
type RouteEntry struct {
	URL     string   `json:"url"`
	Methods []string `json:"methods"`
}

// RouteMap groups the registered API routes by namespace. A route
// named "note.list" lands at map["note"]["list"]; a name without a dot
// is a top-level entry. Redirect shadows, the 404 catch-all, routes
// outside the API prefix and hidden prefixes are left out.
func (r *Router) RouteMap() map[string]any {
	out := make(map[string]any)

	for _, rt := range r.Routes() {
		if !r.listed(rt) {
			continue
		}
		entry := RouteEntry{URL: rt.Path, Methods: rt.Methods}

		ns, op, ok := strings.Cut(rt.Name, ".")
		if !ok {
			out[rt.Name] = entry
			continue
		}
		group, _ := out[ns].(map[string]RouteEntry)
		if group == nil {
			group = make(map[string]RouteEntry)
			out[ns] = group
		}
		group[op] = entry
	}

	return out
}

func (r *Router) listed(rt Route) bool {
	if rt.Path != r.apiPrefix && !strings.HasPrefix(rt.Path, r.apiPrefix+"/") {
		return false
	}
	if strings.HasSuffix(rt.Name, "404") || strings.HasSuffix(rt.Name, redirectSuffix) {
		return false
	}
	for _, h := range r.hidden {
		if h != "" && strings.HasPrefix(rt.Path, h) {
			return false
		}
	}
	return true
}
