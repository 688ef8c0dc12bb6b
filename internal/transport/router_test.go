package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/you-humble/crudkit/internal/envelope"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type codedError struct{ code int }

func (e codedError) Error() string   { return "coded failure" }
func (e codedError) StatusCode() int { return e.code }

func echoBody(r *http.Request) (envelope.Result, error) {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return envelope.Result{}, err
	}
	return envelope.OK(map[string]any{
		"method": r.Method,
		"body":   string(b),
		"query":  r.URL.RawQuery,
	}), nil
}

func decode(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestRouter_TrailingSlashShadowKeepsBody(t *testing.T) {
	router := NewRouter(nil)
	router.Handle("echo.create", "/api/echo/", echoBody, http.MethodPost, http.MethodPut)
	srv := httptest.NewServer(router)
	defer srv.Close()

	t.Run("POST without slash is redirected with its body", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/api/echo?x=1", "application/json", strings.NewReader(`{"title":"hi"}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decode(t, resp.Body)
		assert.Equal(t, http.MethodPost, got["method"])
		assert.Equal(t, `{"title":"hi"}`, got["body"])
		assert.Equal(t, "x=1", got["query"])
	})

	t.Run("redirect is a 308", func(t *testing.T) {
		client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}}
		req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/echo", strings.NewReader("{}"))
		require.NoError(t, err)

		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusPermanentRedirect, resp.StatusCode)
		assert.Equal(t, "/api/echo/", resp.Header.Get("Location"))
	})

	t.Run("both paths are registered", func(t *testing.T) {
		routes := router.Routes()
		require.Len(t, routes, 2)
		assert.Equal(t, Route{Name: "echo.create", Path: "/api/echo/", Methods: []string{"POST", "PUT"}}, routes[0])
		assert.Equal(t, Route{Name: "echo.create_redirect", Path: "/api/echo", Methods: []string{"POST", "PUT"}}, routes[1])
	})

	t.Run("slash path does not swallow subpaths", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/api/echo/extra", "application/json", strings.NewReader("{}"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestRouter_ErrorAdapter(t *testing.T) {
	router := NewRouter(nil)
	router.Handle("fail.envelope", "/api/fail/envelope", func(*http.Request) (envelope.Result, error) {
		return envelope.Result{}, envelope.NewError("nope", 0)
	})
	router.Handle("fail.coded", "/api/fail/coded", func(*http.Request) (envelope.Result, error) {
		return envelope.Result{}, codedError{code: http.StatusConflict}
	})
	router.Handle("fail.plain", "/api/fail/plain", func(*http.Request) (envelope.Result, error) {
		return envelope.Result{}, errors.New("kaput")
	})
	router.Handle("fail.panic", "/api/fail/panic", func(*http.Request) (envelope.Result, error) {
		panic("unexpected")
	})

	tests := []struct {
		path    string
		status  int
		message string
	}{
		{"/api/fail/envelope", http.StatusBadRequest, "nope"},
		{"/api/fail/coded", http.StatusConflict, "coded failure"},
		{"/api/fail/plain", http.StatusInternalServerError, "kaput"},
		{"/api/fail/panic", http.StatusInternalServerError, "internal server error: unexpected"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			got := decode(t, rec.Body)
			assert.Equal(t, false, got["success"])
			assert.Equal(t, tt.message, got["message"])
		})
	}
}

func TestRouter_SerializerAppliesToResults(t *testing.T) {
	wrap := func(v any) any { return map[string]any{"data": v} }
	router := NewRouter(nil, WithSerializer(wrap))
	router.Handle("thing.get", "/api/thing", func(*http.Request) (envelope.Result, error) {
		return envelope.OK(42), nil
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/thing", nil))

	assert.JSONEq(t, `{"data":42}`, rec.Body.String())
}

func TestRouter_MountAPI(t *testing.T) {
	router := NewRouter(nil, WithHiddenPrefixes("/api/hidden"))
	noop := func(*http.Request) (envelope.Result, error) { return envelope.OK(nil), nil }

	router.MountAPI()
	router.Handle("note.list", "/api/note/", noop)
	router.Handle("note.get", "/api/note/{id}", noop)
	router.Handle("note.update", "/api/note/{id}", noop, http.MethodPut, http.MethodPatch)
	router.Handle("job.check", "/api/job/{id}", noop)
	router.Handle("secret.peek", "/api/hidden/peek", noop)
	router.Handle("health", "/healthz", noop)

	t.Run("route map", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"endpoints": {
			"api_map": {"url": "/api/", "methods": ["GET"]},
			"note": {
				"list":   {"url": "/api/note/", "methods": ["GET"]},
				"get":    {"url": "/api/note/{id}", "methods": ["GET"]},
				"update": {"url": "/api/note/{id}", "methods": ["PUT", "PATCH"]}
			},
			"job": {"check": {"url": "/api/job/{id}", "methods": ["GET"]}}
		}}`, rec.Body.String())
	})

	t.Run("unknown api path is a 404 envelope", func(t *testing.T) {
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(method, "/api/nothing/here/", nil))

			assert.Equal(t, http.StatusNotFound, rec.Code, method)
			assert.JSONEq(t, `{"success":false,"message":"Not Found"}`, rec.Body.String())
		}
	})

	t.Run("hidden routes are still served", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/hidden/peek", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestValidate(t *testing.T) {
	router := NewRouter(nil)
	check := func(r *http.Request) error {
		if r.URL.Query().Get("format") != "csv" {
			return envelope.Validation("format must be csv")
		}
		return nil
	}
	router.Handle("export.run", "/api/export", Validate(check, func(*http.Request) (envelope.Result, error) {
		return envelope.OK("ran"), nil
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/export?format=xml", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"format must be csv"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/export?format=csv", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `"ran"`, rec.Body.String())
}

func TestMiddleware(t *testing.T) {
	t.Run("recover renders an envelope", func(t *testing.T) {
		h := WithRecover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"success":false,"message":"internal server error"}`, rec.Body.String())
	})

	t.Run("request id is propagated", func(t *testing.T) {
		var seen string
		h := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			seen = RequestID(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "abc-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "abc-123", seen)
		assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Len(t, seen, 36)
	})
}
