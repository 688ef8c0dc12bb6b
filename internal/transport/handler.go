package transport

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/you-humble/crudkit/internal/envelope"
)

// HandlerFunc is an API handler. It either returns a Result or fails
// with an error; the router turns both into a JSON response.
type HandlerFunc func(r *http.Request) (envelope.Result, error)

// Adapt converts h into an http.Handler. Errors go through
// envelope.FromError; a panic becomes a 500 envelope.
func (r *Router) Adapt(h HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		res, err := r.call(h, req)
		if err != nil {
			r.writeError(w, req, err)
			return
		}
		res.Write(w, r.serializer)
	})
}

func (r *Router) call(h HandlerFunc, req *http.Request) (res envelope.Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic in handler",
				slog.String("path", req.URL.Path),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("internal server error: %v", rec)
		}
	}()
	return h(req)
}

func (r *Router) writeError(w http.ResponseWriter, req *http.Request, err error) {
	apiErr := envelope.FromError(err)

	logger := slog.With(
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", apiErr.StatusCode()),
		slog.String("error", err.Error()),
	)
	if id := RequestID(req.Context()); id != "" {
		logger = logger.With(slog.String("request_id", id))
	}
	if apiErr.StatusCode() >= http.StatusInternalServerError {
		logger.Error("request failed")
	} else {
		logger.Debug("request rejected")
	}

	apiErr.Result().Write(w, r.serializer)
}

// Validate runs check before h. A failing check short-circuits with its
// error, rendered like any handler error.
func Validate(check func(*http.Request) error, h HandlerFunc) HandlerFunc {
	return func(r *http.Request) (envelope.Result, error) {
		if err := check(r); err != nil {
			return envelope.Result{}, err
		}
		return h(r)
	}
}

// writeError renders a bare error envelope outside of a Router.
func writeError(w http.ResponseWriter, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	envelope.NewError(message, status).Result().Write(w, nil)
}
