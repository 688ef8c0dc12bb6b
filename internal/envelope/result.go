// Package envelope is the uniform wrapper around every API response:
// a success Result carrying a caller-defined value, or an Error that
// renders as {"success": false, "message": ...}.
package envelope

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// Serializer maps an arbitrary value to something encoding/json can
// encode. It runs before encoding when configured.
type Serializer func(v any) any

// Result is an immutable handler outcome.
type Result struct {
	Value  any
	Status int
}

func OK(v any) Result {
	return Result{Value: v, Status: http.StatusOK}
}

func New(v any, status int) Result {
	if status == 0 {
		status = http.StatusOK
	}
	return Result{Value: v, Status: status}
}

// Encode returns the response body. When the value cannot be encoded
// the body is a diagnostic rendering of it rather than an error.
func (r Result) Encode(s Serializer) []byte {
	v := r.Value
	if s != nil {
		v = s(v)
	}

	b, err := json.Marshal(v)
	if err != nil {
		slog.Warn("envelope: encode value", slog.String("error", err.Error()))
		return []byte(fmt.Sprintf("%+v", v))
	}
	return b
}

func (r Result) Write(w http.ResponseWriter, s Serializer) {
	body := r.Encode(s)
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.Debug("envelope: write body", slog.String("error", err.Error()))
	}
}
