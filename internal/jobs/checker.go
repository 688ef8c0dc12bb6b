package jobs

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/you-humble/crudkit/internal/envelope"
)

// Checker answers job polls. An unknown job and a running one look the
// same to the caller: both are pending.
type Checker struct {
	store Store
}

func NewChecker(store Store) *Checker {
	return &Checker{store: store}
}

func (c *Checker) Check(ctx context.Context, id string) (envelope.Result, error) {
	payload, found, err := c.store.Take(ctx, id)
	if err != nil {
		return envelope.Result{}, err
	}
	if !found {
		return envelope.OK(map[string]any{"status": "pending"}), nil
	}

	slog.Debug("job result delivered", slog.String("job_id", id))
	return envelope.OK(payload), nil
}

// Handle serves GET .../{id}.
func (c *Checker) Handle(r *http.Request) (envelope.Result, error) {
	return c.Check(r.Context(), r.PathValue("id"))
}
