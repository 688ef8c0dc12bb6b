// Package jobs reads results that external workers leave for
// asynchronous jobs. A result is handed to exactly one poller.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/you-humble/crudkit/internal/envelope"
)

// Store holds finished job results keyed by job id.
type Store interface {
	// Take consumes the result for id. found is false while the job is
	// pending or unknown.
	Take(ctx context.Context, id string) (payload any, found bool, err error)
	// Put records a finished result; payload must be a JSON document.
	Put(ctx context.Context, id string, payload []byte) error
}

// ValidateID rejects ids that could escape the job directory or
// collide with the store's own temp and claim files.
func ValidateID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return envelope.Validation("job id is empty")
	case strings.HasPrefix(id, "."):
		return envelope.Validationf("invalid job id: %q", id)
	case strings.ContainsAny(id, `/\`+"\x00"):
		return envelope.Validationf("invalid job id: %q", id)
	}
	return nil
}

var errTrailingData = errors.New("trailing data after JSON document")

func decodePayload(raw []byte) (any, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errTrailingData
	}
	return v, nil
}

func corrupt(id string, err error) error {
	return envelope.Wrapf(err, envelope.KindCorruptJob, "corrupt job record %s: %v", id, err)
}
