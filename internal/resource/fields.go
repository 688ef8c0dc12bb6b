package resource

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/you-humble/crudkit/internal/envelope"
)

const maxBodyBytes = 1 << 20

// requestFields merges query parameters with the JSON body. Body keys
// win. An empty body counts as {}; any other non-object body is a
// validation error.
func requestFields(r *http.Request) (Fields, error) {
	fields := make(Fields)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}

	if r.Body == nil {
		return fields, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, envelope.Wrap(err, envelope.KindValidation)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return fields, nil
	}

	var obj map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, envelope.Validation("request body must be a JSON object")
	}
	for k, v := range obj {
		fields[k] = v
	}
	return fields, nil
}
