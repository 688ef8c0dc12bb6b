// Package resource synthesizes list/get/create/update/delete endpoints
// for an entity type from a Descriptor and a Repository.
package resource

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/you-humble/crudkit/internal/envelope"
)

// Fields is the merged field map of a create or update request.
type Fields map[string]any

// Setter assigns one field of an entity from a request value.
type Setter[T any] func(entity *T, value any) error

// Descriptor describes an entity type to the synthesizer.
type Descriptor[T any] struct {
	// Name is the route prefix and route map namespace. Empty means the
	// lower-cased Go type name.
	Name string
	// New constructs an entity from a field map. Nil means DecodeFields.
	New func(Fields) (*T, error)
	// ID returns the primary key.
	ID func(*T) int64
	// Mutable lists the fields update may change. Keys not listed here
	// are ignored by update, and "id" is ignored even when listed.
	Mutable map[string]Setter[T]
}

func (d Descriptor[T]) name() string {
	if d.Name != "" {
		return d.Name
	}
	return strings.ToLower(reflect.TypeFor[T]().Name())
}

func (d Descriptor[T]) build(f Fields) (*T, error) {
	if d.New != nil {
		return d.New(f)
	}
	return DecodeFields[T](f)
}

// DecodeFields builds a T from f through its JSON field names. Unknown
// fields are rejected. String values that fail to decode into a
// non-string field are retried as JSON literals, so ?count=3 fills an
// int.
func DecodeFields[T any](f Fields) (*T, error) {
	fields := make(Fields, len(f))
	for k, v := range f {
		fields[k] = v
	}

	for range len(fields) + 1 {
		entity := new(T)
		err := decodeStrict(fields, entity)
		if err == nil {
			return entity, nil
		}

		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) || !relaxField(fields, typeErr.Field) {
			return nil, envelope.Wrap(err, envelope.KindValidation)
		}
	}
	return nil, envelope.Validation("cannot decode fields")
}

func decodeStrict(fields Fields, dst any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func relaxField(fields Fields, name string) bool {
	s, ok := fields[name].(string)
	if !ok {
		return false
	}
	lit, ok := parseLiteral(s)
	if !ok {
		return false
	}
	fields[name] = lit
	return true
}

func parseLiteral(s string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	if _, isString := v.(string); isString {
		return nil, false
	}
	return v, true
}

// Set builds a typed Setter. The request value is converted to V
// through JSON, with the same string-literal fallback as DecodeFields.
func Set[T, V any](apply func(entity *T, value V)) Setter[T] {
	return func(entity *T, value any) error {
		v, err := convert[V](value)
		if err != nil {
			return err
		}
		apply(entity, v)
		return nil
	}
}

func convert[V any](value any) (V, error) {
	var out V
	if v, ok := value.(V); ok {
		return v, nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err == nil {
		return out, nil
	}

	if s, ok := value.(string); ok {
		if lit, ok := parseLiteral(s); ok {
			raw, _ = json.Marshal(lit)
			if err := json.Unmarshal(raw, &out); err == nil {
				return out, nil
			}
		}
	}
	return out, fmt.Errorf("cannot use %v as %T", value, out)
}
