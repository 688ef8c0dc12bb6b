package resource

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/you-humble/crudkit/internal/envelope"
)

const idField = "id"

type handlers[T any] struct {
	desc Descriptor[T]
	repo Repository[T]
	log  *slog.Logger
}

func (h *handlers[T]) list(r *http.Request) (envelope.Result, error) {
	items, err := h.repo.List(r.Context())
	if err != nil {
		return envelope.Result{}, persistence(err)
	}
	if items == nil {
		items = []T{}
	}
	return envelope.OK(items), nil
}

// get answers a missing key with a successful null.
func (h *handlers[T]) get(r *http.Request) (envelope.Result, error) {
	id, err := pathID(r)
	if err != nil {
		return envelope.Result{}, err
	}

	entity, found, err := h.repo.Get(r.Context(), id)
	if err != nil {
		return envelope.Result{}, persistence(err)
	}
	if !found {
		return envelope.OK(nil), nil
	}
	return envelope.OK(entity), nil
}

func (h *handlers[T]) create(r *http.Request) (envelope.Result, error) {
	fields, err := requestFields(r)
	if err != nil {
		return envelope.Result{}, err
	}

	entity, err := h.desc.build(fields)
	if err != nil {
		return envelope.Result{}, asValidation(err)
	}
	if err := h.repo.Create(r.Context(), entity); err != nil {
		return envelope.Result{}, persistence(err)
	}

	id := h.desc.ID(entity)
	h.log.Debug("created", slog.Int64("id", id))
	return success(id), nil
}

func (h *handlers[T]) update(r *http.Request) (envelope.Result, error) {
	id, err := pathID(r)
	if err != nil {
		return envelope.Result{}, err
	}
	fields, err := requestFields(r)
	if err != nil {
		return envelope.Result{}, err
	}

	entity, found, err := h.repo.Get(r.Context(), id)
	if err != nil {
		return envelope.Result{}, persistence(err)
	}
	if !found {
		return envelope.Result{}, envelope.NotFound("not found")
	}

	for key, value := range fields {
		if key == idField {
			continue
		}
		set, ok := h.desc.Mutable[key]
		if !ok {
			continue
		}
		if err := set(entity, value); err != nil {
			return envelope.Result{}, envelope.Validationf("invalid value for %s: %v", key, err)
		}
	}

	if err := h.repo.Save(r.Context(), entity); err != nil {
		return envelope.Result{}, persistence(err)
	}
	h.log.Debug("updated", slog.Int64("id", id))
	return success(id), nil
}

func (h *handlers[T]) delete(r *http.Request) (envelope.Result, error) {
	id, err := pathID(r)
	if err != nil {
		return envelope.Result{}, err
	}

	entity, found, err := h.repo.Get(r.Context(), id)
	if err != nil {
		return envelope.Result{}, persistence(err)
	}
	if !found {
		return envelope.Result{}, envelope.NotFound("not found")
	}
	if err := h.repo.Delete(r.Context(), entity); err != nil {
		return envelope.Result{}, persistence(err)
	}

	h.log.Debug("deleted", slog.Int64("id", id))
	return success(id), nil
}

// pathID parses {id}. A non-integer id matches no route, so it gets the
// same 404 a mux miss would.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(idField), 10, 64)
	if err != nil {
		return 0, envelope.NewError("Not Found", http.StatusNotFound)
	}
	return id, nil
}

func success(id int64) envelope.Result {
	return envelope.OK(map[string]any{"message": "success", "id": id})
}

func persistence(err error) error {
	return envelope.Wrap(err, envelope.KindPersistence)
}

// asValidation keeps envelope errors from a custom constructor and
// turns anything else into a 400.
func asValidation(err error) error {
	var e *envelope.Error
	if errors.As(err, &e) {
		return err
	}
	return envelope.Wrap(err, envelope.KindValidation)
}
