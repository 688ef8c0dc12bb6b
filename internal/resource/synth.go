package resource

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/you-humble/crudkit/internal/transport"
)

// Router is the part of transport.Router that Register needs.
type Router interface {
	Handle(name, path string, h transport.HandlerFunc, methods ...string)
	APIPrefix() string
}

type options struct {
	name   string
	prefix string
	create bool
	update bool
	delete bool
}

type Option func(*options)

// ReadOnly registers list and get only.
func ReadOnly() Option {
	return func(o *options) { o.create, o.update, o.delete = false, false, false }
}

func WithoutCreate() Option { return func(o *options) { o.create = false } }

func WithoutUpdate() Option { return func(o *options) { o.update = false } }

func WithoutDelete() Option { return func(o *options) { o.delete = false } }

// WithName overrides the route map namespace and the default prefix.
func WithName(name string) Option { return func(o *options) { o.name = name } }

// WithPrefix overrides the URL prefix, e.g. /api/notes.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = "/" + strings.Trim(prefix, "/") }
}

var (
	ErrNoRepository = errors.New("resource: repository is required")
	ErrNoID         = errors.New("resource: descriptor ID accessor is required")
)

// Register synthesizes the CRUD endpoints for T:
//
//	<name>.list   GET          <prefix>/
//	<name>.get    GET          <prefix>/{id}
//	<name>.create POST         <prefix>/
//	<name>.update PUT, PATCH   <prefix>/{id}
//	<name>.delete DELETE       <prefix>/{id}
//
// The prefix defaults to <api prefix>/<name>.
func Register[T any](router Router, desc Descriptor[T], repo Repository[T], opts ...Option) error {
	if repo == nil {
		return ErrNoRepository
	}
	if desc.ID == nil {
		return ErrNoID
	}

	o := options{name: desc.name(), create: true, update: true, delete: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.prefix == "" {
		o.prefix = router.APIPrefix() + "/" + o.name
	}

	h := &handlers[T]{
		desc: desc,
		repo: repo,
		log:  slog.With(slog.String("resource", o.name)),
	}
	collection, item := o.prefix+"/", o.prefix+"/{"+idField+"}"

	router.Handle(o.name+".list", collection, h.list)
	router.Handle(o.name+".get", item, h.get)
	if o.create {
		router.Handle(o.name+".create", collection, h.create, http.MethodPost)
	}
	if o.update {
		router.Handle(o.name+".update", item, h.update, http.MethodPut, http.MethodPatch)
	}
	if o.delete {
		router.Handle(o.name+".delete", item, h.delete, http.MethodDelete)
	}

	slog.Debug("resource registered", slog.String("resource", o.name), slog.String("prefix", o.prefix))
	return nil
}
