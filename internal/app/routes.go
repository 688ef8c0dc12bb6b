package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/you-humble/crudkit/internal/domain"
	"github.com/you-humble/crudkit/internal/envelope"
	"github.com/you-humble/crudkit/internal/ephemeral"
	"github.com/you-humble/crudkit/internal/export"
	"github.com/you-humble/crudkit/internal/jobs"
	"github.com/you-humble/crudkit/internal/resource"
	"github.com/you-humble/crudkit/internal/transport"
)

// routes is everything the HTTP surface is mounted from.
type routes struct {
	notes     resource.Repository[domain.Note]
	tags      resource.Repository[domain.Tag]
	downloads *ephemeral.Downloads
	exportTTL time.Duration
	checker   *jobs.Checker
	// local is nil when downloads are served from object storage.
	local *ephemeral.LocalPublisher
}

func (rt routes) mount(router *transport.Router) error {
	router.MountAPI()

	if err := resource.Register(router, domain.NoteDescriptor(), rt.notes); err != nil {
		return fmt.Errorf("register note: %w", err)
	}
	if err := resource.Register(router, domain.TagDescriptor(), rt.tags, resource.ReadOnly()); err != nil {
		return fmt.Errorf("register tag: %w", err)
	}

	exporter := export.NewNotes(rt.notes, rt.downloads, rt.exportTTL)
	router.Handle("note.export", router.APIPrefix()+"/note/export",
		transport.Validate(export.CheckFormat, exporter.Handle))

	router.Handle("job.check", router.APIPrefix()+"/job/{id}", rt.checker.Handle)

	if rt.local != nil {
		prefix := rt.local.URLPrefix()
		router.HandleHTTP("downloads", "GET "+prefix+"/",
			http.StripPrefix(prefix, http.FileServer(http.Dir(rt.local.Dir()))))
	}

	router.Handle("health", "/healthz", func(*http.Request) (envelope.Result, error) {
		return envelope.OK(map[string]string{"status": "ok"}), nil
	})

	return nil
}
