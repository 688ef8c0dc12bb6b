// Package export renders stored entities into files offered as
// temporary downloads.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/you-humble/crudkit/internal/domain"
	"github.com/you-humble/crudkit/internal/envelope"
	"github.com/you-humble/crudkit/internal/ephemeral"
)

type NoteLister interface {
	List(ctx context.Context) ([]domain.Note, error)
}

type Offerer interface {
	Offer(ctx context.Context, src, attachmentName string, ttl time.Duration) (envelope.Result, error)
}

type Notes struct {
	notes     NoteLister
	downloads Offerer
	ttl       time.Duration
}

func NewNotes(notes NoteLister, downloads Offerer, ttl time.Duration) *Notes {
	return &Notes{notes: notes, downloads: downloads, ttl: ttl}
}

// CheckFormat accepts ?format=csv or no format at all.
func CheckFormat(r *http.Request) error {
	switch f := r.URL.Query().Get("format"); f {
	case "", "csv":
		return nil
	default:
		return envelope.Validationf("unsupported export format %q", f)
	}
}

// Handle writes every note to a CSV file in the request's scratch
// directory and offers it for download.
func (e *Notes) Handle(r *http.Request) (envelope.Result, error) {
	ctx := r.Context()

	notes, err := e.notes.List(ctx)
	if err != nil {
		return envelope.Result{}, envelope.Wrap(err, envelope.KindPersistence)
	}

	dir, err := ephemeral.Dir(ctx)
	if err != nil {
		return envelope.Result{}, err
	}
	path := filepath.Join(dir, "notes.csv")
	if err := writeCSV(path, notes); err != nil {
		return envelope.Result{}, envelope.Wrapf(err, envelope.KindIO, "write export: %v", err)
	}

	return e.downloads.Offer(ctx, path, "notes.csv", e.ttl)
}

var header = []string{"id", "title", "body", "pinned", "created_at", "updated_at"}

func writeCSV(path string, notes []domain.Note) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, n := range notes {
		record := []string{
			strconv.FormatInt(n.ID, 10),
			n.Title,
			n.Body,
			strconv.FormatBool(n.Pinned),
			n.CreatedAt.UTC().Format(time.RFC3339),
			n.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("note %d: %w", n.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
