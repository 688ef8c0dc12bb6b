package domain

import (
	"strings"
	"time"

	"github.com/you-humble/crudkit/internal/envelope"
	"github.com/you-humble/crudkit/internal/resource"
)

type Note struct {
	ID     int64  `json:"id" gorm:"primaryKey"`
	Title  string `json:"title" gorm:"not null"`
	Body   string `json:"body"`
	Pinned bool   `json:"pinned"`

	// meta
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tag is reference data; the API exposes it read-only.
type Tag struct {
	ID   int64  `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"uniqueIndex;not null"`
}

// Models lists what auto-migration creates.
func Models() []any {
	return []any{&Note{}, &Tag{}}
}

var DefaultTags = []string{"work", "personal", "archive"}

func NoteDescriptor() resource.Descriptor[Note] {
	return resource.Descriptor[Note]{
		New: newNote,
		ID:  func(n *Note) int64 { return n.ID },
		Mutable: map[string]resource.Setter[Note]{
			"title":  setTitle,
			"body":   resource.Set(func(n *Note, v string) { n.Body = v }),
			"pinned": resource.Set(func(n *Note, v bool) { n.Pinned = v }),
		},
	}
}

func TagDescriptor() resource.Descriptor[Tag] {
	return resource.Descriptor[Tag]{
		ID: func(t *Tag) int64 { return t.ID },
	}
}

// newNote ignores client-supplied ids and timestamps.
func newNote(f resource.Fields) (*Note, error) {
	n, err := resource.DecodeFields[Note](f)
	if err != nil {
		return nil, err
	}
	n.ID = 0
	n.CreatedAt, n.UpdatedAt = time.Time{}, time.Time{}

	n.Title = strings.TrimSpace(n.Title)
	if n.Title == "" {
		return nil, envelope.Validation("title is required")
	}
	return n, nil
}

func setTitle(n *Note, v any) error {
	s, ok := v.(string)
	if !ok {
		return envelope.Validation("title must be a string")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return envelope.Validation("title is required")
	}
	n.Title = s
	return nil
}
