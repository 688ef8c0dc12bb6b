package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/you-humble/crudkit/internal/envelope"
)

// FileStore keeps one file per job, named by the job id. Take claims
// the file with a rename before reading it, so of several concurrent
// pollers only one sees the result.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("jobs dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create jobs dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) Take(ctx context.Context, id string) (any, bool, error) {
	if err := ValidateID(id); err != nil {
		return nil, false, err
	}
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	default:
	}

	path := filepath.Join(s.dir, id)
	claim := filepath.Join(s.dir, "."+id+".claim-"+uuid.NewString())

	if err := os.Rename(path, claim); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, envelope.Wrapf(err, envelope.KindIO, "claim job %s: %v", id, err)
	}

	raw, err := os.ReadFile(claim)
	if err != nil {
		s.unclaim(claim, path)
		return nil, false, envelope.Wrapf(err, envelope.KindIO, "read job %s: %v", id, err)
	}

	payload, err := decodePayload(raw)
	if err != nil {
		s.unclaim(claim, path)
		return nil, false, corrupt(id, err)
	}

	if err := os.Remove(claim); err != nil {
		slog.Warn("job claim not removed",
			slog.String("job_id", id),
			slog.String("error", err.Error()),
		)
	}
	return payload, true, nil
}

// Put writes the result atomically: temp file, then rename.
func (s *FileStore) Put(ctx context.Context, id string, payload []byte) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if !json.Valid(payload) {
		return envelope.Validationf("job %s: payload is not valid JSON", id)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	path := filepath.Join(s.dir, id)
	tempPath := filepath.Join(s.dir, "."+id+".tmp-"+uuid.NewString())

	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(tempPath)
	}()

	if _, err := f.Write(payload); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

// unclaim puts a record back so an operator can inspect it.
func (s *FileStore) unclaim(claim, path string) {
	if err := os.Rename(claim, path); err != nil {
		slog.Warn("job claim not restored",
			slog.String("claim", claim),
			slog.String("error", err.Error()),
		)
	}
}
