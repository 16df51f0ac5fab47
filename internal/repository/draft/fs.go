package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/debemdeboas/markedit/internal/model"
	"github.com/debemdeboas/markedit/internal/util"
)

// FSRepository writes one JSON file per draft into dir.
type FSRepository struct { // implements Repository
	dir string
	now Clock
}

func NewFSRepository(dir string) (*FSRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating drafts directory %s: %w", dir, err)
	}
	return &FSRepository{dir: dir, now: utcNow}, nil
}

func (r *FSRepository) WithClock(now Clock) *FSRepository {
	r.now = now
	return r
}

func (r *FSRepository) path(id model.DocumentID) (string, error) {
	clean, err := model.ParseDocumentID(string(id))
	if err != nil {
		return "", err
	}
	return filepath.Join(r.dir, string(clean)+".json"), nil
}

func (r *FSRepository) SaveDraft(ctx context.Context, id model.DocumentID, content string) error {
	data, err := json.Marshal(Draft{DocumentID: id, Content: content, UpdatedAt: r.now()})
	if err != nil {
		return err
	}
	path, err := r.path(id)
	if err != nil {
		return err
	}
	if err := util.WriteFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("error writing draft: %w", err)
	}
	draftLogger.Debug().Str("document_id", string(id)).Int("bytes", len(content)).Msg("Draft saved")
	return nil
}

func (r *FSRepository) LoadDraft(ctx context.Context, id model.DocumentID, documentUpdatedAt time.Time) (Lookup, error) {
	path, err := r.path(id)
	if err != nil {
		return Lookup{}, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Lookup{}, nil
	}
	if err != nil {
		return Lookup{}, fmt.Errorf("error reading draft: %w", err)
	}

	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return Lookup{}, fmt.Errorf("error decoding draft: %w", err)
	}
	return lookup(&d, documentUpdatedAt), nil
}

func (r *FSRepository) DeleteDraft(ctx context.Context, id model.DocumentID) error {
	path, err := r.path(id)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error deleting draft: %w", err)
	}
	return nil
}
