package draft

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/debemdeboas/markedit/internal/db"
	"github.com/debemdeboas/markedit/internal/model"
)

// DBRepository keeps drafts in the drafts table next to the documents.
type DBRepository struct { // implements Repository
	db  db.DB
	now Clock
}

func NewDBRepository(d db.DB) *DBRepository {
	return &DBRepository{db: d, now: utcNow}
}

func (r *DBRepository) WithClock(now Clock) *DBRepository {
	r.now = now
	return r
}

func (r *DBRepository) SaveDraft(ctx context.Context, id model.DocumentID, content string) error {
	_, err := r.db.Get().ExecContext(ctx,
		`INSERT INTO drafts (document_id, content, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(document_id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		id, []byte(content), r.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("error saving draft: %w", err)
	}
	return nil
}

func (r *DBRepository) LoadDraft(ctx context.Context, id model.DocumentID, documentUpdatedAt time.Time) (Lookup, error) {
	var content []byte
	var updated int64
	err := r.db.Get().QueryRowContext(ctx,
		`SELECT content, updated_at FROM drafts WHERE document_id = ?`, id,
	).Scan(&content, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Lookup{}, nil
	}
	if err != nil {
		return Lookup{}, fmt.Errorf("error loading draft: %w", err)
	}

	return lookup(&Draft{
		DocumentID: id,
		Content:    string(content),
		UpdatedAt:  time.Unix(0, updated).UTC(),
	}, documentUpdatedAt), nil
}

func (r *DBRepository) DeleteDraft(ctx context.Context, id model.DocumentID) error {
	if _, err := r.db.Get().ExecContext(ctx, `DELETE FROM drafts WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("error deleting draft: %w", err)
	}
	return nil
}
