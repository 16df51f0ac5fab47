// Package draft stores recovery snapshots of in-progress edits, separately from the committed
// documents they shadow.
package draft

import (
	"context"
	"time"

	"github.com/debemdeboas/markedit/internal/model"
	"github.com/rs/zerolog"
)

var draftLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	draftLogger = l
}

type Draft struct {
	DocumentID model.DocumentID `json:"documentId"`
	Content    string           `json:"content"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// Lookup is the answer to "is there something to recover for this document".
type Lookup struct {
	Exists    bool
	Newer     bool
	Content   string
	UpdatedAt time.Time
}

type Repository interface {
	// SaveDraft overwrites the document's snapshot, stamping it with the current time.
	SaveDraft(ctx context.Context, id model.DocumentID, content string) error
	LoadDraft(ctx context.Context, id model.DocumentID, documentUpdatedAt time.Time) (Lookup, error)
	// DeleteDraft succeeds when there is nothing to delete.
	DeleteDraft(ctx context.Context, id model.DocumentID) error
}

// Clock stamps drafts. Tests pin it.
type Clock func() time.Time

func utcNow() time.Time {
	return time.Now().UTC()
}

// lookup compares a stored draft with the committed document's timestamp. A zero document
// time means the document has never been committed, so any draft is newer.
func lookup(d *Draft, documentUpdatedAt time.Time) Lookup {
	if d == nil {
		return Lookup{}
	}
	return Lookup{
		Exists:    true,
		Newer:     documentUpdatedAt.IsZero() || d.UpdatedAt.After(documentUpdatedAt),
		Content:   d.Content,
		UpdatedAt: d.UpdatedAt,
	}
}
