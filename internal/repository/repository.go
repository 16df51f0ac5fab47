// Package repository stores committed documents. Backends share the DocumentRepository contract
// so the editor never knows whether a document lives in sqlite, a directory or a bucket.
package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/debemdeboas/markedit/internal/model"
	"github.com/rs/zerolog"
)

var ErrNotFound = errors.New("document not found")

var repoLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	repoLogger = l
}

type DocumentRepository interface {
	Create(ctx context.Context) (*model.Document, error)
	Load(ctx context.Context, id model.DocumentID) (*model.Document, error)

	// Save persists title, content and source path, stamping UpdatedAt on doc.
	Save(ctx context.Context, doc *model.Document) error
	Rename(ctx context.Context, id model.DocumentID, title string) error
	Delete(ctx context.Context, id model.DocumentID) error

	// List returns every document, most recently updated first.
	List(ctx context.Context) ([]model.DocumentSummary, error)
	FindBySourcePath(ctx context.Context, path string) (*model.Document, error)
}

// Clock is how repositories stamp records. Tests pin it.
type Clock func() time.Time

func utcNow() time.Time {
	return time.Now().UTC()
}

// objectName is the file or object name id is stored under. An id that is not a UUID cannot
// name a stored document.
func objectName(id model.DocumentID) (string, error) {
	clean, err := model.ParseDocumentID(string(id))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return string(clean) + documentExt, nil
}

func sortSummaries(list []model.DocumentSummary) {
	slices.SortStableFunc(list, func(a, b model.DocumentSummary) int {
		return -a.UpdatedAt.Compare(b.UpdatedAt)
	})
}
