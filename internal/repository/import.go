package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/debemdeboas/markedit/internal/model"
	"github.com/debemdeboas/markedit/internal/util"
)

// ImportFile reads path and imports it into repo.
func ImportFile(ctx context.Context, repo DocumentRepository, path string) (*model.Document, bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, false, fmt.Errorf("error reading %s: %w", path, err)
	}
	return Import(ctx, repo, abs, data)
}

// Import links data to sourcePath. A document already imported from the same path is reused
// and returned untouched; otherwise a new one is created and titled from the front matter or
// the file name. The boolean reports whether a document was created.
func Import(ctx context.Context, repo DocumentRepository, sourcePath string, data []byte) (*model.Document, bool, error) {
	existing, err := repo.FindBySourcePath(ctx, sourcePath)
	if err == nil {
		repoLogger.Info().Str("document_id", string(existing.ID)).Str("source", sourcePath).Msg("Reusing imported document")
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	info, body := util.StripFrontMatter(data)
	title := ""
	if info != nil {
		title = strings.TrimSpace(info.Title)
	}
	if title == "" {
		base := filepath.Base(sourcePath)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	doc, err := repo.Create(ctx)
	if err != nil {
		return nil, false, err
	}
	doc.Title = title
	doc.Content = string(body)
	doc.SourcePath = sourcePath

	if err := repo.Save(ctx, doc); err != nil {
		// Leave no half-imported placeholder behind.
		if delErr := repo.Delete(ctx, doc.ID); delErr != nil {
			repoLogger.Warn().Err(delErr).Str("document_id", string(doc.ID)).Msg("Failed to remove partial import")
		}
		return nil, false, err
	}

	repoLogger.Info().Str("document_id", string(doc.ID)).Str("title", title).Str("source", sourcePath).Msg("Document imported")
	return doc, true, nil
}

// HasExtension reports whether path ends in one of exts, compared case-insensitively.
func HasExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if strings.ToLower(strings.TrimSpace(e)) == ext {
			return true
		}
	}
	return false
}
