package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/debemdeboas/markedit/internal/db"
	"github.com/debemdeboas/markedit/internal/model"
	"github.com/debemdeboas/markedit/internal/util"
	"github.com/debemdeboas/markedit/internal/util/compression"
)

type DBDocumentRepository struct { // implements DocumentRepository
	db         db.DB
	compressor compression.Compressor

	now Clock
}

func NewDBDocumentRepository(d db.DB, compressor compression.Compressor) *DBDocumentRepository {
	if compressor == nil {
		compressor = compression.ZstdCompressor{}
	}
	return &DBDocumentRepository{
		db:         d,
		compressor: compressor,
		now:        utcNow,
	}
}

// WithClock replaces the timestamp source.
func (r *DBDocumentRepository) WithClock(now Clock) *DBDocumentRepository {
	r.now = now
	return r
}

func (r *DBDocumentRepository) Create(ctx context.Context) (*model.Document, error) {
	doc := model.NewDocument(r.now())

	compressed, err := r.compressor.Compress([]byte(doc.Content))
	if err != nil {
		return nil, fmt.Errorf("error compressing content: %w", err)
	}

	res, err := r.db.Get().ExecContext(ctx,
		`INSERT INTO documents (id, title, content, content_hash, source_path, source_key, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, compressed, util.ContentHashString(doc.Content), "", "", doc.CreatedAt.UnixNano(), doc.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating document: %w", err)
	}

	repoLogger.Debug().Interface("result", res).Str("document_id", string(doc.ID)).Msg("Document created")
	return doc, nil
}

const selectDocument = `SELECT id, title, content, source_path, created_at, updated_at FROM documents`

func (r *DBDocumentRepository) scan(row interface{ Scan(...any) error }) (*model.Document, error) {
	var doc model.Document
	var compressed []byte
	var created, updated int64

	if err := row.Scan(&doc.ID, &doc.Title, &compressed, &doc.SourcePath, &created, &updated); err != nil {
		return nil, err
	}

	content, err := r.compressor.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("error decompressing content: %w", err)
	}
	doc.Content = string(content)
	doc.CreatedAt = time.Unix(0, created).UTC()
	doc.UpdatedAt = time.Unix(0, updated).UTC()

	return &doc, nil
}

func (r *DBDocumentRepository) Load(ctx context.Context, id model.DocumentID) (*model.Document, error) {
	row := r.db.Get().QueryRowContext(ctx, selectDocument+` WHERE id = ?`, id)
	doc, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error loading document %s: %w", id, err)
	}
	return doc, nil
}

func (r *DBDocumentRepository) Save(ctx context.Context, doc *model.Document) error {
	compressed, err := r.compressor.Compress([]byte(doc.Content))
	if err != nil {
		return fmt.Errorf("error compressing content: %w", err)
	}

	updated := r.now()
	res, err := r.db.Get().ExecContext(ctx,
		`UPDATE documents SET title = ?, content = ?, content_hash = ?, source_path = ?, source_key = ?, updated_at = ? WHERE id = ?`,
		doc.Title, compressed, util.ContentHashString(doc.Content), doc.SourcePath, util.NormalizePath(doc.SourcePath), updated.UnixNano(), doc.ID,
	)
	if err != nil {
		return fmt.Errorf("error saving document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	doc.UpdatedAt = updated
	repoLogger.Debug().Str("document_id", string(doc.ID)).Int("compressed", len(compressed)).Msg("Document saved")
	return nil
}

func (r *DBDocumentRepository) Rename(ctx context.Context, id model.DocumentID, title string) error {
	res, err := r.db.Get().ExecContext(ctx,
		`UPDATE documents SET title = ?, updated_at = ? WHERE id = ?`,
		model.NormalizeTitle(title), r.now().UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("error renaming document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *DBDocumentRepository) Delete(ctx context.Context, id model.DocumentID) error {
	res, err := r.db.Get().ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("error deleting document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	repoLogger.Debug().Str("document_id", string(id)).Msg("Document deleted")
	return nil
}

func (r *DBDocumentRepository) List(ctx context.Context) ([]model.DocumentSummary, error) {
	rows, err := r.db.Get().QueryContext(ctx, selectDocument+` ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("error querying documents: %w", err)
	}
	defer rows.Close()

	list := make([]model.DocumentSummary, 0)
	for rows.Next() {
		doc, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning document: %w", err)
		}
		list = append(list, doc.Summary())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortSummaries(list)
	return list, nil
}

func (r *DBDocumentRepository) FindBySourcePath(ctx context.Context, path string) (*model.Document, error) {
	key := util.NormalizePath(path)
	if key == "" {
		return nil, ErrNotFound
	}

	row := r.db.Get().QueryRowContext(ctx, selectDocument+` WHERE source_key = ? ORDER BY updated_at DESC LIMIT 1`, key)
	doc, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error finding document by source path: %w", err)
	}
	return doc, nil
}
