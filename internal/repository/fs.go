package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/debemdeboas/markedit/internal/model"
	"github.com/debemdeboas/markedit/internal/util"
	"github.com/fsnotify/fsnotify"
)

const documentExt = ".json"

// FSDocumentRepository keeps one JSON file per document. Listing reads the whole directory,
// so the result is cached until a write through the repository or a change seen by the
// watcher invalidates it.
type FSDocumentRepository struct { // implements DocumentRepository
	dir string
	now Clock

	mu     sync.Mutex
	listed []*model.Document
	valid  bool

	watcher *fsnotify.Watcher
}

func NewFSDocumentRepository(dir string) (*FSDocumentRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating documents directory %s: %w", dir, err)
	}
	return &FSDocumentRepository{
		dir: dir,
		now: utcNow,
	}, nil
}

func (r *FSDocumentRepository) WithClock(now Clock) *FSDocumentRepository {
	r.now = now
	return r
}

// Watch invalidates the list cache whenever a file in the directory changes outside the
// repository. It returns once the watcher is registered.
func (r *FSDocumentRepository) Watch() error {
	if r.watcher != nil {
		_ = r.watcher.Close()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(r.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("unable to watch %s: %w", r.dir, err)
	}
	r.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(event.Name, documentExt) {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
					repoLogger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Document directory changed")
					r.invalidate()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				repoLogger.Error().Err(err).Msg("Document watcher error")
			}
		}
	}()
	return nil
}

func (r *FSDocumentRepository) Close() error {
	if r.watcher == nil {
		return nil
	}
	err := r.watcher.Close()
	r.watcher = nil
	return err
}

func (r *FSDocumentRepository) invalidate() {
	r.mu.Lock()
	r.valid = false
	r.listed = nil
	r.mu.Unlock()
}

func (r *FSDocumentRepository) path(id model.DocumentID) (string, error) {
	name, err := objectName(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(r.dir, name), nil
}

func (r *FSDocumentRepository) write(doc *model.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding document: %w", err)
	}
	path, err := r.path(doc.ID)
	if err != nil {
		return err
	}
	if err := util.WriteFileAtomic(path, data, 0o644); err != nil {
		return err
	}
	r.invalidate()
	return nil
}

func (r *FSDocumentRepository) read(path string) (*model.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error decoding %s: %w", filepath.Base(path), err)
	}
	return &doc, nil
}

func (r *FSDocumentRepository) Create(ctx context.Context) (*model.Document, error) {
	doc := model.NewDocument(r.now())
	if err := r.write(doc); err != nil {
		return nil, fmt.Errorf("error creating document: %w", err)
	}
	return doc, nil
}

func (r *FSDocumentRepository) Load(ctx context.Context, id model.DocumentID) (*model.Document, error) {
	path, err := r.path(id)
	if err != nil {
		return nil, err
	}
	doc, err := r.read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return doc, err
}

func (r *FSDocumentRepository) Save(ctx context.Context, doc *model.Document) error {
	path, err := r.path(doc.ID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}

	saved := *doc
	saved.UpdatedAt = r.now()
	if err := r.write(&saved); err != nil {
		return fmt.Errorf("error saving document: %w", err)
	}
	doc.UpdatedAt = saved.UpdatedAt
	return nil
}

func (r *FSDocumentRepository) Rename(ctx context.Context, id model.DocumentID, title string) error {
	doc, err := r.Load(ctx, id)
	if err != nil {
		return err
	}
	doc.Title = model.NormalizeTitle(title)
	doc.UpdatedAt = r.now()
	return r.write(doc)
}

func (r *FSDocumentRepository) Delete(ctx context.Context, id model.DocumentID) error {
	path, err := r.path(id)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("error deleting document: %w", err)
	}
	r.invalidate()
	return nil
}

func (r *FSDocumentRepository) all() ([]*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.valid {
		return r.listed, nil
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, err
	}

	docs := make([]*model.Document, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), documentExt) {
			continue
		}
		doc, err := r.read(filepath.Join(r.dir, entry.Name()))
		if err != nil {
			// Half-written or foreign files must not hide the rest of the library.
			repoLogger.Warn().Err(err).Str("file", entry.Name()).Msg("Skipping unreadable document")
			continue
		}
		docs = append(docs, doc)
	}

	r.listed = docs
	r.valid = true
	return docs, nil
}

func (r *FSDocumentRepository) List(ctx context.Context) ([]model.DocumentSummary, error) {
	docs, err := r.all()
	if err != nil {
		return nil, fmt.Errorf("error listing documents: %w", err)
	}

	list := make([]model.DocumentSummary, 0, len(docs))
	for _, doc := range docs {
		list = append(list, doc.Summary())
	}
	sortSummaries(list)
	return list, nil
}

func (r *FSDocumentRepository) FindBySourcePath(ctx context.Context, path string) (*model.Document, error) {
	key := util.NormalizePath(path)
	if key == "" {
		return nil, ErrNotFound
	}

	docs, err := r.all()
	if err != nil {
		return nil, err
	}
	var found *model.Document
	for _, doc := range docs {
		if util.NormalizePath(doc.SourcePath) != key {
			continue
		}
		if found == nil || doc.UpdatedAt.After(found.UpdatedAt) {
			found = doc
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	copied := *found
	return &copied, nil
}
