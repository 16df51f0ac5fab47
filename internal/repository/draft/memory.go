package draft

import (
	"context"
	"time"

	"github.com/debemdeboas/markedit/internal/cache"
	"github.com/debemdeboas/markedit/internal/model"
)

type MemoryRepository struct { // implements Repository
	drafts *cache.Cache[model.DocumentID, *Draft]
	now    Clock
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{drafts: cache.NewCache[model.DocumentID, *Draft](), now: utcNow}
}

func (r *MemoryRepository) WithClock(now Clock) *MemoryRepository {
	r.now = now
	return r
}

func (r *MemoryRepository) SaveDraft(ctx context.Context, id model.DocumentID, content string) error {
	r.drafts.Set(id, &Draft{
		DocumentID: id,
		Content:    content,
		UpdatedAt:  r.now(),
	})
	return nil
}

func (r *MemoryRepository) LoadDraft(ctx context.Context, id model.DocumentID, documentUpdatedAt time.Time) (Lookup, error) {
	if d, ok := r.drafts.Get(id); ok {
		return lookup(d, documentUpdatedAt), nil
	}
	return Lookup{}, nil
}

func (r *MemoryRepository) DeleteDraft(ctx context.Context, id model.DocumentID) error {
	r.drafts.Delete(id)
	return nil
}
