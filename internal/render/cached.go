package render

import (
	"sync"

	"github.com/debemdeboas/markedit/internal/cache"
	"github.com/debemdeboas/markedit/internal/util"
)

// Cached memoises another renderer by content hash and options.
type Cached struct {
	next  Renderer
	cache *cache.Rendered

	// Serialises the check-render-set sequence on a miss.
	mu sync.Mutex
}

func NewCached(next Renderer, size int) *Cached {
	return &Cached{next: next, cache: cache.NewRendered(size)}
}

func (c *Cached) Render(src []byte, opts Options) ([]byte, error) {
	contentHash := util.ContentHash(src)
	key := opts.Key()

	if cached, found := c.cache.Get(contentHash, key); found {
		renderLogger.Debug().Str("contentHash", contentHash).Str("options", key).Msg("Cache hit for rendered markdown")
		return cached.HTML, nil
	}

	renderLogger.Debug().Str("contentHash", contentHash).Str("options", key).Msg("Cache miss for rendered markdown")
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, found := c.cache.Get(contentHash, key); found {
		return cached.HTML, nil
	}

	html, err := c.next.Render(src, opts)
	if err != nil {
		return nil, err
	}
	c.cache.Set(contentHash, key, html, nil)
	return html, nil
}

// Len returns the number of cached renders.
func (c *Cached) Len() int {
	return c.cache.Len()
}
