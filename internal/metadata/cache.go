package metadata

import (
	"context"
	"sync"
	"time"

	"nlq-resolver/internal/common/logger"
	"nlq-resolver/internal/models"
)

// CachedStore keeps the last snapshot for ttl. When a refresh fails and a
// previous snapshot exists, the stale one is served.
type CachedStore struct {
	store Store
	ttl   time.Duration
	log   logger.Logger
	now   func() time.Time

	mu       sync.Mutex
	current  *models.SemanticMetadata
	loadedAt time.Time
}

func NewCachedStore(store Store, ttl time.Duration, log logger.Logger) *CachedStore {
	return &CachedStore{
		store: store,
		ttl:   ttl,
		log:   logger.ForComponent(log, "metadata"),
		now:   time.Now,
	}
}

func (c *CachedStore) Load(ctx context.Context) (*models.SemanticMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && c.now().Sub(c.loadedAt) < c.ttl {
		return c.current, nil
	}

	md, err := c.store.Load(ctx)
	if err != nil {
		if c.current != nil {
			c.log.Warn("Serving stale metadata snapshot", map[string]interface{}{
				"error":    err.Error(),
				"loadedAt": c.loadedAt,
			})
			return c.current, nil
		}
		return nil, err
	}

	c.current, c.loadedAt = md, c.now()
	c.log.Info("Metadata snapshot loaded", map[string]interface{}{
		"tables":      len(md.Tables),
		"generatedAt": md.GeneratedAt,
	})
	return md, nil
}
