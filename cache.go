package lynnzone

import (
	"context"
	"sync"
	"time"

	"github.com/lynnntropy/lynnzone/content"
)

// PostCache is an in-memory TTL cache in front of a content.Source.
type PostCache struct {
	mu      sync.RWMutex
	posts   []content.Post
	byID    map[string]int
	fetched time.Time
	ttl     time.Duration
	source  content.Source
	now     func() time.Time
}

var _ content.Source = (*PostCache)(nil)

// NewPostCache creates a PostCache backed by source.
func NewPostCache(source content.Source, ttl time.Duration) *PostCache {
	return &PostCache{source: source, ttl: ttl, now: time.Now}
}

func (c *PostCache) valid() bool {
	return c.posts != nil && c.now().Sub(c.fetched) < c.ttl
}

// Invalidate clears the cache so the next read triggers a fresh load.
func (c *PostCache) Invalidate() {
	c.mu.Lock()
	c.posts = nil
	c.byID = nil
	c.mu.Unlock()
}

func (c *PostCache) load(ctx context.Context) error {
	if c.valid() {
		return nil
	}
	posts, err := c.source.ListPosts(ctx)
	if err != nil {
		return err
	}
	if posts == nil {
		posts = []content.Post{}
	}
	byID := make(map[string]int, len(posts))
	for i, p := range posts {
		byID[p.ID] = i
	}
	c.posts = posts
	c.byID = byID
	c.fetched = c.now()
	return nil
}

// ensureLoaded returns the cached posts after making sure they are fresh.
// It tries a read lock first and only takes the write lock to reload.
func (c *PostCache) ensureLoaded(ctx context.Context) ([]content.Post, map[string]int, error) {
	c.mu.RLock()
	if c.valid() {
		posts, byID := c.posts, c.byID
		c.mu.RUnlock()
		return posts, byID, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.load(ctx); err != nil {
		return nil, nil, err
	}
	return c.posts, c.byID, nil
}

// ListPosts returns the cached posts in source order. Callers must not
// modify the returned slice.
func (c *PostCache) ListPosts(ctx context.Context) ([]content.Post, error) {
	posts, _, err := c.ensureLoaded(ctx)
	return posts, err
}

// GetPost returns a single post by id from the cache.
func (c *PostCache) GetPost(ctx context.Context, id string) (content.Post, error) {
	posts, byID, err := c.ensureLoaded(ctx)
	if err != nil {
		return content.Post{}, err
	}
	i, ok := byID[id]
	if !ok {
		return content.Post{}, ErrNotFound
	}
	return posts[i], nil
}
