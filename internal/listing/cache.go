package listing

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"stalkervod/internal/cachefile"
)

// Cache persists portal categories and per-category video lists under a
// storage root, one JSON file per entry:
//
//	stalker_cats_<kind>.json
//	stalker_videos_<kind>_<id>.json
//
// The TTL is fixed at construction and applies to every read. Days below
// zero clamp to one; zero disables expiry entirely.
type Cache struct {
	store *cachefile.Store
	dir   string
	ttl   time.Duration
}

// NewCache creates a listing cache rooted at dir.
func NewCache(dir string, ttlDays int, logger *slog.Logger, opts ...cachefile.Option) *Cache {
	if ttlDays < 0 {
		ttlDays = 1
	}
	return &Cache{
		store: cachefile.NewStore(logger, opts...),
		dir:   dir,
		ttl:   time.Duration(ttlDays) * 24 * time.Hour,
	}
}

// Categories returns the cached category list for kind, or ok=false on a
// missing or stale record.
func (c *Cache) Categories(kind Kind) ([]Category, bool) {
	var cats []Category
	if !c.store.ReadInto(c.categoriesPath(kind), c.ttl, &cats) {
		return nil, false
	}
	return cats, true
}

// SetCategories persists the category list for kind.
func (c *Cache) SetCategories(kind Kind, cats []Category) {
	c.store.Write(c.categoriesPath(kind), cats)
}

// CategoriesAreStale reports whether the category record for kind is missing
// or past its TTL, without decoding the list.
func (c *Cache) CategoriesAreStale(kind Kind) bool {
	return c.store.IsStale(c.categoriesPath(kind), c.ttl)
}

// Videos returns the cached video list for one category, or ok=false on a
// missing or stale record.
func (c *Cache) Videos(kind Kind, categoryID string) ([]Video, bool) {
	var videos []Video
	if !c.store.ReadInto(c.videosPath(kind, categoryID), c.ttl, &videos) {
		return nil, false
	}
	return videos, true
}

// SetVideos persists the video list for one category.
func (c *Cache) SetVideos(kind Kind, categoryID string, videos []Video) {
	c.store.Write(c.videosPath(kind, categoryID), videos)
}

// Dir exposes the storage root for inspection.
func (c *Cache) Dir() string { return c.dir }

func (c *Cache) categoriesPath(kind Kind) string {
	return filepath.Join(c.dir, fmt.Sprintf("stalker_cats_%s.json", kind))
}

func (c *Cache) videosPath(kind Kind, categoryID string) string {
	return filepath.Join(c.dir, fmt.Sprintf("stalker_videos_%s_%s.json", kind, categoryID))
}
