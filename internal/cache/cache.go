package cache

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"
)

var ErrNotCached = errors.New("not cached")

// ContentCache holds the rendered JSON of the public read endpoints, keyed by page path
// ("/", "/projects", "/projects/<id>").
type ContentCache struct {
	cache *freecache.Cache
	ttl   time.Duration

	// generation grows with every Invalidate; guarded by mutex together with
	// the conditional set
	mutex      sync.Mutex
	generation uint64
}

func NewContentCache(sizeBytes int, ttl time.Duration) *ContentCache {
	return &ContentCache{
		cache: freecache.NewCache(sizeBytes),
		ttl:   ttl,
	}
}

func (c *ContentCache) Get(path string) ([]byte, error) {
	content, err := c.cache.Get([]byte(path))
	if err != nil {
		if errors.Is(err, freecache.ErrNotFound) {
			return nil, ErrNotCached
		}
		return nil, err
	}
	return content, nil
}

// Generation is taken before loading content from the database, and handed back to
// SetIfUnchanged once the content is rendered.
func (c *ContentCache) Generation() uint64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.generation
}

// SetIfUnchanged caches the content only when no invalidation happened since the
// given generation was taken, so content loaded before a mutation is not put back.
func (c *ContentCache) SetIfUnchanged(path string, content []byte, generation uint64) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.generation != generation {
		log.Tracef("content cache, skip stale set [%s]", path)
		return false
	}
	c.set(path, content)
	return true
}

func (c *ContentCache) Set(path string, content []byte) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.set(path, content)
}

func (c *ContentCache) set(path string, content []byte) {
	expireSeconds := int(c.ttl.Seconds())
	if err := c.cache.Set([]byte(path), content, expireSeconds); err != nil {
		// larger than 1/1024 of the cache size, just don't cache it
		log.Warnf("content cache, set [%s]: %s", path, err)
	}
}

// Invalidate drops the given paths. Invalidating "/projects" drops every
// "/projects/..." entry as well.
func (c *ContentCache) Invalidate(paths ...string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.generation++
	for _, path := range paths {
		c.cache.Del([]byte(path))
		if path == "/projects" {
			c.dropPrefix("/projects/")
		}
	}
}

func (c *ContentCache) dropPrefix(prefix string) {
	// collect first, deleting while iterating can skip entries
	var keys [][]byte
	it := c.cache.NewIterator()
	for entry := it.Next(); entry != nil; entry = it.Next() {
		if strings.HasPrefix(string(entry.Key), prefix) {
			keys = append(keys, entry.Key)
		}
	}
	for _, key := range keys {
		c.cache.Del(key)
	}
}
