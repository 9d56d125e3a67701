// Package fragments holds the per-user, most-recent-first cache of memory
// fragments. Each Cache owns its map; nothing is shared between instances.
package fragments

import (
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/okian/rally/internal/domain/model"
)

const (
	defaultTTL        = 24 * time.Hour
	defaultMaxPerUser = 500
)

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithTTL sets how long a fragment stays cached after its timestamp.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithMaxPerUser caps each user's bucket; the oldest fragments are dropped.
func WithMaxPerUser(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxPerUser = n
		}
	}
}

type entry struct {
	fragment  model.MemoryFragment
	expiresAt time.Time
}

type bucket struct {
	mu      sync.Mutex
	entries []entry // newest first
	dead    bool    // removed from the map; writers must fetch a new bucket
}

// Stats is a point-in-time size of the cache.
type Stats struct {
	Users     int `json:"users"`
	Fragments int `json:"fragments"`
}

// Cache maps user ids to fragment buckets.
type Cache struct {
	buckets    *xsync.MapOf[string, *bucket]
	ttl        time.Duration
	maxPerUser int
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		buckets:    xsync.NewMapOf[string, *bucket](),
		ttl:        defaultTTL,
		maxPerUser: defaultMaxPerUser,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Append inserts f into its user's bucket, creating the bucket lazily.
// Buckets stay ordered by timestamp even when fragments arrive out of order.
func (c *Cache) Append(f model.MemoryFragment) {
	if f.UserID == "" {
		return
	}
	e := entry{fragment: f, expiresAt: f.Timestamp.Add(c.ttl)}
	for {
		b, _ := c.buckets.LoadOrCompute(f.UserID, func() *bucket { return &bucket{} })
		b.mu.Lock()
		if b.dead {
			b.mu.Unlock()
			continue
		}
		b.insert(e, c.maxPerUser)
		b.mu.Unlock()
		return
	}
}

func (b *bucket) insert(e entry, limit int) {
	ts := e.fragment.Timestamp
	// first index holding an entry strictly older than e
	i := sort.Search(len(b.entries), func(i int) bool {
		return b.entries[i].fragment.Timestamp.Before(ts)
	})
	b.entries = append(b.entries, entry{})
	copy(b.entries[i+1:], b.entries[i:])
	b.entries[i] = e
	if len(b.entries) > limit {
		b.entries = b.entries[:limit]
	}
}

// Load bulk-inserts fragments, typically at warm start.
func (c *Cache) Load(frags []model.MemoryFragment) {
	for _, f := range frags {
		c.Append(f)
	}
}

// Recent returns up to limit fragments for userID, newest first.
// limit <= 0 returns the whole bucket.
func (c *Cache) Recent(userID string, limit int) []model.MemoryFragment {
	b, ok := c.buckets.Load(userID)
	if !ok {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.MemoryFragment, n)
	for i := 0; i < n; i++ {
		out[i] = b.entries[i].fragment
	}
	return out
}

// PruneExpired drops fragments whose expiry is before now and removes empty
// buckets. It returns the number of fragments dropped.
func (c *Cache) PruneExpired(now time.Time) int {
	pruned := 0
	c.buckets.Range(func(userID string, b *bucket) bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		// entries are newest first, so expired ones form the tail
		keep := len(b.entries)
		for keep > 0 && b.entries[keep-1].expiresAt.Before(now) {
			keep--
		}
		pruned += len(b.entries) - keep
		b.entries = b.entries[:keep]
		if keep == 0 {
			b.dead = true
			c.buckets.Delete(userID)
		}
		return true
	})
	return pruned
}

// Stats reports the number of users and fragments held.
func (c *Cache) Stats() Stats {
	var s Stats
	c.buckets.Range(func(_ string, b *bucket) bool {
		b.mu.Lock()
		s.Users++
		s.Fragments += len(b.entries)
		b.mu.Unlock()
		return true
	})
	return s
}

// Clear drops every bucket.
func (c *Cache) Clear() {
	c.buckets.Range(func(userID string, b *bucket) bool {
		b.mu.Lock()
		b.dead = true
		b.mu.Unlock()
		c.buckets.Delete(userID)
		return true
	})
}
