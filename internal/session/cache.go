// Package session keeps the last search results of each chat so that
// "details" buttons can be resolved without searching again.
package session

import (
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"anilife_bot/internal/metrics"
	"anilife_bot/internal/model"
)

// Cache holds at most maxChats result lists. Entries expire after ttl of
// inactivity; when the cache is full the least recently used chat is
// evicted.
type Cache struct {
	mu       sync.Mutex
	items    *cache.Cache
	ttl      time.Duration
	maxChats int
}

// New creates a Cache. ttl must be positive; maxChats < 1 is treated as 1.
func New(ttl time.Duration, maxChats int) *Cache {
	if maxChats < 1 {
		maxChats = 1
	}
	c := &Cache{
		items:    cache.New(ttl, ttl/2),
		ttl:      ttl,
		maxChats: maxChats,
	}
	c.items.OnEvicted(func(string, any) {
		metrics.SessionEvictions.Inc()
	})
	return c
}

// Put replaces the results remembered for chatID.
func (c *Cache) Put(chatID int64, releases []model.Release) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := chatKey(chatID)
	if _, found := c.items.Get(key); !found && c.items.ItemCount() >= c.maxChats {
		c.items.DeleteExpired()
		if c.items.ItemCount() >= c.maxChats {
			c.evictOldest()
		}
	}
	cp := make([]model.Release, len(releases))
	copy(cp, releases)
	c.items.Set(key, cp, c.ttl)
}

// Get returns the idx-th remembered result of chatID and refreshes the
// chat's expiry.
func (c *Cache) Get(chatID int64, idx int) (model.Release, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := chatKey(chatID)
	v, found := c.items.Get(key)
	if !found {
		return model.Release{}, false
	}
	releases := v.([]model.Release)
	c.items.Set(key, releases, c.ttl)
	if idx < 0 || idx >= len(releases) {
		return model.Release{}, false
	}
	return releases[idx], true
}

// Drop forgets everything remembered for chatID.
func (c *Cache) Drop(chatID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Delete(chatKey(chatID))
}

// Len returns the number of chats currently cached, including expired
// entries not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.ItemCount()
}

// evictOldest drops the entry closest to expiry, which is the one used
// least recently since every access resets the same ttl. Callers hold mu.
func (c *Cache) evictOldest() {
	var (
		oldestKey string
		oldestExp int64
	)
	for k, it := range c.items.Items() {
		if oldestKey == "" || it.Expiration < oldestExp {
			oldestKey, oldestExp = k, it.Expiration
		}
	}
	if oldestKey != "" {
		c.items.Delete(oldestKey)
	}
}

func chatKey(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}
