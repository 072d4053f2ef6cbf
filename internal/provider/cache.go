package provider

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	cacheSize = 128
	cacheTTL  = 30 * time.Minute
)

// Cache hands out shared clients keyed by (base URL, API key). Entries
// expire after cacheTTL so stale credentials age out instead of growing
// the cache without bound.
type Cache struct {
	clients *expirable.LRU[string, *Client]
	timeout time.Duration
}

// NewCache creates a bounded client cache. timeout applies to every client
// built by this cache.
func NewCache(timeout time.Duration) *Cache {
	return &Cache{
		clients: expirable.NewLRU[string, *Client](cacheSize, nil, cacheTTL),
		timeout: timeout,
	}
}

// Get returns the shared client for the given pair, creating it on first use.
func (c *Cache) Get(baseURL, apiKey string) *Client {
	key := baseURL + "\n" + apiKey
	if client, ok := c.clients.Get(key); ok {
		return client
	}
	client := NewClient(baseURL, apiKey, c.timeout)
	c.clients.Add(key, client)
	return client
}

// Len reports how many clients are currently cached.
func (c *Cache) Len() int {
	return c.clients.Len()
}
