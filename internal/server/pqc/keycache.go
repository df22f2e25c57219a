package pqc

import (
	"context"
	"sync"
)

// KeyFetcher loads the server public key from the oracle.
type KeyFetcher interface {
	ServerPublicKey(ctx context.Context) (string, error)
}

// KeyCache memoizes the server public key for the life of the process.
// The first successful fetch wins and is never invalidated; concurrent
// callers share one in-flight fetch. Failed fetches are not cached.
type KeyCache struct {
	fetcher KeyFetcher

	mu  sync.RWMutex
	key string

	fetchMu sync.Mutex
	fetchCh chan struct{}
	lastErr error
}

func NewKeyCache(fetcher KeyFetcher) *KeyCache {
	return &KeyCache{fetcher: fetcher}
}

// Get returns the cached key, fetching it on first use.
func (c *KeyCache) Get(ctx context.Context) (string, error) {
	if key := c.cached(); key != "" {
		return key, nil
	}

	ch, leader := c.beginFetch()
	if !leader {
		return c.waitFetch(ctx, ch)
	}

	key, err := c.fetcher.ServerPublicKey(ctx)
	if err == nil {
		c.mu.Lock()
		c.key = key
		c.mu.Unlock()
	}
	c.finishFetch(err, ch)
	return key, err
}

func (c *KeyCache) cached() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.key
}

func (c *KeyCache) beginFetch() (chan struct{}, bool) {
	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()
	if c.fetchCh != nil {
		return c.fetchCh, false
	}
	ch := make(chan struct{})
	c.fetchCh = ch
	return ch, true
}

func (c *KeyCache) waitFetch(ctx context.Context, ch chan struct{}) (string, error) {
	select {
	case <-ch:
		c.fetchMu.Lock()
		err := c.lastErr
		c.fetchMu.Unlock()
		if err != nil {
			return "", err
		}
		return c.cached(), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *KeyCache) finishFetch(err error, ch chan struct{}) {
	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()
	c.lastErr = err
	close(ch)
	c.fetchCh = nil
}
