package mergebase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/odvcencio/weave/pkg/graph"
	"github.com/odvcencio/weave/pkg/object"
)

type cacheKey struct {
	left  object.Hash
	right object.Hash
}

func canonicalKey(a, b object.Hash) cacheKey {
	if a <= b {
		return cacheKey{left: a, right: b}
	}
	return cacheKey{left: b, right: a}
}

// Cache memoizes merge-base results per unordered commit pair. Concurrent
// identical queries share one traversal. Entries never expire: commits are
// immutable, so a pair's bases never change.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey][]object.Hash
	group   singleflight.Group
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey][]object.Hash)}
}

func (c *Cache) load(key cacheKey) ([]object.Hash, bool) {
	c.mu.RLock()
	bases, ok := c.entries[key]
	c.mu.RUnlock()
	return bases, ok
}

func (c *Cache) store(key cacheKey, bases []object.Hash) {
	c.mu.Lock()
	c.entries[key] = bases
	c.mu.Unlock()
}

// Len returns the number of cached pairs.
func (c *Cache) Len() int {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return n
}

// do returns the cached bases for the pair or runs compute once for all
// concurrent callers. Each caller waits on its own ctx. A shared walk that
// failed because another caller's ctx was cancelled is run again.
func (c *Cache) do(ctx context.Context, a, b object.Hash, compute func(context.Context) ([]object.Hash, error)) ([]object.Hash, error) {
	key := canonicalKey(a, b)
	for {
		if bases, ok := c.load(key); ok {
			return clone(bases), nil
		}
		ch := c.group.DoChan(string(key.left)+":"+string(key.right), func() (any, error) {
			if bases, ok := c.load(key); ok {
				return bases, nil
			}
			bases, err := compute(ctx)
			if err != nil {
				return nil, err
			}
			c.store(key, bases)
			return bases, nil
		})

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("find merge base: %w", graph.CheckContext(ctx))
		case res := <-ch:
			if res.Err != nil {
				if errors.Is(res.Err, graph.ErrCancelled) && ctx.Err() == nil {
					continue
				}
				return nil, res.Err
			}
			return clone(res.Val.([]object.Hash)), nil
		}
	}
}

func clone(hs []object.Hash) []object.Hash {
	if hs == nil {
		return nil
	}
	return append([]object.Hash(nil), hs...)
}
