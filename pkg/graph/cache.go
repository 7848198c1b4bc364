package graph

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/odvcencio/weave/pkg/object"
)

// DefaultCommitCacheSize bounds the number of decoded commits kept by
// NewCommitCache when size <= 0.
const DefaultCommitCacheSize = 16384

// CommitCache is an object.Reader that keeps recently decoded commits in a
// bounded LRU. Trees and blobs pass straight through. Cached commits are
// shared between callers and must not be mutated.
type CommitCache struct {
	object.Reader
	commits *lru.Cache[object.Hash, *object.CommitObj]
}

var _ object.Reader = (*CommitCache)(nil)

// NewCommitCache wraps r with an LRU of the given size.
func NewCommitCache(r object.Reader, size int) (*CommitCache, error) {
	if size <= 0 {
		size = DefaultCommitCacheSize
	}
	c, err := lru.New[object.Hash, *object.CommitObj](size)
	if err != nil {
		return nil, fmt.Errorf("commit cache: %w", err)
	}
	return &CommitCache{Reader: r, commits: c}, nil
}

// ReadCommit returns a cached commit or reads and caches it.
func (c *CommitCache) ReadCommit(h object.Hash) (*object.CommitObj, error) {
	if commit, ok := c.commits.Get(h); ok {
		return commit, nil
	}
	commit, err := c.Reader.ReadCommit(h)
	if err != nil {
		return nil, err
	}
	c.commits.Add(h, commit)
	return commit, nil
}

// Len returns the number of cached commits.
func (c *CommitCache) Len() int { return c.commits.Len() }

// Algorithm reports the hash algorithm of the wrapped reader.
func (c *CommitCache) Algorithm() object.Algorithm { return object.AlgorithmOf(c.Reader) }
