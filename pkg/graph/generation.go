package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/odvcencio/weave/pkg/object"
)

// Generations memoizes commit generation numbers: 1 for a root commit,
// otherwise one more than the largest parent generation. A commit can only
// reach commits with a strictly smaller generation, which lets ancestry
// checks prune whole subgraphs. Safe for concurrent use.
type Generations struct {
	r CommitReader

	mu   sync.RWMutex
	gens map[object.Hash]uint64
}

// NewGenerations creates an empty generation cache over r.
func NewGenerations(r CommitReader) *Generations {
	return &Generations{r: r, gens: make(map[object.Hash]uint64)}
}

func (g *Generations) load(h object.Hash) (uint64, bool) {
	g.mu.RLock()
	v, ok := g.gens[h]
	g.mu.RUnlock()
	return v, ok
}

func (g *Generations) store(h object.Hash, v uint64) {
	g.mu.Lock()
	g.gens[h] = v
	g.mu.Unlock()
}

// Len returns the number of cached generation numbers.
func (g *Generations) Len() int {
	g.mu.RLock()
	n := len(g.gens)
	g.mu.RUnlock()
	return n
}

type genFrame struct {
	hash    object.Hash
	parents []object.Hash
	loaded  bool
	next    int
}

// Of returns the generation number of h. The computation is an explicit
// post-order walk so deep linear histories do not grow the goroutine stack.
func (g *Generations) Of(ctx context.Context, h object.Hash) (uint64, error) {
	if h == "" {
		return 0, nil
	}
	if v, ok := g.load(h); ok {
		return v, nil
	}

	onStack := map[object.Hash]bool{h: true}
	stack := []genFrame{{hash: h}}
outer:
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if !top.loaded {
			if err := CheckContext(ctx); err != nil {
				return 0, err
			}
			c, err := ReadCommit(g.r, top.hash)
			if err != nil {
				return 0, fmt.Errorf("generation: %w", err)
			}
			top.parents = c.Parents
			top.loaded = true
		}

		for top.next < len(top.parents) {
			p := top.parents[top.next]
			top.next++
			if p == "" {
				continue
			}
			if _, ok := g.load(p); ok {
				continue
			}
			if onStack[p] {
				return 0, fmt.Errorf("generation: commit graph cycle detected at %s", p)
			}
			onStack[p] = true
			stack = append(stack, genFrame{hash: p})
			continue outer
		}

		var maxParent uint64
		for _, p := range top.parents {
			if p == "" {
				continue
			}
			pg, _ := g.load(p)
			if pg > maxParent {
				maxParent = pg
			}
		}
		g.store(top.hash, maxParent+1)
		delete(onStack, top.hash)
		stack = stack[:len(stack)-1]
	}

	v, _ := g.load(h)
	return v, nil
}
