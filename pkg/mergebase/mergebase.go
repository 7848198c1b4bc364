// Package mergebase computes the best common ancestors of commits.
//
// Both inputs are painted down their history along a frontier ordered by
// commit time, newest first. A commit reached from both sides is a common
// ancestor; its own ancestors are marked stale because they can never be a
// better base. The walk ends once every queued commit is stale. Candidates
// are then reduced so that no returned base is an ancestor of another, which
// matters for criss-cross histories with several merge bases.
package mergebase

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/odvcencio/weave/pkg/graph"
	"github.com/odvcencio/weave/pkg/object"
)

const (
	flagParent1 uint8 = 1 << iota
	flagParent2
	flagStale
	flagResult
)

// DefaultMaxSteps bounds a single traversal.
const DefaultMaxSteps = 10_000_000

// ErrTraversalLimit is returned when a walk exceeds the configured step limit.
var ErrTraversalLimit = errors.New("merge base traversal limit exceeded")

// Finder computes merge bases over one object store. A Finder is safe for
// concurrent use; per-query state lives on the stack of each call.
type Finder struct {
	r        graph.CommitReader
	gens     *graph.Generations
	cache    *Cache
	maxSteps int
}

// Option configures a Finder.
type Option func(*Finder)

// WithMaxSteps caps the number of commits a single traversal may expand.
func WithMaxSteps(n int) Option {
	return func(f *Finder) {
		if n > 0 {
			f.maxSteps = n
		}
	}
}

// WithCache memoizes pair queries in c. Pass the same cache to several
// finders over the same store to share results.
func WithCache(c *Cache) Option {
	return func(f *Finder) { f.cache = c }
}

// NewFinder creates a finder reading commits from r.
func NewFinder(r graph.CommitReader, opts ...Option) *Finder {
	f := &Finder{
		r:        r,
		gens:     graph.NewGenerations(r),
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FindMergeBases returns the best common ancestors of a and b using a
// throwaway Finder.
func FindMergeBases(ctx context.Context, r graph.CommitReader, a, b object.Hash) ([]object.Hash, error) {
	return NewFinder(r).FindMergeBases(ctx, a, b)
}

// FindMergeBases returns the set of best common ancestors of a and b, newest
// first. The result is empty when the histories are unrelated and {a} when
// a == b.
func (f *Finder) FindMergeBases(ctx context.Context, a, b object.Hash) ([]object.Hash, error) {
	if a == "" || b == "" {
		return nil, nil
	}
	if a == b {
		if _, err := graph.ReadCommit(f.r, a); err != nil {
			return nil, fmt.Errorf("find merge base: %w", err)
		}
		return []object.Hash{a}, nil
	}
	if f.cache == nil {
		return f.findMany(ctx, a, []object.Hash{b})
	}
	return f.cache.do(ctx, a, b, func(ctx context.Context) ([]object.Hash, error) {
		return f.findMany(ctx, a, []object.Hash{b})
	})
}

// FindMergeBasesMany returns the best common ancestors of one and the union
// of others' histories: a commit qualifies when it is reachable from one and
// from at least one of others.
func (f *Finder) FindMergeBasesMany(ctx context.Context, one object.Hash, others ...object.Hash) ([]object.Hash, error) {
	if one == "" || len(others) == 0 {
		return nil, nil
	}
	for _, o := range others {
		if o == one {
			return []object.Hash{one}, nil
		}
	}
	return f.findMany(ctx, one, others)
}

// FindOctopusMergeBases returns the best ancestors common to every commit.
func (f *Finder) FindOctopusMergeBases(ctx context.Context, commits ...object.Hash) ([]object.Hash, error) {
	if len(commits) == 0 {
		return nil, nil
	}
	result := []object.Hash{commits[0]}
	for _, next := range commits[1:] {
		var merged []object.Hash
		for _, r := range result {
			bases, err := f.FindMergeBases(ctx, r, next)
			if err != nil {
				return nil, err
			}
			merged = append(merged, bases...)
		}
		reduced, err := f.Reduce(ctx, merged)
		if err != nil {
			return nil, err
		}
		if len(reduced) == 0 {
			return nil, nil
		}
		result = reduced
	}
	return result, nil
}

func (f *Finder) findMany(ctx context.Context, one object.Hash, twos []object.Hash) ([]object.Hash, error) {
	p, err := f.paint(ctx, one, twos)
	if err != nil {
		return nil, fmt.Errorf("find merge base: %w", err)
	}

	set := baseSet{f: f}
	for _, h := range p.results {
		if p.flags[h]&flagStale != 0 {
			continue
		}
		if err := set.add(ctx, h); err != nil {
			return nil, fmt.Errorf("find merge base: %w", err)
		}
	}
	return f.sortByTime(set.bases)
}

type painting struct {
	flags   map[object.Hash]uint8
	results []object.Hash
}

// paint walks down from one (flagParent1) and twos (flagParent2) until no
// non-stale commit remains on the frontier.
func (f *Finder) paint(ctx context.Context, one object.Hash, twos []object.Hash) (*painting, error) {
	p := &painting{flags: make(map[object.Hash]uint8)}
	var queue graph.Queue
	queued := make(map[object.Hash]int)
	nonStale := 0

	push := func(h object.Hash, c *object.CommitObj) {
		queue.Push(h, c)
		queued[h]++
		if p.flags[h]&flagStale == 0 {
			nonStale++
		}
	}
	mark := func(h object.Hash, add uint8) {
		before := p.flags[h]
		p.flags[h] = before | add
		if before&flagStale == 0 && add&flagStale != 0 {
			nonStale -= queued[h]
		}
	}

	c, err := graph.ReadCommit(f.r, one)
	if err != nil {
		return nil, err
	}
	mark(one, flagParent1)
	push(one, c)
	for _, two := range twos {
		if two == "" {
			continue
		}
		c, err := graph.ReadCommit(f.r, two)
		if err != nil {
			return nil, err
		}
		if p.flags[two]&flagParent2 != 0 {
			continue
		}
		mark(two, flagParent2)
		push(two, c)
	}

	steps := 0
	for nonStale > 0 {
		if err := graph.CheckContext(ctx); err != nil {
			return nil, err
		}
		steps++
		if steps > f.maxSteps {
			return nil, fmt.Errorf("%w (%d steps)", ErrTraversalLimit, f.maxSteps)
		}

		h, commit := queue.Pop()
		queued[h]--
		if p.flags[h]&flagStale == 0 {
			nonStale--
		}

		flags := p.flags[h] & (flagParent1 | flagParent2 | flagStale)
		if flags == flagParent1|flagParent2 {
			if p.flags[h]&flagResult == 0 {
				mark(h, flagResult)
				p.results = append(p.results, h)
			}
			// Ancestors of a common ancestor can only be worse bases.
			flags |= flagStale
		}

		for _, parent := range commit.Parents {
			if parent == "" {
				continue
			}
			if p.flags[parent]&flags == flags {
				continue
			}
			pc, err := graph.ReadCommit(f.r, parent)
			if err != nil {
				return nil, fmt.Errorf("parent of %s: %w", h, err)
			}
			mark(parent, flags)
			push(parent, pc)
		}
	}
	return p, nil
}

// Reduce removes every commit that is an ancestor of another commit in hs
// and returns the remainder newest first.
func (f *Finder) Reduce(ctx context.Context, hs []object.Hash) ([]object.Hash, error) {
	set := baseSet{f: f}
	for _, h := range hs {
		if err := set.add(ctx, h); err != nil {
			return nil, err
		}
	}
	return f.sortByTime(set.bases)
}

// baseSet keeps the invariant that no member is reachable from another.
type baseSet struct {
	f     *Finder
	bases []object.Hash
}

// add accepts h unless it is an ancestor of an accepted base; accepted bases
// that are ancestors of h are replaced by it.
func (s *baseSet) add(ctx context.Context, h object.Hash) error {
	for _, b := range s.bases {
		if b == h {
			return nil
		}
		redundant, err := s.f.IsAncestor(ctx, h, b)
		if err != nil {
			return err
		}
		if redundant {
			return nil
		}
	}

	kept := s.bases[:0]
	for _, b := range s.bases {
		older, err := s.f.IsAncestor(ctx, b, h)
		if err != nil {
			return err
		}
		if !older {
			kept = append(kept, b)
		}
	}
	s.bases = append(kept, h)
	return nil
}

func (f *Finder) sortByTime(hs []object.Hash) ([]object.Hash, error) {
	when := make(map[object.Hash]int64, len(hs))
	for _, h := range hs {
		c, err := graph.ReadCommit(f.r, h)
		if err != nil {
			return nil, err
		}
		when[h] = c.When()
	}
	out := append([]object.Hash(nil), hs...)
	sort.Slice(out, func(i, j int) bool {
		if when[out[i]] == when[out[j]] {
			return out[i] < out[j]
		}
		return when[out[i]] > when[out[j]]
	})
	return out, nil
}
