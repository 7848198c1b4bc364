package mergebase

import (
	"context"
	"fmt"

	"github.com/odvcencio/weave/pkg/graph"
	"github.com/odvcencio/weave/pkg/object"
)

// IsAncestor reports whether ancestor is reachable from descendant by
// following parent edges. A commit is its own ancestor.
func IsAncestor(ctx context.Context, r graph.CommitReader, ancestor, descendant object.Hash) (bool, error) {
	return NewFinder(r).IsAncestor(ctx, ancestor, descendant)
}

// IsAncestor reports whether ancestor is reachable from descendant. Commits
// whose generation is not above the ancestor's are never expanded.
func (f *Finder) IsAncestor(ctx context.Context, ancestor, descendant object.Hash) (bool, error) {
	if ancestor == "" || descendant == "" {
		return false, nil
	}
	if ancestor == descendant {
		return true, nil
	}

	ancestorGen, err := f.gens.Of(ctx, ancestor)
	if err != nil {
		return false, fmt.Errorf("is ancestor: %w", err)
	}
	descendantGen, err := f.gens.Of(ctx, descendant)
	if err != nil {
		return false, fmt.Errorf("is ancestor: %w", err)
	}
	if ancestorGen >= descendantGen {
		return false, nil
	}

	visited := map[object.Hash]struct{}{descendant: {}}
	queue := []object.Hash{descendant}
	steps := 0

	for len(queue) > 0 {
		if err := graph.CheckContext(ctx); err != nil {
			return false, err
		}
		cur := queue[0]
		queue = queue[1:]

		steps++
		if steps > f.maxSteps {
			return false, fmt.Errorf("is ancestor: %w (%d steps)", ErrTraversalLimit, f.maxSteps)
		}

		commit, err := graph.ReadCommit(f.r, cur)
		if err != nil {
			return false, fmt.Errorf("is ancestor: %w", err)
		}
		for _, p := range commit.Parents {
			if p == "" {
				continue
			}
			if p == ancestor {
				return true, nil
			}
			if _, seen := visited[p]; seen {
				continue
			}
			visited[p] = struct{}{}
			pg, err := f.gens.Of(ctx, p)
			if err != nil {
				return false, fmt.Errorf("is ancestor: %w", err)
			}
			if pg <= ancestorGen {
				continue
			}
			queue = append(queue, p)
		}
	}

	return false, nil
}
