// Package strategy turns a set of merge bases into the single ancestor tree
// a three-way tree merge needs.
package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/odvcencio/weave/pkg/graph"
	"github.com/odvcencio/weave/pkg/object"
	"github.com/odvcencio/weave/pkg/treemerge"
)

// BaseStrategy picks or synthesizes the ancestor tree for a merge.
//
// The returned reader must be used for the tree merge: it can see any
// objects the strategy created while synthesizing the ancestor. Zero bases
// yield the empty tree ("") and one base yields its tree for every strategy.
type BaseStrategy interface {
	AncestorTree(ctx context.Context, r object.Reader, bases []object.Hash) (object.Hash, object.Reader, error)
}

// Names accepted by ByName.
const (
	NameRecursive  = "recursive"
	NameMostRecent = "recent"
)

// ByName returns the strategy called name. An empty name selects the
// recursive strategy. merger is used for virtual merges of the recursive
// strategy and may be nil.
func ByName(name string, merger treemerge.ContentMerger) (BaseStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameRecursive:
		return &Recursive{ContentMerger: merger}, nil
	case NameMostRecent, "most-recent":
		return MostRecent{}, nil
	default:
		return nil, fmt.Errorf("unknown merge strategy %q", name)
	}
}

// MostRecent uses the tree of the newest merge base by commit time. Ties go
// to the smallest hash so the choice is deterministic.
type MostRecent struct{}

func (MostRecent) AncestorTree(_ context.Context, r object.Reader, bases []object.Hash) (object.Hash, object.Reader, error) {
	best, err := newest(r, bases)
	if err != nil {
		return "", nil, err
	}
	if best == nil {
		return "", r, nil
	}
	return best.TreeHash, r, nil
}

func newest(r object.Reader, bases []object.Hash) (*object.CommitObj, error) {
	var best *object.CommitObj
	var bestHash object.Hash
	for _, h := range bases {
		c, err := graph.ReadCommit(r, h)
		if err != nil {
			return nil, fmt.Errorf("merge base: %w", err)
		}
		if best == nil || c.When() > best.When() || (c.When() == best.When() && h < bestHash) {
			best, bestHash = c, h
		}
	}
	return best, nil
}
