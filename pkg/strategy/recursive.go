package strategy

import (
	"context"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/odvcencio/weave/internal/logging"
	"github.com/odvcencio/weave/pkg/mergebase"
	"github.com/odvcencio/weave/pkg/object"
	"github.com/odvcencio/weave/pkg/treemerge"
)

// DefaultRecursionLimit bounds how deep virtual bases may nest.
const DefaultRecursionLimit = 8

const virtualAuthor = "weave <virtual-merge-base>"

// Recursive merges several merge bases into one virtual commit, oldest
// first, and uses its tree. Each pairwise merge finds its own merge bases and
// recurses on them. Virtual commits and trees live in an object.Overlay and
// never reach the underlying store. Conflicts inside a virtual merge are
// kept as staged content.
//
// Past Limit nested levels the newest base is used instead.
type Recursive struct {
	Limit         int
	ContentMerger treemerge.ContentMerger
	Log           logrus.FieldLogger
}

func (s *Recursive) AncestorTree(ctx context.Context, r object.Reader, bases []object.Hash) (object.Hash, object.Reader, error) {
	if len(bases) < 2 {
		return MostRecent{}.AncestorTree(ctx, r, bases)
	}
	ov := object.NewOverlay(r, object.AlgorithmOf(r))
	v := &virtualMerger{
		s:      s,
		ov:     ov,
		finder: mergebase.NewFinder(ov),
		log:    logging.OrDiscard(s.Log),
	}
	commit, err := v.mergeBases(ctx, bases, 0)
	if err != nil {
		return "", nil, fmt.Errorf("virtual merge base: %w", err)
	}
	c, err := ov.ReadCommit(commit)
	if err != nil {
		return "", nil, fmt.Errorf("virtual merge base: %w", err)
	}
	return c.TreeHash, ov, nil
}

func (s *Recursive) limit() int {
	if s.Limit > 0 {
		return s.Limit
	}
	return DefaultRecursionLimit
}

type virtualMerger struct {
	s      *Recursive
	ov     *object.Overlay
	finder *mergebase.Finder
	log    logrus.FieldLogger
}

// mergeBases folds bases, given newest first, into a single commit.
func (v *virtualMerger) mergeBases(ctx context.Context, bases []object.Hash, depth int) (object.Hash, error) {
	order := slices.Clone(bases)
	slices.Reverse(order)
	merged := order[0]
	for _, next := range order[1:] {
		c, err := v.mergeCommits(ctx, merged, next, depth)
		if err != nil {
			return "", err
		}
		merged = c
	}
	return merged, nil
}

func (v *virtualMerger) mergeCommits(ctx context.Context, a, b object.Hash, depth int) (object.Hash, error) {
	ca, err := v.ov.ReadCommit(a)
	if err != nil {
		return "", err
	}
	cb, err := v.ov.ReadCommit(b)
	if err != nil {
		return "", err
	}

	bases, err := v.finder.FindMergeBases(ctx, a, b)
	if err != nil {
		return "", err
	}
	var ancestor object.Hash
	switch {
	case len(bases) == 1:
		c, err := v.ov.ReadCommit(bases[0])
		if err != nil {
			return "", err
		}
		ancestor = c.TreeHash
	case len(bases) > 1 && depth+1 < v.s.limit():
		inner, err := v.mergeBases(ctx, bases, depth+1)
		if err != nil {
			return "", err
		}
		c, err := v.ov.ReadCommit(inner)
		if err != nil {
			return "", err
		}
		ancestor = c.TreeHash
	case len(bases) > 1:
		v.log.WithField("depth", depth).Warn("virtual merge base recursion limit reached; using newest base")
		ancestor, _, err = MostRecent{}.AncestorTree(ctx, v.ov, bases)
		if err != nil {
			return "", err
		}
	}

	res, err := treemerge.MergeTrees(ctx, v.ov, ancestor, ca.TreeHash, cb.TreeHash, treemerge.Options{
		ContentMerger: v.s.ContentMerger,
	})
	if err != nil {
		return "", err
	}
	tree, err := treemerge.Write(v.ov, res.Tree)
	if err != nil {
		return "", err
	}

	when := max(ca.When(), cb.When())
	commit, err := v.ov.WriteCommit(&object.CommitObj{
		TreeHash:  tree,
		Parents:   []object.Hash{a, b},
		Author:    virtualAuthor,
		Timestamp: when,
		Message:   "virtual merge base\n",
	})
	if err != nil {
		return "", err
	}
	v.log.WithFields(logrus.Fields{
		"left":      a.Short(),
		"right":     b.Short(),
		"bases":     len(bases),
		"conflicts": len(res.Conflicts),
		"virtual":   commit.Short(),
	}).Debug("synthesized virtual merge base")
	return commit, nil
}
