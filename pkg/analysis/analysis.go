// Package analysis classifies a prospective merge before any content is
// touched.
package analysis

import (
	"context"
	"fmt"

	"github.com/odvcencio/weave/pkg/mergebase"
	"github.com/odvcencio/weave/pkg/object"
)

// Kind is the classification of a merge.
type Kind int

const (
	// Normal requires a three-way tree merge.
	Normal Kind = iota
	// UpToDate means target is already contained in head.
	UpToDate
	// FastForward means head is a strict ancestor of target.
	FastForward
	// Unborn means head has no commit yet; the ref can be created at target.
	Unborn
)

func (k Kind) String() string {
	switch k {
	case UpToDate:
		return "up-to-date"
	case FastForward:
		return "fast-forward"
	case Unborn:
		return "unborn"
	default:
		return "normal"
	}
}

// Analysis is the outcome of Analyze together with the merge bases it was
// computed from.
type Analysis struct {
	Kind  Kind
	Bases []object.Hash
}

// NeedsTreeMerge reports whether a content merge must run.
func (a Analysis) NeedsTreeMerge() bool { return a.Kind == Normal }

// CanFastForward reports whether the ref can simply be moved to target.
func (a Analysis) CanFastForward() bool {
	return a.Kind == FastForward || a.Kind == Unborn
}

// Analyze classifies merging target into head given their merge bases.
// An empty head is an unborn branch. Analyze never reads the store.
func Analyze(head, target object.Hash, bases []object.Hash) Analysis {
	out := Analysis{Kind: Normal, Bases: bases}
	switch {
	case head == "":
		out.Kind = Unborn
	case target == head:
		out.Kind = UpToDate
	case len(bases) == 1 && bases[0] == head:
		out.Kind = FastForward
	case len(bases) == 1 && bases[0] == target:
		out.Kind = UpToDate
	}
	return out
}

// Run computes the merge bases of head and target with f and classifies the
// merge.
func Run(ctx context.Context, f *mergebase.Finder, head, target object.Hash) (Analysis, error) {
	if head == "" {
		return Analyze(head, target, nil), nil
	}
	bases, err := f.FindMergeBases(ctx, head, target)
	if err != nil {
		return Analysis{}, fmt.Errorf("analyze merge: %w", err)
	}
	return Analyze(head, target, bases), nil
}
