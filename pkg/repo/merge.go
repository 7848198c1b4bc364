package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/weave/pkg/analysis"
	"github.com/odvcencio/weave/pkg/diff3"
	"github.com/odvcencio/weave/pkg/fastforward"
	"github.com/odvcencio/weave/pkg/graph"
	"github.com/odvcencio/weave/pkg/object"
	"github.com/odvcencio/weave/pkg/refs"
	"github.com/odvcencio/weave/pkg/strategy"
	"github.com/odvcencio/weave/pkg/structural"
	"github.com/odvcencio/weave/pkg/treemerge"
)

// ErrFastForwardOnly is returned by Merge with Options.FFOnly when the
// histories have diverged.
var ErrFastForwardOnly = errors.New("not possible to fast-forward")

// DefaultAuthor signs merge commits when Options.Author is empty.
const DefaultAuthor = "weave <weave@localhost>"

// Options controls Merge.
type Options struct {
	// FFOnly refuses merges that would need a merge commit.
	FFOnly bool
	// Commit writes a two-parent merge commit for a clean normal merge and
	// moves the ref to it.
	Commit  bool
	Author  string
	Message string
}

// TreeMerge is the result of merging two commits' trees.
type TreeMerge struct {
	Bases     []object.Hash
	Ancestor  object.Hash // tree used as the common ancestor
	Tree      object.Hash // merged tree, written to the object store
	Conflicts []treemerge.Conflict
}

// Clean reports whether the tree merge had no conflicts.
func (m *TreeMerge) Clean() bool { return len(m.Conflicts) == 0 }

// Outcome reports what Merge decided and did.
type Outcome struct {
	OpID     string
	Ref      string
	Head     object.Hash // ref value before the merge; empty when unborn
	Target   object.Hash
	Analysis analysis.Analysis

	// FastForward is set for FastForward and Unborn analyses.
	FastForward *fastforward.Result
	// TreeMerge is set for Normal analyses.
	TreeMerge *TreeMerge
	// Commit is the merge commit written with Options.Commit.
	Commit object.Hash
}

// Merge merges target into the commit ref points at. Up-to-date merges do
// nothing, fast-forwards move the ref with a compare-and-swap, and diverged
// histories are tree-merged. The merged tree is always written; the ref only
// moves for a clean merge with Options.Commit.
//
// refs.ErrRefUpdateRace is returned unchanged (wrapped) when ref moved while
// the merge was being decided.
func (r *Repo) Merge(ctx context.Context, ref string, target object.Hash, opts Options) (*Outcome, error) {
	ref, err := r.branchRef(ref)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	out := &Outcome{OpID: uuid.NewString(), Ref: ref, Target: target}
	log := r.Log.WithFields(logrus.Fields{"op": out.OpID, "ref": ref, "target": target.Short()})

	head, err := r.Refs.ReadRef(ref)
	if err != nil && !errors.Is(err, refs.ErrRefNotFound) {
		return nil, fmt.Errorf("merge: %w", err)
	}
	out.Head = head

	headCommit, targetCommit, err := r.readPair(ctx, head, target)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	finder, err := r.Finder()
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	out.Analysis, err = analysis.Run(ctx, finder, head, target)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	log = log.WithField("analysis", out.Analysis.Kind)
	log.Debug("merge analyzed")

	switch {
	case out.Analysis.Kind == analysis.UpToDate:
		log.Info("already up to date")
		return out, nil

	case out.Analysis.CanFastForward():
		res, err := fastforward.Apply(r.Refs, fastforward.Request{
			Ref:      ref,
			Expected: head,
			Target:   target,
			Analysis: out.Analysis,
			Reason:   fmt.Sprintf("merge %s: fast-forward", target.Short()),
		})
		out.FastForward = &res
		if err != nil {
			return out, fmt.Errorf("merge: %w", err)
		}
		log.WithField("updated", res.Updated).Info("fast-forwarded")
		return out, nil

	case opts.FFOnly:
		return out, fmt.Errorf("merge %s into %s: %w", target.Short(), ref, ErrFastForwardOnly)
	}

	tm, err := r.mergeTrees(ctx, log, out.Analysis.Bases, headCommit.TreeHash, targetCommit.TreeHash)
	if err != nil {
		return out, fmt.Errorf("merge: %w", err)
	}
	out.TreeMerge = tm
	log = log.WithFields(logrus.Fields{"tree": tm.Tree.Short(), "conflicts": len(tm.Conflicts)})
	if !tm.Clean() || !opts.Commit {
		log.Info("trees merged")
		return out, nil
	}

	commit, err := r.commitMerge(ref, head, target, tm.Tree, opts)
	if err != nil {
		return out, fmt.Errorf("merge: %w", err)
	}
	out.Commit = commit
	log.WithField("commit", commit.Short()).Info("merge committed")
	return out, nil
}

// MergeCommits merges the trees of ours and theirs over their merge bases
// without touching any reference.
func (r *Repo) MergeCommits(ctx context.Context, ours, theirs object.Hash) (*TreeMerge, error) {
	log := r.Log.WithField("op", uuid.NewString())
	oc, tc, err := r.readPair(ctx, ours, theirs)
	if err != nil {
		return nil, fmt.Errorf("merge-tree: %w", err)
	}
	finder, err := r.Finder()
	if err != nil {
		return nil, fmt.Errorf("merge-tree: %w", err)
	}
	bases, err := finder.FindMergeBases(ctx, ours, theirs)
	if err != nil {
		return nil, fmt.Errorf("merge-tree: %w", err)
	}
	tm, err := r.mergeTrees(ctx, log, bases, oc.TreeHash, tc.TreeHash)
	if err != nil {
		return nil, fmt.Errorf("merge-tree: %w", err)
	}
	return tm, nil
}

// readPair reads both commits concurrently. An empty head yields a nil
// commit.
func (r *Repo) readPair(ctx context.Context, head, target object.Hash) (*object.CommitObj, *object.CommitObj, error) {
	var hc, tc *object.CommitObj
	g, gctx := errgroup.WithContext(ctx)
	if head != "" {
		g.Go(func() error {
			if err := graph.CheckContext(gctx); err != nil {
				return err
			}
			c, err := r.Objects.ReadCommit(head)
			if err != nil {
				return fmt.Errorf("read head commit: %w", err)
			}
			hc = c
			return nil
		})
	}
	g.Go(func() error {
		if err := graph.CheckContext(gctx); err != nil {
			return err
		}
		c, err := r.Objects.ReadCommit(target)
		if err != nil {
			return fmt.Errorf("read target commit: %w", err)
		}
		tc = c
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return hc, tc, nil
}

func (r *Repo) mergeTrees(ctx context.Context, log logrus.FieldLogger, bases []object.Hash, ours, theirs object.Hash) (*TreeMerge, error) {
	merger := r.contentMerger()
	strat, err := strategy.ByName(r.Config.Merge.Strategy, merger)
	if err != nil {
		return nil, err
	}
	if rec, ok := strat.(*strategy.Recursive); ok {
		rec.Limit = r.Config.Merge.RecursionLimit
		rec.Log = log
	}

	ancestor, reader, err := strat.AncestorTree(ctx, r.Objects, bases)
	if err != nil {
		return nil, err
	}
	res, err := treemerge.MergeTrees(ctx, reader, ancestor, ours, theirs, treemerge.Options{ContentMerger: merger})
	if err != nil {
		return nil, err
	}
	tree, err := treemerge.Write(r.Objects, res.Tree)
	if err != nil {
		return nil, err
	}
	for _, c := range res.Conflicts {
		log.WithFields(logrus.Fields{"path": c.Path, "kind": c.Kind}).Debug("conflict")
	}
	return &TreeMerge{
		Bases:     bases,
		Ancestor:  ancestor,
		Tree:      tree,
		Conflicts: res.Conflicts,
	}, nil
}

func (r *Repo) contentMerger() treemerge.ContentMerger {
	switch {
	case !r.Config.Merge.LineMerge:
		return nil
	case r.Config.Merge.Structural:
		return structural.Merger{}
	}
	return diff3.Merger{}
}

func (r *Repo) commitMerge(ref string, head, target, tree object.Hash, opts Options) (object.Hash, error) {
	author := opts.Author
	if author == "" {
		author = DefaultAuthor
	}
	message := opts.Message
	if message == "" {
		message = fmt.Sprintf("Merge %s into %s\n", target.Short(), ref)
	}
	commit, err := r.Objects.WriteCommit(&object.CommitObj{
		TreeHash:  tree,
		Parents:   []object.Hash{head, target},
		Author:    author,
		Timestamp: time.Now().Unix(),
		Message:   message,
	})
	if err != nil {
		return "", fmt.Errorf("merge commit: write: %w", err)
	}
	if err := r.Refs.CompareAndSwapRef(ref, head, commit, "merge: commit"); err != nil {
		return "", fmt.Errorf("merge commit: update ref %q: %w", ref, err)
	}
	return commit, nil
}
