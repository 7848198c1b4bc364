package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/odvcencio/weave/pkg/object"
	"github.com/odvcencio/weave/pkg/refs"
	"github.com/odvcencio/weave/pkg/treemerge"
)

var (
	// ErrMainlineRequired is returned when reverting a merge commit without
	// choosing which parent to revert against.
	ErrMainlineRequired = errors.New("commit is a merge but no mainline was given")
	// ErrMainlineInvalid is returned for a mainline that names no parent.
	ErrMainlineInvalid = errors.New("mainline does not name a parent of the commit")
)

// RevertOptions controls Revert.
type RevertOptions struct {
	// Mainline is the 1-based parent of a merge commit whose side is kept.
	// It must be zero for ordinary commits.
	Mainline int
	// Commit writes the revert commit and moves the ref when the merge is
	// clean.
	Commit  bool
	Author  string
	Message string
}

// RevertOutcome reports what Revert did.
type RevertOutcome struct {
	OpID      string
	Ref       string
	Head      object.Hash
	Reverted  object.Hash
	Parent    object.Hash // empty when a root commit was reverted
	TreeMerge *TreeMerge
	Commit    object.Hash
}

// Revert undoes commit on top of the commit ref points at. The reverted
// commit's tree is the ancestor, the head tree is ours and the chosen
// parent's tree is theirs, so only the changes commit introduced are taken
// back.
func (r *Repo) Revert(ctx context.Context, ref string, commit object.Hash, opts RevertOptions) (*RevertOutcome, error) {
	ref, err := r.branchRef(ref)
	if err != nil {
		return nil, fmt.Errorf("revert: %w", err)
	}
	out := &RevertOutcome{OpID: uuid.NewString(), Ref: ref, Reverted: commit}
	log := r.Log.WithFields(logrus.Fields{"op": out.OpID, "ref": ref, "revert": commit.Short()})

	head, err := r.Refs.ReadRef(ref)
	if err != nil {
		return nil, fmt.Errorf("revert: %w", err)
	}
	out.Head = head

	headCommit, reverted, err := r.readPair(ctx, head, commit)
	if err != nil {
		return nil, fmt.Errorf("revert: %w", err)
	}
	out.Parent, err = mainlineParent(reverted, opts.Mainline)
	if err != nil {
		return nil, fmt.Errorf("revert %s: %w", commit.Short(), err)
	}

	var parentTree object.Hash
	if out.Parent != "" {
		pc, err := r.Objects.ReadCommit(out.Parent)
		if err != nil {
			return nil, fmt.Errorf("revert: read parent: %w", err)
		}
		parentTree = pc.TreeHash
	} else if parentTree, err = r.Objects.WriteTree(&object.TreeObj{}); err != nil {
		return nil, fmt.Errorf("revert: %w", err)
	}

	res, err := treemerge.MergeTrees(ctx, r.Objects, reverted.TreeHash, headCommit.TreeHash, parentTree,
		treemerge.Options{ContentMerger: r.contentMerger()})
	if err != nil {
		return out, fmt.Errorf("revert: %w", err)
	}
	tree, err := treemerge.Write(r.Objects, res.Tree)
	if err != nil {
		return out, fmt.Errorf("revert: %w", err)
	}
	out.TreeMerge = &TreeMerge{Ancestor: reverted.TreeHash, Tree: tree, Conflicts: res.Conflicts}
	log = log.WithFields(logrus.Fields{"tree": tree.Short(), "conflicts": len(res.Conflicts)})
	if !out.TreeMerge.Clean() || !opts.Commit {
		log.Info("revert tree merged")
		return out, nil
	}

	message := opts.Message
	if message == "" {
		message = revertMessage(commit, reverted, out.Parent)
	}
	author := opts.Author
	if author == "" {
		author = DefaultAuthor
	}
	out.Commit, err = r.Objects.WriteCommit(&object.CommitObj{
		TreeHash:  tree,
		Parents:   []object.Hash{head},
		Author:    author,
		Timestamp: time.Now().Unix(),
		Message:   message,
	})
	if err != nil {
		return out, fmt.Errorf("revert: write commit: %w", err)
	}
	reason := "revert: " + Subject(reverted.Message)
	if err := r.Refs.CompareAndSwapRef(ref, head, out.Commit, reason); err != nil {
		return out, fmt.Errorf("revert: update ref %q: %w", ref, err)
	}
	log.WithField("commit", out.Commit.Short()).Info("revert committed")
	return out, nil
}

func mainlineParent(c *object.CommitObj, mainline int) (object.Hash, error) {
	switch n := len(c.Parents); {
	case n > 1 && mainline == 0:
		return "", ErrMainlineRequired
	case n > 1 && (mainline < 1 || mainline > n):
		return "", fmt.Errorf("%w: %d of %d", ErrMainlineInvalid, mainline, n)
	case n > 1:
		return c.Parents[mainline-1], nil
	case mainline != 0:
		return "", fmt.Errorf("%w: commit is not a merge", ErrMainlineInvalid)
	case n == 1:
		return c.Parents[0], nil
	}
	return "", nil
}

func revertMessage(h object.Hash, c *object.CommitObj, parent object.Hash) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Revert %q\n\nThis reverts commit %s", Subject(c.Message), h)
	if len(c.Parents) > 1 {
		fmt.Fprintf(&b, ", reversing\nchanges made to %s", parent)
	}
	b.WriteString(".\n")
	return b.String()
}

// branchRef normalizes a user-supplied ref and resolves HEAD to the branch
// it points at.
func (r *Repo) branchRef(ref string) (string, error) {
	ref = refs.NormalizeName(ref)
	if ref != "HEAD" {
		return ref, nil
	}
	return r.HeadRef()
}
