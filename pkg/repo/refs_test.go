package repo

import (
	"errors"
	"testing"

	"github.com/odvcencio/weave/pkg/refs"
)

func TestListAndDeleteBranches(t *testing.T) {
	g := divergedGraph(t)
	r, rs := newMemRepo(t, g, nil)
	setRef(t, rs, mainRef, g.Hash("ours"))
	setRef(t, rs, "refs/heads/topic", g.Hash("theirs"))
	setRef(t, rs, "refs/tags/v1", g.Hash("root"))

	heads, err := r.ListRefs("refs/heads/")
	if err != nil {
		t.Fatalf("ListRefs: %v", err)
	}
	if len(heads) != 2 || heads[0].Name != mainRef || heads[1].Name != "refs/heads/topic" {
		t.Fatalf("heads = %+v", heads)
	}

	if _, err := r.DeleteBranch("main"); !errors.Is(err, ErrCurrentBranch) {
		t.Fatalf("delete main: err = %v", err)
	}
	was, err := r.DeleteBranch("topic")
	if err != nil {
		t.Fatalf("DeleteBranch: %v", err)
	}
	if was != g.Hash("theirs") {
		t.Fatalf("deleted branch was %s", was)
	}
	if _, err := rs.ReadRef("refs/heads/topic"); !errors.Is(err, refs.ErrRefNotFound) {
		t.Fatalf("topic still readable: %v", err)
	}
	if _, err := r.DeleteBranch("topic"); !errors.Is(err, refs.ErrRefNotFound) {
		t.Fatalf("second delete: err = %v", err)
	}
}

func TestRenameBranchMovesHead(t *testing.T) {
	r, err := Init(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer r.Close()
	c := writeCommit(t, r, map[string]string{"a": "1\n"})
	setRef(t, r.Refs, DefaultBranch, c)
	setRef(t, r.Refs, "refs/heads/taken", c)

	if err := r.RenameBranch("main", "taken"); !errors.Is(err, refs.ErrRefUpdateRace) {
		t.Fatalf("rename onto existing branch: err = %v", err)
	}
	if err := r.RenameBranch("main", "trunk"); err != nil {
		t.Fatalf("RenameBranch: %v", err)
	}
	if got := readRef(t, r.Refs, "refs/heads/trunk"); got != c {
		t.Fatalf("trunk = %s, want %s", got, c)
	}
	if _, err := r.Refs.ReadRef(DefaultBranch); !errors.Is(err, refs.ErrRefNotFound) {
		t.Fatalf("main still readable: %v", err)
	}
	head, err := r.HeadRef()
	if err != nil || head != "refs/heads/trunk" {
		t.Fatalf("HEAD -> %q, %v", head, err)
	}
	log, err := r.Reflog("refs/heads/trunk", 1)
	if err != nil || len(log) != 1 || log[0].Reason != "branch: renamed refs/heads/main to refs/heads/trunk" {
		t.Fatalf("reflog = %+v, %v", log, err)
	}
}
