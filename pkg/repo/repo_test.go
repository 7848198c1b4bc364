package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/weave/pkg/config"
	"github.com/odvcencio/weave/pkg/object"
)

func writeCommit(t *testing.T, r *Repo, files map[string]string, parents ...object.Hash) object.Hash {
	t.Helper()
	tree := &object.TreeObj{}
	for name, content := range files {
		h, err := r.Objects.WriteBlob(&object.Blob{Data: []byte(content)})
		if err != nil {
			t.Fatalf("WriteBlob: %v", err)
		}
		tree.Entries = append(tree.Entries, object.TreeEntry{Name: name, Mode: object.TreeModeFile, Hash: h})
	}
	th, err := r.Objects.WriteTree(tree)
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	h, err := r.Objects.WriteCommit(&object.CommitObj{
		TreeHash:  th,
		Parents:   parents,
		Author:    "test <test@example.com>",
		Timestamp: int64(1_700_000_000 + len(parents)),
		Message:   "test\n",
	})
	if err != nil {
		t.Fatalf("WriteCommit: %v", err)
	}
	return h
}

func TestInitCreatesLayout(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir, nil)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer r.Close()

	for _, p := range []string{"objects", "refs/heads", "HEAD", config.FileName} {
		if _, err := os.Stat(filepath.Join(dir, DirName, filepath.FromSlash(p))); err != nil {
			t.Fatalf("missing %s: %v", p, err)
		}
	}
	head, err := r.HeadRef()
	if err != nil {
		t.Fatalf("HeadRef: %v", err)
	}
	if head != DefaultBranch {
		t.Fatalf("HEAD -> %q, want %q", head, DefaultBranch)
	}

	if _, err := Init(dir, nil); err == nil {
		t.Fatal("second Init should fail")
	}
}

func TestOpenSearchesUpward(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.HashAlgorithm = "blake2b"
	r, err := Init(dir, cfg)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	c := writeCommit(t, r, map[string]string{"f": "1"})
	if err := r.Refs.CompareAndSwapRef(DefaultBranch, "", c, "init"); err != nil {
		t.Fatalf("CAS: %v", err)
	}

	sub := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	opened, err := Open(sub)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer opened.Close()
	if opened.RootDir != dir {
		t.Fatalf("RootDir = %q, want %q", opened.RootDir, dir)
	}
	if opened.Config.HashAlgorithm != "blake2b" {
		t.Fatalf("config not loaded: %+v", opened.Config)
	}
	got, err := opened.ResolveRevision("HEAD")
	if err != nil {
		t.Fatalf("ResolveRevision(HEAD): %v", err)
	}
	if got != c {
		t.Fatalf("HEAD = %s, want %s", got, c)
	}
}

func TestOpenOutsideRepository(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Fatal("expected error outside a repository")
	}
}

func TestInitRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = config.BackendGit
	if _, err := Init(t.TempDir(), cfg); err == nil {
		t.Fatal("expected git backend without git_dir to be rejected")
	}
}

func TestBadgerBackendMerge(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Backend = config.BackendBadger
	r, err := Init(dir, cfg)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	root := writeCommit(t, r, map[string]string{"a": "1\n", "b": "1\n"})
	ours := writeCommit(t, r, map[string]string{"a": "2\n", "b": "1\n"}, root)
	theirs := writeCommit(t, r, map[string]string{"a": "1\n", "b": "2\n"}, root)
	if err := r.Refs.CompareAndSwapRef(DefaultBranch, "", ours, "init"); err != nil {
		t.Fatalf("CAS: %v", err)
	}

	out, err := r.Merge(context.Background(), "HEAD", theirs, Options{Commit: true})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if out.Ref != DefaultBranch || out.Commit == "" {
		t.Fatalf("outcome = %+v", out)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.ResolveRevision("main")
	if err != nil {
		t.Fatalf("ResolveRevision: %v", err)
	}
	if got != out.Commit {
		t.Fatalf("main = %s, want %s", got, out.Commit)
	}
	log, err := reopened.Reflog("main", 0)
	if err != nil {
		t.Fatalf("Reflog: %v", err)
	}
	if len(log) != 2 || log[0].Reason != "merge: commit" {
		t.Fatalf("reflog = %+v", log)
	}
}

func TestResolveRevision(t *testing.T) {
	r, err := Init(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer r.Close()

	c0 := writeCommit(t, r, map[string]string{"f": "0"})
	c1 := writeCommit(t, r, map[string]string{"f": "1"}, c0)
	c2 := writeCommit(t, r, map[string]string{"f": "2"}, c1)
	if err := r.Refs.CompareAndSwapRef(DefaultBranch, "", c2, "init"); err != nil {
		t.Fatal(err)
	}
	if err := r.Refs.CompareAndSwapRef("refs/tags/v1", "", c1, "tag"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		rev  string
		want object.Hash
	}{
		{"HEAD", c2},
		{"main", c2},
		{"refs/heads/main", c2},
		{"v1", c1},
		{string(c0), c0},
		{"main^", c1},
		{"main~2", c0},
		{"HEAD~1^", c0},
		{"main~", c1},
	}
	for _, tc := range tests {
		got, err := r.ResolveRevision(tc.rev)
		if err != nil {
			t.Fatalf("ResolveRevision(%q): %v", tc.rev, err)
		}
		if got != tc.want {
			t.Fatalf("ResolveRevision(%q) = %s, want %s", tc.rev, got, tc.want)
		}
	}

	for _, rev := range []string{"nope", "main~3", "", "main@{1}"} {
		if _, err := r.ResolveRevision(rev); !errors.Is(err, ErrUnknownRevision) {
			t.Fatalf("ResolveRevision(%q) err = %v, want ErrUnknownRevision", rev, err)
		}
	}
}
