package strategy

import (
	"context"
	"testing"

	"github.com/odvcencio/weave/internal/fixture"
	"github.com/odvcencio/weave/pkg/diff3"
	"github.com/odvcencio/weave/pkg/mergebase"
	"github.com/odvcencio/weave/pkg/object"
	"github.com/odvcencio/weave/pkg/treemerge"
)

// crissCross builds two lineages that merged each other's first commit.
// a1 edits the first line of f and b1 the last, so the bases merge cleanly
// line by line.
func crissCross(t *testing.T) *fixture.Graph {
	t.Helper()
	g := fixture.New(t)
	g.Commit("root", g.Tree(map[string]string{"f": "1\n2\n3\n"}))
	g.Commit("a1", g.Tree(map[string]string{"f": "A\n2\n3\n"}), "root")
	g.Commit("b1", g.Tree(map[string]string{"f": "1\n2\nB\n"}), "root")
	both := g.Tree(map[string]string{"f": "A\n2\nB\n"})
	g.Commit("a2", both, "a1", "b1")
	g.Commit("b2", both, "b1", "a1")
	g.Commit("a3", g.Tree(map[string]string{"f": "A\n2\nB\n", "x": "a3"}), "a2")
	g.Commit("b3", g.Tree(map[string]string{"f": "A\n2\nB\n", "y": "b3"}), "b2")
	return g
}

func basesOf(t *testing.T, g *fixture.Graph, a, b string) []object.Hash {
	t.Helper()
	bases, err := mergebase.FindMergeBases(context.Background(), g.Store, g.Hash(a), g.Hash(b))
	if err != nil {
		t.Fatalf("FindMergeBases: %v", err)
	}
	if len(bases) != 2 {
		t.Fatalf("bases = %v, want two", g.Names(bases))
	}
	return bases
}

func treeOf(t *testing.T, g *fixture.Graph, name string) object.Hash {
	t.Helper()
	c, err := g.Store.ReadCommit(g.Hash(name))
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	return c.TreeHash
}

func TestStrategiesTrivialBaseSets(t *testing.T) {
	g := fixture.New(t)
	tree := g.Tree(map[string]string{"f": "x"})
	g.Commit("only", tree)

	for _, s := range []BaseStrategy{MostRecent{}, &Recursive{}} {
		got, r, err := s.AncestorTree(context.Background(), g.Store, nil)
		if err != nil || got != "" || r == nil {
			t.Fatalf("%T with no bases = %q, %v, %v; want empty tree", s, got, r, err)
		}
		got, _, err = s.AncestorTree(context.Background(), g.Store, []object.Hash{g.Hash("only")})
		if err != nil || got != tree {
			t.Fatalf("%T with one base = %q, %v; want %s", s, got, err, tree)
		}
	}
}

func TestMostRecentPicksNewestBase(t *testing.T) {
	g := crissCross(t)
	bases := basesOf(t, g, "a3", "b3")

	got, _, err := MostRecent{}.AncestorTree(context.Background(), g.Store, bases)
	if err != nil {
		t.Fatalf("AncestorTree: %v", err)
	}
	if want := treeOf(t, g, "b1"); got != want {
		t.Fatalf("ancestor tree = %s, want b1's tree %s", got, want)
	}
}

func TestMostRecentTieBreaksOnHash(t *testing.T) {
	g := fixture.New(t)
	g.CommitAt("p", 100, g.Tree(map[string]string{"f": "p"}))
	g.CommitAt("q", 100, g.Tree(map[string]string{"f": "q"}))
	p, q := g.Hash("p"), g.Hash("q")
	want, smaller := treeOf(t, g, "p"), p
	if q < p {
		want, smaller = treeOf(t, g, "q"), q
	}

	for _, order := range [][]object.Hash{{p, q}, {q, p}} {
		got, _, err := MostRecent{}.AncestorTree(context.Background(), g.Store, order)
		if err != nil {
			t.Fatalf("AncestorTree: %v", err)
		}
		if got != want {
			t.Fatalf("ancestor tree = %s, want tree of %s", got, smaller)
		}
	}
}

func TestRecursiveSynthesizesVirtualBase(t *testing.T) {
	g := crissCross(t)
	bases := basesOf(t, g, "a3", "b3")
	before := g.Store.Len()

	s := &Recursive{ContentMerger: diff3.Merger{}}
	got, r, err := s.AncestorTree(context.Background(), g.Store, bases)
	if err != nil {
		t.Fatalf("AncestorTree: %v", err)
	}
	if want := treeOf(t, g, "a2"); got != want {
		t.Fatalf("virtual base tree = %s, want the tree both merges agreed on (%s)", got, want)
	}
	if g.Store.Len() != before {
		t.Fatalf("store grew from %d to %d objects; virtual objects must stay in the overlay", before, g.Store.Len())
	}

	res, err := treemerge.MergeTrees(context.Background(), r, got, treeOf(t, g, "a3"), treeOf(t, g, "b3"), treemerge.Options{})
	if err != nil {
		t.Fatalf("MergeTrees: %v", err)
	}
	if !res.Clean() {
		t.Fatalf("merge over virtual base has conflicts: %+v", res.Conflicts)
	}
	for _, name := range []string{"f", "x", "y"} {
		if _, ok := res.Tree.Find(name); !ok {
			t.Fatalf("merged tree missing %q", name)
		}
	}
}

func TestRecursiveKeepsConflictedVirtualContent(t *testing.T) {
	g := crissCross(t)
	bases := basesOf(t, g, "a3", "b3")

	got, r, err := (&Recursive{}).AncestorTree(context.Background(), g.Store, bases)
	if err != nil {
		t.Fatalf("AncestorTree: %v", err)
	}
	tr, err := r.ReadTree(got)
	if err != nil {
		t.Fatalf("ReadTree: %v", err)
	}
	f, ok := tr.Find("f")
	if !ok {
		t.Fatal("virtual base lost f")
	}
	b, err := r.ReadBlob(f.Hash)
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	// Without a line merger the older base (a1) is the ours side.
	if string(b.Data) != "A\n2\n3\n" {
		t.Fatalf("virtual f = %q, want a1's staged content", b.Data)
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"", "recursive", "Recursive"} {
		s, err := ByName(name, nil)
		if err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
		if _, ok := s.(*Recursive); !ok {
			t.Fatalf("ByName(%q) = %T, want *Recursive", name, s)
		}
	}
	if s, err := ByName("recent", nil); err != nil || s != (MostRecent{}) {
		t.Fatalf("ByName(recent) = %v, %v", s, err)
	}
	if _, err := ByName("octopus", nil); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}
