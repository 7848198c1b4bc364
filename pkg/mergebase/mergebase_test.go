package mergebase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/odvcencio/weave/internal/fixture"
	"github.com/odvcencio/weave/pkg/graph"
	"github.com/odvcencio/weave/pkg/object"
)

func assertBases(t *testing.T, g *fixture.Graph, got []object.Hash, want ...string) {
	t.Helper()
	names := g.Names(got)
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("merge bases = %v, want %v", names, want)
	}
}

// buildCrissCross creates two lineages that each merged the other's first
// commit, leaving a1 and b1 as equally good merge bases of a3 and b3.
func buildCrissCross(t *testing.T) *fixture.Graph {
	t.Helper()
	g := fixture.New(t)
	g.Commit("root", "")
	g.Commit("a1", "", "root")
	g.Commit("b1", "", "root")
	g.Commit("a2", "", "a1", "b1")
	g.Commit("b2", "", "b1", "a1")
	g.Commit("a3", "", "a2")
	g.Commit("b3", "", "b2")
	return g
}

func TestFindMergeBases_SameCommit(t *testing.T) {
	g := fixture.New(t)
	g.Linear("c", 3, "")

	got, err := FindMergeBases(context.Background(), g.Store, g.Hash("c1"), g.Hash("c1"))
	if err != nil {
		t.Fatalf("FindMergeBases: %v", err)
	}
	assertBases(t, g, got, "c1")
}

func TestFindMergeBases_StrictAncestor(t *testing.T) {
	g := fixture.New(t)
	g.Linear("c", 6, "")

	ctx := context.Background()
	for _, order := range [][2]string{{"c1", "c5"}, {"c5", "c1"}} {
		got, err := FindMergeBases(ctx, g.Store, g.Hash(order[0]), g.Hash(order[1]))
		if err != nil {
			t.Fatalf("FindMergeBases(%v): %v", order, err)
		}
		assertBases(t, g, got, "c1")
	}
}

func TestFindMergeBases_Diverged(t *testing.T) {
	g := fixture.New(t)
	g.Linear("base", 3, "")
	g.Linear("left", 4, "base2")
	g.Linear("right", 2, "base2")

	got, err := FindMergeBases(context.Background(), g.Store, g.Hash("left3"), g.Hash("right1"))
	if err != nil {
		t.Fatalf("FindMergeBases: %v", err)
	}
	assertBases(t, g, got, "base2")
}

func TestFindMergeBases_Unrelated(t *testing.T) {
	g := fixture.New(t)
	g.Linear("x", 3, "")
	g.Linear("y", 2, "")

	got, err := FindMergeBases(context.Background(), g.Store, g.Hash("x2"), g.Hash("y1"))
	if err != nil {
		t.Fatalf("FindMergeBases: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("unrelated histories produced bases %v", g.Names(got))
	}
}

func TestFindMergeBases_CrissCross(t *testing.T) {
	g := buildCrissCross(t)
	ctx := context.Background()
	f := NewFinder(g.Store)

	got, err := f.FindMergeBases(ctx, g.Hash("a3"), g.Hash("b3"))
	if err != nil {
		t.Fatalf("FindMergeBases: %v", err)
	}
	assertBases(t, g, got, "a1", "b1")

	for _, x := range got {
		for _, y := range got {
			if x == y {
				continue
			}
			anc, err := f.IsAncestor(ctx, x, y)
			if err != nil {
				t.Fatalf("IsAncestor: %v", err)
			}
			if anc {
				t.Fatalf("base %s is an ancestor of base %s", x, y)
			}
		}
	}
}

func TestFindMergeBases_MergeCommitAsBase(t *testing.T) {
	g := fixture.New(t)
	g.Commit("root", "")
	g.Commit("a", "", "root")
	g.Commit("b", "", "root")
	g.Commit("m", "", "a", "b")
	g.Commit("x", "", "m")
	g.Commit("y", "", "m")

	got, err := FindMergeBases(context.Background(), g.Store, g.Hash("x"), g.Hash("y"))
	if err != nil {
		t.Fatalf("FindMergeBases: %v", err)
	}
	assertBases(t, g, got, "m")
}

func TestFindMergeBases_ClockSkew(t *testing.T) {
	g := fixture.New(t)
	g.CommitAt("root", 1000, "")
	g.CommitAt("old", 10, "", "root")
	g.CommitAt("left", 2000, "", "old", "root")
	g.CommitAt("right", 2001, "", "old", "root")

	got, err := FindMergeBases(context.Background(), g.Store, g.Hash("left"), g.Hash("right"))
	if err != nil {
		t.Fatalf("FindMergeBases: %v", err)
	}
	assertBases(t, g, got, "old")
}

func TestFindMergeBases_ResultOrderedNewestFirst(t *testing.T) {
	g := buildCrissCross(t)
	got, err := FindMergeBases(context.Background(), g.Store, g.Hash("b3"), g.Hash("a3"))
	if err != nil {
		t.Fatalf("FindMergeBases: %v", err)
	}
	if len(got) != 2 || got[0] != g.Hash("b1") || got[1] != g.Hash("a1") {
		t.Fatalf("bases = %v, want [b1 a1]", g.Names(got))
	}
}

func TestFindMergeBases_MissingParent(t *testing.T) {
	g := fixture.New(t)
	g.Commit("root", "")
	missing := object.Hash(strings.Repeat("e", 64))
	orphan, err := g.Store.WriteCommit(&object.CommitObj{
		TreeHash:  g.EmptyTree(),
		Parents:   []object.Hash{missing},
		Timestamp: 1_800_000_000,
	})
	if err != nil {
		t.Fatalf("WriteCommit: %v", err)
	}

	_, err = FindMergeBases(context.Background(), g.Store, orphan, g.Hash("root"))
	if !errors.Is(err, object.ErrObjectNotFound) {
		t.Fatalf("FindMergeBases: got %v, want ErrObjectNotFound", err)
	}
}

func TestFindMergeBases_Cancelled(t *testing.T) {
	g := fixture.New(t)
	g.Linear("l", 10, "")
	g.Linear("r", 10, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := FindMergeBases(ctx, g.Store, g.Hash("l9"), g.Hash("r9"))
	if !errors.Is(err, graph.ErrCancelled) {
		t.Fatalf("FindMergeBases: got %v, want graph.ErrCancelled", err)
	}
}

func TestFindMergeBases_StepLimit(t *testing.T) {
	g := fixture.New(t)
	g.Linear("l", 30, "")
	g.Linear("r", 30, "")

	f := NewFinder(g.Store, WithMaxSteps(5))
	_, err := f.FindMergeBases(context.Background(), g.Hash("l29"), g.Hash("r29"))
	if !errors.Is(err, ErrTraversalLimit) {
		t.Fatalf("FindMergeBases: got %v, want ErrTraversalLimit", err)
	}
}

func TestFindMergeBasesMany(t *testing.T) {
	g := fixture.New(t)
	g.Commit("root", "")
	g.Commit("base", "", "root")
	g.Commit("one", "", "base")
	g.Commit("other", "", "root")
	g.Commit("third", "", "base")

	f := NewFinder(g.Store)
	got, err := f.FindMergeBasesMany(context.Background(), g.Hash("one"), g.Hash("other"), g.Hash("third"))
	if err != nil {
		t.Fatalf("FindMergeBasesMany: %v", err)
	}
	assertBases(t, g, got, "base")
}

func TestFindOctopusMergeBases(t *testing.T) {
	g := fixture.New(t)
	g.Commit("root", "")
	g.Commit("mid", "", "root")
	g.Commit("a", "", "mid")
	g.Commit("b", "", "mid")
	g.Commit("c", "", "root")

	f := NewFinder(g.Store)
	got, err := f.FindOctopusMergeBases(context.Background(), g.Hash("a"), g.Hash("b"), g.Hash("c"))
	if err != nil {
		t.Fatalf("FindOctopusMergeBases: %v", err)
	}
	assertBases(t, g, got, "root")

	got, err = f.FindOctopusMergeBases(context.Background(), g.Hash("a"), g.Hash("b"))
	if err != nil {
		t.Fatalf("FindOctopusMergeBases: %v", err)
	}
	assertBases(t, g, got, "mid")
}

func TestIsAncestor(t *testing.T) {
	g := buildCrissCross(t)
	ctx := context.Background()
	tests := []struct {
		anc, desc string
		want      bool
	}{
		{"root", "a3", true},
		{"b1", "a3", true},
		{"a3", "root", false},
		{"a2", "b3", false},
		{"a2", "a2", true},
	}
	for _, tt := range tests {
		got, err := IsAncestor(ctx, g.Store, g.Hash(tt.anc), g.Hash(tt.desc))
		if err != nil {
			t.Fatalf("IsAncestor(%s, %s): %v", tt.anc, tt.desc, err)
		}
		if got != tt.want {
			t.Errorf("IsAncestor(%s, %s) = %v, want %v", tt.anc, tt.desc, got, tt.want)
		}
	}
}

func TestReduce(t *testing.T) {
	g := buildCrissCross(t)
	f := NewFinder(g.Store)
	got, err := f.Reduce(context.Background(), []object.Hash{
		g.Hash("root"), g.Hash("a1"), g.Hash("b1"), g.Hash("a1"),
	})
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	assertBases(t, g, got, "a1", "b1")
}

func TestFinderCacheSharedAcrossGoroutines(t *testing.T) {
	g := buildCrissCross(t)
	cache := NewCache()
	f := NewFinder(g.Store, WithCache(cache))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := g.Hash("a3"), g.Hash("b3")
			if i%2 == 1 {
				a, b = b, a
			}
			got, err := f.FindMergeBases(context.Background(), a, b)
			if err != nil {
				t.Errorf("FindMergeBases: %v", err)
				return
			}
			if len(got) != 2 {
				t.Errorf("bases = %d, want 2", len(got))
			}
		}(i)
	}
	wg.Wait()

	if cache.Len() != 1 {
		t.Fatalf("cache entries = %d, want 1 canonical pair", cache.Len())
	}
}

// gatedReader blocks the first commit read until release is closed.
type gatedReader struct {
	graph.CommitReader
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (r *gatedReader) ReadCommit(h object.Hash) (*object.CommitObj, error) {
	r.once.Do(func() {
		close(r.entered)
		<-r.release
	})
	return r.CommitReader.ReadCommit(h)
}

func TestFinderCacheCancelledCallerDoesNotFailOthers(t *testing.T) {
	g := buildCrissCross(t)
	r := &gatedReader{CommitReader: g.Store, entered: make(chan struct{}), release: make(chan struct{})}
	f := NewFinder(r, WithCache(NewCache()))

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := f.FindMergeBases(ctx, g.Hash("a3"), g.Hash("b3"))
		first <- err
	}()
	<-r.entered

	type result struct {
		bases []object.Hash
		err   error
	}
	second := make(chan result, 1)
	go func() {
		bases, err := f.FindMergeBases(context.Background(), g.Hash("b3"), g.Hash("a3"))
		second <- result{bases, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	if err := <-first; !errors.Is(err, graph.ErrCancelled) {
		t.Fatalf("cancelled caller: got %v, want ErrCancelled", err)
	}
	close(r.release)

	res := <-second
	if res.err != nil {
		t.Fatalf("live caller: %v", res.err)
	}
	assertBases(t, g, res.bases, "a1", "b1")
}
