package analysis

import (
	"context"
	"testing"

	"github.com/odvcencio/weave/internal/fixture"
	"github.com/odvcencio/weave/pkg/mergebase"
	"github.com/odvcencio/weave/pkg/object"
)

func TestAnalyzeRules(t *testing.T) {
	head := object.Hash("aaaa")
	target := object.Hash("bbbb")
	other := object.Hash("cccc")

	tests := []struct {
		name   string
		head   object.Hash
		target object.Hash
		bases  []object.Hash
		want   Kind
	}{
		{"same commit", head, head, []object.Hash{head}, UpToDate},
		{"head is base", head, target, []object.Hash{head}, FastForward},
		{"target is base", head, target, []object.Hash{target}, UpToDate},
		{"diverged", head, target, []object.Hash{other}, Normal},
		{"unrelated", head, target, nil, Normal},
		{"criss-cross including head", head, target, []object.Hash{head, other}, Normal},
		{"unborn head", "", target, nil, Unborn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Analyze(tt.head, tt.target, tt.bases)
			if got.Kind != tt.want {
				t.Fatalf("Analyze = %s, want %s", got.Kind, tt.want)
			}
			if len(got.Bases) != len(tt.bases) {
				t.Fatalf("bases = %v, want %v", got.Bases, tt.bases)
			}
		})
	}
}

func TestAnalyzeSameCommitWinsOverBases(t *testing.T) {
	h := object.Hash("aaaa")
	if got := Analyze(h, h, nil); got.Kind != UpToDate {
		t.Fatalf("Analyze(h, h) = %s, want up-to-date", got.Kind)
	}
}

func TestRunStrictAncestorFastForwards(t *testing.T) {
	g := fixture.New(t)
	g.Linear("c", 4, "")
	f := mergebase.NewFinder(g.Store)

	got, err := Run(context.Background(), f, g.Hash("c1"), g.Hash("c3"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got.Kind != FastForward || !got.CanFastForward() {
		t.Fatalf("Run = %s, want fast-forward", got.Kind)
	}

	got, err = Run(context.Background(), f, g.Hash("c3"), g.Hash("c1"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got.Kind != UpToDate {
		t.Fatalf("Run = %s, want up-to-date", got.Kind)
	}
}

func TestRunDivergedNeedsTreeMerge(t *testing.T) {
	g := fixture.New(t)
	g.Commit("root", "")
	g.Commit("ours", "", "root")
	g.Commit("theirs", "", "root")

	got, err := Run(context.Background(), mergebase.NewFinder(g.Store), g.Hash("ours"), g.Hash("theirs"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !got.NeedsTreeMerge() {
		t.Fatalf("Run = %s, want normal", got.Kind)
	}
	if len(got.Bases) != 1 || got.Bases[0] != g.Hash("root") {
		t.Fatalf("bases = %v, want [root]", g.Names(got.Bases))
	}
}
