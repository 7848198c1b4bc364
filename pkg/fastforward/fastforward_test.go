package fastforward

import (
	"errors"
	"sync"
	"testing"

	"github.com/odvcencio/weave/pkg/analysis"
	"github.com/odvcencio/weave/pkg/object"
	"github.com/odvcencio/weave/pkg/refs"
)

const (
	oldHash  = object.Hash("1111111111111111111111111111111111111111")
	newHash  = object.Hash("2222222222222222222222222222222222222222")
	altHash  = object.Hash("3333333333333333333333333333333333333333")
	mainRef  = "refs/heads/main"
	ffReason = "merge topic: fast-forward"
)

func newStore(t *testing.T, at object.Hash) *refs.MemStore {
	t.Helper()
	s := refs.NewMemStore()
	if at != "" {
		if err := s.CompareAndSwapRef(mainRef, "", at, "init"); err != nil {
			t.Fatalf("seed ref: %v", err)
		}
	}
	return s
}

func ffRequest(expected, target object.Hash) Request {
	return Request{
		Ref:      mainRef,
		Expected: expected,
		Target:   target,
		Analysis: analysis.Analyze(expected, target, []object.Hash{expected}),
		Reason:   ffReason,
	}
}

func TestApplyMovesRefAndLogsPreviousValue(t *testing.T) {
	s := newStore(t, oldHash)

	res, err := Apply(s, ffRequest(oldHash, newHash))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.Updated || res.Old != oldHash || res.New != newHash {
		t.Fatalf("result = %+v", res)
	}
	if got, _ := s.ReadRef(mainRef); got != newHash {
		t.Fatalf("ref = %s, want %s", got, newHash)
	}
	log, err := s.ReadReflog(mainRef, 1)
	if err != nil || len(log) != 1 {
		t.Fatalf("ReadReflog = %v, %v", log, err)
	}
	if log[0].OldHash != oldHash || log[0].NewHash != newHash || log[0].Reason != ffReason {
		t.Fatalf("reflog entry = %+v", log[0])
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	s := newStore(t, oldHash)
	req := ffRequest(oldHash, newHash)
	if _, err := Apply(s, req); err != nil {
		t.Fatalf("first Apply: %v", err)
	}

	res, err := Apply(s, req)
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if res.Updated {
		t.Fatal("second Apply reported an update")
	}
	log, _ := s.ReadReflog(mainRef, 0)
	if len(log) != 2 {
		t.Fatalf("reflog has %d entries, want init plus one fast-forward", len(log))
	}
}

func TestApplyRejectsOtherAnalyses(t *testing.T) {
	s := newStore(t, oldHash)
	for _, kind := range []analysis.Kind{analysis.Normal, analysis.UpToDate} {
		req := ffRequest(oldHash, newHash)
		req.Analysis.Kind = kind
		_, err := Apply(s, req)
		if !errors.Is(err, ErrNotFastForwardable) {
			t.Fatalf("Apply with %s: got %v, want ErrNotFastForwardable", kind, err)
		}
	}
	if got, _ := s.ReadRef(mainRef); got != oldHash {
		t.Fatalf("ref moved to %s on a rejected request", got)
	}
}

func TestApplyUnbornRef(t *testing.T) {
	s := newStore(t, "")
	res, err := Apply(s, ffRequest("", newHash))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.Updated {
		t.Fatal("unborn ref was not created")
	}
	if got, _ := s.ReadRef(mainRef); got != newHash {
		t.Fatalf("ref = %s, want %s", got, newHash)
	}
}

func TestApplyDetectsStaleExpectation(t *testing.T) {
	s := newStore(t, altHash)
	_, err := Apply(s, ffRequest(oldHash, newHash))
	if !errors.Is(err, refs.ErrRefUpdateRace) {
		t.Fatalf("Apply: got %v, want ErrRefUpdateRace", err)
	}
	if got, _ := s.ReadRef(mainRef); got != altHash {
		t.Fatalf("ref overwritten: %s", got)
	}
}

func TestConcurrentApplyExactlyOneWins(t *testing.T) {
	for _, backend := range []struct {
		name  string
		store func(t *testing.T) refs.Store
	}{
		{"memory", func(t *testing.T) refs.Store { return newStore(t, oldHash) }},
		{"file", func(t *testing.T) refs.Store {
			s := refs.NewFileStore(t.TempDir())
			if err := s.CompareAndSwapRef(mainRef, "", oldHash, "init"); err != nil {
				t.Fatalf("seed ref: %v", err)
			}
			return s
		}},
	} {
		t.Run(backend.name, func(t *testing.T) {
			s := backend.store(t)
			targets := []object.Hash{newHash, altHash}
			errs := make([]error, len(targets))

			var wg sync.WaitGroup
			start := make(chan struct{})
			for i, target := range targets {
				wg.Add(1)
				go func(i int, target object.Hash) {
					defer wg.Done()
					<-start
					_, errs[i] = Apply(s, ffRequest(oldHash, target))
				}(i, target)
			}
			close(start)
			wg.Wait()

			wins, races := 0, 0
			var winner object.Hash
			for i, err := range errs {
				switch {
				case err == nil:
					wins++
					winner = targets[i]
				case errors.Is(err, refs.ErrRefUpdateRace):
					races++
				default:
					t.Fatalf("unexpected error: %v", err)
				}
			}
			if wins != 1 || races != 1 {
				t.Fatalf("wins=%d races=%d, want exactly one of each", wins, races)
			}
			if got, _ := s.ReadRef(mainRef); got != winner {
				t.Fatalf("ref = %s, want winner %s", got, winner)
			}
		})
	}
}
