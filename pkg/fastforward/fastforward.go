// Package fastforward relocates a reference along an existing ancestry
// chain without merging any content.
package fastforward

import (
	"errors"
	"fmt"

	"github.com/odvcencio/weave/pkg/analysis"
	"github.com/odvcencio/weave/pkg/object"
	"github.com/odvcencio/weave/pkg/refs"
)

// ErrNotFastForwardable is returned when the analysis does not permit a
// fast-forward. It signals a caller bug rather than a repository state.
var ErrNotFastForwardable = errors.New("not fast-forwardable")

// DefaultReason is recorded in the reflog when Request.Reason is empty.
const DefaultReason = "merge: fast-forward"

// Request describes one fast-forward.
type Request struct {
	Ref string
	// Expected is the value Ref held when Analysis was computed; empty for
	// an unborn ref.
	Expected object.Hash
	Target   object.Hash
	Analysis analysis.Analysis
	Reason   string
}

// Result reports what Apply did. Updated is false when Ref already pointed
// at Target.
type Result struct {
	Ref     string
	Old     object.Hash
	New     object.Hash
	Updated bool
}

// Apply moves req.Ref from req.Expected to req.Target with a single
// compare-and-swap. A concurrent move of the ref fails with
// refs.ErrRefUpdateRace; the caller should re-resolve and retry the whole
// merge decision. Applying a request whose target is already current is a
// successful no-op.
func Apply(store refs.Store, req Request) (Result, error) {
	res := Result{Ref: req.Ref, Old: req.Expected, New: req.Target}
	if !req.Analysis.CanFastForward() {
		return res, fmt.Errorf("fast-forward %s: %w (analysis: %s)", req.Ref, ErrNotFastForwardable, req.Analysis.Kind)
	}
	if req.Target == "" {
		return res, fmt.Errorf("fast-forward %s: empty target", req.Ref)
	}

	current, err := store.ReadRef(req.Ref)
	switch {
	case errors.Is(err, refs.ErrRefNotFound):
		current = ""
	case err != nil:
		return res, fmt.Errorf("fast-forward %s: %w", req.Ref, err)
	}
	if current == req.Target {
		res.Old = current
		return res, nil
	}

	reason := req.Reason
	if reason == "" {
		reason = DefaultReason
	}
	if err := store.CompareAndSwapRef(req.Ref, req.Expected, req.Target, reason); err != nil {
		if errors.Is(err, refs.ErrRefUpdatedButReflogAppendFailed) {
			res.Updated = true
		}
		return res, fmt.Errorf("fast-forward %s: %w", req.Ref, err)
	}
	res.Updated = true
	return res, nil
}
