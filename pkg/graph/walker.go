// Package graph walks commit history. Walks are lazy, never yield a commit
// twice and keep all traversal state in the walker, so any number of walkers
// may share one object store concurrently.
package graph

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/odvcencio/weave/pkg/object"
)

// ErrCancelled is returned when a walk observes a cancelled context.
var ErrCancelled = errors.New("walk cancelled")

// ErrStop may be returned from a ForEach callback to end the walk early
// without an error.
var ErrStop = errors.New("stop walk")

// CommitReader is the part of object.Reader a history walk needs.
type CommitReader interface {
	ReadCommit(h object.Hash) (*object.CommitObj, error)
}

// CheckContext converts a done context into an ErrCancelled error.
func CheckContext(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return nil
}

// ReadCommit reads h and wraps failures with the walk operation name.
func ReadCommit(r CommitReader, h object.Hash) (*object.CommitObj, error) {
	c, err := r.ReadCommit(h)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", h, err)
	}
	return c, nil
}

// Walker yields the ancestors of its start commits (starts included) in
// reverse chronological order by commit time.
type Walker struct {
	r      CommitReader
	starts []object.Hash
	queue  Queue
	seen   map[object.Hash]struct{}
	primed bool
}

// NewWalker creates a walker. No objects are read until the first Next.
func NewWalker(r CommitReader, starts ...object.Hash) *Walker {
	return &Walker{
		r:      r,
		starts: starts,
		seen:   make(map[object.Hash]struct{}),
	}
}

func (w *Walker) prime() error {
	w.primed = true
	for _, h := range w.starts {
		if h == "" {
			continue
		}
		if _, ok := w.seen[h]; ok {
			continue
		}
		c, err := ReadCommit(w.r, h)
		if err != nil {
			return fmt.Errorf("walk: %w", err)
		}
		w.seen[h] = struct{}{}
		w.queue.Push(h, c)
	}
	return nil
}

// Next returns the next commit, or io.EOF once history is exhausted. A
// missing parent fails the walk with an error wrapping
// object.ErrObjectNotFound.
func (w *Walker) Next(ctx context.Context) (object.Hash, *object.CommitObj, error) {
	if err := CheckContext(ctx); err != nil {
		return "", nil, err
	}
	if !w.primed {
		if err := w.prime(); err != nil {
			return "", nil, err
		}
	}
	if w.queue.Len() == 0 {
		return "", nil, io.EOF
	}

	h, c := w.queue.Pop()
	for _, p := range c.Parents {
		if p == "" {
			continue
		}
		if _, ok := w.seen[p]; ok {
			continue
		}
		pc, err := ReadCommit(w.r, p)
		if err != nil {
			return "", nil, fmt.Errorf("walk: parent of %s: %w", h, err)
		}
		w.seen[p] = struct{}{}
		w.queue.Push(p, pc)
	}
	return h, c, nil
}

// ForEach calls fn for each commit until history is exhausted, fn returns
// ErrStop, or an error occurs.
func (w *Walker) ForEach(ctx context.Context, fn func(h object.Hash, c *object.CommitObj) error) error {
	for {
		h, c, err := w.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(h, c); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
}
