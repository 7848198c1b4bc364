package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/odvcencio/weave/pkg/graph"
	"github.com/odvcencio/weave/pkg/object"
)

// History calls fn for every commit reachable from starts, newest first, until
// history ends or fn returns graph.ErrStop.
func (r *Repo) History(ctx context.Context, starts []object.Hash, fn func(object.Hash, *object.CommitObj) error) error {
	if err := graph.NewWalker(r.Objects, starts...).ForEach(ctx, fn); err != nil {
		return fmt.Errorf("history: %w", err)
	}
	return nil
}

// Subject returns the first line of a commit message.
func Subject(message string) string {
	line, _, _ := strings.Cut(strings.TrimLeft(message, "\n"), "\n")
	return strings.TrimSpace(line)
}
