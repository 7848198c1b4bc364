package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/odvcencio/weave/pkg/object"
	"github.com/odvcencio/weave/pkg/treemerge"
)

func newMergeTreeCmd(open repoOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "merge-tree <branch1> <branch2>",
		Short: "Merge two commits' trees without touching any ref",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := open()
			if err != nil {
				return err
			}
			defer r.Close()

			hashes, err := resolveAll(r, args)
			if err != nil {
				return err
			}
			tm, err := r.MergeCommits(cmd.Context(), hashes[0], hashes[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, tm.Tree)
			for _, c := range tm.Conflicts {
				printConflict(out, c)
			}
			return nil
		},
	}
}

func printConflict(out io.Writer, c treemerge.Conflict) {
	side := func(e *object.TreeEntry) string {
		if e == nil {
			return "NULL"
		}
		return c.Path
	}
	fmt.Fprintf(out, "conflict: a:%s o:%s t:%s\n", side(c.Ancestor), side(c.Ours), side(c.Theirs))
}
