package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/weave/pkg/graph"
	"github.com/odvcencio/weave/pkg/object"
	"github.com/odvcencio/weave/pkg/repo"
)

func newLogCmd(open repoOpener) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "log [rev...]",
		Short: "List commits reachable from revisions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := open()
			if err != nil {
				return err
			}
			defer r.Close()

			if len(args) == 0 {
				args = []string{"HEAD"}
			}
			starts, err := resolveAll(r, args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			n := 0
			return r.History(cmd.Context(), starts, func(h object.Hash, c *object.CommitObj) error {
				fmt.Fprintf(out, "%s %s\n", h.Short(), repo.Subject(c.Message))
				n++
				if limit > 0 && n >= limit {
					return graph.ErrStop
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum commits to show (0 for all)")
	return cmd
}
