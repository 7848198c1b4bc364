package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/weave/pkg/analysis"
	"github.com/odvcencio/weave/pkg/repo"
)

func newAnalyzeCmd(open repoOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <ref> <target>",
		Short: "Classify merging target into ref",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := open()
			if err != nil {
				return err
			}
			defer r.Close()

			// A branch with no commits yet is unborn, not an error.
			head, err := r.ResolveRevision(args[0])
			if errors.Is(err, repo.ErrUnknownRevision) {
				head, err = "", nil
			}
			if err != nil {
				return err
			}
			target, err := r.ResolveRevision(args[1])
			if err != nil {
				return err
			}
			finder, err := r.Finder()
			if err != nil {
				return err
			}
			a, err := analysis.Run(cmd.Context(), finder, head, target)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, a.Kind)
			for _, b := range a.Bases {
				fmt.Fprintf(out, "base %s\n", b)
			}
			return nil
		},
	}
}
