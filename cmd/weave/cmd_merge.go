package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/weave/pkg/analysis"
	"github.com/odvcencio/weave/pkg/repo"
)

func newMergeCmd(open repoOpener) *cobra.Command {
	var opts repo.Options

	cmd := &cobra.Command{
		Use:   "merge <ref> <target>",
		Short: "Merge target into ref",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := open()
			if err != nil {
				return err
			}
			defer r.Close()

			target, err := r.ResolveRevision(args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "merging %s into %s...\n", args[1], args[0])

			res, err := r.Merge(cmd.Context(), args[0], target, opts)
			if err != nil {
				return err
			}

			switch {
			case res.Analysis.Kind == analysis.UpToDate:
				fmt.Fprintln(out, "already up to date")
			case res.FastForward != nil:
				if res.Head == "" {
					fmt.Fprintf(out, "created %s at %s\n", res.Ref, target.Short())
				} else {
					fmt.Fprintf(out, "fast-forward %s..%s\n", res.Head.Short(), target.Short())
				}
			case !res.TreeMerge.Clean():
				for _, c := range res.TreeMerge.Conflicts {
					fmt.Fprintf(out, "  %s: CONFLICT (%s)\n", c.Path, c.Kind)
				}
				n := len(res.TreeMerge.Conflicts)
				fmt.Fprintf(out, "merge tree %s has %d conflict", res.TreeMerge.Tree.Short(), n)
				if n != 1 {
					fmt.Fprint(out, "s")
				}
				fmt.Fprintln(out)
			case res.Commit != "":
				fmt.Fprintln(out, "merge completed cleanly")
				fmt.Fprintf(out, "[%s %s] Merge %s\n", res.Ref, res.Commit.Short(), args[1])
			default:
				fmt.Fprintf(out, "merge completed cleanly: tree %s\n", res.TreeMerge.Tree)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.FFOnly, "ff-only", false, "refuse to merge unless the ref can fast-forward")
	cmd.Flags().BoolVar(&opts.Commit, "commit", false, "write a merge commit and move the ref when the merge is clean")
	cmd.Flags().StringVar(&opts.Author, "author", "", "author of the merge commit")
	cmd.Flags().StringVarP(&opts.Message, "message", "m", "", "merge commit message")
	return cmd
}
