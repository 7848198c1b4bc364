package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/weave/pkg/repo"
)

func newRevertCmd(open repoOpener) *cobra.Command {
	var (
		opts repo.RevertOptions
		ref  string
	)

	cmd := &cobra.Command{
		Use:   "revert <commit>",
		Short: "Undo the changes a commit introduced",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := open()
			if err != nil {
				return err
			}
			defer r.Close()

			commit, err := r.ResolveRevision(args[0])
			if err != nil {
				return err
			}
			res, err := r.Revert(cmd.Context(), ref, commit, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case !res.TreeMerge.Clean():
				for _, c := range res.TreeMerge.Conflicts {
					fmt.Fprintf(out, "  %s: CONFLICT (%s)\n", c.Path, c.Kind)
				}
				return fmt.Errorf("could not revert %s: %d conflicts in tree %s",
					commit.Short(), len(res.TreeMerge.Conflicts), res.TreeMerge.Tree.Short())
			case res.Commit != "":
				fmt.Fprintf(out, "[%s %s] Revert %s\n", res.Ref, res.Commit.Short(), commit.Short())
			default:
				fmt.Fprintf(out, "revert tree %s\n", res.TreeMerge.Tree)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ref, "ref", "HEAD", "branch to revert on")
	cmd.Flags().IntVarP(&opts.Mainline, "mainline", "m", 0, "parent number of a merge commit to revert against")
	cmd.Flags().BoolVar(&opts.Commit, "commit", false, "write the revert commit and move the ref when clean")
	cmd.Flags().StringVar(&opts.Author, "author", "", "author of the revert commit")
	cmd.Flags().StringVar(&opts.Message, "message", "", "revert commit message")
	return cmd
}
