package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/weave/pkg/object"
)

func newMergeBaseCmd(open repoOpener) *cobra.Command {
	var all, octopus, isAncestor bool

	cmd := &cobra.Command{
		Use:   "merge-base <commit> <commit>...",
		Short: "Find the best common ancestors of commits",
		Args:  cobra.MinimumNArgs(2),
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
			finder, err := r.Finder()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if isAncestor {
				if len(hashes) != 2 {
					return fmt.Errorf("--is-ancestor takes exactly two commits")
				}
				ok, err := finder.IsAncestor(ctx, hashes[0], hashes[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ok)
				return nil
			}

			var bases []object.Hash
			if octopus {
				bases, err = finder.FindOctopusMergeBases(ctx, hashes...)
			} else {
				bases, err = finder.FindMergeBasesMany(ctx, hashes[0], hashes[1:]...)
			}
			if err != nil {
				return err
			}
			if len(bases) == 0 {
				return fmt.Errorf("no merge base found")
			}
			if !all {
				bases = bases[:1]
			}
			out := cmd.OutOrStdout()
			for _, b := range bases {
				fmt.Fprintln(out, b)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "print every merge base instead of one")
	cmd.Flags().BoolVar(&octopus, "octopus", false, "find bases common to all commits")
	cmd.Flags().BoolVar(&isAncestor, "is-ancestor", false, "report whether the first commit is an ancestor of the second")
	return cmd
}
