package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newBranchCmd(open repoOpener) *cobra.Command {
	var del, rename bool

	cmd := &cobra.Command{
		Use:   "branch [-d <branch> | -m <old> <new>]",
		Short: "List, delete or rename branches",
		Args: func(cmd *cobra.Command, args []string) error {
			switch {
			case del && rename:
				return fmt.Errorf("-d and -m are mutually exclusive")
			case del:
				return cobra.ExactArgs(1)(cmd, args)
			case rename:
				return cobra.ExactArgs(2)(cmd, args)
			}
			return cobra.NoArgs(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := open()
			if err != nil {
				return err
			}
			defer r.Close()

			out := cmd.OutOrStdout()
			switch {
			case del:
				was, err := r.DeleteBranch(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Deleted branch %s (was %s).\n", args[0], was.Short())
				return nil
			case rename:
				return r.RenameBranch(args[0], args[1])
			}

			head, err := r.HeadRef()
			if err != nil {
				return err
			}
			branches, err := r.ListRefs("refs/heads/")
			if err != nil {
				return err
			}
			for _, b := range branches {
				mark := " "
				if b.Name == head {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %s %s\n", mark, strings.TrimPrefix(b.Name, "refs/heads/"), b.Hash.Short())
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&del, "delete", "d", false, "delete a branch")
	cmd.Flags().BoolVarP(&rename, "move", "m", false, "rename a branch")
	return cmd
}
