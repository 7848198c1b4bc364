package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/weave/pkg/object"
)

func newForEachRefCmd(open repoOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "for-each-ref [prefix]",
		Short: "List refs with the objects they point at",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := open()
			if err != nil {
				return err
			}
			defer r.Close()

			prefix := "refs/"
			if len(args) == 1 {
				prefix = args[0]
			}
			list, err := r.ListRefs(prefix)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, ref := range list {
				fmt.Fprintf(out, "%s %-6s\t%s\n", ref.Hash, objectKind(r.Objects, ref.Hash), ref.Name)
			}
			return nil
		},
	}
	return cmd
}

func objectKind(r object.Reader, h object.Hash) string {
	if _, err := r.ReadCommit(h); err == nil {
		return "commit"
	}
	if _, err := r.ReadTree(h); err == nil {
		return "tree"
	}
	if _, err := r.ReadBlob(h); err == nil {
		return "blob"
	}
	return "?"
}
