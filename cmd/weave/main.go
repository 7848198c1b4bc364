package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/odvcencio/weave/pkg/object"
	"github.com/odvcencio/weave/pkg/repo"
)

const version = "weave 0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dir string
	root := &cobra.Command{
		Use:           "weave",
		Short:         "Merge decisions over content-addressed history",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&dir, "dir", "C", ".", "run as if started in this directory")

	open := func() (*repo.Repo, error) { return repo.Open(dir) }

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(&dir))
	root.AddCommand(newMergeBaseCmd(open))
	root.AddCommand(newMergeTreeCmd(open))
	root.AddCommand(newAnalyzeCmd(open))
	root.AddCommand(newMergeCmd(open))
	root.AddCommand(newReflogCmd(open))
	root.AddCommand(newLogCmd(open))
	root.AddCommand(newRevertCmd(open))
	root.AddCommand(newForEachRefCmd(open))
	root.AddCommand(newBranchCmd(open))
	return root
}

type repoOpener func() (*repo.Repo, error)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

// resolveAll resolves every revision in revs.
func resolveAll(r *repo.Repo, revs []string) ([]object.Hash, error) {
	out := make([]object.Hash, 0, len(revs))
	for _, rev := range revs {
		h, err := r.ResolveRevision(rev)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}
