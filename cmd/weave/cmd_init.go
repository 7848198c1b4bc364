package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/odvcencio/weave/pkg/config"
	"github.com/odvcencio/weave/pkg/repo"
)

func newInitCmd(dir *string) *cobra.Command {
	cfg := config.Default()
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create an empty weave repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *dir
			if len(args) > 0 {
				path = args[0]
			}

			abs, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			if err := os.MkdirAll(abs, 0o755); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}
			if cfg.Backend == config.BackendGit && cfg.HashAlgorithm == config.Default().HashAlgorithm {
				cfg.HashAlgorithm = "sha1"
			}

			r, err := repo.Init(abs, cfg)
			if err != nil {
				return err
			}
			defer r.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "initialized empty weave repository in %s\n", r.Dir+string(filepath.Separator))
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.Backend, "backend", cfg.Backend, "storage backend: file, badger or git")
	cmd.Flags().StringVar(&cfg.HashAlgorithm, "hash", cfg.HashAlgorithm, "object hash algorithm: sha256, sha1 or blake2b")
	cmd.Flags().StringVar(&cfg.GitDir, "git-dir", "", "git repository to use with --backend=git")
	cmd.Flags().StringVar(&cfg.Merge.Strategy, "strategy", cfg.Merge.Strategy, "merge base strategy: recursive or recent")
	return cmd
}
