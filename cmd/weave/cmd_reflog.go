package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newReflogCmd(open repoOpener) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "reflog [ref]",
		Short: "Show ref update history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := open()
			if err != nil {
				return err
			}
			defer r.Close()

			ref := "HEAD"
			if len(args) == 1 {
				ref = args[0]
			}
			if ref == "HEAD" {
				if ref, err = r.HeadRef(); err != nil {
					return err
				}
			}
			entries, err := r.Reflog(ref, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, e := range entries {
				ts := time.Unix(e.Timestamp, 0).UTC().Format(time.RFC3339)
				fmt.Fprintf(out, "%s %s %s %s\n", e.NewHash.Short(), ts, e.Ref, e.Reason)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to show")
	return cmd
}
