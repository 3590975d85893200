package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kwestlund/cooldb"
)

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <dir>",
		Short: "Open a data directory, running recovery if needed, and report its system key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := cooldb.Open(args[0], cooldb.Options{})
			if err != nil {
				return err
			}
			defer db.Close()

			rec := db.SystemKey()
			fmt.Printf("instance:      %s\n", rec.InstanceID)
			fmt.Printf("nextTransID:   %d\n", rec.NextTransID)
			fmt.Printf("masterLSN:     %d\n", rec.MasterLSN)
			return nil
		},
	}
}
