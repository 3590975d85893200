// Command cooldb is an operability tool for a CoolDB data directory: it
// never speaks the engine's storage API on behalf of an application, only
// opens a database (running recovery as a side effect) to report on its
// state.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cooldb",
		Short: "Operability tool for a CoolDB data directory",
	}
	root.AddCommand(checkCmd(), dumpLogCmd(), statsCmd())
	return root
}
