package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kwestlund/cooldb"
	"github.com/kwestlund/cooldb/internal/walog"
	"github.com/kwestlund/cooldb/storage"
)

func dumpLogCmd() *cobra.Command {
	var fromLSN uint64

	cmd := &cobra.Command{
		Use:   "dump-log <dir>",
		Short: "Iterate the redo log from fromLSN (default: the current firewall) and print each record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := cooldb.Open(args[0], cooldb.Options{})
			if err != nil {
				return err
			}
			defer db.Close()

			redo := db.RedoLog().Redo
			start := storage.LSN(fromLSN)
			if !cmd.Flags().Changed("from") {
				start = redo.Firewall()
			}
			it := redo.Iterator(start)
			for it.HasNext() {
				lsn, buf, err := it.Next()
				if err != nil {
					return err
				}
				rec, err := walog.DecodeRedoRecord(buf, lsn)
				if err != nil {
					return err
				}
				fmt.Printf("%10d  %-16s txn=%-6d page=%v undoNxt=%d\n",
					lsn, rec.Type, rec.TransID, rec.Page, rec.UndoNxtLSN)
			}
			return nil
		},
	}

	cmd.Flags().Uint64Var(&fromLSN, "from", 0, "LSN to start scanning from (default: the log's firewall)")
	return cmd
}
