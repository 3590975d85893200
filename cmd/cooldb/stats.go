package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/kwestlund/cooldb"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <dir>",
		Short: "Open a data directory and print buffer pool / lock manager / checkpoint metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := cooldb.Open(args[0], cooldb.Options{})
			if err != nil {
				return err
			}
			defer db.Close()

			families, err := db.Metrics().Gather()
			if err != nil {
				return err
			}
			sort.Slice(families, func(i, j int) bool {
				return families[i].GetName() < families[j].GetName()
			})

			for _, fam := range families {
				for _, m := range fam.GetMetric() {
					switch {
					case m.GetCounter() != nil:
						fmt.Printf("%-45s %v\n", fam.GetName(), m.GetCounter().GetValue())
					case m.GetGauge() != nil:
						fmt.Printf("%-45s %v\n", fam.GetName(), m.GetGauge().GetValue())
					case m.GetHistogram() != nil:
						h := m.GetHistogram()
						fmt.Printf("%-45s count=%d sum=%v\n", fam.GetName(), h.GetSampleCount(), h.GetSampleSum())
					}
				}
			}
			return nil
		},
	}
}
