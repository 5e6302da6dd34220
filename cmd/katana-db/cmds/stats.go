package cmds

import (
	"fmt"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/katana-sh/katana/katanacfg"
	"github.com/katana-sh/katana/kv"
	"github.com/katana-sh/katana/kv/lmdbkv"
	"github.com/katana-sh/katana/kv/tables"
	"github.com/katana-sh/katana/metrics"
)

func newStatsCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "print per-table row counts, sizes and the freelist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := katanacfg.Resolve(path)
			if err != nil {
				return err
			}
			env, err := lmdbkv.Open(cfg.Path, kv.RO)
			if err != nil {
				return err
			}
			defer env.Close()

			stats, err := env.Stats()
			if err != nil {
				return err
			}
			metrics.RecordTableStats(stats)
			renderStats(cmd, stats)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "data directory path")
	cmd.MarkFlagRequired("path")
	return cmd
}

func renderStats(cmd *cobra.Command, stats kv.EnvStats) {
	names := make([]tables.Name, 0, len(stats.Tables))
	for name := range stats.Tables {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	w := tablewriter.NewWriter(cmd.OutOrStdout())
	w.SetHeader([]string{"table", "entries", "depth", "branch pages", "leaf pages", "overflow pages", "total size"})

	var totalEntries, totalSize uint64
	for _, name := range names {
		ts := stats.Tables[name]
		w.Append([]string{
			string(name),
			fmt.Sprint(ts.Entries),
			fmt.Sprint(ts.Depth),
			fmt.Sprint(ts.BranchPages),
			fmt.Sprint(ts.LeafPages),
			fmt.Sprint(ts.OverflowPages),
			fmt.Sprint(ts.TotalSize),
		})
		totalEntries += ts.Entries
		totalSize += ts.TotalSize
	}
	w.SetFooter([]string{"total", fmt.Sprint(totalEntries), "", "", "", "", fmt.Sprint(totalSize)})
	w.Render()
	fmt.Fprintf(cmd.OutOrStdout(), "freelist pages: %d\n", stats.Freelist)
}
