// Package cmds builds the katana-db cobra command tree: stats, version
// and prune, each resolving its --path flag through katanacfg before
// touching the storage engine.
package cmds

import "github.com/spf13/cobra"

// RootCommand assembles the full katana-db command tree.
func RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "katana-db",
		Short:         "maintenance CLI for the katana storage engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newStatsCommand())
	root.AddCommand(newVersionCommand())
	root.AddCommand(newPruneCommand())
	return root
}
