package cmds

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/katana-sh/katana/katanacfg"
	"github.com/katana-sh/katana/kv/lmdbkv"
)

func newVersionCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "print the built-in schema version, and the stored one if --path is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", lmdbkv.SchemaVersion)
			if path == "" {
				return nil
			}
			cfg, err := katanacfg.Resolve(path)
			if err != nil {
				return err
			}
			stored, found, err := lmdbkv.StoredVersion(cfg.Path)
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintln(cmd.OutOrStdout(), "stored version: none (never opened for write)")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored version: %d\n", stored)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "data directory path")
	return cmd
}
