package cmds

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/katana-sh/katana/chain"
	"github.com/katana-sh/katana/katanacfg"
	"github.com/katana-sh/katana/kv"
	"github.com/katana-sh/katana/kv/kverrors"
	"github.com/katana-sh/katana/kv/lmdbkv"
	"github.com/katana-sh/katana/prune"
)

func newPruneCommand() *cobra.Command {
	var (
		path      string
		latest    bool
		keepLast  uint64
		assumeYes bool
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "remove historical trie data, keeping either the latest state or the last N blocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			keepLastSet := cmd.Flags().Changed("keep-last")
			if latest == keepLastSet {
				return fmt.Errorf("%w: exactly one of --latest or --keep-last is required", kverrors.ErrValidation)
			}
			if keepLastSet && keepLast < 1 {
				return fmt.Errorf("%w: --keep-last must be >= 1", kverrors.ErrValidation)
			}

			cfg, err := katanacfg.Resolve(path)
			if err != nil {
				return err
			}
			env, err := lmdbkv.Open(cfg.Path, kv.RW)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := cmd.Context()
			store := chain.New(env)
			var latestBlock uint64
			if err := env.View(ctx, func(tx kv.RoTx) error {
				n, found, err := store.LatestBlockNumber(tx)
				if found {
					latestBlock = n
				}
				return err
			}); err != nil {
				return err
			}

			req := prune.Request{LatestBlock: latestBlock}
			if latest {
				req.Mode = prune.Latest
			} else {
				req.Mode = prune.KeepLastN
				req.KeepLast = keepLast
			}

			p := prune.New(env)
			counted, err := p.Count(ctx, req)
			if errors.Is(err, prune.ErrNoop) {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to prune")
				return nil
			} else if err != nil {
				return err
			}

			if !assumeYes {
				ok, err := confirm(cmd, counted)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "cancelled")
					return nil
				}
			}

			mutated, err := p.Mutate(ctx, req)
			if errors.Is(err, prune.ErrNoop) {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to prune")
				return nil
			} else if err != nil {
				return err
			}

			var totalRemoved uint64
			for _, n := range mutated {
				totalRemoved += n
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d rows across %d tables\n", totalRemoved, len(mutated))
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "data directory path")
	cmd.Flags().BoolVar(&latest, "latest", false, "keep only the latest state, pruning all history")
	cmd.Flags().Uint64Var(&keepLast, "keep-last", 0, "keep the last N blocks of history")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "skip the confirmation prompt")
	cmd.MarkFlagRequired("path")
	return cmd
}

func confirm(cmd *cobra.Command, counted prune.PruningStats) (bool, error) {
	var total uint64
	for _, n := range counted {
		total += n
	}
	fmt.Fprintf(cmd.OutOrStdout(), "this will remove %d rows across %d tables. proceed? [y/N] ", total, len(counted))
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return false, nil
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
