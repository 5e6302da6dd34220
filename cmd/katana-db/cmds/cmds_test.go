package cmds

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katana-sh/katana/core/felt"
	"github.com/katana-sh/katana/core/types"
	"github.com/katana-sh/katana/kv"
	"github.com/katana-sh/katana/kv/lmdbkv"
	"github.com/katana-sh/katana/kv/tables"
	"github.com/katana-sh/katana/state/writer"
)

// beU64 mirrors chain's own big-endian block-number key encoding, used
// here only to plant a Headers row so chain.Store.LatestBlockNumber has
// a tip to find — these tests never read header contents back.
func beU64(v uint64) []byte {
	var out [8]byte
	for i := 0; i < 8; i++ {
		out[7-i] = byte(v >> (8 * i))
	}
	return out[:]
}

func seedOneBlock(t *testing.T, dir string) {
	t.Helper()
	env, err := lmdbkv.Open(dir, kv.RW)
	require.NoError(t, err)
	defer env.Close()

	address, key := felt.New(1), felt.New(2)
	su := types.NewStateUpdates()
	su.SetStorage(address, key, felt.New(10))
	su.NonceUpdates[types.NewFeltKey(address)] = felt.New(1)

	require.NoError(t, env.Update(context.Background(), func(tx kv.RwTx) error {
		if _, err := writer.NewWriter().InsertStateUpdates(tx, 1, su); err != nil {
			return err
		}
		return tx.Put(tables.Headers, beU64(1), []byte{0})
	}))
}

// seedTwoBlocks writes a changing storage value across blocks 1 and 2,
// so a block-2-tip Latest prune has real block-1 history rows to remove.
func seedTwoBlocks(t *testing.T, dir string) {
	t.Helper()
	env, err := lmdbkv.Open(dir, kv.RW)
	require.NoError(t, err)
	defer env.Close()

	address, key := felt.New(1), felt.New(2)
	w := writer.NewWriter()
	for i, v := range []int64{10, 20} {
		block := uint64(i + 1)
		su := types.NewStateUpdates()
		su.SetStorage(address, key, felt.New(v))
		su.NonceUpdates[types.NewFeltKey(address)] = felt.New(int64(i + 1))
		if i == 0 {
			su.DeployedContracts[types.NewFeltKey(address)] = felt.New(9)
			su.DeclaredClasses[types.NewFeltKey(felt.New(9))] = felt.New(77)
		}
		require.NoError(t, env.Update(context.Background(), func(tx kv.RwTx) error {
			if _, err := w.InsertStateUpdates(tx, block, su); err != nil {
				return err
			}
			return tx.Put(tables.Headers, beU64(block), []byte{0})
		}))
	}
}

func TestStatsCommandPrintsTableAndFreelist(t *testing.T) {
	dir := t.TempDir()
	seedOneBlock(t, dir)

	root := RootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{"stats", "--path", dir})
	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), "freelist pages:")
}

func TestVersionCommandWithoutPathPrintsBuiltinOnly(t *testing.T) {
	root := RootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), "schema version:")
	require.NotContains(t, out.String(), "stored version:")
}

func TestVersionCommandWithPathPrintsStored(t *testing.T) {
	dir := t.TempDir()
	seedOneBlock(t, dir)

	root := RootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{"version", "--path", dir})
	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), "stored version:")
}

func TestPruneCommandRequiresExactlyOneMode(t *testing.T) {
	dir := t.TempDir()
	seedOneBlock(t, dir)

	root := RootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"prune", "--path", dir})
	require.Error(t, root.Execute())

	root = RootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"prune", "--path", dir, "--latest", "--keep-last", "3"})
	require.Error(t, root.Execute())
}

func TestPruneCommandCancelsWithoutConfirmation(t *testing.T) {
	dir := t.TempDir()
	seedOneBlock(t, dir)

	root := RootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetIn(bytes.NewBufferString("n\n"))
	root.SetArgs([]string{"prune", "--path", dir, "--latest"})
	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), "cancelled")
}

func TestPruneCommandWithYesFlagRemovesHistory(t *testing.T) {
	dir := t.TempDir()
	seedTwoBlocks(t, dir)

	root := RootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{"prune", "--path", dir, "--latest", "-y"})
	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), "removed")
	require.NotContains(t, out.String(), "removed 0 rows")
}
