package classcache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katana-sh/katana/core/felt"
	"github.com/katana-sh/katana/core/types"
	"github.com/katana-sh/katana/kv/kverrors"
)

func TestInitTwiceFailsWithAlreadyInitialized(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	_, err := Init()
	require.NoError(t, err)

	_, err = Init()
	require.ErrorIs(t, err, kverrors.ErrAlreadyInitialized)
}

func TestGetPutRoundTrip(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	c, err := Init()
	require.NoError(t, err)

	hash := felt.New(42)
	_, ok := c.Get(hash)
	require.False(t, ok)

	class := &types.ContractClass{Kind: types.ClassKindSierra}
	c.Put(hash, class)

	got, ok := c.Get(hash)
	require.True(t, ok)
	require.Same(t, class, got)
	require.Equal(t, 1, c.Len())
}

func TestGlobalReflectsInit(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	require.Nil(t, Global())
	c, err := Init()
	require.NoError(t, err)
	require.Same(t, c, Global())
}
