package worldstate

import (
	"context"
	"testing"

	"github.com/coldchain/ledger/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorldState(t *testing.T) *WorldState {
	t.Helper()
	store, err := storage.NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store)
}

func TestContractCodeRoundTrip(t *testing.T) {
	ctx := context.Background()
	ws := newTestWorldState(t)

	code, err := ws.GetContractCode(ctx, "0xabc")
	require.NoError(t, err)
	assert.Empty(t, code)

	require.NoError(t, ws.SetContractCode(ctx, "0xabc", "PharmaContract"))
	code, err = ws.GetContractCode(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "PharmaContract", code)
}

func TestContractStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	ws := newTestWorldState(t)

	empty, err := ws.GetContractStorage(ctx, "0xabc")
	require.NoError(t, err)
	assert.Empty(t, empty)

	want := map[string]interface{}{"min_temp": float64(-20), "owner": "0xdead"}
	require.NoError(t, ws.SetContractStorage(ctx, "0xabc", want))

	got, err := ws.GetContractStorage(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStateRootChangesWithStorage(t *testing.T) {
	ctx := context.Background()
	ws := newTestWorldState(t)

	before, err := ws.StateRoot(ctx)
	require.NoError(t, err)

	require.NoError(t, ws.SetContractStorage(ctx, "0xabc", map[string]interface{}{"a": 1}))
	after, err := ws.StateRoot(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
}

func TestStateRootIgnoresContractCode(t *testing.T) {
	ctx := context.Background()
	ws := newTestWorldState(t)

	before, err := ws.StateRoot(ctx)
	require.NoError(t, err)

	require.NoError(t, ws.SetContractCode(ctx, "0xabc", "PharmaContract"))
	after, err := ws.StateRoot(ctx)
	require.NoError(t, err)

	assert.Equal(t, before, after, "state root folds contract_storage: entries only")
}

func TestFindContractAddressByName(t *testing.T) {
	ctx := context.Background()
	ws := newTestWorldState(t)

	_, ok, err := ws.FindContractAddressByName(ctx, "PharmaContract")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, ws.SetContractCode(ctx, "0xabc", "PharmaContract"))
	addr, ok, err := ws.FindContractAddressByName(ctx, "PharmaContract")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "0xabc", addr)
}
