package contracts

import (
	"context"
	"testing"

	"github.com/coldchain/ledger/internal/chain"
	"github.com/coldchain/ledger/internal/storage"
	"github.com/coldchain/ledger/internal/worldstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorldState(t *testing.T) *worldstate.WorldState {
	t.Helper()
	store, err := storage.NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return worldstate.New(store)
}

func deployPharma(t *testing.T, ctx context.Context, ws *worldstate.WorldState) string {
	t.Helper()
	tx := &chain.Transaction{
		Nonce:     0,
		Sender:    "0xdeployer",
		Recipient: chain.DeploySentinel,
		Data:      `{"contract":"PharmaContract","args":{"min_temp":-2000,"max_temp":800}}`,
		Timestamp: 1700000000,
		Signature: "genesis",
	}
	hash, err := tx.ComputeHash()
	require.NoError(t, err)
	tx.Hash = hash

	require.NoError(t, Execute(ctx, ws, tx))

	addr, ok, err := ws.FindContractAddressByName(ctx, "PharmaContract")
	require.NoError(t, err)
	require.True(t, ok)
	return addr
}

func callRecordTemperature(t *testing.T, ctx context.Context, ws *worldstate.WorldState, addr, shipmentID string, temp int64) {
	t.Helper()
	tx := &chain.Transaction{
		Nonce:     1,
		Sender:    "0xreporter",
		Recipient: addr,
		Data:      `{"method":"record_temperature","params":{"shipment_id":"` + shipmentID + `","temp":` + itoa(temp) + `,"location":["lat","lon"]}}`,
		Timestamp: 1700000001,
		Signature: "sig",
	}
	hash, err := tx.ComputeHash()
	require.NoError(t, err)
	tx.Hash = hash
	require.NoError(t, Execute(ctx, ws, tx))
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{byte('0' + n%10)}, buf...)
		n /= 10
	}
	if neg {
		buf = append([]byte{'-'}, buf...)
	}
	return string(buf)
}

func TestDeployAndRecordInRange(t *testing.T) {
	ctx := context.Background()
	ws := newTestWorldState(t)
	addr := deployPharma(t, ctx, ws)

	callRecordTemperature(t, ctx, ws, addr, "shipment-1", -500)

	storageDict, err := ws.GetContractStorage(ctx, addr)
	require.NoError(t, err)
	shipments := storageDict["shipments"].(map[string]interface{})
	shipment := shipments["shipment-1"].(map[string]interface{})
	assert.Equal(t, "IN_TRANSIT", shipment["status"])
}

func TestBreachIsSticky(t *testing.T) {
	ctx := context.Background()
	ws := newTestWorldState(t)
	addr := deployPharma(t, ctx, ws)

	callRecordTemperature(t, ctx, ws, addr, "shipment-1", 5000) // out of range -2000..800
	callRecordTemperature(t, ctx, ws, addr, "shipment-1", -500) // back in range, should stay breached

	storageDict, err := ws.GetContractStorage(ctx, addr)
	require.NoError(t, err)
	shipments := storageDict["shipments"].(map[string]interface{})
	shipment := shipments["shipment-1"].(map[string]interface{})
	assert.Equal(t, "BREACHED", shipment["status"])

	readings := shipment["readings"].([]interface{})
	assert.Len(t, readings, 2)
}

func TestUnknownMethodErrors(t *testing.T) {
	ctx := context.Background()
	ws := newTestWorldState(t)
	addr := deployPharma(t, ctx, ws)

	tx := &chain.Transaction{
		Nonce: 2, Sender: "0xreporter", Recipient: addr,
		Data: `{"method":"explode","params":{}}`, Timestamp: 1700000002, Signature: "sig",
	}
	hash, err := tx.ComputeHash()
	require.NoError(t, err)
	tx.Hash = hash

	err = Execute(ctx, ws, tx)
	assert.Error(t, err)
}

func TestUnknownContractCodeErrors(t *testing.T) {
	ctx := context.Background()
	ws := newTestWorldState(t)

	tx := &chain.Transaction{
		Nonce: 0, Sender: "0xdeployer", Recipient: chain.DeploySentinel,
		Data: "NoSuchContract", Timestamp: 1700000000, Signature: "genesis",
	}
	hash, err := tx.ComputeHash()
	require.NoError(t, err)
	tx.Hash = hash

	err = Execute(ctx, ws, tx)
	assert.Error(t, err)
}
