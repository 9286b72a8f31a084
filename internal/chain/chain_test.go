package chain

import (
	"context"
	"testing"

	"github.com/coldchain/ledger/internal/chaincrypto"
	"github.com/coldchain/ledger/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBlockStore(t *testing.T) *BlockStore {
	t.Helper()
	store, err := storage.NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	bs, err := NewBlockStore(store)
	require.NoError(t, err)
	return bs
}

func signedTx(t *testing.T, nonce uint64) *Transaction {
	t.Helper()
	kp, err := chaincrypto.GenerateKeyPair()
	require.NoError(t, err)
	tx := &Transaction{
		Nonce:     nonce,
		Recipient: "0xdeadbeef",
		Amount:    10,
		Data:      "",
		Timestamp: 1700000000,
	}
	require.NoError(t, tx.Sign(kp))
	return tx
}

func TestTransactionSignAndVerify(t *testing.T) {
	tx := signedTx(t, 0)
	assert.True(t, tx.Verify())

	tx.Amount = 999
	assert.False(t, tx.Verify(), "mutated amount must invalidate the signature")
}

func TestGenesisDeterministic(t *testing.T) {
	a := NewGenesisBlock()
	a.Header.StateRoot = "abc123"
	a.RecomputeHash()

	b := NewGenesisBlock()
	b.Header.StateRoot = "abc123"
	b.RecomputeHash()

	assert.Equal(t, a.HashValue, b.HashValue)
	assert.Equal(t, GenesisParentHash, a.Header.PrevHash)
	assert.Equal(t, uint64(0), a.Header.Index)
}

func TestBlockHashChangesWithStateRoot(t *testing.T) {
	b := NewGenesisBlock()
	before := b.HashValue
	b.Header.StateRoot = "deadbeef"
	b.RecomputeHash()
	assert.NotEqual(t, before, b.HashValue)
}

func TestBlockStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	bs := newTestBlockStore(t)

	head, err := bs.GetHeadBlock(ctx)
	require.NoError(t, err)
	assert.Nil(t, head, "empty store has no head block")

	genesis := NewGenesisBlock()
	genesis.Header.StateRoot = "00"
	genesis.RecomputeHash()
	require.NoError(t, bs.SaveBlock(ctx, genesis))

	head, err = bs.GetHeadBlock(ctx)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, genesis.HashValue, head.HashValue)

	byHeight, err := bs.GetBlockByHeight(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, byHeight)
	assert.Equal(t, genesis.HashValue, byHeight.HashValue)

	byHash, err := bs.GetBlockByHash(ctx, genesis.HashValue)
	require.NoError(t, err)
	require.NotNil(t, byHash)
	assert.Equal(t, genesis.Header.Index, byHash.Header.Index)
}

func TestMerkleRootChangesWithTransactionOrder(t *testing.T) {
	tx1 := signedTx(t, 0)
	tx2 := signedTx(t, 1)

	a := NewBlock(1, GenesisParentHash, "node-a", []*Transaction{tx1, tx2}, 1700000001)
	b := NewBlock(1, GenesisParentHash, "node-a", []*Transaction{tx2, tx1}, 1700000001)

	assert.NotEqual(t, a.VotingHash(), b.VotingHash())
}
