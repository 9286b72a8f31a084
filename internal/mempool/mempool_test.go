package mempool

import (
	"testing"

	"github.com/coldchain/ledger/internal/chain"
	"github.com/coldchain/ledger/internal/chaincrypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSignedTx(t *testing.T, nonce uint64) *chain.Transaction {
	t.Helper()
	kp, err := chaincrypto.GenerateKeyPair()
	require.NoError(t, err)
	tx := &chain.Transaction{Nonce: nonce, Recipient: "0xabc", Amount: 1, Timestamp: 1700000000}
	require.NoError(t, tx.Sign(kp))
	return tx
}

func TestAdmitAcceptsSignedTransaction(t *testing.T) {
	m := New()
	tx := newSignedTx(t, 0)
	assert.Equal(t, Accepted, m.Admit(tx))
	assert.True(t, m.Contains(tx.Hash))
	assert.Equal(t, 1, m.Len())
}

func TestAdmitRejectsDuplicate(t *testing.T) {
	m := New()
	tx := newSignedTx(t, 0)
	require.Equal(t, Accepted, m.Admit(tx))
	assert.Equal(t, Duplicate, m.Admit(tx))
	assert.Equal(t, 1, m.Len())
}

func TestAdmitRejectsBadSignature(t *testing.T) {
	m := New()
	tx := newSignedTx(t, 0)
	tx.Amount = 999 // invalidates the signature without changing the hash
	assert.Equal(t, InvalidSignature, m.Admit(tx))
	assert.Equal(t, 0, m.Len())
}

func TestRemove(t *testing.T) {
	m := New()
	tx := newSignedTx(t, 0)
	require.Equal(t, Accepted, m.Admit(tx))
	m.Remove(tx.Hash)
	assert.False(t, m.Contains(tx.Hash))
}

func TestListIsSortedByHash(t *testing.T) {
	m := New()
	tx1 := newSignedTx(t, 0)
	tx2 := newSignedTx(t, 1)
	require.Equal(t, Accepted, m.Admit(tx1))
	require.Equal(t, Accepted, m.Admit(tx2))

	list := m.List()
	require.Len(t, list, 2)
	assert.True(t, list[0].Hash <= list[1].Hash)
}
