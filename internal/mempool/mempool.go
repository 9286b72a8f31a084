// Package mempool holds pending, admitted transactions waiting for
// inclusion in a block. Grounded on
// original_source/node/src/core/mempool.py.
package mempool

import (
	"sort"
	"sync"

	"github.com/coldchain/ledger/internal/chain"
)

// AdmitResult reports the outcome of Admit.
type AdmitResult int

const (
	// Accepted means the transaction was new and well-signed, and is now
	// pending inclusion.
	Accepted AdmitResult = iota
	// Duplicate means a transaction with the same hash is already pending.
	Duplicate
	// InvalidSignature means the transaction's signature did not verify.
	InvalidSignature
)

func (r AdmitResult) String() string {
	switch r {
	case Accepted:
		return "ACCEPTED"
	case Duplicate:
		return "DUPLICATE"
	case InvalidSignature:
		return "INVALID_SIGNATURE"
	default:
		return "UNKNOWN"
	}
}

// Mempool is a hash-keyed set of pending transactions.
type Mempool struct {
	mu  sync.Mutex
	txs map[string]*chain.Transaction
}

// New creates an empty mempool.
func New() *Mempool {
	return &Mempool{txs: map[string]*chain.Transaction{}}
}

// Admit validates and, if acceptable, adds tx to the pool.
func (m *Mempool) Admit(tx *chain.Transaction) AdmitResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.txs[tx.Hash]; exists {
		return Duplicate
	}
	if !tx.Verify() {
		return InvalidSignature
	}
	m.txs[tx.Hash] = tx
	return Accepted
}

// Contains reports whether a transaction hash is currently pending.
func (m *Mempool) Contains(hash string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.txs[hash]
	return ok
}

// Get returns a pending transaction by hash, or nil if absent.
func (m *Mempool) Get(hash string) *chain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txs[hash]
}

// List returns a snapshot of all pending transactions, ordered by hash for
// determinism across calls (not by arrival order, which is not tracked).
func (m *Mempool) List() []*chain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*chain.Transaction, 0, len(m.txs))
	for _, tx := range m.txs {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out
}

// Remove drops a transaction from the pool, e.g. after block inclusion.
func (m *Mempool) Remove(hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.txs, hash)
}

// Clear empties the pool.
func (m *Mempool) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = map[string]*chain.Transaction{}
}

// Len returns the number of pending transactions.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.txs)
}
