package chain

import (
	"encoding/json"
	"fmt"

	"github.com/coldchain/ledger/internal/chaincrypto"
	"github.com/coldchain/ledger/pkg/merkle"
)

// Header is a block's canonical header. StateRoot is empty until the block
// has been executed and the resulting world-state digest folded in.
type Header struct {
	Index      uint64 `json:"index"`
	PrevHash   string `json:"prevHash"`
	MerkleRoot string `json:"merkleRoot"`
	StateRoot  string `json:"stateRoot"`
	Timestamp  int64  `json:"timestamp"`
	ProposerID string `json:"proposerId"`
}

// canonicalHash hashes the header as alphabetically key-sorted JSON, per
// block.py's compute_hash (json.dumps(self.header, sort_keys=True)). Go's
// encoding/json already emits map[string]any keys in sorted order, so
// building the header as a map is sufficient to get canonical output.
func (h Header) canonicalHash() (string, error) {
	m := map[string]interface{}{
		"index":      h.Index,
		"prevHash":   h.PrevHash,
		"merkleRoot": h.MerkleRoot,
		"stateRoot":  h.StateRoot,
		"timestamp":  h.Timestamp,
		"proposerId": h.ProposerID,
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal canonical header: %w", err)
	}
	return chaincrypto.HashTextHex(string(raw)), nil
}

// Block is a sealed (or candidate) block: a header plus its transactions.
type Block struct {
	HashValue    string         `json:"hash"`
	Header       Header         `json:"header"`
	Transactions []*Transaction `json:"transactions"`
}

// NewBlock assembles a candidate block from its parent, proposer, and
// transaction set. The merkle root is computed immediately; the state root
// and final hash are not known until execution, and are filled in by
// RecomputeHash once the proposer (or, after commit, every replica) has run
// the block's transactions.
func NewBlock(index uint64, prevHash, proposerID string, txs []*Transaction, timestamp int64) *Block {
	if txs == nil {
		txs = []*Transaction{}
	}
	txHashes := make([]string, len(txs))
	for i, tx := range txs {
		txHashes[i] = tx.Hash
	}

	header := Header{
		Index:      index,
		PrevHash:   prevHash,
		MerkleRoot: merkle.BuildRootHex(txHashes),
		Timestamp:  timestamp,
		ProposerID: proposerID,
	}

	b := &Block{Header: header, Transactions: txs}
	b.RecomputeHash()
	return b
}

// RecomputeHash recomputes HashValue from the current header, e.g. after
// StateRoot has been assigned post-execution.
func (b *Block) RecomputeHash() {
	h, err := b.Header.canonicalHash()
	if err != nil {
		// canonicalHash only fails if json.Marshal fails on primitive
		// values, which cannot happen for this fixed header shape.
		panic(fmt.Sprintf("chain: unreachable header marshal failure: %v", err))
	}
	b.HashValue = h
}

// VotingHash is the value validators vote on during consensus: the block's
// transaction merkle root, computed before the state root is known.
func (b *Block) VotingHash() string {
	return b.Header.MerkleRoot
}

// ToJSON serializes the block for storage and wire transport.
func (b *Block) ToJSON() ([]byte, error) {
	return json.Marshal(b)
}

// BlockFromJSON deserializes a block previously produced by ToJSON.
func BlockFromJSON(data []byte) (*Block, error) {
	var b Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("unmarshal block: %w", err)
	}
	return &b, nil
}
