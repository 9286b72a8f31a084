package chain

import "strings"

// GenesisTimestamp is the fixed genesis block timestamp, matching
// original_source/node/src/core/genesis.py's GENESIS_BLOCK_TIMESTAMP. A
// fixed value keeps the genesis hash identical across every node that
// bootstraps from an empty store.
const GenesisTimestamp int64 = 1672531200

// GenesisProposerID is the synthetic proposer recorded on the genesis block.
const GenesisProposerID = "genesis"

// GenesisParentHash is the conventional all-zero parent hash for the
// genesis block.
var GenesisParentHash = strings.Repeat("0", 64)

// NewGenesisBlock builds block 0. Callers are responsible for running any
// genesis-time contract deployment against world-state and assigning the
// resulting StateRoot (via RecomputeHash) before persisting it; the genesis
// block itself carries no transactions.
func NewGenesisBlock() *Block {
	return NewBlock(0, GenesisParentHash, GenesisProposerID, nil, GenesisTimestamp)
}
