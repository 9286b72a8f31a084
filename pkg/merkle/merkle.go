// Package merkle computes the transaction merkle root used as a block's
// voting hash during consensus. The algorithm is grounded on
// original_source/node/src/core/merkle.py: leaves are the keccak256 hash of
// each transaction's hash string, internal nodes combine children by
// keccak256-hashing the hex text of their concatenated raw bytes, and an odd
// node at any level is paired with a duplicate of itself.
package merkle

import (
	"encoding/hex"

	"github.com/ethereum/go-ethereum/crypto"
)

func leafHash(txHash string) []byte {
	return crypto.Keccak256([]byte(txHash))
}

func combine(left, right []byte) []byte {
	concatenated := make([]byte, 0, len(left)+len(right))
	concatenated = append(concatenated, left...)
	concatenated = append(concatenated, right...)
	return crypto.Keccak256([]byte(hex.EncodeToString(concatenated)))
}

// BuildRoot computes the merkle root over a list of transaction hashes
// (hex strings), in order. An empty list hashes to keccak256("").
func BuildRoot(txHashes []string) []byte {
	if len(txHashes) == 0 {
		return crypto.Keccak256([]byte(""))
	}

	level := make([][]byte, len(txHashes))
	for i, h := range txHashes {
		level[i] = leafHash(h)
	}

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([][]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, combine(level[i], level[i+1]))
		}
		level = next
	}

	return level[0]
}

// BuildRootHex is BuildRoot, hex-encoded.
func BuildRootHex(txHashes []string) string {
	return hex.EncodeToString(BuildRoot(txHashes))
}
