package merkle

import (
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRootEmpty(t *testing.T) {
	want := hex.EncodeToString(crypto.Keccak256([]byte("")))
	assert.Equal(t, want, BuildRootHex(nil))
}

func TestBuildRootSingle(t *testing.T) {
	txHash := "abcd1234"
	want := hex.EncodeToString(crypto.Keccak256([]byte(txHash)))
	assert.Equal(t, want, BuildRootHex([]string{txHash}))
}

func TestBuildRootOddCountDuplicatesLast(t *testing.T) {
	three := BuildRootHex([]string{"a", "b", "c"})
	require.Len(t, three, 64)

	// Manually duplicate the third leaf and confirm it matches a
	// four-element combination using the same leaf twice.
	la := leafHash("a")
	lb := leafHash("b")
	lc := leafHash("c")
	left := combine(la, lb)
	right := combine(lc, lc)
	want := hex.EncodeToString(combine(left, right))

	assert.Equal(t, want, three)
}

func TestBuildRootDeterministic(t *testing.T) {
	hashes := []string{"tx1", "tx2", "tx3", "tx4"}
	first := BuildRootHex(hashes)
	second := BuildRootHex(hashes)
	assert.Equal(t, first, second)
}

func TestBuildRootOrderSensitive(t *testing.T) {
	a := BuildRootHex([]string{"tx1", "tx2"})
	b := BuildRootHex([]string{"tx2", "tx1"})
	assert.NotEqual(t, a, b)
}
