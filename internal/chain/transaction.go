// Package chain defines the transaction and block data model: canonical
// encoding, hashing, signing, and genesis construction. It is grounded on
// original_source/node/src/core/transaction.py and block.py.
package chain

import (
	"encoding/hex"
	"fmt"

	"github.com/coldchain/ledger/internal/chaincrypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// DeploySentinel marks a transaction as a contract deployment rather than a
// call against an existing contract.
const DeploySentinel = "0x0"

// Transaction is the wire and storage shape of a single ledger transaction.
// Sender is a SECP256k1 public key, hex-encoded; Recipient is either a
// contract address or DeploySentinel.
type Transaction struct {
	Nonce     uint64 `json:"nonce"`
	Sender    string `json:"from"`
	Recipient string `json:"to"`
	Amount    uint64 `json:"amount"`
	Data      string `json:"data"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
	Hash      string `json:"hash"`
}

// signingFields is the exact RLP list encoded as the signing payload, field
// order mirroring transaction.py's rlp.encode([nonce, sender, to, amount,
// data, timestamp]).
type signingFields struct {
	Nonce     uint64
	Sender    []byte
	Recipient []byte
	Amount    uint64
	Data      []byte
	Timestamp uint64
}

// hashFields extends signingFields with the signature, used to compute the
// final transaction hash once signed.
type hashFields struct {
	Nonce     uint64
	Sender    []byte
	Recipient []byte
	Amount    uint64
	Data      []byte
	Timestamp uint64
	Signature []byte
}

func (tx *Transaction) rlpSigningPayload() ([]byte, error) {
	f := signingFields{
		Nonce:     tx.Nonce,
		Sender:    []byte(tx.Sender),
		Recipient: []byte(tx.Recipient),
		Amount:    tx.Amount,
		Data:      []byte(tx.Data),
		Timestamp: uint64(tx.Timestamp),
	}
	return rlp.EncodeToBytes(&f)
}

func (tx *Transaction) rlpHashPayload() ([]byte, error) {
	f := hashFields{
		Nonce:     tx.Nonce,
		Sender:    []byte(tx.Sender),
		Recipient: []byte(tx.Recipient),
		Amount:    tx.Amount,
		Data:      []byte(tx.Data),
		Timestamp: uint64(tx.Timestamp),
		Signature: []byte(tx.Signature),
	}
	return rlp.EncodeToBytes(&f)
}

// SigningDigest returns the keccak256 digest that Sign and Verify operate
// over: the hash of the hex text of the RLP-encoded unsigned payload.
func (tx *Transaction) SigningDigest() ([]byte, error) {
	raw, err := tx.rlpSigningPayload()
	if err != nil {
		return nil, fmt.Errorf("rlp-encode signing payload: %w", err)
	}
	return chaincrypto.HashText(hex.EncodeToString(raw)), nil
}

// ComputeHash derives the transaction's content hash, covering the
// signature field (empty string for an unsigned transaction).
func (tx *Transaction) ComputeHash() (string, error) {
	raw, err := tx.rlpHashPayload()
	if err != nil {
		return "", fmt.Errorf("rlp-encode hash payload: %w", err)
	}
	return chaincrypto.HashTextHex(hex.EncodeToString(raw)), nil
}

// Sign signs the transaction with kp, setting Signature and Hash.
func (tx *Transaction) Sign(kp *chaincrypto.KeyPair) error {
	digest, err := tx.SigningDigest()
	if err != nil {
		return err
	}
	sig, err := kp.Sign(digest)
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	tx.Signature = sig
	tx.Sender = kp.PublicKeyHex()

	hash, err := tx.ComputeHash()
	if err != nil {
		return err
	}
	tx.Hash = hash
	return nil
}

// Verify checks the transaction's signature against its sender public key.
// An unsigned transaction (empty signature) never verifies.
func (tx *Transaction) Verify() bool {
	if tx.Signature == "" {
		return false
	}
	digest, err := tx.SigningDigest()
	if err != nil {
		return false
	}
	return chaincrypto.VerifySignature(tx.Sender, tx.Signature, digest)
}
