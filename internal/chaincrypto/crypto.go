// Package chaincrypto provides the hashing, signing, and address-derivation
// primitives shared by every hashed structure in the node: transactions,
// block headers, merkle leaves, and contract addresses. Every hash in this
// system is computed over the textual (hex or decimal) representation of its
// input rather than raw bytes — a convention carried over unchanged from the
// reference node so that two implementations of the same algorithm agree
// byte-for-byte.
package chaincrypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// HashText keccak256-hashes the UTF-8 bytes of s.
func HashText(s string) []byte {
	return crypto.Keccak256([]byte(s))
}

// HashTextHex is HashText, hex-encoded.
func HashTextHex(s string) string {
	return hex.EncodeToString(HashText(s))
}

// KeyPair is a SECP256k1 signing identity, used both for client wallets and
// for validator nodes.
type KeyPair struct {
	Private *ecdsa.PrivateKey
}

// GenerateKeyPair creates a fresh SECP256k1 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate secp256k1 key: %w", err)
	}
	return &KeyPair{Private: priv}, nil
}

// PublicKeyHex returns the uncompressed public key, hex-encoded.
func (k *KeyPair) PublicKeyHex() string {
	return hex.EncodeToString(crypto.FromECDSAPub(&k.Private.PublicKey))
}

// Address returns the low-20-byte address derived from this key's public key.
func (k *KeyPair) Address() string {
	return AddressFromPublicKeyHex(k.PublicKeyHex())
}

// Sign produces a hex-encoded signature over a 32-byte digest.
func (k *KeyPair) Sign(digest []byte) (string, error) {
	sig, err := crypto.Sign(digest, k.Private)
	if err != nil {
		return "", fmt.Errorf("sign digest: %w", err)
	}
	return hex.EncodeToString(sig), nil
}

// AddressFromPublicKeyHex derives the low-20-byte address from an
// uncompressed SECP256k1 public key given as hex, per spec.md §4.2.
func AddressFromPublicKeyHex(pubHex string) string {
	pub, err := hex.DecodeString(pubHex)
	if err != nil {
		return ""
	}
	h := crypto.Keccak256(pub)
	return "0x" + hex.EncodeToString(h[len(h)-20:])
}

// VerifySignature checks a hex signature over a digest against a hex public key.
func VerifySignature(pubHex, sigHex string, digest []byte) bool {
	pub, err := hex.DecodeString(pubHex)
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	// crypto.Sign returns a 65-byte [R || S || V] signature; VerifySignature
	// only wants R || S.
	if len(sig) == 65 {
		sig = sig[:64]
	}
	return crypto.VerifySignature(pub, digest, sig)
}

// ContractAddress derives a deploy transaction's contract address: the low
// 20 bytes of keccak256 of the deploying transaction's hash, taken as text
// (spec.md §4.3).
func ContractAddress(txHash string) string {
	h := HashText(txHash)
	return "0x" + hex.EncodeToString(h[len(h)-20:])
}
