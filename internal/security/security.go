// Package security holds the node's ambient, non-consensus security
// concerns: data-at-rest encryption, TLS/HSM configuration stubs, audit
// logging, and the validator vote-signing extension point spec.md §9
// leaves as an unresolved open question. None of this is required by
// consensus today; HandlePrepare/HandleCommit still accept a
// self-reported sender_id (see internal/consensus).
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"

	"github.com/coldchain/ledger/internal/chaincrypto"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// KeyManager wraps per-payload AES-GCM encryption with an RSA-OAEP
// wrapped data key, for encrypting data at rest (e.g. audit log exports,
// evidence attachment metadata) independent of the ledger's SECP256k1
// signing keys.
type KeyManager struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
}

// NewKeyManager generates a fresh RSA key pair for data-at-rest wrapping.
func NewKeyManager() (*KeyManager, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate RSA key: %w", err)
	}
	return &KeyManager{privateKey: privateKey, publicKey: &privateKey.PublicKey}, nil
}

// EncryptData encrypts plaintext with a fresh AES-256-GCM key, returning
// the ciphertext and that key RSA-OAEP-wrapped under this KeyManager.
func (km *KeyManager) EncryptData(plaintext []byte) ([]byte, []byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, nil, fmt.Errorf("generate AES key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)

	encryptedKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, km.publicKey, key, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("wrap AES key: %w", err)
	}
	return ciphertext, encryptedKey, nil
}

// DecryptData reverses EncryptData.
func (km *KeyManager) DecryptData(ciphertext, encryptedKey []byte) ([]byte, error) {
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, km.privateKey, encryptedKey, nil)
	if err != nil {
		return nil, fmt.Errorf("unwrap AES key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// ValidatorSigner signs consensus votes with the same SECP256k1/keccak256
// scheme transactions use (internal/chaincrypto), so a future
// vote-authentication requirement can verify PREPARE/COMMIT senders the
// same way mempool admission verifies transaction senders. Not yet wired
// into internal/consensus: HandlePrepare/HandleCommit do not call this.
type ValidatorSigner struct {
	nodeID string
	keys   *chaincrypto.KeyPair
}

// NewValidatorSigner generates a fresh validator identity.
func NewValidatorSigner(nodeID string) (*ValidatorSigner, error) {
	keys, err := chaincrypto.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate validator key: %w", err)
	}
	return &ValidatorSigner{nodeID: nodeID, keys: keys}, nil
}

// PublicKeyHex returns this validator's public identity.
func (vs *ValidatorSigner) PublicKeyHex() string {
	return vs.keys.PublicKeyHex()
}

// SignVote signs a (votingHash, phase) pair, the payload a future
// vote-authentication check would verify.
func (vs *ValidatorSigner) SignVote(votingHash, phase string) (string, error) {
	digest := chaincrypto.HashText(vs.nodeID + ":" + phase + ":" + votingHash)
	return vs.keys.Sign(digest)
}

// VerifyVote checks a vote signature against a claimed signer public key.
func VerifyVote(signerPubHex, votingHash, phase, sigHex string) bool {
	digest := chaincrypto.HashText(signerPubHex + ":" + phase + ":" + votingHash)
	return chaincrypto.VerifySignature(signerPubHex, sigHex, digest)
}

// HSMManager is a stub for delegating validator key custody to an HSM.
// No SPEC_FULL.md component requires this today; it exists as the
// extension point the teacher's config surface already names
// (security.hsm_enabled).
type HSMManager struct {
	connected bool
	logger    *zap.Logger
}

// NewHSMManager "connects" to an HSM at hsmAddress. Always succeeds; real
// HSM wiring is out of scope.
func NewHSMManager(hsmAddress string, logger *zap.Logger) (*HSMManager, error) {
	logger.Info("HSM connection established (stub)", zap.String("address", hsmAddress))
	return &HSMManager{connected: true, logger: logger}, nil
}

// SignWithHSM signs data via the HSM (stub: returns random bytes of
// signature length, never to be used for real verification).
func (hsm *HSMManager) SignWithHSM(data []byte) ([]byte, error) {
	if !hsm.connected {
		return nil, fmt.Errorf("HSM not connected")
	}
	sig := make([]byte, 256)
	if _, err := io.ReadFull(rand.Reader, sig); err != nil {
		return nil, err
	}
	return sig, nil
}

// TLSConfig holds the certificate paths an HTTPS listener would use.
type TLSConfig struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

// LoadTLSConfig records certificate paths for later use by an HTTPS
// listener; it does not itself parse or validate the files.
func LoadTLSConfig(certFile, keyFile, caFile string) (*TLSConfig, error) {
	return &TLSConfig{CertFile: certFile, KeyFile: keyFile, CAFile: caFile}, nil
}

// ValidateCertificate parses and sanity-checks a PEM-encoded certificate.
func ValidateCertificate(certPEM []byte) error {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return fmt.Errorf("invalid PEM block")
	}
	_, err := x509.ParseCertificate(block.Bytes)
	return err
}

// GenerateCertID returns a fresh unique identifier for a certificate or
// evidence-attachment record.
func GenerateCertID() string {
	return uuid.New().String()
}

// AuditLogger records security-relevant events (contract deploys,
// signature failures, consensus halts) through zap instead of the
// teacher's bare log.Printf.
type AuditLogger struct {
	enabled bool
	logger  *zap.Logger
}

// NewAuditLogger creates an audit logger; logging is a no-op when enabled
// is false.
func NewAuditLogger(enabled bool, logger *zap.Logger) *AuditLogger {
	return &AuditLogger{enabled: enabled, logger: logger}
}

// LogSecurityEvent records a named security event with free-form details.
func (al *AuditLogger) LogSecurityEvent(eventType, details string) {
	if !al.enabled {
		return
	}
	al.logger.Warn("security event", zap.String("type", eventType), zap.String("details", details))
}

// LogAccess records a resource access by actor.
func (al *AuditLogger) LogAccess(resource, action, actorID string) {
	if !al.enabled {
		return
	}
	al.logger.Info("access", zap.String("resource", resource), zap.String("action", action), zap.String("actor", actorID))
}
