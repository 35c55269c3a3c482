package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/poi-list/provider/entities"
)

// Signer holds the process-wide Ed25519 keypair that identifies a list. Its
// public key, hex-encoded, is the list's listKey (§3, §6). The signer has
// no persisted state beyond the key itself; it is loaded once at process
// start and handed to every component that needs to sign or verify.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// New wraps an existing Ed25519 private key.
func New(priv ed25519.PrivateKey) *Signer {
	return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}
}

// Generate creates a fresh random keypair. Useful for tests and for first-run
// bootstrap before a key file has been provisioned.
func Generate() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("signer: generate key: %w", err)
	}
	return &Signer{priv: priv, pub: pub}, nil
}

// LoadFromFile reads a raw 64-byte Ed25519 private key from path. Double
// loading of distinct files for distinct lists is expected when a single
// process hosts more than one list; this function does not cache.
func LoadFromFile(path string) (*Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("signer: read key file %s: %w", path, err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signer: key file %s has %d bytes, want %d", path, len(raw), ed25519.PrivateKeySize)
	}
	return New(ed25519.PrivateKey(raw)), nil
}

// SaveToFile persists the raw private key bytes to path, for pairing with
// LoadFromFile on a subsequent restart (see S7 - restart durability).
func (s *Signer) SaveToFile(path string) error {
	if err := os.WriteFile(path, s.priv, 0600); err != nil {
		return fmt.Errorf("signer: write key file %s: %w", path, err)
	}
	return nil
}

// ListKey is the hex encoding (no 0x prefix) of the public key, per §6.
func (s *Signer) ListKey() string {
	return hex.EncodeToString(s.pub)
}

// PublicKey exposes the raw public key bytes, e.g. for a peer-facing
// verification endpoint.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.pub
}

// Sign signs an arbitrary message. Ed25519 performs its own SHA-512
// pre-hashing internally; callers never hash the message themselves.
func (s *Signer) Sign(message []byte) []byte {
	return ed25519.Sign(s.priv, message)
}

// Verify checks a signature against a message under an arbitrary hex-encoded
// listKey, so peers can verify without holding a Signer of their own.
func Verify(message, signature []byte, listKeyHex string) (bool, error) {
	pub, err := hex.DecodeString(listKeyHex)
	if err != nil {
		return false, fmt.Errorf("signer: decode listKey %q: %w", listKeyHex, err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("signer: listKey %q has %d bytes, want %d", listKeyHex, len(pub), ed25519.PublicKeySize)
	}
	return ed25519.Verify(ed25519.PublicKey(pub), message, signature), nil
}

// SignPOIEvent produces the signature for a POI event about to be appended
// at the given index/startingIndex, per the canonical encoding in §6.
func (s *Signer) SignPOIEvent(
	eventType entities.POIEventType,
	index uint64,
	startingIndex uint64,
	blindedCommitments []string,
	proof *entities.SnarkProof,
) ([]byte, error) {
	msg, err := EncodePOIEventMessage(eventType, index, startingIndex, blindedCommitments, proof)
	if err != nil {
		return nil, err
	}
	return s.Sign(msg), nil
}

// SignBlockedShield produces the signature for a blocked-shield record.
func (s *Signer) SignBlockedShield(commitmentHash, blindedCommitment, blockReason string) ([]byte, error) {
	msg, err := EncodeBlockedShieldMessage(commitmentHash, blindedCommitment, blockReason)
	if err != nil {
		return nil, err
	}
	return s.Sign(msg), nil
}

// VerifyPOIEvent re-derives the canonical message for a stored event and
// checks its signature, satisfying invariant 6 of §8.
func VerifyPOIEvent(event *entities.SignedPOIEvent, listKeyHex string) (bool, error) {
	msg, err := EncodePOIEventMessage(event.Type(), event.Index, event.BlindedCommitmentStartingIndex, event.BlindedCommitments, event.Proof)
	if err != nil {
		return false, err
	}
	return Verify(msg, event.Signature, listKeyHex)
}
