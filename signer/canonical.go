package signer

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/poi-list/provider/entities"
)

// decodeHex strips an optional "0x" prefix and hex-decodes the remainder.
// Every hex identifier that is signed (commitment hash, blinded
// commitment) goes through this before it is folded into a signing
// message, so the same logical value always produces the same bytes
// regardless of how its source (chain RPC vs wallet adapter) formatted it.
func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	return hex.DecodeString(s)
}

// EncodePOIEventMessage assembles the canonical byte message signed for one
// POI event, per the domain-separated big-endian layout described in the
// external-interfaces section: a type byte, the two uint64 indices, the
// concatenated blinded commitments, and (for Transact events) the SNARK
// proof's own byte encoding.
func EncodePOIEventMessage(
	eventType entities.POIEventType,
	index uint64,
	startingIndex uint64,
	blindedCommitments []string,
	proof *entities.SnarkProof,
) ([]byte, error) {
	if len(blindedCommitments) == 0 {
		return nil, fmt.Errorf("signer: event must carry at least one blinded commitment")
	}
	if eventType == entities.POIEventTypeShield && proof != nil {
		return nil, fmt.Errorf("signer: shield event must not carry a proof")
	}

	msg := make([]byte, 0, 1+8+8+32*len(blindedCommitments))
	msg = append(msg, byte(eventType))

	var indexBuf [8]byte
	binary.BigEndian.PutUint64(indexBuf[:], index)
	msg = append(msg, indexBuf[:]...)

	var startBuf [8]byte
	binary.BigEndian.PutUint64(startBuf[:], startingIndex)
	msg = append(msg, startBuf[:]...)

	for _, bc := range blindedCommitments {
		decoded, err := decodeHex(bc)
		if err != nil {
			return nil, fmt.Errorf("signer: decode blinded commitment %q: %w", bc, err)
		}
		msg = append(msg, decoded...)
	}

	if eventType == entities.POIEventTypeTransact {
		msg = append(msg, proof.Bytes()...)
	}

	return msg, nil
}

// EncodeBlockedShieldMessage assembles the canonical byte message signed for
// a blocked-shield record: the commitment hash and blinded commitment,
// hex-decoded, followed by the UTF-8 bytes of the block reason (which may
// be empty).
func EncodeBlockedShieldMessage(commitmentHash, blindedCommitment, blockReason string) ([]byte, error) {
	hashBytes, err := decodeHex(commitmentHash)
	if err != nil {
		return nil, fmt.Errorf("signer: decode commitment hash %q: %w", commitmentHash, err)
	}
	bcBytes, err := decodeHex(blindedCommitment)
	if err != nil {
		return nil, fmt.Errorf("signer: decode blinded commitment %q: %w", blindedCommitment, err)
	}

	msg := make([]byte, 0, len(hashBytes)+len(bcBytes)+len(blockReason))
	msg = append(msg, hashBytes...)
	msg = append(msg, bcBytes...)
	msg = append(msg, []byte(blockReason)...)
	return msg, nil
}
