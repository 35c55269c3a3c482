package entities

// POIEventType distinguishes the two kinds of unit that can be queued into
// the event log. It also doubles as the domain-separation byte prefixed to
// the canonical signing message (see signer.EncodePOIEventMessage).
type POIEventType byte

const (
	POIEventTypeShield   POIEventType = 0x01
	POIEventTypeTransact POIEventType = 0x02
)

// SnarkProof is the opaque zk-SNARK proof payload attached to Transact
// events. It carries its own canonical byte encoding (Bytes) so the signer
// does not need to know anything about proof internals.
type SnarkProof struct {
	Pi_a []string
	Pi_b [][]string
	Pi_c []string
}

// Bytes is the canonical byte encoding of the proof used when assembling a
// signing message. It concatenates the proof's string fields in a fixed
// order so the same proof always serializes identically.
func (p *SnarkProof) Bytes() []byte {
	if p == nil {
		return nil
	}
	var out []byte
	for _, s := range p.Pi_a {
		out = append(out, []byte(s)...)
	}
	for _, row := range p.Pi_b {
		for _, s := range row {
			out = append(out, []byte(s)...)
		}
	}
	for _, s := range p.Pi_c {
		out = append(out, []byte(s)...)
	}
	return out
}

// POIEventShield is an unsigned unit queued by the validate-shields poller
// when a shield passes the policy gate.
type POIEventShield struct {
	Network           string
	CommitmentHash    string
	BlindedCommitment string
}

// POIEventTransact is an unsigned unit queued for a non-legacy Transact
// event; it carries one or more blinded commitments and a SNARK proof.
type POIEventTransact struct {
	Network            string
	BlindedCommitments []string
	Proof              *SnarkProof
}

// SignedPOIEvent is one entry of a list's append-only POI event log.
type SignedPOIEvent struct {
	Index                           uint64
	BlindedCommitmentStartingIndex  uint64
	BlindedCommitments              []string
	Proof                           *SnarkProof // nil for Shield events
	Signature                       []byte
}

// Type reports which domain the event belongs to, purely from the presence
// of a proof payload (a Shield event never carries one).
func (e *SignedPOIEvent) Type() POIEventType {
	if e.Proof != nil {
		return POIEventTypeTransact
	}
	return POIEventTypeShield
}
