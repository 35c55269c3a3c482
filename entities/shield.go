package entities

// ShieldStatus is the lifecycle state of a ShieldQueueItem. A shield starts
// Pending and transitions exactly once, to either Allowed or Blocked.
type ShieldStatus string

const (
	ShieldStatusPending ShieldStatus = "Pending"
	ShieldStatusAllowed ShieldStatus = "Allowed"
	ShieldStatusBlocked ShieldStatus = "Blocked"
)

// ShieldQueueItem is one observed shield (deposit) event, keyed by
// (network, TxID, Hash) for the lifetime of the process.
type ShieldQueueItem struct {
	Network                string
	TxID                   string
	Hash                   string
	BlindedCommitment      string
	Timestamp              int64 // unix milliseconds, as reported by the observer / receipt
	BlockNumber            uint64
	Status                 ShieldStatus
	LastValidatedTimestamp *int64 // unix milliseconds, nil until validated
}

// Key returns the composite identity used by the shield queue store.
func (s *ShieldQueueItem) Key() string {
	return s.TxID + "|" + s.Hash
}
