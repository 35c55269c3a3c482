package entities

// NetworkStatus tracks the ingest cursor for one network: the highest block
// from which shields have already been pulled into the shield queue.
type NetworkStatus struct {
	Network            string
	LatestBlockScanned uint64
}
