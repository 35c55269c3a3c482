// Package policygate defines the Policy Gate capability (C7) and a
// reference implementation. Per the inheritance -> capability-interface
// design note (§9), the gate is a value the validate-shields poller holds,
// not a base class it extends.
package policygate

import (
	"context"

	"github.com/poi-list/provider/entities"
	"github.com/poi-list/provider/utils"
)

// Gate is the single capability the validate-shields poller depends on:
// given a network, a txid, an already-lowercased fromAddress, and the
// shield's re-derived timestamp, decide whether the shield may join the
// allow-list event log or must be recorded as blocked (§4.7).
//
// Implementations are expected to be pure with respect to these inputs.
// Side effects (a remote sanctions-list lookup, say) are permitted but must
// be idempotent, since a transient failure leaves the shield Pending for a
// later retry with the same inputs (§7).
type Gate interface {
	Evaluate(ctx context.Context, network, txID, fromAddressLower string, timestamp int64) (entities.PolicyDecision, error)
}

// AddressBlocklist is the reference Gate: a static set of blocked addresses
// (stored lowercase), applied the same way on every network, with one
// shared reason. It
// exists so the seed scenarios (S5/S6) have something concrete to run
// end-to-end; a real list operator is expected to supply their own Gate,
// typically backed by a sanctions-list lookup or a bloom filter (out of
// core scope per §1).
type AddressBlocklist struct {
	blocked     map[string]bool
	blockReason string
}

// NewAddressBlocklist builds a Gate that blocks exactly the given addresses
// (case-insensitively) across every network, attaching reason to every
// blocked-shield record it produces.
func NewAddressBlocklist(addresses []string, reason string) *AddressBlocklist {
	blocked := make(map[string]bool, len(addresses))
	for _, addr := range addresses {
		blocked[utils.NormalizeAddress(addr)] = true
	}
	if reason == "" {
		reason = "address is on the list operator's blocklist"
	}
	return &AddressBlocklist{blocked: blocked, blockReason: reason}
}

// Evaluate implements Gate. fromAddressLower is trusted to already be
// lowercase (§4.4 "address normalisation" / §8 invariant 8); Evaluate
// re-normalizes defensively anyway since the cost is negligible and a
// caller bug here must never silently let a blocked address through.
func (g *AddressBlocklist) Evaluate(_ context.Context, _, _, fromAddressLower string, _ int64) (entities.PolicyDecision, error) {
	if g.blocked[utils.NormalizeAddress(fromAddressLower)] {
		return entities.PolicyDecision{ShouldAllow: false, BlockReason: g.blockReason}, nil
	}
	return entities.PolicyDecision{ShouldAllow: true}, nil
}
