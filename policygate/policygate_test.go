package policygate

import (
	"context"
	"testing"
)

func TestAddressBlocklistBlocksConfiguredAddress(t *testing.T) {
	gate := NewAddressBlocklist([]string{"0xDEAD"}, "sanctioned")

	decision, err := gate.Evaluate(context.Background(), "eth", "0xtx", "0xdead", 1000)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.ShouldAllow {
		t.Fatalf("expected blocked address to be disallowed")
	}
	if decision.BlockReason != "sanctioned" {
		t.Fatalf("unexpected block reason: %s", decision.BlockReason)
	}
}

func TestAddressBlocklistAllowsOtherAddresses(t *testing.T) {
	gate := NewAddressBlocklist([]string{"0xdead"}, "sanctioned")

	decision, err := gate.Evaluate(context.Background(), "eth", "0xtx", "0xbeef", 1000)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !decision.ShouldAllow {
		t.Fatalf("expected unlisted address to be allowed")
	}
}

func TestAddressBlocklistDefaultReason(t *testing.T) {
	gate := NewAddressBlocklist([]string{"0xdead"}, "")
	decision, err := gate.Evaluate(context.Background(), "eth", "0xtx", "0xdead", 1000)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.BlockReason == "" {
		t.Fatalf("expected a non-empty default block reason")
	}
}
