package workers

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/poi-list/provider/blockedstore"
	"github.com/poi-list/provider/chainobserver"
	"github.com/poi-list/provider/entities"
	"github.com/poi-list/provider/eventqueue"
	"github.com/poi-list/provider/poilog"
	"github.com/poi-list/provider/policygate"
	"github.com/poi-list/provider/shieldqueue"
	"github.com/poi-list/provider/signer"
	"github.com/poi-list/provider/statusstore"
)

// fakeObserver is a minimal, in-memory chainobserver.Observer stand-in for
// exercising the pollers without a real chain RPC.
type fakeObserver struct {
	shields  map[string][]*chainobserver.Shield
	receipts map[string]*chainobserver.Receipt
}

func (f *fakeObserver) GetNewShields(_ context.Context, network string, _ uint64) ([]*chainobserver.Shield, error) {
	return f.shields[network], nil
}

func (f *fakeObserver) GetReceipt(_ context.Context, _ string, txID string) (*chainobserver.Receipt, error) {
	r, ok := f.receipts[txID]
	if !ok {
		return nil, errNoReceipt
	}
	return r, nil
}

type testError string

func (e testError) Error() string { return string(e) }

const errNoReceipt = testError("no receipt configured for txid")

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logrus.NewEntry(logger)
}

func TestQueueShieldsPollerIngestsAndAdvancesStatus(t *testing.T) {
	dir := t.TempDir()
	shieldStore, err := shieldqueue.Open(filepath.Join(dir, "shields"))
	if err != nil {
		t.Fatalf("open shield store: %v", err)
	}
	defer shieldStore.Close()
	statusStore, err := statusstore.Open(filepath.Join(dir, "status"))
	if err != nil {
		t.Fatalf("open status store: %v", err)
	}
	defer statusStore.Close()

	observer := &fakeObserver{
		shields: map[string][]*chainobserver.Shield{
			"eth": {
				{TxID: "tx1", Hash: "hash1", BlindedCommitment: "0xaa", Timestamp: 1000, BlockNumber: 10},
				{TxID: "tx2", Hash: "hash2", BlindedCommitment: "0xbb", Timestamp: 2000, BlockNumber: 11},
			},
		},
	}

	poller := NewQueueShieldsPoller(observer, []NetworkShieldStores{
		{Network: "eth", ShieldStore: shieldStore, StatusStore: statusStore, DeploymentBlock: 0},
	}, time.Hour, nil, testLogger())

	poller.Execute()

	status, ok, err := statusStore.GetStatus()
	if err != nil || !ok {
		t.Fatalf("getStatus: ok=%v err=%v", ok, err)
	}
	if status.LatestBlockScanned != 11 {
		t.Fatalf("expected latestBlockScanned 11, got %d", status.LatestBlockScanned)
	}

	pending, err := shieldStore.GetPendingShields(10000, 100)
	if err != nil {
		t.Fatalf("getPendingShields: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending shields, got %d", len(pending))
	}

	// Re-running with the same observer output is a no-op: duplicate
	// inserts are absorbed and the cursor does not regress.
	poller.Execute()
	pendingAgain, err := shieldStore.GetPendingShields(10000, 100)
	if err != nil {
		t.Fatalf("getPendingShields: %v", err)
	}
	if len(pendingAgain) != 2 {
		t.Fatalf("expected re-run to stay at 2 pending shields, got %d", len(pendingAgain))
	}
}

func newValidationFixture(t *testing.T) (*shieldqueue.Store, *blockedstore.Store, *poilog.Store, *eventqueue.Coordinator, *signer.Signer, func()) {
	t.Helper()
	dir := t.TempDir()

	shieldStore, err := shieldqueue.Open(filepath.Join(dir, "shields"))
	if err != nil {
		t.Fatalf("open shield store: %v", err)
	}
	blocked, err := blockedstore.Open(filepath.Join(dir, "blocked"))
	if err != nil {
		t.Fatalf("open blocked store: %v", err)
	}
	log, err := poilog.Open(filepath.Join(dir, "poilog"))
	if err != nil {
		t.Fatalf("open poi log: %v", err)
	}
	s, err := signer.Generate()
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}
	coordinator := eventqueue.New(log, s, testLogger())
	if err := coordinator.Init(s.ListKey()); err != nil {
		t.Fatalf("init coordinator: %v", err)
	}

	cleanup := func() {
		shieldStore.Close()
		blocked.Close()
		log.Close()
	}
	return shieldStore, blocked, log, coordinator, s, cleanup
}

// TestValidateShieldsPollerBlockPath is the S5 seed scenario: a shield from
// a blocked address transitions to Blocked, a signed blocked-shield record
// appears in C4, and no event appears in C3.
func TestValidateShieldsPollerBlockPath(t *testing.T) {
	shieldStore, blocked, log, coordinator, s, cleanup := newValidationFixture(t)
	defer cleanup()

	pendingPeriod := 24 * time.Hour
	tenDaysAgo := time.Now().Add(-10 * 24 * time.Hour).UnixMilli()

	item := &entities.ShieldQueueItem{Network: "eth", TxID: "tx-blocked", Hash: "0xb10c", BlindedCommitment: "0xaa", Timestamp: tenDaysAgo}
	if err := shieldStore.InsertPending(item); err != nil {
		t.Fatalf("insert pending: %v", err)
	}

	observer := &fakeObserver{receipts: map[string]*chainobserver.Receipt{
		"tx-blocked": {TxID: "tx-blocked", From: "0xBLOCKED", BlockNumber: 5, Timestamp: tenDaysAgo},
	}}
	gate := policygate.NewAddressBlocklist([]string{"0xblocked"}, "sanctioned address")

	poller := NewValidateShieldsPoller(observer, []NetworkValidateStore{{Network: "eth", ShieldStore: shieldStore}},
		blocked, s, gate, coordinator, nil, pendingPeriod, time.Hour, nil, testLogger())

	poller.Execute()

	pending, err := shieldStore.GetPendingShields(10000*1000*1000*1000, 100)
	if err != nil {
		t.Fatalf("getPendingShields: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected the shield to have left Pending, got %d rows still pending", len(pending))
	}

	record, ok, err := blocked.Get("0xb10c")
	if err != nil {
		t.Fatalf("get blocked record: %v", err)
	}
	if !ok {
		t.Fatalf("expected a blocked-shield record")
	}
	if record.BlockReason != "sanctioned address" {
		t.Fatalf("unexpected block reason: %s", record.BlockReason)
	}

	if err := coordinator.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	n, err := log.Len()
	if err != nil {
		t.Fatalf("log len: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no POI event for a blocked shield, got log length %d", n)
	}
}

// TestValidateShieldsPollerAllowPath is the S6 seed scenario: an allowed
// shield's status becomes Allowed and a new signed event is appended to
// C3 with blindedCommitments = [shield.blindedCommitment].
func TestValidateShieldsPollerAllowPath(t *testing.T) {
	shieldStore, blocked, log, coordinator, s, cleanup := newValidationFixture(t)
	defer cleanup()

	pendingPeriod := 24 * time.Hour
	tenDaysAgo := time.Now().Add(-10 * 24 * time.Hour).UnixMilli()

	item := &entities.ShieldQueueItem{Network: "eth", TxID: "tx-ok", Hash: "hash-ok", BlindedCommitment: "0xcc", Timestamp: tenDaysAgo}
	if err := shieldStore.InsertPending(item); err != nil {
		t.Fatalf("insert pending: %v", err)
	}

	observer := &fakeObserver{receipts: map[string]*chainobserver.Receipt{
		"tx-ok": {TxID: "tx-ok", From: "0xGOOD", BlockNumber: 5, Timestamp: tenDaysAgo},
	}}
	gate := policygate.NewAddressBlocklist([]string{"0xblocked"}, "sanctioned address")

	poller := NewValidateShieldsPoller(observer, []NetworkValidateStore{{Network: "eth", ShieldStore: shieldStore}},
		blocked, s, gate, coordinator, nil, pendingPeriod, time.Hour, nil, testLogger())

	poller.Execute()
	if err := coordinator.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	n, err := log.Len()
	if err != nil {
		t.Fatalf("log len: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly 1 POI event, got %d", n)
	}
	event, err := log.GetByIndex(0)
	if err != nil {
		t.Fatalf("getByIndex: %v", err)
	}
	if len(event.BlindedCommitments) != 1 || event.BlindedCommitments[0] != "0xcc" {
		t.Fatalf("unexpected blindedCommitments: %+v", event.BlindedCommitments)
	}
	ok, err := signer.VerifyPOIEvent(event, s.ListKey())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected signature to verify")
	}
}

// TestValidateShieldsPollerTooRecentShieldStaysPending guards §4.4 step b:
// an optimistic observer timestamp must not let a too-recent shield through.
func TestValidateShieldsPollerTooRecentShieldStaysPending(t *testing.T) {
	shieldStore, blocked, _, coordinator, s, cleanup := newValidationFixture(t)
	defer cleanup()

	pendingPeriod := 24 * time.Hour
	now := time.Now().UnixMilli()
	tenDaysAgo := time.Now().Add(-10 * 24 * time.Hour).UnixMilli()

	// The observer initially reported a stale timestamp, but the receipt's
	// actual block time is recent - the row must stay Pending.
	item := &entities.ShieldQueueItem{Network: "eth", TxID: "tx-optimistic", Hash: "hash-optimistic", BlindedCommitment: "0xdd", Timestamp: tenDaysAgo}
	if err := shieldStore.InsertPending(item); err != nil {
		t.Fatalf("insert pending: %v", err)
	}

	observer := &fakeObserver{receipts: map[string]*chainobserver.Receipt{
		"tx-optimistic": {TxID: "tx-optimistic", From: "0xGOOD", BlockNumber: 5, Timestamp: now},
	}}
	gate := policygate.NewAddressBlocklist(nil, "")

	poller := NewValidateShieldsPoller(observer, []NetworkValidateStore{{Network: "eth", ShieldStore: shieldStore}},
		blocked, s, gate, coordinator, nil, pendingPeriod, time.Hour, nil, testLogger())

	poller.Execute()

	pending, err := shieldStore.GetPendingShields(10000*1000*1000*1000, 100)
	if err != nil {
		t.Fatalf("getPendingShields: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected the shield to remain Pending, got %d rows pending", len(pending))
	}
}
