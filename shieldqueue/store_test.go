package shieldqueue

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/poi-list/provider/entities"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "shields"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetPendingShieldsEmptyQueue(t *testing.T) {
	s := newTestStore(t)

	results, err := s.GetPendingShields(time.Now().UnixMilli(), 100)
	if err != nil {
		t.Fatalf("getPendingShields: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty result, got %d rows", len(results))
	}
}

func TestGetPendingShieldsAgeGating(t *testing.T) {
	s := newTestStore(t)

	now := time.Now().UnixMilli()
	tenDaysAgo := now - 10*24*time.Hour.Milliseconds()
	sevenDaysAgo := now - 7*24*time.Hour.Milliseconds()

	recent := &entities.ShieldQueueItem{Network: "eth", TxID: "tx-recent", Hash: "hash-recent", Timestamp: now}
	old := &entities.ShieldQueueItem{Network: "eth", TxID: "tx-old", Hash: "hash-old", Timestamp: tenDaysAgo}

	if err := s.InsertPending(recent); err != nil {
		t.Fatalf("insert recent: %v", err)
	}
	if err := s.InsertPending(old); err != nil {
		t.Fatalf("insert old: %v", err)
	}

	results, err := s.GetPendingShields(sevenDaysAgo, 100)
	if err != nil {
		t.Fatalf("getPendingShields: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly 1 row, got %d", len(results))
	}
	if results[0].TxID != "tx-old" {
		t.Fatalf("expected the 10-day-old shield, got %s", results[0].TxID)
	}
	if results[0].Status != entities.ShieldStatusPending {
		t.Fatalf("expected Pending status, got %s", results[0].Status)
	}
	if results[0].LastValidatedTimestamp != nil {
		t.Fatalf("expected nil LastValidatedTimestamp")
	}
}

func TestInsertPendingIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	item := &entities.ShieldQueueItem{Network: "eth", TxID: "tx1", Hash: "hash1", Timestamp: 1000, BlockNumber: 5}
	if err := s.InsertPending(item); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := s.InsertPending(item); err != nil {
		t.Fatalf("second insert: %v", err)
	}

	results, err := s.GetPendingShields(10000, 100)
	if err != nil {
		t.Fatalf("getPendingShields: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly 1 row after duplicate insert, got %d", len(results))
	}
}

func TestInsertPendingDoesNotRegressTerminalStatus(t *testing.T) {
	s := newTestStore(t)

	item := &entities.ShieldQueueItem{Network: "eth", TxID: "tx1", Hash: "hash1", Timestamp: 1000}
	if err := s.InsertPending(item); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.UpdateShieldStatus(item, entities.ShieldStatusAllowed, 2000); err != nil {
		t.Fatalf("update status: %v", err)
	}

	if err := s.InsertPending(item); err != nil {
		t.Fatalf("re-insert after terminal status: %v", err)
	}

	results, err := s.GetPendingShields(10000, 100)
	if err != nil {
		t.Fatalf("getPendingShields: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected the terminal row to stay out of the pending set, got %d rows", len(results))
	}
}

func TestUpdateShieldStatusIdempotentAtTargetStatus(t *testing.T) {
	s := newTestStore(t)

	item := &entities.ShieldQueueItem{Network: "eth", TxID: "tx1", Hash: "hash1", Timestamp: 1000}
	if err := s.InsertPending(item); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.UpdateShieldStatus(item, entities.ShieldStatusBlocked, 2000); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	if err := s.UpdateShieldStatus(item, entities.ShieldStatusBlocked, 3000); err != nil {
		t.Fatalf("re-running the same transition should be a no-op, got: %v", err)
	}
}

func TestUpdateShieldStatusRegressionIsFatal(t *testing.T) {
	s := newTestStore(t)

	item := &entities.ShieldQueueItem{Network: "eth", TxID: "tx1", Hash: "hash1", Timestamp: 1000}
	if err := s.InsertPending(item); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.UpdateShieldStatus(item, entities.ShieldStatusAllowed, 2000); err != nil {
		t.Fatalf("transition to allowed: %v", err)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected a regression attempt (Allowed -> Blocked) to panic")
		}
	}()
	s.UpdateShieldStatus(item, entities.ShieldStatusBlocked, 3000)
}

func TestDeleteAllItemsDangerous(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		item := &entities.ShieldQueueItem{Network: "eth", TxID: string(rune('a' + i)), Hash: "h", Timestamp: int64(i)}
		if err := s.InsertPending(item); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if err := s.DeleteAllItems_DANGEROUS(); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	results, err := s.GetPendingShields(1<<62, 100)
	if err != nil {
		t.Fatalf("getPendingShields: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty store after delete-all, got %d rows", len(results))
	}
}
