// Package shieldqueue implements the Shield Queue Store (C1): the durable,
// per-network set of observed shields and their Pending/Allowed/Blocked
// status. It follows this codebase's convention of one goleveldb handle per
// concern (see the wallet monitor and vault monitor workers), keyed by the
// natural (txid, hash) identity from the data model.
package shieldqueue

import (
	"encoding/json"
	"fmt"

	"github.com/poi-list/provider/entities"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Store is the per-network shield queue. Callers open one Store per
// configured network, typically under dataDir/shields/<network>.
type Store struct {
	db *leveldb.DB
}

// Open opens (or creates) the leveldb file at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("shieldqueue: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InsertPending upserts a shield with status Pending. A row already in a
// terminal state (Allowed or Blocked) is left untouched - re-ingesting an
// already-validated shield must never regress it (invariant 1, 2 of §8).
func (s *Store) InsertPending(item *entities.ShieldQueueItem) error {
	key := itemKey(item.TxID, item.Hash)

	existingBytes, err := s.db.Get(key, nil)
	if err == nil {
		var existing entities.ShieldQueueItem
		if unmarshalErr := json.Unmarshal(existingBytes, &existing); unmarshalErr != nil {
			return fmt.Errorf("shieldqueue: decode existing row for %s: %w", item.Key(), unmarshalErr)
		}
		// Duplicate insert: silently absorbed, not an error (§7).
		return nil
	} else if err != leveldb.ErrNotFound {
		return fmt.Errorf("shieldqueue: read %s: %w", item.Key(), err)
	}

	row := *item
	row.Status = entities.ShieldStatusPending
	row.LastValidatedTimestamp = nil

	rowBytes, err := json.Marshal(&row)
	if err != nil {
		return fmt.Errorf("shieldqueue: encode %s: %w", item.Key(), err)
	}

	batch := new(leveldb.Batch)
	batch.Put(key, rowBytes)
	batch.Put(pendingIndexKey(row.Timestamp, row.TxID, row.Hash), key)
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("shieldqueue: write %s: %w", item.Key(), err)
	}
	return nil
}

// GetPendingShields returns up to limit rows with status Pending and
// timestamp <= endTimestamp, ordered by timestamp ascending (§4.1).
func (s *Store) GetPendingShields(endTimestamp int64, limit int) ([]*entities.ShieldQueueItem, error) {
	results := make([]*entities.ShieldQueueItem, 0, limit)

	iter := s.db.NewIterator(util.BytesPrefix([]byte(pendingPrefix)), nil)
	defer iter.Release()

	for iter.Next() && len(results) < limit {
		itemKeyBytes := append([]byte{}, iter.Value()...)
		itemBytes, err := s.db.Get(itemKeyBytes, nil)
		if err != nil {
			return nil, fmt.Errorf("shieldqueue: read indexed row: %w", err)
		}
		var item entities.ShieldQueueItem
		if err := json.Unmarshal(itemBytes, &item); err != nil {
			return nil, fmt.Errorf("shieldqueue: decode indexed row: %w", err)
		}
		if item.Timestamp > endTimestamp {
			// Index is timestamp-ordered, so every row from here on is
			// also too recent.
			break
		}
		if item.Status != entities.ShieldStatusPending {
			// Stale index entry left behind by a status transition that
			// raced the iterator snapshot; skip it.
			continue
		}
		results = append(results, &item)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("shieldqueue: iterate pending index: %w", err)
	}
	return results, nil
}

// UpdateShieldStatus transitions a shield from Pending to Allowed or
// Blocked. It is idempotent at the target status and fatal on a regression
// attempt, per §4.1 and §7.
func (s *Store) UpdateShieldStatus(item *entities.ShieldQueueItem, newStatus entities.ShieldStatus, validatedAt int64) error {
	if newStatus != entities.ShieldStatusAllowed && newStatus != entities.ShieldStatusBlocked {
		return fmt.Errorf("shieldqueue: %s is not a valid terminal status", newStatus)
	}

	key := itemKey(item.TxID, item.Hash)
	existingBytes, err := s.db.Get(key, nil)
	if err != nil {
		return fmt.Errorf("shieldqueue: read %s: %w", item.Key(), err)
	}
	var existing entities.ShieldQueueItem
	if err := json.Unmarshal(existingBytes, &existing); err != nil {
		return fmt.Errorf("shieldqueue: decode %s: %w", item.Key(), err)
	}

	if existing.Status == newStatus {
		return nil // idempotent at the target status
	}
	if existing.Status != entities.ShieldStatusPending {
		panic(fmt.Sprintf("shieldqueue: refusing to regress %s from %s to %s", item.Key(), existing.Status, newStatus))
	}

	existing.Status = newStatus
	existing.LastValidatedTimestamp = &validatedAt

	rowBytes, err := json.Marshal(&existing)
	if err != nil {
		return fmt.Errorf("shieldqueue: encode %s: %w", item.Key(), err)
	}

	batch := new(leveldb.Batch)
	batch.Put(key, rowBytes)
	batch.Delete(pendingIndexKey(existing.Timestamp, existing.TxID, existing.Hash))
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("shieldqueue: write %s: %w", item.Key(), err)
	}
	return nil
}

// DeleteAllItems_DANGEROUS wipes the store. Test fixture only - never
// called from production code paths.
func (s *Store) DeleteAllItems_DANGEROUS() error {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte{}, iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("shieldqueue: iterate for delete-all: %w", err)
	}
	return s.db.Write(batch, nil)
}
