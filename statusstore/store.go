// Package statusstore implements the Status Store (C2): a single-row-per-
// network cursor recording the highest block from which shields have been
// ingested. Backed by goleveldb, following the same one-handle-per-concern
// convention as shieldqueue.
package statusstore

import (
	"encoding/json"
	"fmt"

	"github.com/poi-list/provider/entities"
	"github.com/syndtr/goleveldb/leveldb"
)

var statusKey = []byte("latestBlockScanned")

type Store struct {
	db *leveldb.DB
}

func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("statusstore: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// GetStatus returns the current cursor, or ok=false if no block has ever
// been recorded (in which case the caller falls back to the network's
// hard-coded deploymentBlock, per §4.3).
func (s *Store) GetStatus() (status entities.NetworkStatus, ok bool, err error) {
	raw, err := s.db.Get(statusKey, nil)
	if err == leveldb.ErrNotFound {
		return entities.NetworkStatus{}, false, nil
	}
	if err != nil {
		return entities.NetworkStatus{}, false, fmt.Errorf("statusstore: read: %w", err)
	}
	if err := json.Unmarshal(raw, &status); err != nil {
		return entities.NetworkStatus{}, false, fmt.Errorf("statusstore: decode: %w", err)
	}
	return status, true, nil
}

// SaveStatus records a new latestBlockScanned. It rejects any value less
// than the current one - the cursor is monotonic per network (§4.2, §8
// invariant 7).
func (s *Store) SaveStatus(network string, block uint64) error {
	current, ok, err := s.GetStatus()
	if err != nil {
		return err
	}
	if ok && block < current.LatestBlockScanned {
		panic(fmt.Sprintf("statusstore: refusing to regress latestBlockScanned for %s from %d to %d", network, current.LatestBlockScanned, block))
	}

	raw, err := json.Marshal(&entities.NetworkStatus{Network: network, LatestBlockScanned: block})
	if err != nil {
		return fmt.Errorf("statusstore: encode: %w", err)
	}
	if err := s.db.Put(statusKey, raw, nil); err != nil {
		return fmt.Errorf("statusstore: write: %w", err)
	}
	return nil
}
