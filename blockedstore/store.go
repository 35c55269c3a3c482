// Package blockedstore implements the Blocked-Shield Store (C4): a per-list
// set of signed blocked-shield records, content-addressed by commitment
// hash so a rejected shield can never be recorded twice.
package blockedstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/poi-list/provider/entities"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// MaxSyncedItems mirrors the HTTP collaborator's blocked-shields sync cap
// (§6).
const MaxSyncedItems = 50

const (
	recordPrefix = "record/"
	orderPrefix  = "order/"
)

type Store struct {
	db *leveldb.DB
}

func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("blockedstore: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func recordKey(commitmentHash string) []byte {
	return []byte(recordPrefix + commitmentHash)
}

// Append records a signed blocked shield. A shield already recorded under
// the same commitment hash is left untouched (blocking is a terminal,
// content-addressed fact - it does not get re-signed on a later pass).
func (s *Store) Append(record *entities.SignedBlockedShield) error {
	key := recordKey(record.CommitmentHash)
	if _, err := s.db.Get(key, nil); err == nil {
		return nil
	} else if err != leveldb.ErrNotFound {
		return fmt.Errorf("blockedstore: read %s: %w", record.CommitmentHash, err)
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("blockedstore: encode %s: %w", record.CommitmentHash, err)
	}

	seq, err := s.nextSeq()
	if err != nil {
		return err
	}
	orderKey := make([]byte, len(orderPrefix)+8)
	copy(orderKey, orderPrefix)
	binary.BigEndian.PutUint64(orderKey[len(orderPrefix):], seq)

	batch := new(leveldb.Batch)
	batch.Put(key, raw)
	batch.Put(orderKey, key)
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("blockedstore: write %s: %w", record.CommitmentHash, err)
	}
	return nil
}

var seqKey = []byte("seq")

func (s *Store) nextSeq() (uint64, error) {
	raw, err := s.db.Get(seqKey, nil)
	var next uint64
	if err == nil {
		next = binary.BigEndian.Uint64(raw) + 1
	} else if err != leveldb.ErrNotFound {
		return 0, fmt.Errorf("blockedstore: read seq: %w", err)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := s.db.Put(seqKey, buf, nil); err != nil {
		return 0, fmt.Errorf("blockedstore: write seq: %w", err)
	}
	return next, nil
}

// Get returns the blocked-shield record for a commitment hash, if any.
func (s *Store) Get(commitmentHash string) (record *entities.SignedBlockedShield, ok bool, err error) {
	raw, err := s.db.Get(recordKey(commitmentHash), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("blockedstore: read %s: %w", commitmentHash, err)
	}
	var rec entities.SignedBlockedShield
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("blockedstore: decode %s: %w", commitmentHash, err)
	}
	return &rec, true, nil
}

// SyncedSince returns up to MaxSyncedItems records in insertion order,
// starting after the offset-th record - the shape a peer sync endpoint
// would page through, capped the same way the (out-of-core) HTTP layer
// caps it.
func (s *Store) SyncedSince(offset int) ([]*entities.SignedBlockedShield, error) {
	results := make([]*entities.SignedBlockedShield, 0, MaxSyncedItems)

	iter := s.db.NewIterator(util.BytesPrefix([]byte(orderPrefix)), nil)
	defer iter.Release()

	skipped := 0
	for iter.Next() && len(results) < MaxSyncedItems {
		if skipped < offset {
			skipped++
			continue
		}
		recKeyBytes := append([]byte{}, iter.Value()...)
		raw, err := s.db.Get(recKeyBytes, nil)
		if err != nil {
			return nil, fmt.Errorf("blockedstore: read ordered record: %w", err)
		}
		var rec entities.SignedBlockedShield
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("blockedstore: decode ordered record: %w", err)
		}
		results = append(results, &rec)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("blockedstore: iterate: %w", err)
	}
	return results, nil
}
