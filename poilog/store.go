// Package poilog implements the POI Event Log Store (C3): a per-list,
// append-only, dense integer-indexed log of signed POI events. The Event
// Queue Coordinator (see package eventqueue) is the log's single writer;
// this package only enforces that indices arrive in order, it does not
// itself serialize concurrent writers.
package poilog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/poi-list/provider/entities"
	"github.com/syndtr/goleveldb/leveldb"
)

var lengthKey = []byte("length")

const eventPrefix = "event/"

// MaxQueryRange mirrors the HTTP collaborator's event query cap (§6); the
// core enforces it here too so GetRange can never be misused to walk an
// unbounded slice of the log into memory.
const MaxQueryRange = 500

type Store struct {
	db *leveldb.DB
}

func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("poilog: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func eventKey(index uint64) []byte {
	key := make([]byte, len(eventPrefix)+8)
	copy(key, eventPrefix)
	binary.BigEndian.PutUint64(key[len(eventPrefix):], index)
	return key
}

// Len returns the current dense length N of the log; the next event must be
// appended at index N (§4.5).
func (s *Store) Len() (uint64, error) {
	raw, err := s.db.Get(lengthKey, nil)
	if err == leveldb.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("poilog: read length: %w", err)
	}
	return binary.BigEndian.Uint64(raw), nil
}

// Last returns the most recently appended event, or ok=false for an empty
// log, so the coordinator can compute the next blindedCommitmentStartingIndex.
// It reads the length and then the event at length-1.
func (s *Store) Last() (event *entities.SignedPOIEvent, ok bool, err error) {
	n, err := s.Len()
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}
	e, err := s.GetByIndex(n - 1)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// GetByIndex reads a single event by its dense index.
func (s *Store) GetByIndex(index uint64) (*entities.SignedPOIEvent, error) {
	raw, err := s.db.Get(eventKey(index), nil)
	if err != nil {
		return nil, fmt.Errorf("poilog: read index %d: %w", index, err)
	}
	var event entities.SignedPOIEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("poilog: decode index %d: %w", index, err)
	}
	return &event, nil
}

// GetRange returns up to MaxQueryRange consecutive events starting at
// startIndex, respecting the query cap named in §6 regardless of what the
// (out-of-core) HTTP layer does with it.
func (s *Store) GetRange(startIndex uint64, count int) ([]*entities.SignedPOIEvent, error) {
	if count > MaxQueryRange {
		count = MaxQueryRange
	}
	n, err := s.Len()
	if err != nil {
		return nil, err
	}
	results := make([]*entities.SignedPOIEvent, 0, count)
	for i := startIndex; i < n && len(results) < count; i++ {
		e, err := s.GetByIndex(i)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, nil
}

// Append appends event at exactly index N (the current length), atomically
// bumping the length counter. Any other index is an invariant violation and
// is fatal - continuing would silently corrupt every downstream proof that
// references this log (§7, §8 invariant 4/5).
func (s *Store) Append(event *entities.SignedPOIEvent) error {
	n, err := s.Len()
	if err != nil {
		return err
	}
	if event.Index != n {
		panic(fmt.Sprintf("poilog: invariant violation, tried to append index %d but log length is %d", event.Index, n))
	}

	var expectedStart uint64
	if n > 0 {
		last, err := s.GetByIndex(n - 1)
		if err != nil {
			return err
		}
		expectedStart = last.BlindedCommitmentStartingIndex + uint64(len(last.BlindedCommitments))
	}
	if event.BlindedCommitmentStartingIndex != expectedStart {
		panic(fmt.Sprintf("poilog: invariant violation, tried to append startingIndex %d but expected %d", event.BlindedCommitmentStartingIndex, expectedStart))
	}

	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("poilog: encode index %d: %w", event.Index, err)
	}

	lengthBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(lengthBuf, n+1)

	batch := new(leveldb.Batch)
	batch.Put(eventKey(event.Index), raw)
	batch.Put(lengthKey, lengthBuf)
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("poilog: write index %d: %w", event.Index, err)
	}
	return nil
}
