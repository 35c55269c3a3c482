package shieldqueue

import "fmt"

const (
	itemPrefix    = "item/"
	pendingPrefix = "pending/"
)

// itemKey is the primary, unique key for a shield: (txid, hash). LevelDB
// has no secondary indices of its own, so getPendingShields is served by a
// companion ordered index (pendingIndexKey) instead of a full scan.
func itemKey(txID, hash string) []byte {
	return []byte(fmt.Sprintf("%s%s|%s", itemPrefix, txID, hash))
}

// pendingIndexKey orders pending shields by timestamp so a range scan from
// the prefix yields them oldest-first, which is exactly the order
// getPendingShields must return. The timestamp is zero-padded so
// lexicographic and numeric order agree.
func pendingIndexKey(timestamp int64, txID, hash string) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s|%s", pendingPrefix, timestamp, txID, hash))
}
