package utils

import "strings"

// NormalizeAddress lowercases a chain address before it is handed to a
// policy gate. §4.4 requires fromAddress to always be lowercase by the time
// it reaches C7; policies are written assuming that invariant holds.
func NormalizeAddress(addr string) string {
	return strings.ToLower(addr)
}
