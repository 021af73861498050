// Package idempotency derives the deterministic key that anchors dedup
// across the outbox. The Scheduler uses it to make repeated enqueue attempts
// for the same lead/step safe; the unique constraint on Outbox.idemKey is
// what actually enforces the guarantee.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Key is the 32-hex-char idempotency key. attempt and suffix are reserved for
// a future manual-resend admin path; normal Scheduler progression always
// uses attempt=0, suffix="".
func Key(sequenceID, leadID string, stepNumber, attempt int, suffix string) string {
	canonical := fmt.Sprintf("%s|%s|%d|%d|%s", sequenceID, leadID, stepNumber, attempt, suffix)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])[:32]
}

// NewIdemKey is an alias for Key kept for readability at call sites that
// build a fresh key for a first-attempt enqueue.
func NewIdemKey(sequenceID, leadID string, stepNumber, attempt int, suffix string) string {
	return Key(sequenceID, leadID, stepNumber, attempt, suffix)
}
