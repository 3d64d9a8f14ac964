// Package hashing derives the content and link hashes that give every
// stream its tamper-evident chain (SPEC_FULL.md glossary: "hash chain").
package hashing

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// emptyPreviousHash is substituted for the genesis record's missing
// previous_hash, per SPEC_FULL.md §4.3 step 6 ("previous_hash || ∅").
const emptyPreviousHash = "∅"

// ContentHash returns the SHA-256 hex digest of the bytes that will be
// stored for a record (already-normalized: canonical JSON for JSON
// payloads, base64-decoded-then-encoded-consistent bytes for binary).
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return fmt.Sprintf("%x", sum)
}

// ChainHash computes hash = SHA256(previous_hash ‖ content_hash ‖ user_id
// ‖ timestamp), substituting "∅" for a nil previousHash (the genesis
// record at index 0).
func ChainHash(previousHash *string, contentHash, userID string, timestamp time.Time) string {
	prev := emptyPreviousHash
	if previousHash != nil {
		prev = *previousHash
	}
	h := sha256.New()
	h.Write([]byte(prev))
	h.Write([]byte(contentHash))
	h.Write([]byte(userID))
	h.Write([]byte(timestamp.UTC().Format(time.RFC3339Nano)))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// VerifyLink reports whether child.previousHash correctly points at
// parent.hash — the link half of property 1 (chain integrity) in
// SPEC_FULL.md §8. The genesis record (parentHash == nil) is valid only
// when childPreviousHash is also nil.
func VerifyLink(parentHash *string, childPreviousHash *string) bool {
	if parentHash == nil {
		return childPreviousHash == nil
	}
	if childPreviousHash == nil {
		return false
	}
	return *parentHash == *childPreviousHash
}
