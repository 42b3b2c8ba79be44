// Package merkle commits to an ordered list of events with a single root
// hash.
//
// Leaves are SHA-256 digests of each event's canonical form, rendered as
// lowercase hex. Each level hashes the concatenation of two adjacent hex
// strings; an odd node at the end of a level is paired with itself. The
// root of an empty list is the digest of the empty string.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/roach88/plos/internal/canonical"
	"github.com/roach88/plos/internal/event"
)

// Scheme is the algorithm descriptor recorded in segment manifests.
const Scheme = "pairwise-dup-last"

// RootPrefix tags roots stored in manifests.
const RootPrefix = "sha256:"

// HashHex returns the lowercase hex SHA-256 of data.
func HashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Root folds hex leaves into the root hex digest.
func Root(leaves []string) string {
	if len(leaves) == 0 {
		return HashHex(nil)
	}

	level := append([]string(nil), leaves...)
	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, HashHex([]byte(left+right)))
		}
		level = next
	}
	return level[0]
}

// LeafHash returns the leaf digest of one event.
func LeafHash(e event.Event) (string, error) {
	data, err := canonical.Marshal(e.Document())
	if err != nil {
		return "", fmt.Errorf("canonicalize event %s: %w", e.ID, err)
	}
	return HashHex(data), nil
}

// LeafHashes returns the leaf digests of events in the given order.
func LeafHashes(events []event.Event) ([]string, error) {
	leaves := make([]string, len(events))
	for i, e := range events {
		h, err := LeafHash(e)
		if err != nil {
			return nil, err
		}
		leaves[i] = h
	}
	return leaves, nil
}

// RootForEvents sorts a copy of events into total order and returns the
// prefixed root, as recorded in manifests.
func RootForEvents(events []event.Event) (string, error) {
	leaves, err := LeafHashes(event.Sorted(events))
	if err != nil {
		return "", err
	}
	return RootPrefix + Root(leaves), nil
}

// ValidRoot reports whether s is a prefixed root with 64 lowercase hex digits.
func ValidRoot(s string) bool {
	digest, ok := strings.CutPrefix(s, RootPrefix)
	if !ok || len(digest) != sha256.Size*2 {
		return false
	}
	for _, c := range digest {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
