// Package event defines the immutable event record exchanged between
// replicas, the deterministic total order over events, and the causality
// relation derived from seen maps.
//
// # Critical Patterns
//
// Normalization happens once, at ingestion (Decode / Normalize):
//   - blank or missing origin becomes "legacy"
//   - missing seq becomes 0
//   - missing seen becomes the empty map
//
// The original JSON document of a decoded event is retained verbatim. It is
// what gets re-serialized and hashed, so unknown fields and unknown event
// kinds survive a read/write cycle untouched.
//
// Ordering (Compare) never consults causality and causality (Sees,
// Concurrent) never consults timestamps: wall clocks may skew, so timestamps
// only break ties for display and merge order.
package event
