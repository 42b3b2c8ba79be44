// Package segment seals the event buffer into immutable, signed segments
// and verifies the resulting chain.
//
// A segment is a JSONL file of events in total order plus a manifest that
// commits to them with a Merkle root, links to the previous segment's root
// and carries an Ed25519 signature over its own canonical form (with the
// signature field blanked). Altering, dropping or reordering any sealed
// event, or any manifest field, is detected by Verifier.
package segment
