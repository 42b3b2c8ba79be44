// Package replica ties the event log, allocator, projection, sealing and
// key bookkeeping of one local replica together.
//
// A Replica is what the CLI talks to. Each operation is a short
// synchronous read-modify-write over the files under the data directory:
//
//	data/
//	  events.jsonl                 unsealed buffer
//	  meta.json                    origin, next seq, seen map
//	  segments/seg-NNNNNN.jsonl    sealed events
//	  segments/seg-NNNNNN.manifest.json
//	  keys/                        Ed25519 key pair and registry
//	  index.db                     optional SQLite index
//
// Appends go through the allocator, land in the buffer, and may trigger a
// seal once the buffer reaches the configured threshold. Sync and bundle
// import union foreign events into the local log by id, raise the seen map
// to the merged per-origin maxima, and rewrite the buffer without the
// events that are already sealed.
package replica
