// Package store provides a SQLite index over the replica's events.
//
// The JSONL files under the data directory stay the source of truth; the
// index is a derived cache that can be dropped and rebuilt at any time. It
// answers the queries the files are slow at: per-entity history, counts,
// and which segment an event was sealed in.
//
// # Ordering
//
// Every query that returns events uses the same total order as
// event.Compare:
//
//	ORDER BY timestamp ASC, origin COLLATE BINARY ASC, seq ASC, id COLLATE BINARY ASC
//
// Origins are normalized before insert, so BINARY collation matches the
// byte-wise comparison in Go.
//
// # Idempotency
//
// Inserting an event whose id is already indexed never changes its content
// (ids are immutable); only a missing segment assignment is filled in.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
