// Package value provides the JSON value model carried by event payloads.
//
// Payloads are open mappings from field name to any JSON value. Value is a
// sealed interface over the six JSON shapes so that projection, equality and
// canonical serialization can switch exhaustively instead of reflecting over
// interface{} trees.
//
// Key design constraints:
//   - Numbers are float64, matching JSON number semantics on every replica
//   - Object iteration must go through SortedKeys for determinism
//   - Same implements strict equality: composites are never the same value
package value
