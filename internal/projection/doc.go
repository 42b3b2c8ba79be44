// Package projection rebuilds current entity state from an unordered set of
// events.
//
// Rebuild is a pure function: the same set of events yields the same State
// on every replica, whatever order the events arrived in. Concurrent writes
// to the same field by different origins are reported as Conflicts; the
// later event in total order wins unless a ConflictResolved event chose
// another candidate.
package projection
