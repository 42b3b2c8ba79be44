// Package conformance checks that independent replicas converge.
//
// Two test formats are supported.
//
// # Case directories
//
// A case is a directory holding two replica logs and the state their merge
// must project to:
//
//	a.jsonl                    events of replica A
//	b.jsonl                    events of replica B
//	expected.state.json        projection of the union
//	expected.merged.count.json optional, {"count": N}
//
// RunCase unions the logs by id, sorts them, rebuilds the projection and
// compares it with the expectation in canonical form. Cases are portable:
// any implementation of the same merge rules must pass them.
//
// # Scenarios
//
// A scenario is a YAML file driving real replicas through a flow of
// operations (create, update, sync, resolve, seal, ...) and asserting on
// the result:
//
//	name: concurrent_status
//	replicas: [A, B]
//	flow:
//	  - {replica: A, op: create, args: {name: Plan}}
//	  - {replica: B, op: sync, args: {from: A}}
//	  - {replica: A, op: update, args: {entity: a-0001, field: status, value: done}}
//	  - {replica: B, op: update, args: {entity: a-0001, field: status, value: paused}}
//	  - {replica: A, op: sync, args: {from: B}}
//	assertions:
//	  - {type: conflict_count, replica: A, count: 1}
//
// Each replica runs in its own directory with a deterministic clock and
// sequential ids ("a-0001", "a-0002", ... for origin A), so scenarios can
// name entities and events directly and their traces can be compared
// against golden files.
package conformance
