// Package eventlog reads and writes the JSONL files under the data
// directory:
//
//	events.jsonl                       unsealed buffer, one event per line
//	segments/seg-NNNNNN.jsonl          sealed events, in total order
//	segments/seg-NNNNNN.manifest.json  signed manifest of the segment
//
// Lines are written in canonical form. Reading is tolerant: a line that is
// not a valid event is skipped with a warning, so one corrupt record never
// hides the rest of the log.
package eventlog
