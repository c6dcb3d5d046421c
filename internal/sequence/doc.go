// Package sequence owns the two durable counters of the front desk.
//
//   - last_id: global record id, strictly increasing for the life of the data
//     directory, never reused.
//   - last_turn / last_turn_date: the per-day ticket number ("turno"). The
//     first turn issued on a new calendar date is 1 regardless of yesterday's
//     count.
//
// # Files
//
//	last_id  "<integer>"
//	turn     "YYYY-MM-DD|<integer>"
//
// Both files are replaced atomically on Persist. On Load a missing or
// unparsable file is not an error: the counter falls back to zero (fail-open),
// and the problem is reported in the LoadReport so the caller can log it.
//
// Next* methods only advance memory. Nothing is durable until Persist.
package sequence
