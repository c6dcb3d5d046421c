// Package registry combines the counter store and the record log into the
// single "register a new check-in" operation.
//
// # Register
//
// One call moves through these states:
//
//	Start → IDsReserved → Appended → CountersPersisted → Done
//
//   - IDsReserved → Start: the append failed. The in-memory counter advance is
//     rolled back, nothing durable happened, and a retry gets the same id and
//     turn.
//   - Appended → Inconsistent: the record is durable but the counter files
//     could not be written. Register returns the record together with a
//     *PartialPersistenceWarning. The next Open heals this state.
//
// # Reconciliation
//
// The counter files and the record log are written separately, so after a
// crash they can disagree. Open always recomputes the highest id, and the
// highest turn of the latest day, from the log and raises the counters to at
// least those values. The log wins; counters never move backwards.
//
// # Concurrency
//
// A Service serialises Register calls with a mutex, so no two calls observe
// the same counter snapshot. Across processes, Open takes an exclusive lock on
// the data directory.
package registry
