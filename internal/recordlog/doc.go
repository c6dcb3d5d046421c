// Package recordlog is the append-only record log of the front desk.
//
// The log is a UTF-8, tab-separated text file. The first line is a header
// naming the columns; every following line is one record:
//
//	id	turn	timestamp	first_name	last_name	company	provider	plate_number
//
// # Guarantees
//
//   - Append only ever adds bytes at the end of the file and fsyncs before
//     returning, so an acknowledged record is durable.
//   - Every acknowledged line ends with '\n'. A final line without one is the
//     remainder of an interrupted append and was never acknowledged: LoadAll
//     reports and ignores it, and the next Append truncates it away before
//     writing.
//   - LoadAll returns records oldest first, exactly as appended.
//
// # Parse failures
//
// What happens to a line that cannot be parsed is chosen with LoadPolicy:
// Strict (the default) aborts the load with a *CorruptLineError carrying the
// line number and raw text; Lenient skips the line, records it in the
// LoadReport, and logs a warning. Ids must increase strictly down the file; a
// line that breaks this is treated as corrupt.
package recordlog
