// Package harness provides conformance testing for the registry.
//
// The harness opens a registry in a throwaway data directory, drives it
// through a scenario with a fixed clock, and validates the outcome against
// assertions and the desk's operational principles.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	timezone: "America/Mexico_City"   # optional, default UTC
//	start: "2024-01-01 09:00"         # clock start in timezone
//	setup:
//	  load_policy: lenient            # optional, default strict
//	  files:                          # data directory contents before opening
//	    last_id: "5"
//	    turn: "2024-01-01|2"
//	flow:
//	  - register: { first_name: Ana, last_name: Lopez, company: ACME, provider: ProveedorX, plate_number: ABC-123 }
//	    expect: { id: 6, turn: 1 }
//	  - advance: 90s
//	  - set_clock: "2024-01-01 07:00"
//	  - next_day: true
//	  - restart: true
//	  - crash: { files: { last_id: "1" } }
//	assertions:
//	  - type: ordered_view
//	    ids: [6]
//	  - type: counters
//	    counters: { last_id: 6, last_turn: 1, last_turn_date: "2024-01-02" }
//
// # Steps
//
// Each flow step does exactly one thing:
//
//   - register: submits the form; expect checks id and turn, or an error code
//   - advance: moves the clock by a duration
//   - set_clock: sets the clock to a StartLayout reading, earlier ones included
//   - next_day: moves the clock to 08:00 on the following day
//   - restart: closes and reopens the registry
//   - crash: closes the registry, overwrites data files, and reopens it
//
// # Assertion Types
//
//   - ordered_view: record ids newest first
//   - record_count: number of records in the log
//   - turns: turn numbers in id order
//   - counters: the persisted counter state after the flow
//   - principles: runs CheckPrinciples on the final log
//
// # Deterministic Testing
//
// The clock never reads the wall time, so traces are identical across runs
// and can be compared against golden files with RunWithGolden.
package harness
