package harness

import (
	"fmt"
	"time"

	"github.com/roach88/frontdesk/internal/record"
	"github.com/roach88/frontdesk/internal/registry"
	"github.com/roach88/frontdesk/internal/sequence"
)

// Principle names an operational principle of the desk.
type Principle string

const (
	// PrincipleUniqueIDs: record ids strictly increase in log order.
	PrincipleUniqueIDs Principle = "unique_ids"

	// PrincipleDailyTurns: within a calendar date, turns strictly increase
	// in log order and start at 1 or above.
	PrincipleDailyTurns Principle = "daily_turns"

	// PrincipleCountersAhead: persisted counters are never behind the log,
	// so no id or turn can be issued twice.
	PrincipleCountersAhead Principle = "counters_ahead"
)

// PrincipleViolation describes one broken principle.
type PrincipleViolation struct {
	Principle Principle
	RecordID  int64 // 0 when the violation is not tied to a record
	Detail    string
}

// Error implements the error interface.
func (v *PrincipleViolation) Error() string {
	if v.RecordID != 0 {
		return fmt.Sprintf("%s: record %d: %s", v.Principle, v.RecordID, v.Detail)
	}
	return fmt.Sprintf("%s: %s", v.Principle, v.Detail)
}

// CheckPrinciples validates recs (oldest first) and the counters persisted
// alongside them. Calendar dates are taken in loc.
func CheckPrinciples(recs []record.Record, counters sequence.Counters, loc *time.Location) []*PrincipleViolation {
	var out []*PrincipleViolation

	lastTurn := make(map[string]int)
	for i, r := range recs {
		if i > 0 && r.ID <= recs[i-1].ID {
			out = append(out, &PrincipleViolation{
				Principle: PrincipleUniqueIDs,
				RecordID:  r.ID,
				Detail:    fmt.Sprintf("follows id %d", recs[i-1].ID),
			})
		}

		date := r.Date(loc)
		if r.Turn < 1 {
			out = append(out, &PrincipleViolation{
				Principle: PrincipleDailyTurns,
				RecordID:  r.ID,
				Detail:    fmt.Sprintf("turn %d is below 1", r.Turn),
			})
		}
		if prev, ok := lastTurn[date]; ok && r.Turn <= prev {
			out = append(out, &PrincipleViolation{
				Principle: PrincipleDailyTurns,
				RecordID:  r.ID,
				Detail:    fmt.Sprintf("turn %d on %s follows turn %d", r.Turn, date, prev),
			})
		}
		lastTurn[date] = r.Turn
	}

	floor := registry.FloorFromRecords(recs, loc)
	if counters.LastID < floor.LastID {
		out = append(out, &PrincipleViolation{
			Principle: PrincipleCountersAhead,
			Detail:    fmt.Sprintf("last_id %d is behind log id %d", counters.LastID, floor.LastID),
		})
	}
	switch {
	case floor.LastTurnDate == "":
	case counters.LastTurnDate != floor.LastTurnDate && counters.LastID <= floor.LastID:
		out = append(out, &PrincipleViolation{
			Principle: PrincipleCountersAhead,
			Detail:    fmt.Sprintf("turn date %q does not match newest record date %q", counters.LastTurnDate, floor.LastTurnDate),
		})
	case counters.LastTurnDate == floor.LastTurnDate && counters.LastTurn < floor.LastTurn:
		out = append(out, &PrincipleViolation{
			Principle: PrincipleCountersAhead,
			Detail:    fmt.Sprintf("last_turn %d is behind log turn %d on %s", counters.LastTurn, floor.LastTurn, floor.LastTurnDate),
		})
	}

	return out
}
