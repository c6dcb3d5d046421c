package registry

import (
	"time"

	"github.com/roach88/frontdesk/internal/record"
	"github.com/roach88/frontdesk/internal/sequence"
)

// ReconcileResult reports a reconciliation pass.
type ReconcileResult struct {
	Before  sequence.Counters `json:"before"`
	After   sequence.Counters `json:"after"`
	Log     sequence.Counters `json:"log"`
	Changed bool              `json:"changed"`
}

// FloorFromRecords computes the minimum counter state consistent with recs:
// the highest id, and the turn state of the record carrying it. The turn is
// the highest one issued on that record's calendar date in loc. The date of
// the newest record is used rather than the latest date, so a clock moved
// back keeps counting turns on the day it now reports.
func FloorFromRecords(recs []record.Record, loc *time.Location) sequence.Counters {
	var floor sequence.Counters
	for _, r := range recs {
		if r.ID > floor.LastID {
			floor.LastID = r.ID
			floor.LastTurnDate = r.Date(loc)
		}
	}
	for _, r := range recs {
		if r.Turn > floor.LastTurn && r.Date(loc) == floor.LastTurnDate {
			floor.LastTurn = r.Turn
		}
	}
	return floor
}

// Reconcile raises the counters to match the record log and persists them if
// they changed. Open runs it automatically.
func (s *Service) Reconcile() (ReconcileResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ReconcileResult{}, ErrClosed
	}
	return s.reconcile(s.log.Records())
}

func (s *Service) reconcile(recs []record.Record) (ReconcileResult, error) {
	res := ReconcileResult{
		Before: s.counters.Current(),
		Log:    FloorFromRecords(recs, s.loc),
	}
	if s.skippedID > res.Log.LastID {
		// A skipped line may still hold an issued id.
		res.Log.LastID = s.skippedID
	}
	res.Changed = s.counters.Raise(res.Log)
	res.After = s.counters.Current()

	if !res.Changed {
		return res, nil
	}

	s.logger.Warn("counters were behind the record log, reconciled",
		"before_id", res.Before.LastID,
		"before_turn", res.Before.LastTurn,
		"before_date", res.Before.LastTurnDate,
		"after_id", res.After.LastID,
		"after_turn", res.After.LastTurn,
		"after_date", res.After.LastTurnDate,
	)
	if err := s.counters.Persist(); err != nil {
		return res, &StorageUnavailableError{Op: "persist reconciled counters", Err: err}
	}
	return res, nil
}
