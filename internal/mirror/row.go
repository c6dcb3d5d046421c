// Package mirror copies registered records to the remote spreadsheet.
//
// Records are taken from the outbox and handed to a Sink. Delivery failures
// are recorded in the outbox and retried on the next drain; they never affect
// the local record log.
package mirror

import (
	"github.com/roach88/frontdesk/internal/record"
)

// SheetTimeLayout is the timestamp format used in spreadsheet rows.
const SheetTimeLayout = "2006-01-02 15:04:05"

// Row is one spreadsheet row. Values keeps the sheet's column order:
// turn, date/time, first name, last name, company, provider, plate, id.
type Row struct {
	RecordID int64  `json:"record_id"`
	Values   []any  `json:"values"`
	Range    string `json:"range,omitempty"`
}

// RowFromRecord converts a record into a sheet row.
func RowFromRecord(r record.Record) Row {
	return Row{
		RecordID: r.ID,
		Values: []any{
			r.Turn,
			r.Timestamp.Format(SheetTimeLayout),
			r.FirstName,
			r.LastName,
			r.Company,
			r.Provider,
			r.Plate,
			r.ID,
		},
	}
}
