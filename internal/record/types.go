package record

import (
	"time"
)

// DateLayout is the calendar date format used for turn dates.
const DateLayout = "2006-01-02"

// TimestampLayout is the on-disk timestamp format. The offset is kept so the
// calendar date can be recomputed in the desk's time zone after a restart.
const TimestampLayout = time.RFC3339

// Record is one check-in event.
type Record struct {
	ID        int64     `json:"id"`
	Turn      int       `json:"turn"`
	Timestamp time.Time `json:"timestamp"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Company   string    `json:"company"` // "sociedad"
	Provider  string    `json:"provider"`
	Plate     string    `json:"plate_number"`
}

// Date returns the record's calendar date in loc. A nil loc means UTC.
func (r Record) Date(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return r.Timestamp.In(loc).Format(DateLayout)
}

// Fields returns the operator-supplied part of the record.
func (r Record) Fields() Fields {
	return Fields{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Company:   r.Company,
		Provider:  r.Provider,
		Plate:     r.Plate,
	}
}

// Equal reports whether two records carry the same values. Timestamps are
// compared as instants, so a record reloaded from disk equals the original.
func (r Record) Equal(o Record) bool {
	return r.ID == o.ID &&
		r.Turn == o.Turn &&
		r.Timestamp.Equal(o.Timestamp) &&
		r.Fields() == o.Fields()
}

// Fields is the raw input from the check-in form.
type Fields struct {
	FirstName string `json:"first_name" yaml:"first_name"`
	LastName  string `json:"last_name" yaml:"last_name"`
	Company   string `json:"company" yaml:"company"`
	Provider  string `json:"provider" yaml:"provider"`
	Plate     string `json:"plate_number" yaml:"plate_number"`
}

// New builds a record from already normalised fields.
func New(id int64, turn int, ts time.Time, f Fields) Record {
	return Record{
		ID:        id,
		Turn:      turn,
		Timestamp: ts.Truncate(time.Second),
		FirstName: f.FirstName,
		LastName:  f.LastName,
		Company:   f.Company,
		Provider:  f.Provider,
		Plate:     f.Plate,
	}
}
