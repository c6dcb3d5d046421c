package recordlog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/frontdesk/internal/record"
)

// Columns is the header of the log, in on-disk order.
var Columns = []string{
	"id",
	"turn",
	"timestamp",
	record.FieldFirstName,
	record.FieldLastName,
	record.FieldCompany,
	record.FieldProvider,
	record.FieldPlate,
}

const utf8BOM = "\ufeff"

func encodeHeader() ([]byte, error) {
	return encodeLine(Columns)
}

func encodeRecord(r record.Record) ([]byte, error) {
	return encodeLine([]string{
		strconv.FormatInt(r.ID, 10),
		strconv.Itoa(r.Turn),
		r.Timestamp.Format(record.TimestampLayout),
		r.FirstName,
		r.LastName,
		r.Company,
		r.Provider,
		r.Plate,
	})
}

func encodeLine(fields []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = '\t'
	if err := w.Write(fields); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func splitLine(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = '\t'
	r.FieldsPerRecord = len(Columns)
	fields, err := r.Read()
	if err != nil {
		return nil, err
	}
	return fields, nil
}

func isHeader(line string) bool {
	fields, err := splitLine(strings.TrimPrefix(line, utf8BOM))
	if err != nil {
		return false
	}
	for i, c := range Columns {
		if fields[i] != c {
			return false
		}
	}
	return true
}

func decodeRecord(line string) (record.Record, error) {
	fields, err := splitLine(line)
	if err != nil {
		return record.Record{}, err
	}

	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return record.Record{}, fmt.Errorf("id: %w", err)
	}
	if id <= 0 {
		return record.Record{}, fmt.Errorf("id: must be positive, got %d", id)
	}
	turn, err := strconv.Atoi(fields[1])
	if err != nil {
		return record.Record{}, fmt.Errorf("turn: %w", err)
	}
	if turn <= 0 {
		return record.Record{}, fmt.Errorf("turn: must be positive, got %d", turn)
	}
	ts, err := time.Parse(record.TimestampLayout, fields[2])
	if err != nil {
		return record.Record{}, fmt.Errorf("timestamp: %w", err)
	}

	r := record.Record{
		ID:        id,
		Turn:      turn,
		Timestamp: ts,
		FirstName: fields[3],
		LastName:  fields[4],
		Company:   fields[5],
		Provider:  fields[6],
		Plate:     fields[7],
	}
	if missing := r.Fields().Missing(); len(missing) > 0 {
		return record.Record{}, fmt.Errorf("empty fields: %s", strings.Join(missing, ", "))
	}
	return r, nil
}

// leadingID parses the id column of a line that failed to decode.
func leadingID(line string) (int64, bool) {
	first, _, _ := strings.Cut(line, "\t")
	id, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// CorruptLineError describes a log line that could not be decoded.
type CorruptLineError struct {
	Path string
	Line int    // 1-based, header is line 1
	Raw  string // line content without the trailing newline
	Err  error
}

func (e *CorruptLineError) Error() string {
	return fmt.Sprintf("%s:%d: corrupt record line %q: %v", e.Path, e.Line, e.Raw, e.Err)
}

func (e *CorruptLineError) Unwrap() error {
	return e.Err
}

var (
	errBadHeader  = errors.New("header does not match expected columns")
	errIDOrdering = errors.New("id does not increase")
)
