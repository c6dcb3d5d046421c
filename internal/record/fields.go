package record

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Field names as they appear in validation errors and in the log header.
const (
	FieldFirstName = "first_name"
	FieldLastName  = "last_name"
	FieldCompany   = "company"
	FieldProvider  = "provider"
	FieldPlate     = "plate_number"
)

// Normalize trims every field and converts it to Unicode NFC, so that the same
// name typed on different keyboards is stored identically.
func (f Fields) Normalize() Fields {
	return Fields{
		FirstName: normalizeText(f.FirstName),
		LastName:  normalizeText(f.LastName),
		Company:   normalizeText(f.Company),
		Provider:  normalizeText(f.Provider),
		Plate:     normalizeText(f.Plate),
	}
}

// Missing returns the names of required fields that are blank, in form order.
func (f Fields) Missing() []string {
	var missing []string
	for _, kv := range f.pairs() {
		if strings.TrimSpace(kv.value) == "" {
			missing = append(missing, kv.name)
		}
	}
	return missing
}

// Unencodable returns the names of fields containing characters that cannot be
// stored on a single log line (tab, CR, LF).
func (f Fields) Unencodable() []string {
	var bad []string
	for _, kv := range f.pairs() {
		if strings.ContainsAny(kv.value, "\t\r\n") {
			bad = append(bad, kv.name)
		}
	}
	return bad
}

type fieldPair struct {
	name  string
	value string
}

func (f Fields) pairs() []fieldPair {
	return []fieldPair{
		{FieldFirstName, f.FirstName},
		{FieldLastName, f.LastName},
		{FieldCompany, f.Company},
		{FieldProvider, f.Provider},
		{FieldPlate, f.Plate},
	}
}

func normalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
