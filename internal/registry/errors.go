package registry

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorises registry errors for callers that report them.
type ErrorCode string

const (
	// ErrCodeValidation indicates a required field is missing or unusable.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeStorageUnavailable indicates a counter or log file could not be
	// opened, read, or written.
	ErrCodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"

	// ErrCodeCorruptState indicates persisted state could not be parsed.
	ErrCodeCorruptState ErrorCode = "CORRUPT_STATE"

	// ErrCodePartialPersistence indicates the record is durable but the
	// counters are not.
	ErrCodePartialPersistence ErrorCode = "PARTIAL_PERSISTENCE"
)

// ErrClosed is returned by Register after Close.
var ErrClosed = errors.New("registry is closed")

// ValidationError reports fields the caller should have rejected.
// Recoverable: the operator corrects the form and tries again.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrCodeValidation, e.Reason, strings.Join(e.Fields, ", "))
}

// Code returns ErrCodeValidation.
func (e *ValidationError) Code() ErrorCode { return ErrCodeValidation }

// StorageUnavailableError wraps an I/O failure on the counter or log files.
// A failed Register with this error left no durable trace.
type StorageUnavailableError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageUnavailableError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s %s: %v", ErrCodeStorageUnavailable, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrCodeStorageUnavailable, e.Op, e.Err)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Err }

// Code returns ErrCodeStorageUnavailable.
func (e *StorageUnavailableError) Code() ErrorCode { return ErrCodeStorageUnavailable }

// CorruptStateError reports unparsable persisted state. For counter files it
// is informational (they fail open); for the record log it aborts Open under
// the strict load policy.
type CorruptStateError struct {
	Path string
	Line int // 0 for counter files
	Raw  string
	Err  error
}

func (e *CorruptStateError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s:%d: %q: %v", ErrCodeCorruptState, e.Path, e.Line, e.Raw, e.Err)
	}
	return fmt.Sprintf("%s: %s: %q: %v", ErrCodeCorruptState, e.Path, e.Raw, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }

// Code returns ErrCodeCorruptState.
func (e *CorruptStateError) Code() ErrorCode { return ErrCodeCorruptState }

// PartialPersistenceWarning is returned alongside a valid record when the
// record was appended but the counters could not be persisted. The call
// succeeded; the warning must still reach the operator.
type PartialPersistenceWarning struct {
	RecordID int64
	Turn     int
	Err      error
}

func (e *PartialPersistenceWarning) Error() string {
	return fmt.Sprintf("%s: record %d (turn %d) is saved but counters were not persisted: %v",
		ErrCodePartialPersistence, e.RecordID, e.Turn, e.Err)
}

func (e *PartialPersistenceWarning) Unwrap() error { return e.Err }

// Code returns ErrCodePartialPersistence.
func (e *PartialPersistenceWarning) Code() ErrorCode { return ErrCodePartialPersistence }

// CodeOf returns the ErrorCode carried by err, or "" if it has none.
func CodeOf(err error) ErrorCode {
	var coded interface{ Code() ErrorCode }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return ""
}

// IsValidation returns true if err is a *ValidationError.
// Uses errors.As to handle wrapped errors.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStorageUnavailable returns true if err is a *StorageUnavailableError.
func IsStorageUnavailable(err error) bool {
	var se *StorageUnavailableError
	return errors.As(err, &se)
}

// IsCorruptState returns true if err is a *CorruptStateError.
func IsCorruptState(err error) bool {
	var ce *CorruptStateError
	return errors.As(err, &ce)
}

// IsPartialPersistence returns true if err is a *PartialPersistenceWarning.
// The record returned with such an error is valid and durable.
func IsPartialPersistence(err error) bool {
	var pw *PartialPersistenceWarning
	return errors.As(err, &pw)
}
