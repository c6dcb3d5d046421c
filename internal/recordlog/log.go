package recordlog

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/frontdesk/internal/fsutil"
	"github.com/roach88/frontdesk/internal/record"
)

// DefaultFileName is the log file name inside the data directory.
const DefaultFileName = "registros.tsv"

// LoadPolicy selects what LoadAll does with a line it cannot decode.
type LoadPolicy int

const (
	// Strict aborts the load on the first corrupt line.
	Strict LoadPolicy = iota
	// Lenient skips corrupt lines and reports them.
	Lenient
)

// ParseLoadPolicy maps "strict" or "lenient" to a LoadPolicy.
func ParseLoadPolicy(s string) (LoadPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return Strict, nil
	case "lenient":
		return Lenient, nil
	default:
		return Strict, fmt.Errorf("unknown load policy %q: must be strict or lenient", s)
	}
}

func (p LoadPolicy) String() string {
	if p == Lenient {
		return "lenient"
	}
	return "strict"
}

// LoadReport describes what LoadAll found besides the records themselves.
type LoadReport struct {
	Lines    int                 // lines read, header included
	Skipped  []*CorruptLineError // lenient mode only
	TornTail string              // unterminated final line, ignored

	// MaxSkippedID is the largest id still readable from a skipped line.
	// Those ids may have been issued, so they must not be issued again.
	MaxSkippedID int64
}

// Log is the append-only record store. It keeps the loaded records in memory
// and owns the authoritative list; readers get copies.
//
// Thread-safety: all methods are safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	path    string
	policy  LoadPolicy
	logger  *slog.Logger
	records []record.Record

	// reserved is an id whose line may be on disk although Append failed.
	reserved int64

	sync func(*os.File) error
}

// Option configures a Log.
type Option func(*Log)

// WithPolicy sets the corrupt-line policy for LoadAll.
func WithPolicy(p LoadPolicy) Option {
	return func(l *Log) { l.policy = p }
}

// WithLogger sets the logger used for warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New returns a log backed by path. Nothing is read until LoadAll.
func New(path string, opts ...Option) *Log {
	l := &Log{
		path:   path,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		sync:   (*os.File).Sync,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Policy returns the configured load policy.
func (l *Log) Policy() LoadPolicy {
	return l.policy
}

// LoadAll reads the log from the beginning and replaces the in-memory list.
// A missing file yields no records and no error. The returned slice is a copy
// in file order.
func (l *Log) LoadAll() ([]record.Record, LoadReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var report LoadReport

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		l.records = nil
		return []record.Record{}, report, nil
	}
	if err != nil {
		return nil, report, fmt.Errorf("open record log: %w", err)
	}
	defer f.Close()

	var records []record.Record
	rd := bufio.NewReader(f)
	lineNo := 0
	for {
		raw, rerr := rd.ReadString('\n')
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return nil, report, fmt.Errorf("read record log: %w", rerr)
		}
		if raw == "" {
			break
		}
		lineNo++
		report.Lines = lineNo

		if !strings.HasSuffix(raw, "\n") {
			report.TornTail = raw
			l.logger.Warn("ignoring unterminated final line of record log", "path", l.path, "line", lineNo, "raw", raw)
			break
		}
		line := strings.TrimRight(raw, "\r\n")

		if lineNo == 1 {
			if isHeader(line) {
				continue
			}
			cerr := &CorruptLineError{Path: l.path, Line: lineNo, Raw: line, Err: errBadHeader}
			if l.policy == Strict {
				return nil, report, cerr
			}
			l.skip(&report, cerr)
			// The first line may still be a record in a header-less file.
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		rec, derr := decodeRecord(line)
		if derr == nil && len(records) > 0 && rec.ID <= records[len(records)-1].ID {
			derr = fmt.Errorf("%w: %d after %d", errIDOrdering, rec.ID, records[len(records)-1].ID)
		}
		if derr != nil {
			if lineNo == 1 {
				// Already reported as a bad header.
				continue
			}
			cerr := &CorruptLineError{Path: l.path, Line: lineNo, Raw: line, Err: derr}
			if l.policy == Strict {
				return nil, report, cerr
			}
			l.skip(&report, cerr)
			continue
		}
		records = append(records, rec)
	}

	l.records = records
	l.reserved = 0
	l.logger.Debug("record log loaded", "path", l.path, "records", len(records), "skipped", len(report.Skipped))
	return slices.Clone(l.nonNil()), report, nil
}

func (l *Log) skip(report *LoadReport, cerr *CorruptLineError) {
	report.Skipped = append(report.Skipped, cerr)
	if id, ok := leadingID(cerr.Raw); ok && id > report.MaxSkippedID {
		report.MaxSkippedID = id
	}
	l.logger.Warn("skipping corrupt record line", "path", cerr.Path, "line", cerr.Line, "raw", cerr.Raw, "error", cerr.Err)
}

// Append durably writes r at the end of the log. The header is written first
// when the file is new or empty. r.ID must be greater than every id already in
// the log. When Append fails the file is cut back to its previous size, so a
// retry with the same id does not leave a duplicate line behind.
func (l *Log) Append(r record.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	last := l.reserved
	if n := len(l.records); n > 0 && l.records[n-1].ID > last {
		last = l.records[n-1].ID
	}
	if r.ID <= last {
		return fmt.Errorf("append record %d: %w (last is %d)", r.ID, errIDOrdering, last)
	}

	line, err := encodeRecord(r)
	if err != nil {
		return fmt.Errorf("append record %d: encode: %w", r.ID, err)
	}

	dir := filepath.Dir(l.path)
	if err := fsutil.EnsureDir(dir); err != nil {
		return fmt.Errorf("append record %d: %w", r.ID, err)
	}
	_, statErr := os.Stat(l.path)
	created := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("append record %d: open: %w", r.ID, err)
	}
	defer f.Close()

	size, err := l.repairTail(f)
	if err != nil {
		return fmt.Errorf("append record %d: %w", r.ID, err)
	}

	var buf bytes.Buffer
	if size == 0 {
		header, err := encodeHeader()
		if err != nil {
			return fmt.Errorf("append record %d: encode header: %w", r.ID, err)
		}
		buf.Write(header)
	}
	buf.Write(line)

	if err := l.writeSynced(f, buf.Bytes()); err != nil {
		if terr := l.rollback(f, size); terr != nil {
			l.reserved = r.ID
			return fmt.Errorf("append record %d: %w", r.ID, errors.Join(err, terr))
		}
		return fmt.Errorf("append record %d: %w", r.ID, err)
	}
	if err := f.Close(); err != nil {
		// The line is already synced.
		l.logger.Warn("closing record log failed after append", "path", l.path, "id", r.ID, "error", err)
	}
	if created {
		_ = fsutil.SyncDir(dir)
	}

	l.records = append(l.records, r)
	return nil
}

func (l *Log) writeSynced(f *os.File, b []byte) error {
	if _, err := f.Write(b); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := l.sync(f); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}

// rollback cuts the file back to size after a failed append.
func (l *Log) rollback(f *os.File, size int64) error {
	if err := f.Truncate(size); err != nil {
		return fmt.Errorf("truncate failed append: %w", err)
	}
	if err := l.sync(f); err != nil {
		l.logger.Warn("sync after truncating failed append", "path", l.path, "error", err)
	}
	return nil
}

// repairTail truncates an unterminated final line left by an interrupted
// append and returns the resulting file size.
func (l *Log) repairTail(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return 0, nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return 0, fmt.Errorf("read tail: %w", err)
	}
	if last[0] == '\n' {
		return size, nil
	}

	cut, err := lastLineEnd(f, size)
	if err != nil {
		return 0, err
	}
	if err := f.Truncate(cut); err != nil {
		return 0, fmt.Errorf("truncate torn tail: %w", err)
	}
	l.logger.Warn("truncated unterminated final line of record log", "path", l.path, "bytes", size-cut)
	return cut, nil
}

// lastLineEnd returns the offset just past the last '\n' before size, or 0.
func lastLineEnd(f *os.File, size int64) (int64, error) {
	const chunk = 4096
	buf := make([]byte, chunk)
	end := size
	for end > 0 {
		start := max(end-chunk, 0)
		n, err := f.ReadAt(buf[:end-start], start)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("scan tail: %w", err)
		}
		if i := bytes.LastIndexByte(buf[:n], '\n'); i >= 0 {
			return start + int64(i) + 1, nil
		}
		end = start
	}
	return 0, nil
}

// Records returns a copy of the loaded and appended records, oldest first.
func (l *Log) Records() []record.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.nonNil())
}

// Len returns the number of records in memory.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Last returns the most recently appended record.
func (l *Log) Last() (record.Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.records) == 0 {
		return record.Record{}, false
	}
	return l.records[len(l.records)-1], true
}

// Find returns the record with the given id.
func (l *Log) Find(id int64) (record.Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := slices.BinarySearchFunc(l.records, id, func(r record.Record, id int64) int {
		switch {
		case r.ID < id:
			return -1
		case r.ID > id:
			return 1
		}
		return 0
	})
	if !ok {
		return record.Record{}, false
	}
	return l.records[i], true
}

// OrderedView returns the records sorted by id, newest first. It is a copy;
// the log itself is not reordered.
func (l *Log) OrderedView() []record.Record {
	out := l.Records()
	slices.SortStableFunc(out, func(a, b record.Record) int {
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
	return out
}

func (l *Log) nonNil() []record.Record {
	if l.records == nil {
		return []record.Record{}
	}
	return l.records
}
