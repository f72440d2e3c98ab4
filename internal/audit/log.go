package audit

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/guard"
)

var (
	// ErrLogIO wraps any failure to append to the audit log.
	ErrLogIO = errors.New("audit log I/O error")

	// ErrFieldMismatch is returned when a record's field set differs from the log header.
	ErrFieldMismatch = errors.New("record fields do not match log header")
)

// Log is an append-only CSV file. In-process appends are serialized by the
// guard's log handle; a sibling .lock file keeps other processes out as well.
type Log struct {
	path   string
	guard  *guard.Guard
	flock  *flock.Flock
	logger *zap.Logger

	// header is the column order of the file, fixed by the first record.
	header []string
}

// NewLog creates a log writing to path. The file and its directory are created on first append.
func NewLog(path string, g *guard.Guard, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{
		path:   path,
		guard:  g,
		flock:  flock.New(path + ".lock"),
		logger: logger,
	}
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes one record.
func (l *Log) Append(ctx context.Context, rec Record) error {
	return l.AppendFields(ctx, rec.Fields())
}

// AppendFields writes one row. If the log does not exist yet, a header derived
// from the field names is written first.
func (l *Log) AppendFields(ctx context.Context, fields []Field) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: empty record", ErrLogIO)
	}
	err := l.guard.Log(ctx, func() error {
		return l.appendLocked(fields)
	})
	if err != nil && !errors.Is(err, ErrLogIO) {
		return fmt.Errorf("%w: %w", ErrLogIO, err)
	}
	return err
}

func (l *Log) appendLocked(fields []Field) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("%w: creating log directory: %w", ErrLogIO, err)
	}

	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("%w: locking %s: %w", ErrLogIO, l.flock.Path(), err)
	}
	defer func() {
		if err := l.flock.Unlock(); err != nil {
			l.logger.Warn("failed to release audit log lock", zap.Error(err))
		}
	}()

	header, err := l.currentHeader()
	if err != nil {
		return err
	}

	writeHeader := false
	if header == nil {
		header = make([]string, len(fields))
		for i, f := range fields {
			header[i] = f.Name
		}
		writeHeader = true
	}

	row, err := rowFor(header, fields)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("%w: opening %s: %w", ErrLogIO, l.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("%w: writing header: %w", ErrLogIO, err)
		}
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("%w: writing row: %w", ErrLogIO, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: flushing: %w", ErrLogIO, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", ErrLogIO, l.path, err)
	}

	l.header = header
	return nil
}

// currentHeader returns the header of the existing file, or nil when the file
// is missing or empty and a header still has to be written.
func (l *Log) currentHeader() ([]string, error) {
	info, err := os.Stat(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		l.header = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: checking %s: %w", ErrLogIO, l.path, err)
	}
	if info.Size() == 0 {
		l.header = nil
		return nil, nil
	}
	if l.header != nil {
		return l.header, nil
	}

	f, err := os.Open(l.path) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrLogIO, l.path, err)
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: reading header: %w", ErrLogIO, err)
	}
	l.header = header
	return header, nil
}

// rowFor orders the field values by header. The record must supply exactly the header's fields.
func rowFor(header []string, fields []Field) ([]string, error) {
	if len(fields) != len(header) {
		return nil, fmt.Errorf("%w: %w: got %d fields, header has %d", ErrLogIO, ErrFieldMismatch, len(fields), len(header))
	}
	values := make(map[string]string, len(fields))
	for _, f := range fields {
		values[f.Name] = f.Value
	}
	row := make([]string, len(header))
	for i, name := range header {
		v, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("%w: %w: missing %q", ErrLogIO, ErrFieldMismatch, name)
		}
		row[i] = v
	}
	if len(values) != len(header) || slices.ContainsFunc(header, func(s string) bool { return s == "" }) {
		return nil, fmt.Errorf("%w: %w: duplicate or empty field names", ErrLogIO, ErrFieldMismatch)
	}
	return row, nil
}
