// Package recordstore implements the append-only, delimiter-framed record
// files the exporter writes. A store is opened for resume: the keys already
// present on disk form the resume index, and every append is synced before
// it is reported as written.
package recordstore

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"
)

// ErrDuplicate is returned by Append when the key is already in the store.
var ErrDuplicate = errors.New("duplicate key")

// Schema describes the fixed column set of one store file. The first column
// is the key.
type Schema struct {
	Columns   []string
	Delimiter rune
}

// Store is an open record file. It is owned by a single writer for the
// duration of a run.
type Store struct {
	path   string
	schema Schema
	file   *os.File
	writer *csv.Writer
	keys   map[string]struct{}
	logger *slog.Logger
}

// Open opens path for resume. A missing or empty file gets a fresh header.
// A file whose header differs from schema is moved aside to
// "<path>.mismatch-<unix>" and replaced by a fresh file, so resume never
// reads rows of an unknown shape. A partial trailing row left by a crash is
// truncated away; a malformed row with more rows after it is treated like a
// header mismatch, so no durable row is ever dropped.
func Open(path string, schema Schema, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(data) == 0) {
		logger.Debug("starting fresh store", "path", path)
		return Create(path, schema, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("read store %s: %w", path, err)
	}

	header, keys, goodEnd, err := scan(data, schema)
	if err != nil || !slices.Equal(header, schema.Columns) {
		logger.Warn("store header mismatch, resume disabled",
			"path", path, "found", header, "expected", schema.Columns, "err", err)
		return moveAside(path, schema, logger)
	}

	if goodEnd < int64(len(data)) {
		if !tornTail(data[goodEnd:]) {
			logger.Warn("store has malformed rows before its tail, resume disabled",
				"path", path, "offset", goodEnd)
			return moveAside(path, schema, logger)
		}
		logger.Warn("truncating partial trailing row", "path", path,
			"bytes", int64(len(data))-goodEnd)
		if err := os.Truncate(path, goodEnd); err != nil {
			return nil, fmt.Errorf("truncate %s: %w", path, err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}

	logger.Info("resuming store", "path", path, "records", len(keys))
	return newStore(path, schema, f, keys, logger), nil
}

// moveAside renames path to "<path>.mismatch-<unix>" and starts a fresh store
// in its place. The old bytes are kept for the operator.
func moveAside(path string, schema Schema, logger *slog.Logger) (*Store, error) {
	aside := fmt.Sprintf("%s.mismatch-%d", path, time.Now().Unix())
	if err := os.Rename(path, aside); err != nil {
		return nil, fmt.Errorf("move aside %s: %w", path, err)
	}
	logger.Warn("previous store moved aside", "path", path, "moved_to", aside)
	return Create(path, schema, logger)
}

// tornTail reports whether rest, the bytes after the last complete row, is a
// single row cut short by a crash. Anything followed by another line is
// corruption in the middle of the file.
func tornTail(rest []byte) bool {
	i := bytes.IndexByte(rest, '\n')
	return i < 0 || i == len(rest)-1
}

// Create truncates path and writes the schema header. Used for outcome files
// that are recreated on every run.
func Create(path string, schema Schema, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create store %s: %w", path, err)
	}
	s := newStore(path, schema, f, map[string]struct{}{}, logger)
	if err := s.write(schema.Columns); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header %s: %w", path, err)
	}
	return s, nil
}

func newStore(path string, schema Schema, f *os.File, keys map[string]struct{}, logger *slog.Logger) *Store {
	w := csv.NewWriter(f)
	w.Comma = schema.Delimiter
	return &Store{
		path:   path,
		schema: schema,
		file:   f,
		writer: w,
		keys:   keys,
		logger: logger,
	}
}

// Path returns the file path of the store.
func (s *Store) Path() string { return s.path }

// Has reports whether key is already durably recorded.
func (s *Store) Has(key string) bool {
	_, ok := s.keys[key]
	return ok
}

// Len returns the number of records in the store.
func (s *Store) Len() int { return len(s.keys) }

// Keys returns the resume index as a fresh set.
func (s *Store) Keys() map[string]struct{} {
	out := make(map[string]struct{}, len(s.keys))
	for k := range s.keys {
		out[k] = struct{}{}
	}
	return out
}

// Append writes one record and syncs it to stable storage. The key is added
// to the resume index only after the sync succeeded.
func (s *Store) Append(record []string) error {
	if len(record) != len(s.schema.Columns) {
		return fmt.Errorf("append to %s: got %d fields, want %d", s.path, len(record), len(s.schema.Columns))
	}
	key := record[0]
	if key == "" {
		return fmt.Errorf("append to %s: empty key", s.path)
	}
	if s.Has(key) {
		return fmt.Errorf("append %s to %s: %w", key, s.path, ErrDuplicate)
	}
	if err := s.write(record); err != nil {
		return fmt.Errorf("append %s to %s: %w", key, s.path, err)
	}
	s.keys[key] = struct{}{}
	return nil
}

// AppendRow writes a row without key bookkeeping. Outcome files record one
// row per attempt and may legitimately repeat keys.
func (s *Store) AppendRow(record []string) error {
	if err := s.write(record); err != nil {
		return fmt.Errorf("append row to %s: %w", s.path, err)
	}
	if len(record) > 0 && record[0] != "" {
		s.keys[record[0]] = struct{}{}
	}
	return nil
}

func (s *Store) write(record []string) error {
	if err := s.writer.Write(record); err != nil {
		return err
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return err
	}
	return s.file.Sync()
}

// Close closes the underlying file.
func (s *Store) Close() error {
	return s.file.Close()
}

// scan parses data and returns the header, the keys of all complete rows and
// the byte offset just past the last complete row.
func scan(data []byte, schema Schema) ([]string, map[string]struct{}, int64, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = schema.Delimiter
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, nil, 0, fmt.Errorf("read header: %w", err)
	}
	goodEnd := r.InputOffset()
	if goodEnd == 0 || data[goodEnd-1] != '\n' {
		return header, nil, 0, errors.New("incomplete header")
	}

	keys := make(map[string]struct{})
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		end := r.InputOffset()
		if len(rec) != len(schema.Columns) || data[end-1] != '\n' {
			break
		}
		if rec[0] != "" {
			keys[rec[0]] = struct{}{}
		}
		goodEnd = end
	}
	return header, keys, goodEnd, nil
}
