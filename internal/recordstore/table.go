package recordstore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
)

// Table is a read-only snapshot of a store file, used by the stages that
// consume another stage's output.
type Table struct {
	Header []string
	Rows   [][]string
}

// Read loads path with the given delimiter. A row that fails to parse is
// logged and skipped; the rows around it are still returned.
func Read(path string, delimiter rune, logger *slog.Logger) (*Table, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = delimiter
	r.FieldsPerRecord = -1

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				logger.Warn("skipping malformed row", "path", path, "line", perr.StartLine, "err", perr.Err)
				continue
			}
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		records = append(records, rec)
	}

	t := &Table{}
	if len(records) == 0 {
		return t, nil
	}
	t.Header = records[0]
	t.Rows = records[1:]
	return t, nil
}

// Exists reports whether path exists and is not empty.
func Exists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Size() > 0
}

// Column returns the index of name in the header, or -1.
func (t *Table) Column(name string) int {
	return slices.Index(t.Header, name)
}

// Values returns the non-empty values of column name, in file order.
func (t *Table) Values(name string) []string {
	idx := t.Column(name)
	if idx < 0 {
		return nil
	}
	var out []string
	for _, row := range t.Rows {
		if len(row) > idx && row[idx] != "" {
			out = append(out, row[idx])
		}
	}
	return out
}

// Records returns rows as column-name maps. Short rows yield missing keys.
func (t *Table) Records() []map[string]string {
	out := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]string, len(t.Header))
		for i, name := range t.Header {
			if i < len(row) {
				rec[name] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out
}
