// Package tabular streams rows out of uploaded CSV files.
package tabular

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Options control CSV parsing.
type Options struct {
	Comma      rune // Field delimiter, ',' when zero
	TrimSpace  bool
	LazyQuotes bool
}

// RowFunc receives each data row: its zero-based index and cells aligned to
// the header order (short rows are padded with empty strings, long rows
// truncated).
type RowFunc func(index int, cells []string) error

// ErrFunc receives per-line parse errors. Malformed lines are skipped, not
// fatal; returning from ErrFunc continues the stream.
type ErrFunc func(line int, err error)

// Stream parses src and invokes onRow for every data row after the header.
// It returns the normalized header and the number of rows delivered.
// Cancellation is checked per row.
func Stream(ctx context.Context, src io.Reader, opt Options, onRow RowFunc, onErr ErrFunc) ([]string, int, error) {
	cr := csv.NewReader(src)
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.LazyQuotes = opt.LazyQuotes
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	line := 0
	readRec := func() ([]string, error) {
		line++
		return cr.Read()
	}

	rawHeader, err := readRec()
	if err != nil {
		if err == io.EOF {
			return nil, 0, errors.New("file is empty")
		}
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	headers := NormalizeHeaders(rawHeader, opt.TrimSpace)

	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return headers, count, err
		}

		rec, err := readRec()
		if err == io.EOF {
			return headers, count, nil
		}
		if err != nil {
			if onErr != nil {
				onErr(line, err)
			}
			continue
		}

		cells := make([]string, len(headers))
		for i := range headers {
			if i < len(rec) {
				v := rec[i]
				if opt.TrimSpace {
					v = strings.TrimSpace(v)
				}
				cells[i] = v
			}
		}

		if err := onRow(count, cells); err != nil {
			return headers, count, err
		}
		count++
	}
}

// NormalizeHeaders keeps original header spellings but guarantees every
// header is non-empty and unique: blanks become column_<n>, duplicates get a
// numeric suffix.
func NormalizeHeaders(raw []string, trim bool) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, len(raw))

	for i, h := range raw {
		if trim {
			h = strings.TrimSpace(h)
		}
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}

		candidate := h
		for n := 2; seen[candidate]; n++ {
			candidate = fmt.Sprintf("%s_%d", h, n)
		}
		seen[candidate] = true
		out[i] = candidate
	}
	return out
}
