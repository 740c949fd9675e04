package models

import "fmt"

// RowError records a single rejected row. Row-local errors never abort the
// batch; they accumulate on the result up to a configured cap.
type RowError struct {
	Row    int    `json:"row"`
	Column string `json:"column,omitempty"`
	Reason string `json:"reason"`
}

// Error implements the error interface.
func (e RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("row %d, column %q: %s", e.Row, e.Column, e.Reason)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

// IngestResult summarizes one ETL run. Overflow holds the count of rejected
// rows past the retained error cap.
type IngestResult struct {
	EntitiesWritten int        `json:"entities_written"`
	ReadingsWritten int        `json:"readings_written"`
	RowsRejected    int        `json:"rows_rejected"`
	Errors          []RowError `json:"errors,omitempty"`
	Overflow        int        `json:"overflow,omitempty"`
}

// Summary renders a one-line human-readable account for the dataset record.
func (r *IngestResult) Summary() string {
	s := fmt.Sprintf("%d entities, %d readings written", r.EntitiesWritten, r.ReadingsWritten)
	if r.RowsRejected > 0 {
		s += fmt.Sprintf(", %d rows rejected", r.RowsRejected)
	}
	if r.Overflow > 0 {
		s += fmt.Sprintf(" (%d additional rows rejected beyond the error cap)", r.Overflow)
	}
	return s
}
