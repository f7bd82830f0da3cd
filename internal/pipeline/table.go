// Package pipeline holds the filtering stages applied to a loaded dataset.
// Every stage is a pure function from Table to Table.
package pipeline

import (
	"time"

	"github.com/kjstillabower/sensor-dashboard/internal/models"
)

// Table is an immutable set of readings. Stages return new tables and never
// modify their input.
type Table struct {
	rows []models.Reading
}

// NewTable copies rows into a Table.
func NewTable(rows []models.Reading) Table {
	cp := make([]models.Reading, len(rows))
	copy(cp, rows)
	return Table{rows: cp}
}

// Len returns the number of readings.
func (t Table) Len() int { return len(t.rows) }

// Rows returns a copy of the readings.
func (t Table) Rows() []models.Reading {
	cp := make([]models.Reading, len(t.rows))
	copy(cp, t.rows)
	return cp
}

// Each calls fn for every reading in order.
func (t Table) Each(fn func(models.Reading)) {
	for _, r := range t.rows {
		fn(r)
	}
}

// Filter returns the readings for which keep returns true.
func (t Table) Filter(keep func(models.Reading) bool) Table {
	out := make([]models.Reading, 0, len(t.rows))
	for _, r := range t.rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return Table{rows: out}
}

// Stage is one transformation of the pipeline.
type Stage func(Table) Table

// Apply runs stages in order.
func Apply(t Table, stages ...Stage) Table {
	for _, s := range stages {
		t = s(t)
	}
	return t
}

// Bounds returns the calendar-day range covering all timestamps.
// ok is false for an empty table.
func (t Table) Bounds() (r DateRange, ok bool) {
	if len(t.rows) == 0 {
		return DateRange{}, false
	}
	lo, hi := t.rows[0].Timestamp, t.rows[0].Timestamp
	for _, row := range t.rows[1:] {
		if row.Timestamp.Before(lo) {
			lo = row.Timestamp
		}
		if row.Timestamp.After(hi) {
			hi = row.Timestamp
		}
	}
	return DateRange{Start: Day(lo), End: Day(hi)}, true
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
