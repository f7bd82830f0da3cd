package pipeline

import (
	"time"

	"github.com/kjstillabower/sensor-dashboard/internal/models"
)

// DateLayout is the wire format of date picks.
const DateLayout = "2006-01-02"

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether the range cannot contain any timestamp (start after end).
func (r DateRange) Empty() bool {
	return Day(r.Start).After(Day(r.End))
}

// Clamp limits each bound of r to bounds. An inverted range stays inverted.
func (r DateRange) Clamp(bounds DateRange) DateRange {
	return DateRange{
		Start: clampDay(r.Start, bounds),
		End:   clampDay(r.End, bounds),
	}
}

// Contains reports whether ts falls on a day within the range.
func (r DateRange) Contains(ts time.Time) bool {
	start := Day(r.Start)
	endExclusive := Day(r.End).AddDate(0, 0, 1)
	return !ts.Before(start) && ts.Before(endExclusive)
}

// String formats the range as "start..end".
func (r DateRange) String() string {
	return r.Start.Format(DateLayout) + ".." + r.End.Format(DateLayout)
}

func clampDay(t time.Time, bounds DateRange) time.Time {
	d := Day(t)
	if d.Before(bounds.Start) {
		return bounds.Start
	}
	if d.After(bounds.End) {
		return bounds.End
	}
	return d
}

// ByDateRange keeps readings whose timestamp falls within r. The end day is
// included in full; a range with start after end keeps nothing.
func ByDateRange(r DateRange) Stage {
	return func(t Table) Table {
		return t.Filter(func(row models.Reading) bool {
			return r.Contains(row.Timestamp)
		})
	}
}
