package dataset

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

var nan = math.NaN()

// dateLayouts are tried in order. Month-first slash dates come before
// day-first so "03/04/2023" reads as March 4, and "15/04/2023" still parses.
var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
}

// parseDate coerces a cell to a timestamp. Workbook cells may hold Excel
// serial day numbers; those are only accepted when serials is set.
func parseDate(s string, serials bool) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if serials {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
			if t, err := excelize.ExcelDateToTime(f, false); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}
