package validation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/kjstillabower/sensor-dashboard/internal/export"
	"github.com/kjstillabower/sensor-dashboard/internal/models"
	"github.com/kjstillabower/sensor-dashboard/internal/pipeline"
)

// ErrDatasetIDInvalid is returned when a dataset id is not a UUID.
var ErrDatasetIDInvalid = errors.New("dataset id is invalid")

// ErrDateInvalid is returned when a date is not in YYYY-MM-DD form.
var ErrDateInvalid = errors.New("date must be YYYY-MM-DD")

// ErrVariableUnknown is returned for a variable key outside wind, temperature, irradiation, humidity.
var ErrVariableUnknown = errors.New("unknown variable")

// ErrTableUnknown is returned for a download table outside weibull, region, workbook.
var ErrTableUnknown = errors.New("unknown table")

// ErrSelectionTooLarge is returned when a filter carries more values than allowed.
var ErrSelectionTooLarge = errors.New("too many selected values")

// ErrSelectionValueTooLong is returned when a selected value exceeds the maximum length.
var ErrSelectionValueTooLong = errors.New("selected value too long")

// ErrSelectionInvalidChars is returned when a selected value contains control characters.
var ErrSelectionInvalidChars = errors.New("selected value contains invalid characters")

// Selection limits.
const (
	MaxSelectedValues = 1000
	MaxValueLength    = 200
)

// ValidateDatasetID trims the input and checks it is a UUID. An empty id is
// valid and selects the fallback dataset.
func ValidateDatasetID(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrDatasetIDInvalid, s)
	}
	return id.String(), nil
}

// ParseDate parses a YYYY-MM-DD date in UTC. An empty input returns nil so the
// caller falls back to the dataset bounds.
func ParseDate(input string) (*time.Time, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(pipeline.DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrDateInvalid, s)
	}
	return &t, nil
}

// ValidateVariable resolves a URL variable key.
func ValidateVariable(input string) (models.Variable, error) {
	v, ok := models.ParseVariable(strings.ToLower(strings.TrimSpace(input)))
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrVariableUnknown, input)
	}
	return v, nil
}

// ValidateTable checks a download table name.
func ValidateTable(input string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	if !export.ValidTable(s) {
		return "", fmt.Errorf("%w: %q", ErrTableUnknown, input)
	}
	return s, nil
}

// ValidateSelection builds a cascade selection from query values keyed by
// level (gps, country, region, district). Values are trimmed, blanks dropped,
// duplicates removed in first-seen order.
func ValidateSelection(q url.Values) (pipeline.Selection, error) {
	sel := pipeline.Selection{}
	for _, level := range pipeline.Levels {
		raw := q[level.Key()]
		if len(raw) > MaxSelectedValues {
			return nil, fmt.Errorf("%w: %s", ErrSelectionTooLarge, level.Key())
		}
		seen := make(map[string]struct{}, len(raw))
		var values []string
		for _, v := range raw {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if len([]rune(v)) > MaxValueLength {
				return nil, fmt.Errorf("%w: %s", ErrSelectionValueTooLong, level.Key())
			}
			for _, c := range v {
				if unicode.IsControl(c) {
					return nil, fmt.Errorf("%w: %s", ErrSelectionInvalidChars, level.Key())
				}
			}
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			values = append(values, v)
		}
		if len(values) > 0 {
			sel[level] = values
		}
	}
	return sel, nil
}
