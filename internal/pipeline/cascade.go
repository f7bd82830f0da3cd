package pipeline

import (
	"fmt"

	"github.com/kjstillabower/sensor-dashboard/internal/models"
)

// Level is one stage of the location filter chain.
type Level int

const (
	LevelGPS Level = iota
	LevelCountry
	LevelRegion
	LevelDistrict
)

// Levels is the fixed application order of the cascade.
var Levels = []Level{LevelGPS, LevelCountry, LevelRegion, LevelDistrict}

// Column returns the dataset column the level filters on.
func (l Level) Column() string {
	switch l {
	case LevelGPS:
		return models.ColumnGPS
	case LevelCountry:
		return models.ColumnCountry
	case LevelRegion:
		return models.ColumnRegion
	case LevelDistrict:
		return models.ColumnDistrict
	}
	return ""
}

// Key is the query parameter name for the level's selection.
func (l Level) Key() string {
	switch l {
	case LevelGPS:
		return "gps"
	case LevelCountry:
		return "country"
	case LevelRegion:
		return "region"
	case LevelDistrict:
		return "district"
	}
	return ""
}

func (l Level) String() string {
	if k := l.Key(); k != "" {
		return k
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// Value returns the reading's value at the level.
func (l Level) Value(r models.Reading) string {
	switch l {
	case LevelGPS:
		return r.GPS
	case LevelCountry:
		return r.Country
	case LevelRegion:
		return r.Region
	case LevelDistrict:
		return r.District
	}
	return ""
}

// Selection holds the multi-select choices per level. A level with no
// values is not filtered.
type Selection map[Level][]string

// ByLevel keeps readings whose level value is one of selected. An empty
// selection returns the input unchanged.
func ByLevel(level Level, selected []string) Stage {
	return func(t Table) Table {
		if len(selected) == 0 {
			return t
		}
		set := make(map[string]struct{}, len(selected))
		for _, s := range selected {
			set[s] = struct{}{}
		}
		return t.Filter(func(r models.Reading) bool {
			_, ok := set[level.Value(r)]
			return ok
		})
	}
}

// StageResult describes one step of the cascade.
type StageResult struct {
	Level    Level
	Options  []string
	Selected []string
	In       int
	Out      int
}

// CascadeResult is the output of the location filter chain.
type CascadeResult struct {
	Stages   []StageResult
	Filtered Table
}

// Cascade applies the GPS, Country, Region and District stages in order.
// The options offered at each stage are the distinct values of the previous
// stage's output, so they reflect upstream selections but not downstream ones.
func Cascade(t Table, sel Selection) CascadeResult {
	res := CascadeResult{Stages: make([]StageResult, 0, len(Levels))}
	for _, level := range Levels {
		chosen := sel[level]
		next := ByLevel(level, chosen)(t)
		res.Stages = append(res.Stages, StageResult{
			Level:    level,
			Options:  Options(t, level),
			Selected: chosen,
			In:       t.Len(),
			Out:      next.Len(),
		})
		t = next
	}
	res.Filtered = t
	return res
}

// Options returns the distinct non-empty level values of t in order of first appearance.
func Options(t Table, level Level) []string {
	seen := make(map[string]struct{})
	var out []string
	t.Each(func(r models.Reading) {
		v := level.Value(r)
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	})
	return out
}
