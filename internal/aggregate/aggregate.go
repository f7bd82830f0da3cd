// Package aggregate computes the grouped views shown for each measured variable.
package aggregate

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kjstillabower/sensor-dashboard/internal/models"
	"github.com/kjstillabower/sensor-dashboard/internal/pipeline"
)

// MonthLayout formats the monthly grouping key. Keys sort lexically in
// chronological order.
const MonthLayout = "2006-01"

// Bucket is the total of a weight for one discrete value of a variable.
type Bucket struct {
	Value float64 `json:"value"`
	Total float64 `json:"total"`
}

// DistrictMean is the mean of a variable over one district.
type DistrictMean struct {
	District string  `json:"district"`
	Mean     float64 `json:"mean"`
}

// MonthTotal is the sum of a variable over one calendar month.
type MonthTotal struct {
	Month string  `json:"month"`
	Total float64 `json:"total"`
}

// Summary describes the non-missing values of a variable.
type Summary struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Report bundles every aggregate of one variable.
type Report struct {
	Variable     models.Variable
	Distribution []Bucket
	Frequency    []Bucket
	ByDistrict   []DistrictMean
	Monthly      []MonthTotal
	Summary      Summary
}

// Build computes all aggregates of v over t.
func Build(t pipeline.Table, v models.Variable) Report {
	return Report{
		Variable:     v,
		Distribution: Distribution(t, v),
		Frequency:    Frequency(t, v),
		ByDistrict:   ByDistrict(t, v),
		Monthly:      Monthly(t, v),
		Summary:      Summarize(t, v),
	}
}

// Distribution sums Probability per distinct value of v.
func Distribution(t pipeline.Table, v models.Variable) []Bucket {
	return sumByValue(t, v, func(r models.Reading) float64 { return r.Probability })
}

// Frequency sums Time per distinct value of v.
func Frequency(t pipeline.Table, v models.Variable) []Bucket {
	return sumByValue(t, v, func(r models.Reading) float64 { return r.Time })
}

// sumByValue groups by the value of v, skipping missing keys and missing
// weights, and returns buckets in ascending key order.
func sumByValue(t pipeline.Table, v models.Variable, weight func(models.Reading) float64) []Bucket {
	groups := make(map[float64][]float64)
	t.Each(func(r models.Reading) {
		key := v.Value(r)
		if math.IsNaN(key) || math.IsInf(key, 0) {
			return
		}
		groups[key] = appendPresent(groups[key], weight(r))
	})
	out := make([]Bucket, 0, len(groups))
	for key, weights := range groups {
		out = append(out, Bucket{Value: key, Total: floats.Sum(weights)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

// ByDistrict averages v per district. Readings without a district are
// skipped; a district whose values are all missing has a NaN mean.
func ByDistrict(t pipeline.Table, v models.Variable) []DistrictMean {
	groups := make(map[string][]float64)
	t.Each(func(r models.Reading) {
		if r.District == "" {
			return
		}
		groups[r.District] = appendPresent(groups[r.District], v.Value(r))
	})
	out := make([]DistrictMean, 0, len(groups))
	for district, values := range groups {
		mean := math.NaN()
		if len(values) > 0 {
			mean = stat.Mean(values, nil)
		}
		out = append(out, DistrictMean{District: district, Mean: mean})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].District < out[j].District })
	return out
}

// Monthly sums v per calendar month in chronological order.
func Monthly(t pipeline.Table, v models.Variable) []MonthTotal {
	groups := make(map[string][]float64)
	t.Each(func(r models.Reading) {
		key := r.Timestamp.UTC().Format(MonthLayout)
		groups[key] = appendPresent(groups[key], v.Value(r))
	})
	out := make([]MonthTotal, 0, len(groups))
	for month, values := range groups {
		out = append(out, MonthTotal{Month: month, Total: floats.Sum(values)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// Summarize returns count, mean, sample standard deviation and range of the
// non-missing values of v. Fields other than Count are NaN when nothing is present.
func Summarize(t pipeline.Table, v models.Variable) Summary {
	var values []float64
	t.Each(func(r models.Reading) {
		values = appendPresent(values, v.Value(r))
	})
	if len(values) == 0 {
		nan := math.NaN()
		return Summary{Mean: nan, StdDev: nan, Min: nan, Max: nan}
	}
	s := Summary{Count: len(values), Min: floats.Min(values), Max: floats.Max(values)}
	if len(values) == 1 {
		s.Mean = values[0]
		s.StdDev = math.NaN()
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	return s
}

// TotalProbability sums the non-missing Probability weights of readings
// whose value of v is present.
func TotalProbability(t pipeline.Table, v models.Variable) float64 {
	var weights []float64
	t.Each(func(r models.Reading) {
		if math.IsNaN(v.Value(r)) {
			return
		}
		weights = appendPresent(weights, r.Probability)
	})
	return floats.Sum(weights)
}

func appendPresent(dst []float64, v float64) []float64 {
	if math.IsNaN(v) {
		return dst
	}
	return append(dst, v)
}
