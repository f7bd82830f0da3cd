package aggregate

import (
	"math"
	"sort"
	"testing"
	"time"

	"github.com/kjstillabower/sensor-dashboard/internal/models"
	"github.com/kjstillabower/sensor-dashboard/internal/pipeline"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

const tolerance = 1e-9

func approx(a, b float64) bool { return math.Abs(a-b) < tolerance }

// TestExampleScenario covers the two-reading example: same district, same
// wind speed, same month.
func TestExampleScenario(t *testing.T) {
	tbl := pipeline.NewTable([]models.Reading{
		{Timestamp: day(2023, 1, 15), District: "DistrictA", WindSpeed: 5.0, Probability: 0.2, Time: 10},
		{Timestamp: day(2023, 1, 20), District: "DistrictA", WindSpeed: 5.0, Probability: 0.3, Time: 5},
	})
	r := Build(tbl, models.WindSpeed)

	if len(r.Distribution) != 1 || r.Distribution[0].Value != 5.0 || !approx(r.Distribution[0].Total, 0.5) {
		t.Errorf("Distribution = %+v, want [{5 0.5}]", r.Distribution)
	}
	if len(r.Frequency) != 1 || !approx(r.Frequency[0].Total, 15) {
		t.Errorf("Frequency = %+v, want [{5 15}]", r.Frequency)
	}
	if len(r.ByDistrict) != 1 || r.ByDistrict[0].District != "DistrictA" || r.ByDistrict[0].Mean != 5.0 {
		t.Errorf("ByDistrict = %+v, want [{DistrictA 5}]", r.ByDistrict)
	}
	if len(r.Monthly) != 1 || r.Monthly[0].Month != "2023-01" || !approx(r.Monthly[0].Total, 10.0) {
		t.Errorf("Monthly = %+v, want [{2023-01 10}]", r.Monthly)
	}
}

func TestDistribution_ConservesProbability(t *testing.T) {
	tbl := pipeline.NewTable([]models.Reading{
		{WindSpeed: 1, Probability: 0.1},
		{WindSpeed: 2, Probability: 0.25},
		{WindSpeed: 1, Probability: 0.05},
		{WindSpeed: 3.5, Probability: 0.4},
		{WindSpeed: math.NaN(), Probability: 0.7},
		{WindSpeed: 2, Probability: math.NaN()},
	})
	var sum float64
	buckets := Distribution(tbl, models.WindSpeed)
	for _, b := range buckets {
		sum += b.Total
	}
	if want := TotalProbability(tbl, models.WindSpeed); !approx(sum, want) {
		t.Errorf("sum of distribution = %v, want %v", sum, want)
	}
	if !approx(sum, 0.8) {
		t.Errorf("sum of distribution = %v, want 0.8", sum)
	}
	if !sort.SliceIsSorted(buckets, func(i, j int) bool { return buckets[i].Value < buckets[j].Value }) {
		t.Errorf("buckets not in ascending order: %+v", buckets)
	}
}

func TestDistribution_AllWeightsMissingSumsToZero(t *testing.T) {
	tbl := pipeline.NewTable([]models.Reading{{Temperature: 20, Probability: math.NaN()}})
	got := Distribution(tbl, models.Temperature)
	if len(got) != 1 || got[0].Total != 0 {
		t.Errorf("Distribution = %+v, want [{20 0}]", got)
	}
}

func TestDistribution_SkipsInfiniteKeys(t *testing.T) {
	tbl := pipeline.NewTable([]models.Reading{
		{WindSpeed: math.Inf(1), Probability: 0.4},
		{WindSpeed: math.Inf(-1), Probability: 0.1},
		{WindSpeed: 2, Probability: 0.5},
	})
	got := Distribution(tbl, models.WindSpeed)
	if len(got) != 1 || got[0].Value != 2 || !approx(got[0].Total, 0.5) {
		t.Errorf("Distribution = %+v, want [{2 0.5}]", got)
	}
}

func TestByDistrict_SingleRowMeanIsExact(t *testing.T) {
	tbl := pipeline.NewTable([]models.Reading{
		{District: "Solo", Irradiation: 612.345678},
		{District: "Pair", Irradiation: 1},
		{District: "Pair", Irradiation: 2},
		{District: "", Irradiation: 1000},
	})
	got := ByDistrict(tbl, models.Irradiation)
	if len(got) != 2 {
		t.Fatalf("ByDistrict = %+v, want 2 districts", got)
	}
	if got[0].District != "Pair" || got[0].Mean != 1.5 {
		t.Errorf("got[0] = %+v, want {Pair 1.5}", got[0])
	}
	if got[1].District != "Solo" || got[1].Mean != 612.345678 {
		t.Errorf("got[1] = %+v, want exact single-row value", got[1])
	}
}

func TestByDistrict_AllMissingIsNaN(t *testing.T) {
	tbl := pipeline.NewTable([]models.Reading{{District: "Dry", Humidity: math.NaN()}})
	got := ByDistrict(tbl, models.Humidity)
	if len(got) != 1 || !math.IsNaN(got[0].Mean) {
		t.Errorf("ByDistrict = %+v, want NaN mean", got)
	}
}

func TestMonthly_UniqueChronologicalKeys(t *testing.T) {
	tbl := pipeline.NewTable([]models.Reading{
		{Timestamp: day(2023, 11, 2), Temperature: 1},
		{Timestamp: day(2022, 12, 31), Temperature: 2},
		{Timestamp: day(2023, 2, 1), Temperature: 3},
		{Timestamp: day(2023, 11, 30), Temperature: 4},
		{Timestamp: day(2023, 2, 14), Temperature: math.NaN()},
	})
	got := Monthly(tbl, models.Temperature)
	wantKeys := []string{"2022-12", "2023-02", "2023-11"}
	if len(got) != len(wantKeys) {
		t.Fatalf("Monthly = %+v, want %d months", got, len(wantKeys))
	}
	for i, k := range wantKeys {
		if got[i].Month != k {
			t.Errorf("Monthly[%d].Month = %q, want %q", i, got[i].Month, k)
		}
	}
	if got[2].Total != 5 {
		t.Errorf("2023-11 total = %v, want 5", got[2].Total)
	}
	if got[1].Total != 3 {
		t.Errorf("2023-02 total = %v, want 3 (missing value skipped)", got[1].Total)
	}
	for i := 1; i < len(got); i++ {
		prev, _ := time.Parse(MonthLayout, got[i-1].Month)
		cur, _ := time.Parse(MonthLayout, got[i].Month)
		if !prev.Before(cur) {
			t.Errorf("months %q and %q not chronological", got[i-1].Month, got[i].Month)
		}
	}
}

func TestSummarize(t *testing.T) {
	tbl := pipeline.NewTable([]models.Reading{
		{WindSpeed: 2}, {WindSpeed: 4}, {WindSpeed: 6}, {WindSpeed: math.NaN()},
	})
	s := Summarize(tbl, models.WindSpeed)
	if s.Count != 3 || s.Mean != 4 || s.Min != 2 || s.Max != 6 {
		t.Errorf("Summarize = %+v", s)
	}
	if !approx(s.StdDev, 2) {
		t.Errorf("StdDev = %v, want 2", s.StdDev)
	}

	empty := Summarize(pipeline.NewTable(nil), models.WindSpeed)
	if empty.Count != 0 || !math.IsNaN(empty.Mean) {
		t.Errorf("Summarize(empty) = %+v, want zero count and NaN mean", empty)
	}
}

func TestBuild_EmptyTable(t *testing.T) {
	r := Build(pipeline.NewTable(nil), models.Humidity)
	if len(r.Distribution)+len(r.Frequency)+len(r.ByDistrict)+len(r.Monthly) != 0 {
		t.Errorf("Build(empty) = %+v, want empty aggregates", r)
	}
}
