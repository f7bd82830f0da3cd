package dataset

import (
	"bytes"
	"errors"
	"io/fs"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kjstillabower/sensor-dashboard/internal/models"
)

// latin1Header is the dataset header as ISO-8859-1 bytes (° = 0xB0, ² = 0xB2).
const latin1Header = "Date Enrg,GPS,Country,Region,District,Wind speed(m/s),Temperature (\xb0C),Irradiation (W/m\xb2),Relative Humidity (%),Probability,Time\n"

func newTestLoader(t *testing.T, enc string) *Loader {
	t.Helper()
	l, err := NewLoader(enc)
	if err != nil {
		t.Fatalf("NewLoader(%q) error = %v", enc, err)
	}
	return l
}

func TestLoad_Latin1CSV(t *testing.T) {
	csv := latin1Header +
		"2023-01-15,\"14.7,-17.4\",Senegal,Dakar,Pikine,5.0,25.5,610,70,0.2,10\n" +
		"2023-01-20,\"14.7,-17.4\",Senegal,Dakar,Pikine,5.0,26,620,72,0.3,5\n" +
		"not a date,\"14.7,-17.4\",Senegal,Dakar,Pikine,9.9,20,100,50,0.9,99\n"

	res, err := newTestLoader(t, "ISO-8859-1").Load("readings.csv", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(res.Rows))
	}
	if res.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", res.Dropped)
	}
	if res.Format != FormatCSV {
		t.Errorf("Format = %q, want %q", res.Format, FormatCSV)
	}

	r := res.Rows[0]
	want := time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)
	if !r.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", r.Timestamp, want)
	}
	if r.GPS != "14.7,-17.4" || r.District != "Pikine" || r.Country != "Senegal" || r.Region != "Dakar" {
		t.Errorf("categorical fields = %+v", r)
	}
	if r.WindSpeed != 5.0 || r.Temperature != 25.5 || r.Irradiation != 610 || r.Humidity != 70 {
		t.Errorf("measurements = %+v", r)
	}
	if r.Probability != 0.2 || r.Time != 10 {
		t.Errorf("weights = (%v, %v), want (0.2, 10)", r.Probability, r.Time)
	}
}

func TestLoad_MissingNumericBecomesNaN(t *testing.T) {
	csv := latin1Header + "2023-02-01,gps,C,R,D,,abc,1,2,0.1,1\n"
	res, err := newTestLoader(t, "latin1").Load("x.txt", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("len(Rows) = %d, want 1", len(res.Rows))
	}
	if !math.IsNaN(res.Rows[0].WindSpeed) || !math.IsNaN(res.Rows[0].Temperature) {
		t.Errorf("WindSpeed, Temperature = %v, %v, want NaN", res.Rows[0].WindSpeed, res.Rows[0].Temperature)
	}
}

func TestLoad_MissingColumn(t *testing.T) {
	csv := "Date Enrg,GPS,Country,Region\n2023-01-01,a,b,c\n"
	_, err := newTestLoader(t, "ISO-8859-1").Load("x.csv", strings.NewReader(csv))
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("Load() error = %v, want ErrMissingColumn", err)
	}
	if !strings.Contains(err.Error(), "District") {
		t.Errorf("error = %v, want the missing column named", err)
	}
}

func TestLoad_RaggedRowsArePadded(t *testing.T) {
	csv := latin1Header +
		"2023-02-01,g,C,R,D,4,30,500,40\n" +
		"2023-02-02,g,C,R,D,5,31,510,41,0.5,2,extra\n"
	res, err := newTestLoader(t, "latin1").Load("ragged.csv", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(res.Rows) != 2 || res.Dropped != 0 {
		t.Fatalf("rows, dropped = %d, %d, want 2, 0", len(res.Rows), res.Dropped)
	}
	short := res.Rows[0]
	if short.Humidity != 40 {
		t.Errorf("Humidity = %v, want 40", short.Humidity)
	}
	if !math.IsNaN(short.Probability) || !math.IsNaN(short.Time) {
		t.Errorf("Probability, Time = %v, %v, want NaN", short.Probability, short.Time)
	}
	if res.Rows[1].Time != 2 {
		t.Errorf("Time = %v, want 2 with the extra cell dropped", res.Rows[1].Time)
	}
}

func TestLoad_HeaderOnly(t *testing.T) {
	res, err := newTestLoader(t, "latin1").Load("header.csv", strings.NewReader(latin1Header))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if res.Rows == nil || len(res.Rows) != 0 || res.Dropped != 0 {
		t.Errorf("Result = %+v, want an empty non-nil row set", res)
	}
	if res.Format != FormatCSV {
		t.Errorf("Format = %q, want %q", res.Format, FormatCSV)
	}

	_, err = newTestLoader(t, "latin1").Load("header.csv", strings.NewReader("Date Enrg,GPS\n"))
	if !errors.Is(err, ErrMissingColumn) {
		t.Errorf("Load() error = %v, want ErrMissingColumn", err)
	}
	_, err = newTestLoader(t, "latin1").Load("blank.csv", strings.NewReader(""))
	if !errors.Is(err, ErrMissingColumn) {
		t.Errorf("Load() error = %v, want ErrMissingColumn for an empty file", err)
	}
}

func TestLoad_InfiniteValueIsMissing(t *testing.T) {
	csv := latin1Header + "2023-02-01,g,C,R,D,inf,-Inf,+infinity,1e999,0.5,1\n"
	res, err := newTestLoader(t, "latin1").Load("x.csv", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("len(Rows) = %d, want 1", len(res.Rows))
	}
	r := res.Rows[0]
	for name, v := range map[string]float64{
		"wind": r.WindSpeed, "temperature": r.Temperature, "irradiation": r.Irradiation, "humidity": r.Humidity,
	} {
		if !math.IsNaN(v) {
			t.Errorf("%s = %v, want NaN", name, v)
		}
	}
}

func TestLoad_UTF8WithBOM(t *testing.T) {
	header := "\ufeffDate Enrg,GPS,Country,Region,District,Wind speed(m/s),Temperature (°C),Irradiation (W/m²),Relative Humidity (%),Probability,Time\n"
	csv := header + "2023-03-04 10:30:00,g,C,R,D,1,2,3,4,0.5,1\n"
	res, err := newTestLoader(t, "UTF-8").Load("x.csv", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0].Temperature != 2 {
		t.Fatalf("Rows = %+v, want one row with temperature 2", res.Rows)
	}
}

func TestLoad_XLSUnsupported(t *testing.T) {
	_, err := newTestLoader(t, "ISO-8859-1").Load("legacy.XLS", strings.NewReader(""))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Load() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestLoad_XLSX(t *testing.T) {
	f := excelize.NewFile()
	header := []interface{}{
		models.ColumnDate, models.ColumnGPS, models.ColumnCountry, models.ColumnRegion, models.ColumnDistrict,
		models.ColumnWindSpeed, models.ColumnTemperature, models.ColumnIrradiation, models.ColumnHumidity,
		models.ColumnProbability, models.ColumnTime,
	}
	if err := f.SetSheetRow("Sheet1", "A1", &header); err != nil {
		t.Fatalf("SetSheetRow header: %v", err)
	}
	row := []interface{}{"2023-01-15", "g", "C", "R", "D", 5.0, 20.0, 500.0, 60.0, 0.25, 3.0}
	if err := f.SetSheetRow("Sheet1", "A2", &row); err != nil {
		t.Fatalf("SetSheetRow: %v", err)
	}
	serial := []interface{}{44941, "g", "C", "R", "D", 6.0, 21.0, 510.0, 61.0, 0.5, 4.0}
	if err := f.SetSheetRow("Sheet1", "A3", &serial); err != nil {
		t.Fatalf("SetSheetRow: %v", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}

	res, err := newTestLoader(t, "ISO-8859-1").Load("readings.xlsx", bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if res.Format != FormatXLSX {
		t.Errorf("Format = %q, want xlsx", res.Format)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(res.Rows))
	}
	if res.Rows[0].WindSpeed != 5 || res.Rows[0].Probability != 0.25 {
		t.Errorf("row 0 = %+v", res.Rows[0])
	}
	want := time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)
	if !res.Rows[1].Timestamp.Equal(want) {
		t.Errorf("serial date = %v, want %v", res.Rows[1].Timestamp, want)
	}
}

func TestLoadFile_NotFound(t *testing.T) {
	_, err := newTestLoader(t, "ISO-8859-1").LoadFile(filepath.Join(t.TempDir(), "absent.csv"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("LoadFile() error = %v, want fs.ErrNotExist", err)
	}
}

func TestNewLoader_UnknownEncoding(t *testing.T) {
	if _, err := NewLoader("ebcdic"); !errors.Is(err, ErrUnsupportedEncoding) {
		t.Fatalf("NewLoader() error = %v, want ErrUnsupportedEncoding", err)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		serials bool
		want    time.Time
		ok      bool
	}{
		{"2023-01-15", false, time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC), true},
		{"2023-01-15 08:30:00", false, time.Date(2023, 1, 15, 8, 30, 0, 0, time.UTC), true},
		{"2023-01-15T08:30:00Z", false, time.Date(2023, 1, 15, 8, 30, 0, 0, time.UTC), true},
		{"03/04/2023", false, time.Date(2023, 3, 4, 0, 0, 0, 0, time.UTC), true},
		{"15/04/2023", false, time.Date(2023, 4, 15, 0, 0, 0, 0, time.UTC), true},
		{"2023/02/28", false, time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC), true},
		{"44941", true, time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC), true},
		{"44941", false, time.Time{}, false},
		{"", false, time.Time{}, false},
		{"NaN", false, time.Time{}, false},
		{"2023-13-45", false, time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := parseDate(tt.in, tt.serials)
		if ok != tt.ok || (ok && !got.Equal(tt.want)) {
			t.Errorf("parseDate(%q, %v) = (%v, %v), want (%v, %v)", tt.in, tt.serials, got, ok, tt.want, tt.ok)
		}
	}
}
