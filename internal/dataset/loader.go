package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/kjstillabower/sensor-dashboard/internal/models"
)

// ErrMissingColumn is returned when an expected column is absent from the input.
var ErrMissingColumn = errors.New("missing column")

// ErrUnsupportedFormat is returned for file types the loader cannot read (legacy .xls).
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ErrUnsupportedEncoding is returned by NewLoader for an unknown text encoding name.
var ErrUnsupportedEncoding = errors.New("unsupported text encoding")

// Format names reported in Result.Format.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Result is the outcome of one load: the valid readings and the number of
// rows dropped because their date could not be parsed.
type Result struct {
	Rows    []models.Reading
	Dropped int
	Format  string
}

// Loader parses dataset files into readings. Text inputs are decoded from a
// fixed single encoding (ISO-8859-1 for the field datasets).
type Loader struct {
	encodingName string
	enc          encoding.Encoding
}

// NewLoader returns a Loader decoding text input with the named encoding.
func NewLoader(encodingName string) (*Loader, error) {
	enc, err := lookupEncoding(encodingName)
	if err != nil {
		return nil, err
	}
	return &Loader{encodingName: encodingName, enc: enc}, nil
}

// LookupEncoding reports whether name is an encoding the loader accepts.
func LookupEncoding(name string) error {
	_, err := lookupEncoding(name)
	return err
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "iso-8859-1", "iso8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	case "utf-8", "utf8":
		return unicode.UTF8BOM, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, name)
}

// LoadFile reads the dataset at path. A missing file yields an error wrapping fs.ErrNotExist.
func (l *Loader) LoadFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open dataset %s: %w", path, err)
	}
	defer f.Close()
	return l.Load(filepath.Base(path), f)
}

// Load parses r, choosing the format from the extension of name.
// CSV is assumed for unknown extensions.
func (l *Loader) Load(name string, r io.Reader) (Result, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xls":
		return Result{}, fmt.Errorf("%w: %s (save as .xlsx or .csv)", ErrUnsupportedFormat, name)
	case ".xlsx":
		records, err := readXLSX(r)
		if err != nil {
			return Result{}, err
		}
		return fromRecords(records, FormatXLSX)
	default:
		cr := csv.NewReader(transform.NewReader(r, l.enc.NewDecoder()))
		cr.FieldsPerRecord = -1
		records, err := cr.ReadAll()
		if err != nil {
			return Result{}, fmt.Errorf("parse csv %s: %w", name, err)
		}
		return fromRecords(records, FormatCSV)
	}
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

// fromRecords builds the frame from raw records. Rows shorter than the header
// are padded with empty cells, which later parse as missing values; longer
// rows are trimmed. A header with no data rows is an empty dataset.
func fromRecords(records [][]string, format string) (Result, error) {
	if len(records) == 0 {
		return Result{}, fmt.Errorf("%w: %q (no header row)", ErrMissingColumn, models.ColumnDate)
	}
	records = rectangular(records)
	if len(records) == 1 {
		if err := checkHeader(records[0]); err != nil {
			return Result{}, err
		}
		return Result{Rows: []models.Reading{}, Format: format}, nil
	}
	df := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return Result{}, fmt.Errorf("load %s records: %w", format, df.Err)
	}
	return toReadings(df, format)
}

func rectangular(records [][]string) [][]string {
	width := len(records[0])
	out := make([][]string, 0, len(records))
	for _, row := range records {
		if len(row) == width {
			out = append(out, row)
			continue
		}
		if len(row) > width {
			row = row[:width]
		}
		padded := make([]string, width)
		copy(padded, row)
		out = append(out, padded)
	}
	return out
}

func checkHeader(header []string) error {
	have := make(map[string]bool, len(header))
	for i, name := range header {
		if i == 0 {
			name = trimBOM(name)
		}
		have[name] = true
	}
	for _, name := range columnNames {
		if !have[name] {
			return fmt.Errorf("%w: %q", ErrMissingColumn, name)
		}
	}
	return nil
}

// toReadings converts a string-typed frame into readings, dropping rows
// whose date cannot be parsed.
func toReadings(df dataframe.DataFrame, format string) (Result, error) {
	df = stripHeaderBOM(df)

	cols, err := lookupColumns(df)
	if err != nil {
		return Result{}, err
	}

	n := df.Nrow()
	res := Result{Rows: make([]models.Reading, 0, n), Format: format}
	for i := 0; i < n; i++ {
		ts, ok := parseDate(cols.date[i], format == FormatXLSX)
		if !ok {
			res.Dropped++
			continue
		}
		res.Rows = append(res.Rows, models.Reading{
			Timestamp:   ts,
			GPS:         category(cols.gps[i]),
			Country:     category(cols.country[i]),
			Region:      category(cols.region[i]),
			District:    category(cols.district[i]),
			WindSpeed:   number(cols.wind[i]),
			Temperature: number(cols.temperature[i]),
			Irradiation: number(cols.irradiation[i]),
			Humidity:    number(cols.humidity[i]),
			Probability: number(cols.probability[i]),
			Time:        number(cols.time[i]),
		})
	}
	return res, nil
}

var columnNames = []string{
	models.ColumnDate, models.ColumnGPS, models.ColumnCountry, models.ColumnRegion,
	models.ColumnDistrict, models.ColumnWindSpeed, models.ColumnTemperature,
	models.ColumnIrradiation, models.ColumnHumidity, models.ColumnProbability, models.ColumnTime,
}

type columns struct {
	date, gps, country, region, district                        []string
	wind, temperature, irradiation, humidity, probability, time []string
}

func lookupColumns(df dataframe.DataFrame) (columns, error) {
	var c columns
	targets := []struct {
		name string
		dst  *[]string
	}{
		{models.ColumnDate, &c.date},
		{models.ColumnGPS, &c.gps},
		{models.ColumnCountry, &c.country},
		{models.ColumnRegion, &c.region},
		{models.ColumnDistrict, &c.district},
		{models.ColumnWindSpeed, &c.wind},
		{models.ColumnTemperature, &c.temperature},
		{models.ColumnIrradiation, &c.irradiation},
		{models.ColumnHumidity, &c.humidity},
		{models.ColumnProbability, &c.probability},
		{models.ColumnTime, &c.time},
	}
	for _, t := range targets {
		s := df.Col(t.name)
		if s.Err != nil {
			return columns{}, fmt.Errorf("%w: %q", ErrMissingColumn, t.name)
		}
		*t.dst = s.Records()
	}
	return c, nil
}

// stripHeaderBOM removes a byte order mark from the first column name, either
// raw or as it appears after Latin-1 decoding.
func stripHeaderBOM(df dataframe.DataFrame) dataframe.DataFrame {
	names := df.Names()
	if len(names) == 0 {
		return df
	}
	first := trimBOM(names[0])
	if first == names[0] {
		return df
	}
	names[0] = first
	if err := df.SetNames(names...); err != nil {
		return df
	}
	return df
}

func trimBOM(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.TrimPrefix(s, "\u00ef\u00bb\u00bf")
}

func category(s string) string {
	s = strings.TrimSpace(s)
	switch s {
	case "NaN", "NA", "<nil>":
		return ""
	}
	return s
}

func number(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsInf(v, 0) {
		return nan
	}
	return v
}
