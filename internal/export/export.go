// Package export turns aggregate reports into downloadable CSV tables and
// XLSX workbooks.
package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/kjstillabower/sensor-dashboard/internal/aggregate"
	"github.com/kjstillabower/sensor-dashboard/internal/models"
)

// Downloadable tables.
const (
	TableWeibull  = "weibull"
	TableRegion   = "region"
	TableWorkbook = "workbook"
)

// Content types served for each table.
const (
	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ErrUnknownTable is returned for a table name outside the supported set.
var ErrUnknownTable = errors.New("unknown table")

// Sheet is a header plus rows of string or float64 cells.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]interface{}
}

// ValidTable reports whether name is a downloadable table.
func ValidTable(name string) bool {
	switch name {
	case TableWeibull, TableRegion, TableWorkbook:
		return true
	}
	return false
}

// FileName is the attachment name for a variable's table.
func FileName(v models.Variable, table string) (string, error) {
	switch table {
	case TableWeibull:
		return "Weibull_" + v.Slug() + ".csv", nil
	case TableRegion:
		return v.Slug() + "_region.csv", nil
	case TableWorkbook:
		return v.Slug() + "_aggregates.xlsx", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTable, table)
}

// ContentType is the media type for table.
func ContentType(table string) string {
	if table == TableWorkbook {
		return ContentTypeXLSX
	}
	return ContentTypeCSV
}

// WeibullSheet is the Probability-per-value table.
func WeibullSheet(r aggregate.Report) Sheet {
	return bucketSheet("Weibull", r.Variable.Column(), models.ColumnProbability, r.Distribution)
}

// FrequencySheet is the Time-per-value table.
func FrequencySheet(r aggregate.Report) Sheet {
	return bucketSheet("Frequency", r.Variable.Column(), models.ColumnTime, r.Frequency)
}

// RegionSheet is the per-district mean table.
func RegionSheet(r aggregate.Report) Sheet {
	s := Sheet{Name: "District", Header: []string{models.ColumnDistrict, r.Variable.Column()}}
	for _, d := range r.ByDistrict {
		s.Rows = append(s.Rows, []interface{}{d.District, d.Mean})
	}
	return s
}

// MonthlySheet is the monthly sum table.
func MonthlySheet(r aggregate.Report) Sheet {
	s := Sheet{Name: "Monthly", Header: []string{"month_year", r.Variable.Column()}}
	for _, m := range r.Monthly {
		s.Rows = append(s.Rows, []interface{}{m.Month, m.Total})
	}
	return s
}

func bucketSheet(name, key, value string, buckets []aggregate.Bucket) Sheet {
	s := Sheet{Name: name, Header: []string{key, value}}
	for _, b := range buckets {
		s.Rows = append(s.Rows, []interface{}{b.Value, b.Total})
	}
	return s
}

// Write renders the named table of r to w.
func Write(w io.Writer, r aggregate.Report, table string) error {
	switch table {
	case TableWeibull:
		return WriteCSV(w, WeibullSheet(r))
	case TableRegion:
		return WriteCSV(w, RegionSheet(r))
	case TableWorkbook:
		buf, err := Workbook(r)
		if err != nil {
			return err
		}
		_, err = buf.WriteTo(w)
		return err
	}
	return fmt.Errorf("%w: %q", ErrUnknownTable, table)
}

// WriteCSV writes s as UTF-8 CSV with a header row and no index column.
// Missing values are written as empty cells.
func WriteCSV(w io.Writer, s Sheet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(s.Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(s.Header))
	for _, row := range s.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = cellText(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("csv writer: %w", err)
	}
	return nil
}

// Workbook builds an XLSX file with one sheet per aggregate.
func Workbook(r aggregate.Report) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheets := []Sheet{WeibullSheet(r), FrequencySheet(r), RegionSheet(r), MonthlySheet(r)}
	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), s.Name); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return nil, fmt.Errorf("add sheet %s: %w", s.Name, err)
		}
		if err := writeSheet(f, s); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf, nil
}

func writeSheet(f *excelize.File, s Sheet) error {
	header := make([]interface{}, len(s.Header))
	for i, h := range s.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(s.Name, "A1", &header); err != nil {
		return fmt.Errorf("sheet %s header: %w", s.Name, err)
	}
	for i, row := range s.Rows {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			if x, ok := v.(float64); ok && (math.IsNaN(x) || math.IsInf(x, 0)) {
				v = nil
			}
			cells[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(s.Name, cell, &cells); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", s.Name, i+2, err)
		}
	}
	return nil
}

func cellText(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
