// Package export writes hourly frames to CSV, XLSX and a PDF summary.
package export

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"gridetl/internal/frame"
)

// TimestampLayout is the index format in every output.
const TimestampLayout = "2006-01-02 15:04:05"

// Formats understood by Exporter.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

// Exporter writes a named frame in each configured format under Dir.
type Exporter struct {
	Dir     string
	Formats []string
}

// Export writes <Dir>/<name>.<format> for every format and returns the paths
// written.
func (e *Exporter) Export(name string, f *frame.Frame) ([]string, error) {
	var paths []string
	for _, format := range e.Formats {
		path := filepath.Join(e.Dir, name+"."+format)
		var err error
		switch strings.ToLower(format) {
		case FormatCSV:
			err = WriteCSV(path, f)
		case FormatXLSX:
			err = WriteXLSX(path, []Sheet{{Name: name, Frame: f}})
		case FormatPDF:
			err = WriteSummaryPDF(path, name, f)
		default:
			err = fmt.Errorf("unknown export format %q", format)
		}
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// ---------------------------------------------------------------------------
// CSV
// ---------------------------------------------------------------------------

// WriteCSV writes f with a leading timestamp column. NaN cells are empty.
func WriteCSV(path string, f *frame.Frame) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := w.Write(append([]string{"timestamp"}, f.Columns...)); err != nil {
		return err
	}
	rec := make([]string, len(f.Columns)+1)
	for i, ts := range f.Index {
		rec[0] = ts.Format(TimestampLayout)
		for j, v := range f.Data[i] {
			rec[j+1] = formatValue(v)
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return out.Close()
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ---------------------------------------------------------------------------
// XLSX
// ---------------------------------------------------------------------------

// Sheet is one worksheet of an XLSX workbook.
type Sheet struct {
	Name  string
	Frame *frame.Frame
}

// WriteXLSX writes one worksheet per sheet, in order. Row 1 is the header;
// NaN cells are left blank.
func WriteXLSX(path string, sheets []Sheet) error {
	if len(sheets) == 0 {
		return fmt.Errorf("writing %s: no sheets", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	x := excelize.NewFile()
	defer x.Close()

	for i, s := range sheets {
		if i == 0 {
			if err := x.SetSheetName("Sheet1", s.Name); err != nil {
				return err
			}
		} else if _, err := x.NewSheet(s.Name); err != nil {
			return fmt.Errorf("sheet %s: %w", s.Name, err)
		}
		if err := fillSheet(x, s); err != nil {
			return fmt.Errorf("sheet %s: %w", s.Name, err)
		}
	}

	if err := x.SaveAs(path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}

func fillSheet(x *excelize.File, s Sheet) error {
	header := make([]any, 0, len(s.Frame.Columns)+1)
	header = append(header, "timestamp")
	for _, c := range s.Frame.Columns {
		header = append(header, c)
	}
	if err := x.SetSheetRow(s.Name, "A1", &header); err != nil {
		return err
	}
	_ = x.SetColWidth(s.Name, "A", "A", 20)

	for i, ts := range s.Frame.Index {
		row := make([]any, 0, len(header))
		row = append(row, ts.Format(TimestampLayout))
		for _, v := range s.Frame.Data[i] {
			if math.IsNaN(v) {
				row = append(row, nil)
			} else {
				row = append(row, v)
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := x.SetSheetRow(s.Name, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// PDF summary
// ---------------------------------------------------------------------------

// ColumnSummary holds descriptive statistics of one column, NaN excluded.
type ColumnSummary struct {
	Column string
	Count  int
	Min    float64
	Mean   float64
	Max    float64
}

// Summarize computes per-column statistics. Columns without values report
// Count 0 and NaN statistics.
func Summarize(f *frame.Frame) []ColumnSummary {
	out := make([]ColumnSummary, 0, len(f.Columns))
	vals := make([]float64, 0, f.Len())
	for j, c := range f.Columns {
		vals = vals[:0]
		for _, row := range f.Data {
			if !math.IsNaN(row[j]) {
				vals = append(vals, row[j])
			}
		}
		s := ColumnSummary{Column: c, Count: len(vals), Min: math.NaN(), Mean: math.NaN(), Max: math.NaN()}
		if len(vals) > 0 {
			s.Min = floats.Min(vals)
			s.Max = floats.Max(vals)
			s.Mean = stat.Mean(vals, nil)
		}
		out = append(out, s)
	}
	return out
}

// WriteSummaryPDF writes a one-table PDF report: the frame's time span and
// row count followed by per-column count, min, mean and max.
func WriteSummaryPDF(path, title string, f *frame.Frame) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "B", 12)
	pdf.AddPage()
	pdf.Cell(0, 8, title)
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Rows: %d", f.Len()))
	pdf.Ln(5)
	if f.Len() > 0 {
		pdf.Cell(0, 6, fmt.Sprintf("From: %s", f.Index[0].Format(TimestampLayout)))
		pdf.Ln(5)
		pdf.Cell(0, 6, fmt.Sprintf("To: %s", f.Index[f.Len()-1].Format(TimestampLayout)))
		pdf.Ln(5)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Column", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Count", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Min", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Mean", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Max", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	for _, s := range Summarize(f) {
		pdf.CellFormat(60, 6, s.Column, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, strconv.Itoa(s.Count), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, formatStat(s.Min), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, formatStat(s.Mean), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, formatStat(s.Max), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func formatStat(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.3f", v)
}
