// Package export turns the admin dashboard into a downloadable report
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"peerpulse-backend/internal/aggregate"
)

// Row is one metric of a report. Dimension names the department, quarter or
// position the value belongs to.
type Row struct {
	Metric    string `json:"metric"`
	Dimension string `json:"dimension"`
	Value     string `json:"value"`
}

type Report struct {
	Quarter string `json:"quarter"`
	Rows    []Row  `json:"rows"`
}

var header = []string{"metric", "dimension", "value"}

// Build lays out d as report rows. advice overrides the dashboard's advice
// when not empty.
func Build(d *aggregate.AdminDashboard, advice string) *Report {
	r := &Report{Quarter: d.Quarter, Rows: []Row{}}
	add := func(metric, dimension, value string) {
		r.Rows = append(r.Rows, Row{Metric: metric, Dimension: dimension, Value: value})
	}

	for _, p := range d.Participation {
		add("participation_rate", p.Department, strconv.Itoa(p.Rate))
	}
	for _, v := range d.VibeTrend {
		add("vibe_score", v.Quarter, strconv.FormatFloat(v.Score, 'f', 2, 64))
	}
	for i, theme := range d.Themes {
		add("theme", strconv.Itoa(i+1), theme)
	}
	add("pending_requests", d.Quarter, strconv.Itoa(d.Requests.Pending))
	add("completed_requests", d.Quarter, strconv.Itoa(d.Requests.Completed))

	if advice == "" {
		advice = d.Advice
	}
	add("advice", d.Quarter, advice)
	return r
}

// Filename is the download name for the report in the given extension
func (r *Report) Filename(ext string) string {
	quarter := strings.ReplaceAll(strings.TrimSpace(r.Quarter), " ", "-")
	if quarter == "" {
		quarter = "all"
	}
	return fmt.Sprintf("peerpulse-report-%s.%s", quarter, ext)
}

// WriteCSV writes a header line followed by one line per row
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range r.Rows {
		if err := cw.Write([]string{row.Metric, row.Dimension, row.Value}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

const sheetName = "Report"

// WriteXLSX writes the report as a single-sheet workbook
func (r *Report) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	f.SetColWidth(sheetName, "A", "A", 22)
	f.SetColWidth(sheetName, "B", "B", 18)
	f.SetColWidth(sheetName, "C", "C", 60)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
	})
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return err
	}
	f.SetCellStyle(sheetName, "A1", "C1", headerStyle)

	for i, row := range r.Rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := []interface{}{row.Metric, row.Dimension, cellValue(row.Value)}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return err
		}
	}

	return f.Write(w)
}

// cellValue stores numeric values as numbers so spreadsheets can chart them
func cellValue(v string) interface{} {
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return n
	}
	return v
}
