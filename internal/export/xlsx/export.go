// Package xlsx renders grants as a review spreadsheet.
package xlsx

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/grant-discovery/internal/grant"
	"github.com/JakeFAU/grant-discovery/internal/normalize"
)

// SheetName is the worksheet the export writes to.
const SheetName = "Eureka Grants"

const descriptionLimit = 500

// Headers are the column titles in order.
var Headers = []string{
	"ID",
	"Title",
	"URL",
	"Status",
	"Programme",
	"Open Date",
	"Close Date",
	"Is Supplemental",
	"Funding Info",
	"Description (truncated)",
}

var columnWidths = []float64{30, 50, 60, 10, 20, 15, 15, 15, 30, 80}

// Row is one spreadsheet line.
type Row struct {
	ID             string
	Title          string
	URL            string
	Status         string
	Programme      string
	OpenDate       string
	CloseDate      string
	IsSupplemental bool
	FundingInfo    string
	Description    string
}

// FromSnapshot builds a row from a snapshot entry.
func FromSnapshot(rec normalize.SnapshotRecord) Row {
	return Row{
		ID:             rec.ID,
		Title:          rec.Title,
		URL:            rec.URL,
		Status:         string(rec.Status),
		Programme:      rec.Programme,
		OpenDate:       deref(rec.OpenDate),
		CloseDate:      deref(rec.CloseDate),
		IsSupplemental: rec.IsSupplemental,
		FundingInfo:    rec.Raw.FundingInfo,
		Description:    rec.Raw.Description,
	}
}

// FromGrant builds a row from a stored grant.
func FromGrant(g grant.NormalizedGrant) Row {
	row := Row{
		ID:             g.GrantID,
		Title:          g.Title,
		URL:            g.URL,
		Status:         string(g.Status),
		Programme:      g.Programme.Name,
		IsSupplemental: g.IsSupplemental,
		FundingInfo:    g.Funding.TotalDisplay,
		Description:    g.Summary.Text,
	}
	if g.Funding.PerProjectDisplay != "" {
		if row.FundingInfo != "" {
			row.FundingInfo += "; "
		}
		row.FundingInfo += g.Funding.PerProjectDisplay
	}
	if g.Dates.OpensAt != nil {
		row.OpenDate = g.Dates.OpensAt.UTC().Format("2006-01-02")
	}
	if g.Dates.ClosesAt != nil {
		row.CloseDate = g.Dates.ClosesAt.UTC().Format("2006-01-02")
	}
	return row
}

func (r Row) values() []any {
	supplemental := "No"
	if r.IsSupplemental {
		supplemental = "Yes"
	}
	return []any{
		r.ID,
		r.Title,
		r.URL,
		r.Status,
		r.Programme,
		r.OpenDate,
		r.CloseDate,
		supplemental,
		r.FundingInfo,
		Truncate(r.Description, descriptionLimit),
	}
}

// Truncate shortens s to limit runes, marking the cut with "...".
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// Write renders rows as an xlsx workbook with a styled, frozen header row.
func Write(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	header := make([]any, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(Headers), 1)
	if err != nil {
		return fmt.Errorf("header range: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", last, style); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
		values := row.values()
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("column %d: %w", i+1, err)
		}
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return fmt.Errorf("set width %s: %w", col, err)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Read parses a workbook produced by Write.
func Read(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	lines, err := f.GetRows(SheetName)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("sheet %q has no header", SheetName)
	}
	rows := make([]Row, 0, len(lines)-1)
	for _, line := range lines[1:] {
		// GetRows drops trailing empty cells.
		cells := make([]string, len(Headers))
		copy(cells, line)
		rows = append(rows, Row{
			ID:             cells[0],
			Title:          cells[1],
			URL:            cells[2],
			Status:         cells[3],
			Programme:      cells[4],
			OpenDate:       cells[5],
			CloseDate:      cells[6],
			IsSupplemental: cells[7] == "Yes",
			FundingInfo:    cells[8],
			Description:    cells[9],
		})
	}
	return rows, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
