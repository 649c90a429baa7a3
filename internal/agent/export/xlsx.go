// Package export writes the local punch queue to a spreadsheet so a
// supervisor can audit what the kiosk captured while it was offline.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"punchclock.service/internal/core/model"
)

const SheetName = "Punches"

var header = []any{"ID", "Employee", "Type", "Timestamp", "Synced", "Synced At", "Attempts", "Last Error"}

// WriteXLSX renders punches as one row each, timestamps in loc.
func WriteXLSX(w io.Writer, punches []model.Punch, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to drop default sheet: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, p := range punches {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		syncedAt := ""
		if p.SyncedAt != nil {
			syncedAt = p.SyncedAt.In(loc).Format(time.DateTime)
		}
		row := []any{
			p.ID,
			p.EmployeeID,
			string(p.Type),
			p.Timestamp.In(loc).Format(time.DateTime),
			p.Synced,
			syncedAt,
			p.Attempts,
			p.LastError,
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write punch %s: %w", p.ID, err)
		}
	}

	if err := f.SetColWidth(SheetName, "A", "A", 38); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetName, "B", lastCol, 20); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
