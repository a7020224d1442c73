package api

import (
	"fmt"
	"io"
	"time"

	"gigflow/internal/models"
	"gigflow/internal/money"
	"gigflow/internal/schedule"

	"github.com/xuri/excelize/v2"
)

const reportSheet = "Vagas"

var reportHeaders = []string{
	"ID", "Título", "Cidade", "Local", "Data", "Início", "Fim",
	"Orçamento", "Status", "Candidaturas", "Atualizada em",
}

var reportWidths = []float64{8, 36, 18, 24, 12, 8, 8, 16, 12, 14, 18}

// writeGigReport renders gigs as a single-sheet xlsx workbook.
func writeGigReport(w io.Writer, gigs []models.Gig, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(reportSheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	for i, header := range reportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(reportSheet, cell, header)
		_ = f.SetCellStyle(reportSheet, cell, cell, headerStyle)

		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(reportSheet, col, col, reportWidths[i])
	}

	for i := range gigs {
		g := &gigs[i]
		row := []any{
			g.ID,
			g.Title,
			g.City,
			g.Location,
			schedule.FormatDate(g.EventDate, loc),
			clockOrArranged(g.StartTime),
			clockOrArranged(g.EndTime),
			money.FormatAmount(g.Budget),
			string(g.Status),
			g.ApplicationsCount,
			g.UpdatedAt.In(loc).Format("02/01/2006 15:04"),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(reportSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	_ = f.DeleteSheet("Sheet1")

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func clockOrArranged(hhmm string) string {
	if hhmm == "" {
		return money.ToBeArranged
	}
	return hhmm
}
