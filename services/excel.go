package services

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const historySheet = "Payments"

var historyHeaders = []string{"Payment ID", "Order ID", "Provider Payment ID", "Course", "Student", "Tutor", "Amount", "Currency", "Status", "Paid At"}

// WriteHistoryWorkbook renders history rows and their total as an xlsx
// workbook into w.
func WriteHistoryWorkbook(w io.Writer, history *HistoryResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	for i, h := range historyHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(historySheet, cell, h)
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		lastHeader, _ := excelize.CoordinatesToCellName(len(historyHeaders), 1)
		f.SetCellStyle(historySheet, "A1", lastHeader, style)
	}

	row := 2
	for _, p := range history.Payments {
		values := []interface{}{
			p.ID, p.RazorpayOrderID, p.RazorpayPaymentID, p.CourseID, p.StudentID, p.TutorID,
			p.Amount, p.Currency, string(p.Status), p.UpdatedAt.Format("2006-01-02 15:04:05"),
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(historySheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row, err)
		}
		row++
	}

	f.SetCellValue(historySheet, fmt.Sprintf("F%d", row), "Total")
	f.SetCellValue(historySheet, fmt.Sprintf("G%d", row), history.TotalAmount)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
