package Controllers

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"Workbench/Models"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const carriedForwardSheet = "Carried Forward"

var carriedForwardHeaders = []string{
	"Task ID", "Title", "Type", "Status", "Project", "Assigned To",
	"Original Due Date", "Start Time", "End Time", "Allocated Minutes",
}

// carriedForwardWorkbook writes one row per task, times rendered in loc.
func carriedForwardWorkbook(tasks []Models.Task, loc *time.Location) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(carriedForwardSheet)
	if err != nil {
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	for i, header := range carriedForwardHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(carriedForwardSheet, cell, header)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6E6FA"},
			Pattern: 1,
		},
	})
	if err == nil {
		f.SetRowStyle(carriedForwardSheet, 1, 1, headerStyle)
	}

	formatTime := func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.In(loc).Format("2006-01-02 15:04:05")
	}

	for rowIndex, task := range tasks {
		row := rowIndex + 2

		project, assignee := "", ""
		if task.Project != nil {
			project = task.Project.Name
		}
		if task.AssignedTo != nil {
			assignee = task.AssignedTo.Name
		}

		values := []interface{}{
			task.ID,
			task.Title,
			string(task.Type),
			string(task.Status),
			project,
			assignee,
			formatTime(task.OriginalDueDate),
			formatTime(&task.StartTime),
			formatTime(&task.EndTime),
			task.Duration().Minutes(),
		}
		for colIndex, value := range values {
			cell, _ := excelize.CoordinatesToCellName(colIndex+1, row)
			f.SetCellValue(carriedForwardSheet, cell, value)
		}
	}

	for i := range carriedForwardHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(carriedForwardSheet, col, col, 20)
	}

	if f.GetSheetName(0) != carriedForwardSheet {
		f.DeleteSheet("Sheet1")
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("error writing Excel file to buffer: %w", err)
	}
	return &buf, nil
}
