package results

import (
	"backend-racehub/internal/race"

	"github.com/xuri/excelize/v2"
)

const resultsSheet = "Results"

var exportHeader = []any{"Position", "Bib", "Name", "Time", "Pace"}

// WriteWorkbook renders export rows as a single-sheet XLSX document.
func WriteWorkbook(r race.Race, rows []ExportRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), resultsSheet); err != nil {
		return nil, err
	}
	if err := f.SetDocProps(&excelize.DocProperties{Title: r.Name, Subject: "Race results"}); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(resultsSheet, "A1", &exportHeader); err != nil {
		return nil, err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := []any{row.Position, row.Bib, row.Name, row.Time, row.Pace}
		if err := f.SetSheetRow(resultsSheet, cell, &values); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
