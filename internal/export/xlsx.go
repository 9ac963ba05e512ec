package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"lead-console/internal/models"
)

const sheetName = "Leads"

// WriteXLSX renders records as a single-sheet workbook with the CSV columns.
func WriteXLSX(records []*models.LeadRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("error renaming sheet: %w", err)
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("error writing header: %w", err)
	}

	for i, r := range records {
		cells := Row(r)
		row := make([]interface{}, len(cells))
		for j, c := range cells {
			row[j] = c
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("error writing record %s: %w", r.ID, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("error encoding workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadXLSXRows returns the cell values of the leads sheet, header included.
func ReadXLSXRows(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error opening workbook: %w", err)
	}
	defer f.Close()
	return f.GetRows(sheetName)
}
