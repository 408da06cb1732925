package source

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/libroscan/catalog-cli/internal/model"
)

// ReadXLSX parses raw records from an XLSX workbook. The first row of the
// selected sheet is the header; see recordFromRow for the recognized columns.
func ReadXLSX(path string, opts Options) ([]model.RawRecord, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "source: open xlsx file")
	}

	sheet, err := getSheet(f, opts.SheetName)
	if err != nil {
		return nil, err
	}

	var header []string
	var records []model.RawRecord
	for _, row := range sheet.Rows {
		cells := rowToStrings(row)
		if header == nil {
			header = cells
			continue
		}
		if isBlank(cells) {
			continue
		}

		rec, err := recordFromRow(header, cells, opts.Site)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func getSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("source: sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("source: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
