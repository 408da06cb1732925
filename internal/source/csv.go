package source

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"

	"github.com/libroscan/catalog-cli/internal/model"
)

// ReadCSV parses raw records from CSV. The first row is the header; see
// recordFromRow for the recognized columns.
func ReadCSV(ctx context.Context, r io.Reader, opts Options) ([]model.RawRecord, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.FieldsPerRecord = -1 // allow variable fields

	var header []string
	var records []model.RawRecord
	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "source: context cancelled")
		}

		row, err := reader.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "source: read csv row")
		}

		if header == nil {
			header = row
			continue
		}
		if isBlank(row) {
			continue
		}

		rec, err := recordFromRow(header, row, opts.Site)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}
