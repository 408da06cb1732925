// Package source parses raw book records from local files: JSON arrays and
// the CSV/XLSX exports produced by the site adapters.
package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/libroscan/catalog-cli/internal/model"
)

// Options configures record parsing.
type Options struct {
	// Site is applied to rows that carry no site column of their own.
	Site string

	// SheetName selects the XLSX sheet to read; default is the first sheet.
	SheetName string

	// Delimiter overrides the CSV field separator (default ',').
	Delimiter rune
}

// ReadRecords parses a record file, dispatching on extension (.json, .csv,
// .xlsx).
func ReadRecords(ctx context.Context, path string, opts Options) ([]model.RawRecord, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "source: open json file")
		}
		defer f.Close()
		return DecodeRecords(ctx, f, opts)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "source: open csv file")
		}
		defer f.Close()
		return ReadCSV(ctx, f, opts)
	case ".xlsx":
		return ReadXLSX(path, opts)
	default:
		return nil, eris.Errorf("source: unsupported file type %q", filepath.Ext(path))
	}
}
