package source

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/libroscan/catalog-cli/internal/model"
)

// DecodeRecords decodes a JSON array of raw records, streaming element by
// element so large exports never load wholesale.
func DecodeRecords(ctx context.Context, r io.Reader, opts Options) ([]model.RawRecord, error) {
	decoder := json.NewDecoder(r)

	tok, err := decoder.Token()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, eris.Wrap(err, "source: read opening token")
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '[' {
		return nil, eris.Errorf("source: expected JSON array, got %v", tok)
	}

	var records []model.RawRecord
	for decoder.More() {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "source: context cancelled")
		}

		var rec model.RawRecord
		if err := decoder.Decode(&rec); err != nil {
			return nil, eris.Wrap(err, "source: decode record")
		}
		if rec.Site == "" {
			rec.Site = opts.Site
		}
		records = append(records, rec)
	}

	if _, err := decoder.Token(); err != nil && err != io.EOF {
		return nil, eris.Wrap(err, "source: read closing token")
	}
	return records, nil
}
