package source

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// KeywordRow is one row of a keyword mapping sheet: the publisher is named
// in clear text and resolved to an id at import time.
type KeywordRow struct {
	Site      string
	Keyword   string
	Publisher string
}

// ReadKeywordSheet parses a keyword mapping workbook. Expected columns:
// site, keyword, publisher (header row required, case-insensitive).
func ReadKeywordSheet(path string, opts Options) ([]KeywordRow, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "source: open keyword sheet")
	}

	sheet, err := getSheet(f, opts.SheetName)
	if err != nil {
		return nil, err
	}

	var header []string
	var out []KeywordRow
	for i, row := range sheet.Rows {
		cells := rowToStrings(row)
		if header == nil {
			header = cells
			continue
		}
		if isBlank(cells) {
			continue
		}

		var kr KeywordRow
		for j, name := range header {
			if j >= len(cells) {
				break
			}
			val := strings.TrimSpace(cells[j])
			switch strings.ToLower(strings.TrimSpace(name)) {
			case colSite:
				kr.Site = val
			case "keyword":
				kr.Keyword = val
			case colPublisher, "publisher_name":
				kr.Publisher = val
			}
		}
		if kr.Site == "" {
			kr.Site = opts.Site
		}
		if kr.Site == "" || kr.Keyword == "" || kr.Publisher == "" {
			return nil, eris.Errorf("source: keyword sheet row %d missing site, keyword, or publisher", i+1)
		}
		out = append(out, kr)
	}
	return out, nil
}
