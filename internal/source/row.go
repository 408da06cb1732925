package source

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/libroscan/catalog-cli/internal/model"
)

// Well-known column names for tabular record files. Unknown columns are
// carried through as candidate properties so filter rules can inspect them.
const (
	colSite             = "site"
	colTitle            = "title"
	colPublisher        = "publisher"
	colISBN             = "isbn"
	colSeries           = "series"
	colSeriesISBN       = "series_isbn"
	colScheduledPubDate = "scheduled_pub_date"
	colActualPubDate    = "actual_pub_date"
)

const dateLayout = "2006-01-02"

// recordFromRow maps one tabular row onto a RawRecord using the header for
// column names. Header matching is case-insensitive.
func recordFromRow(header, cells []string, defaultSite string) (model.RawRecord, error) {
	rec := model.RawRecord{Site: defaultSite}

	for i, name := range header {
		if i >= len(cells) {
			break
		}
		val := strings.TrimSpace(cells[i])
		if val == "" {
			continue
		}

		switch strings.ToLower(strings.TrimSpace(name)) {
		case colSite:
			rec.Site = val
		case colTitle:
			rec.Title = val
		case colPublisher, "publisher_text":
			rec.PublisherText = val
		case colISBN:
			rec.ISBN = val
		case colSeries, "series_name":
			rec.SeriesName = val
		case colSeriesISBN:
			rec.SeriesISBN = val
		case colScheduledPubDate:
			t, err := time.Parse(dateLayout, val)
			if err != nil {
				return rec, eris.Wrapf(err, "source: parse %s", colScheduledPubDate)
			}
			rec.ScheduledPubDate = &t
		case colActualPubDate:
			t, err := time.Parse(dateLayout, val)
			if err != nil {
				return rec, eris.Wrapf(err, "source: parse %s", colActualPubDate)
			}
			rec.ActualPubDate = &t
		default:
			if rec.Properties == nil {
				rec.Properties = map[string]string{}
			}
			rec.Properties[strings.TrimSpace(name)] = val
		}
	}

	return rec, nil
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
