package model

import "time"

// Well-known candidate property names inspected by origin filter leaves.
// Arbitrary additional properties may be carried in RawRecord.Properties.
const (
	PropertyTitle         = "title"
	PropertyPublisherText = "publisherText"
	PropertyISBN          = "isbn"
)

// RawRecord is an incoming book mention from a site adapter, prior to
// identity resolution. Only Site and Title are always present; everything
// else depends on what the source exposes.
type RawRecord struct {
	Site             Site              `json:"site"`
	Title            string            `json:"title"`
	PublisherText    string            `json:"publisher_text"`
	ISBN             string            `json:"isbn,omitempty"`
	SeriesName       string            `json:"series_name,omitempty"`
	SeriesISBN       string            `json:"series_isbn,omitempty"`
	ScheduledPubDate *time.Time        `json:"scheduled_pub_date,omitempty"`
	ActualPubDate    *time.Time        `json:"actual_pub_date,omitempty"`
	Properties       map[string]string `json:"properties,omitempty"`
}

// Candidate flattens the record into the property map the filter evaluator
// inspects. Structured fields are exposed under their well-known names;
// explicit Properties entries win on collision so adapters can override.
func (r RawRecord) Candidate() map[string]string {
	c := make(map[string]string, len(r.Properties)+3)
	if r.Title != "" {
		c[PropertyTitle] = r.Title
	}
	if r.PublisherText != "" {
		c[PropertyPublisherText] = r.PublisherText
	}
	if r.ISBN != "" {
		c[PropertyISBN] = r.ISBN
	}
	for k, v := range r.Properties {
		c[k] = v
	}
	return c
}
