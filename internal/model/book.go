package model

import "time"

// Book is a canonical book record. ISBN is the strongest identity key and is
// required; (title, publisher) is the fallback key when matching incoming
// records that predate ISBN assignment.
type Book struct {
	ID               int64      `json:"id"`
	ISBN             string     `json:"isbn"`
	Title            string     `json:"title"`
	PublisherID      int64      `json:"publisher_id"`
	SeriesID         *int64     `json:"series_id,omitempty"`
	ScheduledPubDate *time.Time `json:"scheduled_pub_date,omitempty"`
	ActualPubDate    *time.Time `json:"actual_pub_date,omitempty"`
	RegisteredAt     time.Time  `json:"registered_at"`
	ModifiedAt       *time.Time `json:"modified_at,omitempty"`
}

// Merge folds an incoming record's mutable fields into the book. Incoming
// values win only when present; absent values leave existing data untouched.
// Returns true if anything changed.
func (b *Book) Merge(update Book) bool {
	changed := false

	if update.Title != "" && update.Title != b.Title {
		b.Title = update.Title
		changed = true
	}
	if update.ScheduledPubDate != nil && !equalDate(update.ScheduledPubDate, b.ScheduledPubDate) {
		b.ScheduledPubDate = update.ScheduledPubDate
		changed = true
	}
	if update.ActualPubDate != nil && !equalDate(update.ActualPubDate, b.ActualPubDate) {
		b.ActualPubDate = update.ActualPubDate
		changed = true
	}
	if update.SeriesID != nil && !equalID(update.SeriesID, b.SeriesID) {
		b.SeriesID = update.SeriesID
		changed = true
	}

	return changed
}

func equalDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func equalID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
