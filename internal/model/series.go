package model

import "time"

// Series groups related books (multi-volume works, collected editions).
// Name and ISBN are both optional; ISBN uniqueness applies only among
// non-null values. The embedding column reserved for similarity search is
// never read by this core.
type Series struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name,omitempty"`
	ISBN         string     `json:"isbn,omitempty"`
	RegisteredAt time.Time  `json:"registered_at"`
	ModifiedAt   *time.Time `json:"modified_at,omitempty"`
}
