package model

// Publisher is a canonical publisher record.
type Publisher struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// PublisherKeyword maps a free-text publisher mention on an external site to
// a canonical publisher. The (site, keyword) pair is unique across publishers:
// a given mention resolves to at most one publisher.
type PublisherKeyword struct {
	PublisherID int64  `json:"publisher_id"`
	Site        Site   `json:"site"`
	Keyword     string `json:"keyword"`
}
