package store

import (
	"context"

	"github.com/libroscan/catalog-cli/internal/model"
)

// Store defines the persistence facade over the book catalog. Find operations
// and GetKeyword return (nil, nil) when no row matches; GetPublisher returns
// a NotFoundError. Create operations return a ConflictError when a uniqueness
// constraint would be violated — the caller re-resolves rather than retrying
// the insert blindly.
type Store interface {
	// Publishers
	GetPublisher(ctx context.Context, id int64) (*model.Publisher, error)
	FindPublisherByName(ctx context.Context, name string) (*model.Publisher, error)
	CreatePublisher(ctx context.Context, name string) (*model.Publisher, error)

	// Publisher keywords
	GetKeyword(ctx context.Context, site model.Site, keyword string) (*model.PublisherKeyword, error)
	BindKeyword(ctx context.Context, kw model.PublisherKeyword) error
	ListKeywords(ctx context.Context, publisherID int64) ([]model.PublisherKeyword, error)

	// Series
	FindSeriesByISBN(ctx context.Context, isbn string) (*model.Series, error)
	FindSeriesByName(ctx context.Context, name string) (*model.Series, error)
	CreateSeries(ctx context.Context, s model.Series) (*model.Series, error)

	// Books
	FindBookByISBN(ctx context.Context, isbn string) (*model.Book, error)
	FindBookByTitle(ctx context.Context, title string, publisherID int64) (*model.Book, error)
	CreateBook(ctx context.Context, b model.Book) (*model.Book, error)
	UpdateBook(ctx context.Context, b model.Book) error
	ListBooksWithoutSeries(ctx context.Context, limit int) ([]model.Book, error)
	SetBookSeries(ctx context.Context, bookID, seriesID int64) error

	// Origin filters
	ListFilters(ctx context.Context, site model.Site) ([]model.OriginFilter, error)
	ListFilterSites(ctx context.Context) ([]model.Site, error)
	ReplaceFilters(ctx context.Context, site model.Site, rows []model.OriginFilter) error

	// WithTx runs fn against a transactional view of the store. fn returning
	// an error rolls the transaction back wholesale; no partial mutation is
	// observable. Nested calls reuse the enclosing transaction.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
