package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/libroscan/catalog-cli/internal/db"
	"github.com/libroscan/catalog-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot ingestion path.
var preparedStatements = map[string]string{
	"find_publisher_by_name": `SELECT id, name FROM publisher WHERE name = $1 LIMIT 1`,
	"get_keyword":            `SELECT publisher_id, site, keyword FROM publisher_keyword WHERE site = $1 AND keyword = $2`,
	"find_series_by_isbn":    `SELECT id, name, isbn, registered_at, modified_at FROM series WHERE isbn = $1`,
	"find_book_by_isbn":      `SELECT id, isbn, title, publisher_id, series_id, scheduled_pub_date, actual_pub_date, registered_at, modified_at FROM book WHERE isbn = $1`,
	"find_book_by_title":     `SELECT id, isbn, title, publisher_id, series_id, scheduled_pub_date, actual_pub_date, registered_at, modified_at FROM book WHERE title = $1 AND publisher_id = $2 LIMIT 1`,
	"list_filters":           `SELECT id, name, site, is_root, operator_type, property_name, regex, parent_id FROM book_origin_filter WHERE site = $1 ORDER BY id`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (e.g., the bulk keyword importer).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS publisher (
	id   BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	name VARCHAR(128) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_publisher_name ON publisher(name);

CREATE TABLE IF NOT EXISTS publisher_keyword (
	publisher_id BIGINT NOT NULL REFERENCES publisher(id) ON DELETE CASCADE,
	site         VARCHAR(32) NOT NULL,
	keyword      VARCHAR(128) NOT NULL,
	PRIMARY KEY (publisher_id, site, keyword)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_publisher_keyword_site_keyword
	ON publisher_keyword(site, keyword);

CREATE TABLE IF NOT EXISTS series (
	id            BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	name          VARCHAR(256),
	isbn          VARCHAR(13),
	embedding     BYTEA,
	registered_at TIMESTAMP NOT NULL DEFAULT now(),
	modified_at   TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_series_isbn ON series(isbn) WHERE isbn IS NOT NULL;

CREATE TABLE IF NOT EXISTS book (
	id                 BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	isbn               VARCHAR(13) NOT NULL UNIQUE,
	title              VARCHAR(256) NOT NULL,
	publisher_id       BIGINT NOT NULL REFERENCES publisher(id),
	series_id          BIGINT REFERENCES series(id),
	scheduled_pub_date DATE,
	actual_pub_date    DATE,
	registered_at      TIMESTAMP NOT NULL DEFAULT now(),
	modified_at        TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_book_publisher_title ON book(publisher_id, title);
CREATE INDEX IF NOT EXISTS idx_book_series ON book(series_id);

CREATE TABLE IF NOT EXISTS book_origin_filter (
	id            BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	name          VARCHAR(64) NOT NULL,
	site          VARCHAR(32) NOT NULL,
	is_root       BOOLEAN NOT NULL DEFAULT false,
	operator_type VARCHAR(32),
	property_name VARCHAR(32),
	regex         VARCHAR(256),
	parent_id     BIGINT REFERENCES book_origin_filter(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_book_origin_filter_site ON book_origin_filter(site);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// WithTx runs fn against a transactional view of the store. pgx.Tx satisfies
// db.Pool, so the transactional view is just another PostgresStore; nested
// calls become savepoints.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx)

	if err := fn(&PostgresStore{pool: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit tx")
}

func (s *PostgresStore) GetPublisher(ctx context.Context, id int64) (*model.Publisher, error) {
	var p model.Publisher
	err := s.pool.QueryRow(ctx,
		`SELECT id, name FROM publisher WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "publisher", Key: itoa(id)}
		}
		return nil, eris.Wrapf(err, "postgres: get publisher %d", id)
	}
	return &p, nil
}

func (s *PostgresStore) FindPublisherByName(ctx context.Context, name string) (*model.Publisher, error) {
	var p model.Publisher
	err := s.pool.QueryRow(ctx,
		`SELECT id, name FROM publisher WHERE name = $1 LIMIT 1`,
		name,
	).Scan(&p.ID, &p.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: find publisher by name")
	}
	return &p, nil
}

func (s *PostgresStore) CreatePublisher(ctx context.Context, name string) (*model.Publisher, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO publisher (name) VALUES ($1) RETURNING id`,
		name,
	).Scan(&id)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert publisher")
	}
	return &model.Publisher{ID: id, Name: name}, nil
}

func (s *PostgresStore) GetKeyword(ctx context.Context, site model.Site, keyword string) (*model.PublisherKeyword, error) {
	var kw model.PublisherKeyword
	err := s.pool.QueryRow(ctx,
		`SELECT publisher_id, site, keyword FROM publisher_keyword WHERE site = $1 AND keyword = $2`,
		site, keyword,
	).Scan(&kw.PublisherID, &kw.Site, &kw.Keyword)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get keyword")
	}
	return &kw, nil
}

// BindKeyword registers a (site, keyword) → publisher mapping. Binding the
// same pair to the same publisher again is a no-op; binding it to a different
// publisher is a ConflictError. The insert races safely: the unique index on
// (site, keyword) guarantees at most one row regardless of writer order.
func (s *PostgresStore) BindKeyword(ctx context.Context, kw model.PublisherKeyword) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO publisher_keyword (publisher_id, site, keyword) VALUES ($1, $2, $3)
		 ON CONFLICT (site, keyword) DO NOTHING`,
		kw.PublisherID, kw.Site, kw.Keyword,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: bind keyword")
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	existing, err := s.GetKeyword(ctx, kw.Site, kw.Keyword)
	if err != nil {
		return err
	}
	if existing == nil {
		// Row vanished between insert and read; treat as a conflict so the
		// caller re-resolves.
		return &ConflictError{Entity: "publisher_keyword", Key: kw.Site + "/" + kw.Keyword}
	}
	if existing.PublisherID != kw.PublisherID {
		return &ConflictError{Entity: "publisher_keyword", Key: kw.Site + "/" + kw.Keyword}
	}
	return nil
}

func (s *PostgresStore) ListKeywords(ctx context.Context, publisherID int64) ([]model.PublisherKeyword, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT publisher_id, site, keyword FROM publisher_keyword WHERE publisher_id = $1 ORDER BY site, keyword`,
		publisherID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list keywords")
	}
	defer rows.Close()

	var kws []model.PublisherKeyword
	for rows.Next() {
		var kw model.PublisherKeyword
		if err := rows.Scan(&kw.PublisherID, &kw.Site, &kw.Keyword); err != nil {
			return nil, eris.Wrap(err, "postgres: scan keyword")
		}
		kws = append(kws, kw)
	}
	return kws, eris.Wrap(rows.Err(), "postgres: list keywords iterate")
}

func (s *PostgresStore) FindSeriesByISBN(ctx context.Context, isbn string) (*model.Series, error) {
	return s.findSeries(ctx,
		`SELECT id, name, isbn, registered_at, modified_at FROM series WHERE isbn = $1`,
		isbn)
}

func (s *PostgresStore) FindSeriesByName(ctx context.Context, name string) (*model.Series, error) {
	return s.findSeries(ctx,
		`SELECT id, name, isbn, registered_at, modified_at FROM series WHERE name = $1 ORDER BY id LIMIT 1`,
		name)
}

func (s *PostgresStore) findSeries(ctx context.Context, query string, arg any) (*model.Series, error) {
	var sr model.Series
	var name, isbn *string
	err := s.pool.QueryRow(ctx, query, arg).Scan(&sr.ID, &name, &isbn, &sr.RegisteredAt, &sr.ModifiedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: find series")
	}
	if name != nil {
		sr.Name = *name
	}
	if isbn != nil {
		sr.ISBN = *isbn
	}
	return &sr, nil
}

func (s *PostgresStore) CreateSeries(ctx context.Context, sr model.Series) (*model.Series, error) {
	now := time.Now().UTC()
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO series (name, isbn, registered_at) VALUES ($1, $2, $3) RETURNING id`,
		nullIfEmpty(sr.Name), nullIfEmpty(sr.ISBN), now,
	).Scan(&id)
	if err != nil {
		if err := conflictOr(err, "series", sr.ISBN); IsConflict(err) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: insert series")
	}
	sr.ID = id
	sr.RegisteredAt = now
	return &sr, nil
}

func (s *PostgresStore) FindBookByISBN(ctx context.Context, isbn string) (*model.Book, error) {
	return s.findBook(ctx,
		`SELECT id, isbn, title, publisher_id, series_id, scheduled_pub_date, actual_pub_date, registered_at, modified_at
		 FROM book WHERE isbn = $1`,
		isbn)
}

func (s *PostgresStore) FindBookByTitle(ctx context.Context, title string, publisherID int64) (*model.Book, error) {
	return s.findBook(ctx,
		`SELECT id, isbn, title, publisher_id, series_id, scheduled_pub_date, actual_pub_date, registered_at, modified_at
		 FROM book WHERE title = $1 AND publisher_id = $2 LIMIT 1`,
		title, publisherID)
}

func (s *PostgresStore) findBook(ctx context.Context, query string, args ...any) (*model.Book, error) {
	var b model.Book
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&b.ID, &b.ISBN, &b.Title, &b.PublisherID, &b.SeriesID,
		&b.ScheduledPubDate, &b.ActualPubDate, &b.RegisteredAt, &b.ModifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: find book")
	}
	return &b, nil
}

func (s *PostgresStore) CreateBook(ctx context.Context, b model.Book) (*model.Book, error) {
	now := time.Now().UTC()
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO book (isbn, title, publisher_id, series_id, scheduled_pub_date, actual_pub_date, registered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		b.ISBN, b.Title, b.PublisherID, b.SeriesID, b.ScheduledPubDate, b.ActualPubDate, now,
	).Scan(&id)
	if err != nil {
		if err := conflictOr(err, "book", b.ISBN); IsConflict(err) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: insert book")
	}
	b.ID = id
	b.RegisteredAt = now
	return &b, nil
}

func (s *PostgresStore) UpdateBook(ctx context.Context, b model.Book) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE book SET title = $1, series_id = $2, scheduled_pub_date = $3, actual_pub_date = $4, modified_at = $5
		 WHERE id = $6`,
		b.Title, b.SeriesID, b.ScheduledPubDate, b.ActualPubDate, now, b.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update book %d", b.ID)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Entity: "book", Key: itoa(b.ID)}
	}
	return nil
}

func (s *PostgresStore) ListBooksWithoutSeries(ctx context.Context, limit int) ([]model.Book, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, isbn, title, publisher_id, series_id, scheduled_pub_date, actual_pub_date, registered_at, modified_at
		 FROM book WHERE series_id IS NULL ORDER BY id LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list books without series")
	}
	defer rows.Close()

	var books []model.Book
	for rows.Next() {
		var b model.Book
		if err := rows.Scan(&b.ID, &b.ISBN, &b.Title, &b.PublisherID, &b.SeriesID,
			&b.ScheduledPubDate, &b.ActualPubDate, &b.RegisteredAt, &b.ModifiedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan book")
		}
		books = append(books, b)
	}
	return books, eris.Wrap(rows.Err(), "postgres: list books iterate")
}

func (s *PostgresStore) SetBookSeries(ctx context.Context, bookID, seriesID int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE book SET series_id = $1, modified_at = $2 WHERE id = $3`,
		seriesID, time.Now().UTC(), bookID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set book series %d", bookID)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Entity: "book", Key: itoa(bookID)}
	}
	return nil
}

func (s *PostgresStore) ListFilters(ctx context.Context, site model.Site) ([]model.OriginFilter, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, site, is_root, operator_type, property_name, regex, parent_id
		 FROM book_origin_filter WHERE site = $1 ORDER BY id`,
		site,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list filters")
	}
	defer rows.Close()

	var filters []model.OriginFilter
	for rows.Next() {
		var f model.OriginFilter
		var operator, property, regex *string
		if err := rows.Scan(&f.ID, &f.Name, &f.Site, &f.IsRoot, &operator, &property, &regex, &f.ParentID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan filter")
		}
		if operator != nil {
			f.Operator = *operator
		}
		if property != nil {
			f.PropertyName = *property
		}
		if regex != nil {
			f.Regex = *regex
		}
		filters = append(filters, f)
	}
	return filters, eris.Wrap(rows.Err(), "postgres: list filters iterate")
}

func (s *PostgresStore) ListFilterSites(ctx context.Context) ([]model.Site, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT site FROM book_origin_filter ORDER BY site`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list filter sites")
	}
	defer rows.Close()

	var sites []model.Site
	for rows.Next() {
		var site model.Site
		if err := rows.Scan(&site); err != nil {
			return nil, eris.Wrap(err, "postgres: scan filter site")
		}
		sites = append(sites, site)
	}
	return sites, eris.Wrap(rows.Err(), "postgres: list filter sites iterate")
}

// ReplaceFilters atomically swaps a site's filter rows. Incoming rows carry
// caller-assigned ids that are only meaningful for expressing parent links;
// they are remapped to database ids during insert.
func (s *PostgresStore) ReplaceFilters(ctx context.Context, site model.Site, filters []model.OriginFilter) error {
	return s.WithTx(ctx, func(txs Store) error {
		tx := txs.(*PostgresStore)

		if _, err := tx.pool.Exec(ctx,
			`DELETE FROM book_origin_filter WHERE site = $1`, site,
		); err != nil {
			return eris.Wrap(err, "postgres: delete site filters")
		}

		return insertFilterRows(filters, func(f model.OriginFilter, parentID *int64) (int64, error) {
			var id int64
			err := tx.pool.QueryRow(ctx,
				`INSERT INTO book_origin_filter (name, site, is_root, operator_type, property_name, regex, parent_id)
				 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
				f.Name, site, f.IsRoot,
				nullIfEmpty(f.Operator), nullIfEmpty(f.PropertyName), nullIfEmpty(f.Regex),
				parentID,
			).Scan(&id)
			if err != nil {
				return 0, eris.Wrapf(err, "postgres: insert filter %s", f.Name)
			}
			return id, nil
		})
	})
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
