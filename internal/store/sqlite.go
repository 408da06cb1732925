package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/libroscan/catalog-cli/internal/model"
)

// querier is the subset of *sql.DB / *sql.Tx the SQLite store needs, so the
// same method set serves both the pooled and transactional views.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store using modernc.org/sqlite. It doubles as the
// integration-test backend: a throwaway database file gives the reconciler
// and batch tests real uniqueness constraints without a server.
type SQLiteStore struct {
	db *sql.DB
	q  querier
	tx *sql.Tx
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer at a time; concurrent transactions otherwise race the
	// deferred-to-write lock upgrade and fail with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, q: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS publisher (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_publisher_name ON publisher(name);

CREATE TABLE IF NOT EXISTS publisher_keyword (
	publisher_id INTEGER NOT NULL REFERENCES publisher(id) ON DELETE CASCADE,
	site         TEXT NOT NULL,
	keyword      TEXT NOT NULL,
	PRIMARY KEY (publisher_id, site, keyword)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_publisher_keyword_site_keyword
	ON publisher_keyword(site, keyword);

CREATE TABLE IF NOT EXISTS series (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT,
	isbn          TEXT,
	embedding     BLOB,
	registered_at DATETIME NOT NULL,
	modified_at   DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_series_isbn ON series(isbn) WHERE isbn IS NOT NULL;

CREATE TABLE IF NOT EXISTS book (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	isbn               TEXT NOT NULL UNIQUE,
	title              TEXT NOT NULL,
	publisher_id       INTEGER NOT NULL REFERENCES publisher(id),
	series_id          INTEGER REFERENCES series(id),
	scheduled_pub_date DATETIME,
	actual_pub_date    DATETIME,
	registered_at      DATETIME NOT NULL,
	modified_at        DATETIME
);

CREATE INDEX IF NOT EXISTS idx_book_publisher_title ON book(publisher_id, title);
CREATE INDEX IF NOT EXISTS idx_book_series ON book(series_id);

CREATE TABLE IF NOT EXISTS book_origin_filter (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT NOT NULL,
	site          TEXT NOT NULL,
	is_root       INTEGER NOT NULL DEFAULT 0,
	operator_type TEXT,
	property_name TEXT,
	regex         TEXT,
	parent_id     INTEGER REFERENCES book_origin_filter(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_book_origin_filter_site ON book_origin_filter(site);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.q.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WithTx runs fn against a transactional view. A nested call reuses the
// enclosing transaction (SQLite has no savepoint support through
// database/sql worth the complexity here).
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	if err := fn(&SQLiteStore{db: s.db, q: tx, tx: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

func (s *SQLiteStore) GetPublisher(ctx context.Context, id int64) (*model.Publisher, error) {
	var p model.Publisher
	err := s.q.QueryRowContext(ctx,
		`SELECT id, name FROM publisher WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "publisher", Key: itoa(id)}
		}
		return nil, eris.Wrapf(err, "sqlite: get publisher %d", id)
	}
	return &p, nil
}

func (s *SQLiteStore) FindPublisherByName(ctx context.Context, name string) (*model.Publisher, error) {
	var p model.Publisher
	err := s.q.QueryRowContext(ctx,
		`SELECT id, name FROM publisher WHERE name = ? LIMIT 1`, name,
	).Scan(&p.ID, &p.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: find publisher by name")
	}
	return &p, nil
}

func (s *SQLiteStore) CreatePublisher(ctx context.Context, name string) (*model.Publisher, error) {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO publisher (name) VALUES (?)`, name,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert publisher")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: publisher last insert id")
	}
	return &model.Publisher{ID: id, Name: name}, nil
}

func (s *SQLiteStore) GetKeyword(ctx context.Context, site model.Site, keyword string) (*model.PublisherKeyword, error) {
	var kw model.PublisherKeyword
	err := s.q.QueryRowContext(ctx,
		`SELECT publisher_id, site, keyword FROM publisher_keyword WHERE site = ? AND keyword = ?`,
		site, keyword,
	).Scan(&kw.PublisherID, &kw.Site, &kw.Keyword)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get keyword")
	}
	return &kw, nil
}

func (s *SQLiteStore) BindKeyword(ctx context.Context, kw model.PublisherKeyword) error {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO publisher_keyword (publisher_id, site, keyword) VALUES (?, ?, ?)
		 ON CONFLICT (site, keyword) DO NOTHING`,
		kw.PublisherID, kw.Site, kw.Keyword,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: bind keyword")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: bind keyword rows affected")
	}
	if n > 0 {
		return nil
	}

	existing, err := s.GetKeyword(ctx, kw.Site, kw.Keyword)
	if err != nil {
		return err
	}
	if existing == nil || existing.PublisherID != kw.PublisherID {
		return &ConflictError{Entity: "publisher_keyword", Key: kw.Site + "/" + kw.Keyword}
	}
	return nil
}

func (s *SQLiteStore) ListKeywords(ctx context.Context, publisherID int64) ([]model.PublisherKeyword, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT publisher_id, site, keyword FROM publisher_keyword WHERE publisher_id = ? ORDER BY site, keyword`,
		publisherID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list keywords")
	}
	defer rows.Close()

	var kws []model.PublisherKeyword
	for rows.Next() {
		var kw model.PublisherKeyword
		if err := rows.Scan(&kw.PublisherID, &kw.Site, &kw.Keyword); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan keyword")
		}
		kws = append(kws, kw)
	}
	return kws, eris.Wrap(rows.Err(), "sqlite: list keywords iterate")
}

func (s *SQLiteStore) FindSeriesByISBN(ctx context.Context, isbn string) (*model.Series, error) {
	return s.findSeries(ctx,
		`SELECT id, name, isbn, registered_at, modified_at FROM series WHERE isbn = ?`, isbn)
}

func (s *SQLiteStore) FindSeriesByName(ctx context.Context, name string) (*model.Series, error) {
	return s.findSeries(ctx,
		`SELECT id, name, isbn, registered_at, modified_at FROM series WHERE name = ? ORDER BY id LIMIT 1`, name)
}

func (s *SQLiteStore) findSeries(ctx context.Context, query string, arg any) (*model.Series, error) {
	var sr model.Series
	var name, isbn sql.NullString
	err := s.q.QueryRowContext(ctx, query, arg).Scan(&sr.ID, &name, &isbn, &sr.RegisteredAt, &sr.ModifiedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: find series")
	}
	sr.Name = name.String
	sr.ISBN = isbn.String
	return &sr, nil
}

func (s *SQLiteStore) CreateSeries(ctx context.Context, sr model.Series) (*model.Series, error) {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO series (name, isbn, registered_at) VALUES (?, ?, ?)`,
		nullIfEmpty(sr.Name), nullIfEmpty(sr.ISBN), now,
	)
	if err != nil {
		if err := conflictOr(err, "series", sr.ISBN); IsConflict(err) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: insert series")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: series last insert id")
	}
	sr.ID = id
	sr.RegisteredAt = now
	return &sr, nil
}

func (s *SQLiteStore) FindBookByISBN(ctx context.Context, isbn string) (*model.Book, error) {
	return s.findBook(ctx,
		`SELECT id, isbn, title, publisher_id, series_id, scheduled_pub_date, actual_pub_date, registered_at, modified_at
		 FROM book WHERE isbn = ?`, isbn)
}

func (s *SQLiteStore) FindBookByTitle(ctx context.Context, title string, publisherID int64) (*model.Book, error) {
	return s.findBook(ctx,
		`SELECT id, isbn, title, publisher_id, series_id, scheduled_pub_date, actual_pub_date, registered_at, modified_at
		 FROM book WHERE title = ? AND publisher_id = ? LIMIT 1`, title, publisherID)
}

func (s *SQLiteStore) findBook(ctx context.Context, query string, args ...any) (*model.Book, error) {
	var b model.Book
	err := s.q.QueryRowContext(ctx, query, args...).Scan(
		&b.ID, &b.ISBN, &b.Title, &b.PublisherID, &b.SeriesID,
		&b.ScheduledPubDate, &b.ActualPubDate, &b.RegisteredAt, &b.ModifiedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: find book")
	}
	return &b, nil
}

func (s *SQLiteStore) CreateBook(ctx context.Context, b model.Book) (*model.Book, error) {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO book (isbn, title, publisher_id, series_id, scheduled_pub_date, actual_pub_date, registered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ISBN, b.Title, b.PublisherID, b.SeriesID, b.ScheduledPubDate, b.ActualPubDate, now,
	)
	if err != nil {
		if err := conflictOr(err, "book", b.ISBN); IsConflict(err) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: insert book")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: book last insert id")
	}
	b.ID = id
	b.RegisteredAt = now
	return &b, nil
}

func (s *SQLiteStore) UpdateBook(ctx context.Context, b model.Book) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE book SET title = ?, series_id = ?, scheduled_pub_date = ?, actual_pub_date = ?, modified_at = ?
		 WHERE id = ?`,
		b.Title, b.SeriesID, b.ScheduledPubDate, b.ActualPubDate, time.Now().UTC(), b.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update book %d", b.ID)
	}
	return checkRowsAffected(res, "book", itoa(b.ID))
}

func (s *SQLiteStore) ListBooksWithoutSeries(ctx context.Context, limit int) ([]model.Book, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, isbn, title, publisher_id, series_id, scheduled_pub_date, actual_pub_date, registered_at, modified_at
		 FROM book WHERE series_id IS NULL ORDER BY id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list books without series")
	}
	defer rows.Close()

	var books []model.Book
	for rows.Next() {
		var b model.Book
		if err := rows.Scan(&b.ID, &b.ISBN, &b.Title, &b.PublisherID, &b.SeriesID,
			&b.ScheduledPubDate, &b.ActualPubDate, &b.RegisteredAt, &b.ModifiedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan book")
		}
		books = append(books, b)
	}
	return books, eris.Wrap(rows.Err(), "sqlite: list books iterate")
}

func (s *SQLiteStore) SetBookSeries(ctx context.Context, bookID, seriesID int64) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE book SET series_id = ?, modified_at = ? WHERE id = ?`,
		seriesID, time.Now().UTC(), bookID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set book series %d", bookID)
	}
	return checkRowsAffected(res, "book", itoa(bookID))
}

func (s *SQLiteStore) ListFilters(ctx context.Context, site model.Site) ([]model.OriginFilter, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, name, site, is_root, operator_type, property_name, regex, parent_id
		 FROM book_origin_filter WHERE site = ? ORDER BY id`,
		site,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list filters")
	}
	defer rows.Close()

	var filters []model.OriginFilter
	for rows.Next() {
		var f model.OriginFilter
		var operator, property, regex sql.NullString
		if err := rows.Scan(&f.ID, &f.Name, &f.Site, &f.IsRoot, &operator, &property, &regex, &f.ParentID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan filter")
		}
		f.Operator = operator.String
		f.PropertyName = property.String
		f.Regex = regex.String
		filters = append(filters, f)
	}
	return filters, eris.Wrap(rows.Err(), "sqlite: list filters iterate")
}

func (s *SQLiteStore) ListFilterSites(ctx context.Context) ([]model.Site, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT DISTINCT site FROM book_origin_filter ORDER BY site`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list filter sites")
	}
	defer rows.Close()

	var sites []model.Site
	for rows.Next() {
		var site model.Site
		if err := rows.Scan(&site); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan filter site")
		}
		sites = append(sites, site)
	}
	return sites, eris.Wrap(rows.Err(), "sqlite: list filter sites iterate")
}

func (s *SQLiteStore) ReplaceFilters(ctx context.Context, site model.Site, filters []model.OriginFilter) error {
	return s.WithTx(ctx, func(txs Store) error {
		tx := txs.(*SQLiteStore)

		if _, err := tx.q.ExecContext(ctx,
			`DELETE FROM book_origin_filter WHERE site = ?`, site,
		); err != nil {
			return eris.Wrap(err, "sqlite: delete site filters")
		}

		return insertFilterRows(filters, func(f model.OriginFilter, parentID *int64) (int64, error) {
			res, err := tx.q.ExecContext(ctx,
				`INSERT INTO book_origin_filter (name, site, is_root, operator_type, property_name, regex, parent_id)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				f.Name, site, f.IsRoot,
				nullIfEmpty(f.Operator), nullIfEmpty(f.PropertyName), nullIfEmpty(f.Regex),
				parentID,
			)
			if err != nil {
				return 0, eris.Wrapf(err, "sqlite: insert filter %s", f.Name)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return 0, eris.Wrap(err, "sqlite: filter last insert id")
			}
			return id, nil
		})
	})
}

func checkRowsAffected(res sql.Result, entity, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s", entity)
	}
	if n == 0 {
		return &NotFoundError{Entity: entity, Key: key}
	}
	return nil
}
