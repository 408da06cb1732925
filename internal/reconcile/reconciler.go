// Package reconcile orchestrates ingestion: it gates incoming records
// through the origin filters and resolves them against the canonical
// catalog, creating publisher/series/book rows as needed.
package reconcile

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/libroscan/catalog-cli/internal/filter"
	"github.com/libroscan/catalog-cli/internal/keyword"
	"github.com/libroscan/catalog-cli/internal/model"
	"github.com/libroscan/catalog-cli/internal/store"
)

// Outcome classifies an ingestion result. Rejection is a normal outcome, not
// an error: the record simply did not match its site's admission rules.
type Outcome string

const (
	OutcomeAdmitted Outcome = "admitted"
	OutcomeRejected Outcome = "rejected"
)

// Result reports what an ingestion did.
type Result struct {
	Outcome       Outcome `json:"outcome"`
	BookID        int64   `json:"book_id,omitempty"`
	Created       bool    `json:"created,omitempty"` // false = existing book updated or unchanged
	MatchedLeaves []int64 `json:"matched_leaves,omitempty"`
}

// Reconciler resolves raw site records to canonical catalog rows.
type Reconciler struct {
	store    store.Store
	filters  *filter.Cache
	keywords *keyword.Resolver
	log      *zap.Logger
}

// New creates a Reconciler over the given store, filter cache, and keyword
// resolver.
func New(st store.Store, filters *filter.Cache, keywords *keyword.Resolver) *Reconciler {
	return &Reconciler{
		store:    st,
		filters:  filters,
		keywords: keywords,
		log:      zap.L().With(zap.String("component", "reconciler")),
	}
}

// Ingest admits, resolves, and persists one raw record. Resolution runs in a
// single transaction; a uniqueness conflict from a concurrent writer triggers
// exactly one retry with fresh reads before the error surfaces.
func (r *Reconciler) Ingest(ctx context.Context, rec model.RawRecord) (*Result, error) {
	site := model.NormalizeSite(rec.Site)
	if site == "" {
		return nil, &store.ValidationError{Field: "site", Reason: "required"}
	}
	if strings.TrimSpace(rec.Title) == "" {
		return nil, &store.ValidationError{Field: "title", Reason: "required"}
	}
	rec.Site = site
	rec.ISBN = normalizeISBN(rec.ISBN)
	rec.SeriesISBN = normalizeISBN(rec.SeriesISBN)

	decision, err := r.filters.Snapshot().Admit(site, rec.Candidate())
	if err != nil {
		// Malformed forest: fail closed, never ingest on broken rules.
		return nil, err
	}
	if !decision.Admitted {
		r.log.Debug("record rejected by origin filter",
			zap.String("site", site),
			zap.String("isbn", rec.ISBN),
		)
		return &Result{Outcome: OutcomeRejected}, nil
	}

	res, err := r.resolve(ctx, rec)
	if err != nil && store.IsConflict(err) {
		r.log.Debug("conflict during ingest, re-resolving once",
			zap.String("site", site),
			zap.String("isbn", rec.ISBN),
			zap.Error(err),
		)
		res, err = r.resolve(ctx, rec)
	}
	if err != nil {
		return nil, err
	}

	res.Outcome = OutcomeAdmitted
	res.MatchedLeaves = decision.MatchedLeaves
	return res, nil
}

// resolve runs steps 2–4 (publisher, series, book) inside one transaction.
func (r *Reconciler) resolve(ctx context.Context, rec model.RawRecord) (*Result, error) {
	var res Result
	err := r.store.WithTx(ctx, func(tx store.Store) error {
		publisherID, err := r.resolvePublisher(ctx, tx, rec)
		if err != nil {
			return err
		}

		seriesID, err := r.resolveSeries(ctx, tx, rec)
		if err != nil {
			return err
		}

		return r.resolveBook(ctx, tx, rec, publisherID, seriesID, &res)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// resolvePublisher resolves the record's publisher mention: keyword lookup
// first, exact name match second, create-and-bind last.
func (r *Reconciler) resolvePublisher(ctx context.Context, tx store.Store, rec model.RawRecord) (int64, error) {
	text := strings.TrimSpace(rec.PublisherText)
	if text == "" {
		return 0, &store.ValidationError{Field: "publisher_text", Reason: "required"}
	}

	kw := r.keywords.WithStore(tx)

	id, ok, err := kw.Resolve(ctx, rec.Site, text)
	if err != nil {
		return 0, err
	}
	if ok {
		return id, nil
	}

	p, err := tx.FindPublisherByName(ctx, text)
	if err != nil {
		return 0, err
	}
	if p == nil {
		p, err = tx.CreatePublisher(ctx, text)
		if err != nil {
			return 0, err
		}
		r.log.Info("publisher created",
			zap.Int64("publisher_id", p.ID),
			zap.String("name", p.Name),
		)
	}

	if err := kw.Bind(ctx, rec.Site, text, p.ID); err != nil {
		return 0, err
	}
	return p.ID, nil
}

// resolveSeries resolves optional series info: ISBN first, name second,
// create when absent. Returns nil when the record declares no series.
func (r *Reconciler) resolveSeries(ctx context.Context, tx store.Store, rec model.RawRecord) (*int64, error) {
	if rec.SeriesISBN == "" && strings.TrimSpace(rec.SeriesName) == "" {
		return nil, nil
	}

	if rec.SeriesISBN != "" {
		sr, err := tx.FindSeriesByISBN(ctx, rec.SeriesISBN)
		if err != nil {
			return nil, err
		}
		if sr != nil {
			return &sr.ID, nil
		}
	}
	if name := strings.TrimSpace(rec.SeriesName); name != "" {
		sr, err := tx.FindSeriesByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if sr != nil {
			return &sr.ID, nil
		}
	}

	sr, err := tx.CreateSeries(ctx, model.Series{
		Name: strings.TrimSpace(rec.SeriesName),
		ISBN: rec.SeriesISBN,
	})
	if err != nil {
		return nil, err
	}
	r.log.Info("series created",
		zap.Int64("series_id", sr.ID),
		zap.String("name", sr.Name),
	)
	return &sr.ID, nil
}

// resolveBook matches by ISBN when present (the strongest key), otherwise by
// (title, publisher). An existing book gets its mutable fields merged; a new
// book requires an ISBN, which the current schema mandates.
func (r *Reconciler) resolveBook(ctx context.Context, tx store.Store, rec model.RawRecord, publisherID int64, seriesID *int64, res *Result) error {
	title := strings.TrimSpace(rec.Title)

	var existing *model.Book
	var err error
	if rec.ISBN != "" {
		existing, err = tx.FindBookByISBN(ctx, rec.ISBN)
	} else {
		existing, err = tx.FindBookByTitle(ctx, title, publisherID)
	}
	if err != nil {
		return err
	}

	if existing == nil {
		if rec.ISBN == "" {
			return &store.ValidationError{Field: "isbn", Reason: "required to create a book"}
		}
		b, err := tx.CreateBook(ctx, model.Book{
			ISBN:             rec.ISBN,
			Title:            title,
			PublisherID:      publisherID,
			SeriesID:         seriesID,
			ScheduledPubDate: rec.ScheduledPubDate,
			ActualPubDate:    rec.ActualPubDate,
		})
		if err != nil {
			return err
		}
		r.log.Info("book created",
			zap.Int64("book_id", b.ID),
			zap.String("isbn", b.ISBN),
			zap.String("site", rec.Site),
		)
		res.BookID = b.ID
		res.Created = true
		return nil
	}

	changed := existing.Merge(model.Book{
		Title:            title,
		SeriesID:         seriesID,
		ScheduledPubDate: rec.ScheduledPubDate,
		ActualPubDate:    rec.ActualPubDate,
	})
	if changed {
		if err := tx.UpdateBook(ctx, *existing); err != nil {
			return err
		}
		r.log.Debug("book updated",
			zap.Int64("book_id", existing.ID),
			zap.String("isbn", existing.ISBN),
		)
	}
	res.BookID = existing.ID
	return nil
}

// normalizeISBN strips separators from an ISBN; matching and storage always
// use the bare digit string.
func normalizeISBN(isbn string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', ' ':
			return -1
		}
		return r
	}, strings.TrimSpace(isbn))
}
