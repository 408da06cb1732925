package batch

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/libroscan/catalog-cli/internal/model"
	"github.com/libroscan/catalog-cli/internal/store"
)

// Normalizer reduces a raw book title to its series name. An empty result
// means no series could be inferred; the book is left alone.
type Normalizer interface {
	SeriesName(ctx context.Context, title string) (string, error)
}

// Organizer assigns series to books that have none, grouping them by
// normalized title.
type Organizer struct {
	store store.Store
	norm  Normalizer
	limit int
	log   *zap.Logger
}

// NewOrganizer creates an Organizer using the given normalizer. limit caps
// how many books one pass touches (0 = all).
func NewOrganizer(st store.Store, norm Normalizer, limit int) *Organizer {
	return &Organizer{
		store: st,
		norm:  norm,
		limit: limit,
		log:   zap.L().With(zap.String("component", "series_organizer")),
	}
}

// OrganizeReport summarizes one organization pass.
type OrganizeReport struct {
	Scanned   int `json:"scanned"`
	Organized int `json:"organized"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Run scans books without a series, infers a series name for each, and links
// the book to an existing or newly created series. Each book is committed in
// its own transaction so a single failure cannot poison the pass.
func (o *Organizer) Run(ctx context.Context) (*OrganizeReport, error) {
	books, err := o.store.ListBooksWithoutSeries(ctx, o.limit)
	if err != nil {
		return nil, err
	}

	report := &OrganizeReport{Scanned: len(books)}
	o.log.Info("series organization starting", zap.Int("books", len(books)))

	for _, b := range books {
		name, err := o.norm.SeriesName(ctx, b.Title)
		if err != nil {
			report.Failed++
			o.log.Warn("title normalization failed",
				zap.Int64("book_id", b.ID),
				zap.String("title", b.Title),
				zap.Error(err),
			)
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			report.Skipped++
			continue
		}

		if err := o.organize(ctx, b, name); err != nil {
			report.Failed++
			o.log.Warn("series assignment failed",
				zap.Int64("book_id", b.ID),
				zap.String("series", name),
				zap.Error(err),
			)
			continue
		}
		report.Organized++
	}

	o.log.Info("series organization complete",
		zap.Int("scanned", report.Scanned),
		zap.Int("organized", report.Organized),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (o *Organizer) organize(ctx context.Context, b model.Book, name string) error {
	return o.store.WithTx(ctx, func(tx store.Store) error {
		sr, err := tx.FindSeriesByName(ctx, name)
		if err != nil {
			return err
		}
		if sr == nil {
			sr, err = tx.CreateSeries(ctx, model.Series{Name: name})
			if err != nil {
				return err
			}
			o.log.Info("series created",
				zap.Int64("series_id", sr.ID),
				zap.String("name", sr.Name),
			)
		}
		return tx.SetBookSeries(ctx, b.ID, sr.ID)
	})
}
