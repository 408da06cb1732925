package keyword

import (
	"context"

	"go.uber.org/zap"

	"github.com/libroscan/catalog-cli/internal/db"
	"github.com/libroscan/catalog-cli/internal/model"
	"github.com/libroscan/catalog-cli/internal/source"
	"github.com/libroscan/catalog-cli/internal/store"
)

// Importer loads keyword mapping sheets into the store in bulk. Publishers
// named in the sheet are created on first sight; existing (site, keyword)
// bindings are left untouched and counted as skipped.
type Importer struct {
	store    store.Store
	resolver *Resolver
	log      *zap.Logger
}

// NewImporter creates an Importer sharing the resolver's normalization.
func NewImporter(st store.Store, resolver *Resolver) *Importer {
	return &Importer{
		store:    st,
		resolver: resolver,
		log:      zap.L().With(zap.String("component", "keyword_importer")),
	}
}

// ImportReport summarizes one import.
type ImportReport struct {
	Rows              int `json:"rows"`
	PublishersCreated int `json:"publishers_created"`
	Bound             int `json:"bound"`
	Skipped           int `json:"skipped"`
}

// Import resolves publishers and binds every keyword row. Against Postgres
// the bindings go through one bulk COPY upsert; other stores bind row by row
// in a single transaction.
func (im *Importer) Import(ctx context.Context, rows []source.KeywordRow) (*ImportReport, error) {
	report := &ImportReport{Rows: len(rows)}
	if len(rows) == 0 {
		return report, nil
	}

	publisherIDs := make(map[string]int64)
	err := im.store.WithTx(ctx, func(tx store.Store) error {
		for _, r := range rows {
			if _, ok := publisherIDs[r.Publisher]; ok {
				continue
			}
			p, err := tx.FindPublisherByName(ctx, r.Publisher)
			if err != nil {
				return err
			}
			if p == nil {
				p, err = tx.CreatePublisher(ctx, r.Publisher)
				if err != nil {
					return err
				}
				report.PublishersCreated++
			}
			publisherIDs[r.Publisher] = p.ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	keywords := make([]model.PublisherKeyword, 0, len(rows))
	for _, r := range rows {
		keywords = append(keywords, model.PublisherKeyword{
			PublisherID: publisherIDs[r.Publisher],
			Site:        model.NormalizeSite(r.Site),
			Keyword:     im.resolver.Normalize(r.Keyword),
		})
	}

	if pg, ok := im.store.(*store.PostgresStore); ok {
		bound, err := im.bulkBind(ctx, pg, keywords)
		if err != nil {
			return nil, err
		}
		report.Bound = bound
	} else {
		bound, err := im.bindEach(ctx, keywords)
		if err != nil {
			return nil, err
		}
		report.Bound = bound
	}
	report.Skipped = len(keywords) - report.Bound

	im.log.Info("keyword import complete",
		zap.Int("rows", report.Rows),
		zap.Int("publishers_created", report.PublishersCreated),
		zap.Int("bound", report.Bound),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}

func (im *Importer) bulkBind(ctx context.Context, pg *store.PostgresStore, keywords []model.PublisherKeyword) (int, error) {
	values := make([][]any, len(keywords))
	for i, kw := range keywords {
		values[i] = []any{kw.PublisherID, kw.Site, kw.Keyword}
	}
	affected, err := db.BulkUpsert(ctx, pg.Pool(), db.UpsertConfig{
		Table:        "publisher_keyword",
		Columns:      []string{"publisher_id", "site", "keyword"},
		ConflictKeys: []string{"site", "keyword"},
		// Existing bindings win; conflicting rows are skipped, not rebound.
		UpdateCols: []string{},
	}, values)
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (im *Importer) bindEach(ctx context.Context, keywords []model.PublisherKeyword) (int, error) {
	bound := 0
	err := im.store.WithTx(ctx, func(tx store.Store) error {
		for _, kw := range keywords {
			if err := tx.BindKeyword(ctx, kw); err != nil {
				if store.IsConflict(err) {
					im.log.Warn("keyword already bound to another publisher, skipping",
						zap.String("site", kw.Site),
						zap.String("keyword", kw.Keyword),
					)
					continue
				}
				return err
			}
			bound++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return bound, nil
}
