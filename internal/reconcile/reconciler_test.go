package reconcile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libroscan/catalog-cli/internal/filter"
	"github.com/libroscan/catalog-cli/internal/keyword"
	"github.com/libroscan/catalog-cli/internal/model"
	"github.com/libroscan/catalog-cli/internal/store"
)

type testEnv struct {
	store store.Store
	cache *filter.Cache
	rec   *Reconciler
}

func newTestEnv(t *testing.T, filters map[model.Site][]model.OriginFilter) *testEnv {
	t.Helper()
	ctx := context.Background()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(ctx))

	for site, rows := range filters {
		require.NoError(t, st.ReplaceFilters(ctx, site, rows))
	}

	cache := filter.NewCache(filter.Options{})
	require.NoError(t, cache.Reload(ctx, st))

	return &testEnv{
		store: st,
		cache: cache,
		rec:   New(st, cache, keyword.New(st, false)),
	}
}

func ptr(v int64) *int64 { return &v }

func kyoboAcmeFilters() map[model.Site][]model.OriginFilter {
	return map[model.Site][]model.OriginFilter{
		model.SiteKyobo: {
			{ID: 1, Name: "acme-novels", Site: model.SiteKyobo, IsRoot: true, Operator: "AND"},
			{ID: 2, Name: "title", Site: model.SiteKyobo, PropertyName: model.PropertyTitle, Regex: "^Book", ParentID: ptr(1)},
			{ID: 3, Name: "publisher", Site: model.SiteKyobo, PropertyName: model.PropertyPublisherText, Regex: "Acme", ParentID: ptr(1)},
		},
	}
}

func TestIngest_CreatesPublisherKeywordAndBook(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, kyoboAcmeFilters())

	res, err := env.rec.Ingest(ctx, model.RawRecord{
		Site:          model.SiteKyobo,
		Title:         "Book One",
		PublisherText: "Acme Press",
		ISBN:          "979-11-0000-000-1",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdmitted, res.Outcome)
	assert.True(t, res.Created)
	assert.NotZero(t, res.BookID)
	assert.ElementsMatch(t, []int64{2, 3}, normalizeLeafNames(t, env, res.MatchedLeaves))

	// ISBN stored with separators stripped.
	b, err := env.store.FindBookByISBN(ctx, "9791100000001")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, res.BookID, b.ID)

	// Publisher created and keyword bound for next time.
	p, err := env.store.FindPublisherByName(ctx, "Acme Press")
	require.NoError(t, err)
	require.NotNil(t, p)
	kw, err := env.store.GetKeyword(ctx, model.SiteKyobo, "Acme Press")
	require.NoError(t, err)
	require.NotNil(t, kw)
	assert.Equal(t, p.ID, kw.PublisherID)
}

// normalizeLeafNames maps matched leaf db ids back to the synthetic ids used
// when the rows were defined, so assertions stay readable.
func normalizeLeafNames(t *testing.T, env *testEnv, matched []int64) []int64 {
	t.Helper()
	rows, err := env.store.ListFilters(context.Background(), model.SiteKyobo)
	require.NoError(t, err)

	names := map[int64]string{}
	for _, r := range rows {
		names[r.ID] = r.Name
	}
	var out []int64
	for _, id := range matched {
		switch names[id] {
		case "title":
			out = append(out, 2)
		case "publisher":
			out = append(out, 3)
		default:
			out = append(out, id)
		}
	}
	return out
}

func TestIngest_ReingestPreservesIdentityAndMergesFields(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, kyoboAcmeFilters())

	first, err := env.rec.Ingest(ctx, model.RawRecord{
		Site:          model.SiteKyobo,
		Title:         "Book One",
		PublisherText: "Acme Press",
		ISBN:          "9791100000001",
	})
	require.NoError(t, err)

	actual := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)
	second, err := env.rec.Ingest(ctx, model.RawRecord{
		Site:          model.SiteKyobo,
		Title:         "Book One (2nd printing)",
		PublisherText: "Acme Press",
		ISBN:          "9791100000001",
		ActualPubDate: &actual,
	})
	require.NoError(t, err)

	assert.Equal(t, first.BookID, second.BookID)
	assert.False(t, second.Created)

	b, err := env.store.FindBookByISBN(ctx, "9791100000001")
	require.NoError(t, err)
	assert.Equal(t, "Book One (2nd printing)", b.Title)
	require.NotNil(t, b.ActualPubDate)
	assert.True(t, actual.Equal(*b.ActualPubDate))
	assert.NotNil(t, b.ModifiedAt)
}

func TestIngest_RejectedByFilterIsNotAnError(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, kyoboAcmeFilters())

	res, err := env.rec.Ingest(ctx, model.RawRecord{
		Site:          model.SiteKyobo,
		Title:         "Unrelated Title",
		PublisherText: "Acme Press",
		ISBN:          "9791100000002",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Zero(t, res.BookID)

	b, err := env.store.FindBookByISBN(ctx, "9791100000002")
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestIngest_UnfilteredSiteAdmitsByDefault(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, kyoboAcmeFilters())

	res, err := env.rec.Ingest(ctx, model.RawRecord{
		Site:          model.SiteNLGO,
		Title:         "Anything Goes",
		PublisherText: "Gov Press",
		ISBN:          "9791100000003",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdmitted, res.Outcome)
}

func TestIngest_BrokenFilterSiteFailsClosed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, map[model.Site][]model.OriginFilter{
		model.SiteAladin: {
			{ID: 1, Name: "bad", Site: model.SiteAladin, IsRoot: true, PropertyName: model.PropertyTitle, Regex: "("},
		},
	})

	_, err := env.rec.Ingest(ctx, model.RawRecord{
		Site:          model.SiteAladin,
		Title:         "Anything",
		PublisherText: "Acme Press",
		ISBN:          "9791100000004",
	})
	require.Error(t, err)
	assert.True(t, filter.IsMalformed(err))

	b, err := env.store.FindBookByISBN(ctx, "9791100000004")
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestIngest_ValidationErrors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	var ve *store.ValidationError

	_, err := env.rec.Ingest(ctx, model.RawRecord{Title: "No Site", PublisherText: "P", ISBN: "1"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "site", ve.Field)

	_, err = env.rec.Ingest(ctx, model.RawRecord{Site: model.SiteKyobo, PublisherText: "P", ISBN: "1"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "title", ve.Field)

	_, err = env.rec.Ingest(ctx, model.RawRecord{Site: model.SiteKyobo, Title: "T", ISBN: "1"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "publisher_text", ve.Field)

	// No ISBN and no existing book to match: nothing to create against.
	_, err = env.rec.Ingest(ctx, model.RawRecord{Site: model.SiteKyobo, Title: "T", PublisherText: "P"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "isbn", ve.Field)
}

func TestIngest_TitleFallbackUpdatesExistingBook(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	created, err := env.rec.Ingest(ctx, model.RawRecord{
		Site:          model.SiteKyobo,
		Title:         "Fallback Title",
		PublisherText: "Acme Press",
		ISBN:          "9791100000005",
	})
	require.NoError(t, err)

	sched := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	res, err := env.rec.Ingest(ctx, model.RawRecord{
		Site:             model.SiteKyobo,
		Title:            "Fallback Title",
		PublisherText:    "Acme Press",
		ScheduledPubDate: &sched,
	})
	require.NoError(t, err)
	assert.Equal(t, created.BookID, res.BookID)
	assert.False(t, res.Created)

	b, err := env.store.FindBookByISBN(ctx, "9791100000005")
	require.NoError(t, err)
	require.NotNil(t, b.ScheduledPubDate)
	assert.True(t, sched.Equal(*b.ScheduledPubDate))
}

func TestIngest_SeriesResolution(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	_, err := env.rec.Ingest(ctx, model.RawRecord{
		Site:          model.SiteKyobo,
		Title:         "Saga Vol 1",
		PublisherText: "Acme Press",
		ISBN:          "9791100000006",
		SeriesName:    "Saga",
		SeriesISBN:    "9791100000900",
	})
	require.NoError(t, err)

	_, err = env.rec.Ingest(ctx, model.RawRecord{
		Site:          model.SiteKyobo,
		Title:         "Saga Vol 2",
		PublisherText: "Acme Press",
		ISBN:          "9791100000007",
		SeriesISBN:    "9791100000900",
	})
	require.NoError(t, err)

	b1, err := env.store.FindBookByISBN(ctx, "9791100000006")
	require.NoError(t, err)
	b2, err := env.store.FindBookByISBN(ctx, "9791100000007")
	require.NoError(t, err)
	require.NotNil(t, b1.SeriesID)
	require.NotNil(t, b2.SeriesID)
	assert.Equal(t, *b1.SeriesID, *b2.SeriesID)

	sr, err := env.store.FindSeriesByISBN(ctx, "9791100000900")
	require.NoError(t, err)
	require.NotNil(t, sr)
	assert.Equal(t, "Saga", sr.Name)
}

func TestIngest_KeywordResolvesFutureMentions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	p, err := env.store.CreatePublisher(ctx, "Acme Press")
	require.NoError(t, err)
	require.NoError(t, env.store.BindKeyword(ctx, model.PublisherKeyword{
		PublisherID: p.ID, Site: model.SiteNaver, Keyword: "에이콘",
	}))

	res, err := env.rec.Ingest(ctx, model.RawRecord{
		Site:          model.SiteNaver,
		Title:         "Localized Mention",
		PublisherText: "에이콘",
		ISBN:          "9791100000008",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdmitted, res.Outcome)

	b, err := env.store.FindBookByISBN(ctx, "9791100000008")
	require.NoError(t, err)
	assert.Equal(t, p.ID, b.PublisherID)

	// No duplicate publisher was created for the keyword mention.
	dup, err := env.store.FindPublisherByName(ctx, "에이콘")
	require.NoError(t, err)
	assert.Nil(t, dup)
}
