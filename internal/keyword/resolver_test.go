package keyword

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libroscan/catalog-cli/internal/model"
	"github.com/libroscan/catalog-cli/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "keywords.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestResolver_Normalize(t *testing.T) {
	plain := New(nil, false)
	assert.Equal(t, "Acme", plain.Normalize("  Acme  "))

	folded := New(nil, true)
	assert.Equal(t, folded.Normalize("ACME"), folded.Normalize("acme"))
}

func TestResolver_ResolveMissIsNotAnError(t *testing.T) {
	ctx := context.Background()
	r := New(newTestStore(t), false)

	_, ok, err := r.Resolve(ctx, model.SiteKyobo, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolver_BindAndResolve(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	r := New(st, false)

	p, err := st.CreatePublisher(ctx, "Acme Press")
	require.NoError(t, err)

	require.NoError(t, r.Bind(ctx, " kyobo ", "  acme  ", p.ID))

	// Site and keyword normalize the same way on the read side.
	id, ok, err := r.Resolve(ctx, model.SiteKyobo, "acme")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p.ID, id)
}

func TestResolver_CaseFoldedResolution(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	r := New(st, true)

	p, err := st.CreatePublisher(ctx, "Acme Press")
	require.NoError(t, err)
	require.NoError(t, r.Bind(ctx, model.SiteKyobo, "ACME", p.ID))

	id, ok, err := r.Resolve(ctx, model.SiteKyobo, "acme")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p.ID, id)
}

func TestResolver_RebindConflict(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	r := New(st, false)

	p1, err := st.CreatePublisher(ctx, "Acme Press")
	require.NoError(t, err)
	p2, err := st.CreatePublisher(ctx, "Beta Books")
	require.NoError(t, err)

	require.NoError(t, r.Bind(ctx, model.SiteKyobo, "acme", p1.ID))
	require.NoError(t, r.Bind(ctx, model.SiteKyobo, "acme", p1.ID)) // idempotent

	err = r.Bind(ctx, model.SiteKyobo, "acme", p2.ID)
	require.Error(t, err)
	assert.True(t, store.IsConflict(err))
}
