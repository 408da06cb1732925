// Package keyword resolves free-text publisher mentions on external sites to
// canonical publisher ids.
package keyword

import (
	"context"
	"strings"

	"golang.org/x/text/cases"

	"github.com/libroscan/catalog-cli/internal/model"
	"github.com/libroscan/catalog-cli/internal/store"
)

// Resolver maps (site, keyword) pairs to publishers. Matching is exact after
// normalization: keywords are trimmed and, when fold is enabled, Unicode
// case-folded, so "Acme" and "ACME" resolve identically. No fuzzy matching.
type Resolver struct {
	store store.Store
	fold  bool
}

// New creates a Resolver. fold enables case-insensitive keyword matching.
func New(st store.Store, fold bool) *Resolver {
	return &Resolver{store: st, fold: fold}
}

// WithStore returns a Resolver with the same normalization policy bound to a
// different store view, used to keep resolution inside a transaction.
func (r *Resolver) WithStore(st store.Store) *Resolver {
	return &Resolver{store: st, fold: r.fold}
}

// Normalize applies the resolver's keyword normalization.
func (r *Resolver) Normalize(keyword string) string {
	keyword = strings.TrimSpace(keyword)
	if r.fold {
		keyword = cases.Fold().String(keyword)
	}
	return keyword
}

// Resolve returns the publisher bound to (site, keyword), if any. A miss is
// a normal outcome, not an error.
func (r *Resolver) Resolve(ctx context.Context, site model.Site, keyword string) (int64, bool, error) {
	kw, err := r.store.GetKeyword(ctx, model.NormalizeSite(site), r.Normalize(keyword))
	if err != nil {
		return 0, false, err
	}
	if kw == nil {
		return 0, false, nil
	}
	return kw.PublisherID, true, nil
}

// Bind registers (site, keyword) → publisherID. Rebinding the same pair to
// the same publisher is idempotent; rebinding to a different publisher fails
// with a ConflictError from the store.
func (r *Resolver) Bind(ctx context.Context, site model.Site, keyword string, publisherID int64) error {
	return r.store.BindKeyword(ctx, model.PublisherKeyword{
		PublisherID: publisherID,
		Site:        model.NormalizeSite(site),
		Keyword:     r.Normalize(keyword),
	})
}
