package filter

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/libroscan/catalog-cli/internal/model"
	"github.com/libroscan/catalog-cli/internal/store"
)

// Snapshot is an immutable view of every site's filter forest, shared
// read-only across ingestion workers. Sites whose rows failed validation are
// carried as broken: admission for them errors (fail closed) until an
// administrator fixes the rows and reloads.
type Snapshot struct {
	opts     Options
	forests  map[model.Site]*Forest
	broken   map[model.Site]*MalformedError
	LoadedAt time.Time
}

// Admit evaluates a candidate against its site's forest.
//
// A site with no filter rows is unrestricted unless RejectUnfiltered is set.
// A site with a broken forest returns the MalformedError; the record must
// not be admitted.
func (s *Snapshot) Admit(site model.Site, cand map[string]string) (Decision, error) {
	if err, ok := s.broken[site]; ok {
		return Decision{}, err
	}
	f, ok := s.forests[site]
	if !ok {
		return Decision{Admitted: !s.opts.RejectUnfiltered}, nil
	}
	return f.Evaluate(cand), nil
}

// Sites returns the sites with a loaded forest, broken ones included.
func (s *Snapshot) Sites() []model.Site {
	sites := make([]model.Site, 0, len(s.forests)+len(s.broken))
	for site := range s.forests {
		sites = append(sites, site)
	}
	for site := range s.broken {
		sites = append(sites, site)
	}
	return sites
}

// Cache holds the current filter snapshot behind an atomic pointer. Workers
// read it lock-free; Reload builds a complete replacement and swaps it in
// wholesale, so no reader ever observes a half-updated forest.
type Cache struct {
	opts Options
	cur  atomic.Pointer[Snapshot]
}

// NewCache creates an empty Cache; call Reload before evaluating.
func NewCache(opts Options) *Cache {
	c := &Cache{opts: opts}
	c.cur.Store(&Snapshot{
		opts:     opts,
		forests:  map[model.Site]*Forest{},
		broken:   map[model.Site]*MalformedError{},
		LoadedAt: time.Now().UTC(),
	})
	return c
}

// Snapshot returns the current snapshot. The returned value is immutable and
// safe to use for any number of evaluations.
func (c *Cache) Snapshot() *Snapshot {
	return c.cur.Load()
}

// Reload rebuilds every site's forest from the store and atomically replaces
// the snapshot. A site with malformed rows does not fail the reload: it is
// recorded as broken (admission for it fails closed) and logged, since one
// misconfigured site must not stall ingestion for the others.
func (c *Cache) Reload(ctx context.Context, st store.Store) error {
	log := zap.L().With(zap.String("component", "filter_cache"))

	sites, err := st.ListFilterSites(ctx)
	if err != nil {
		return eris.Wrap(err, "filter: list sites")
	}

	next := &Snapshot{
		opts:     c.opts,
		forests:  make(map[model.Site]*Forest, len(sites)),
		broken:   map[model.Site]*MalformedError{},
		LoadedAt: time.Now().UTC(),
	}

	for _, site := range sites {
		rows, err := st.ListFilters(ctx, site)
		if err != nil {
			return eris.Wrapf(err, "filter: load rows for site %s", site)
		}
		f, err := Build(site, rows, c.opts)
		if err != nil {
			var me *MalformedError
			if errors.As(err, &me) {
				next.broken[site] = me
				log.Warn("filter forest failed validation, site fails closed",
					zap.String("site", site),
					zap.Error(me),
				)
				continue
			}
			return err
		}
		next.forests[site] = f
		log.Debug("filter forest loaded",
			zap.String("site", site),
			zap.Int("nodes", f.Nodes),
		)
	}

	c.cur.Store(next)
	log.Info("filter snapshot reloaded",
		zap.Int("sites", len(next.forests)),
		zap.Int("broken", len(next.broken)),
	)
	return nil
}
