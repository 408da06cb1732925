package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/libroscan/catalog-cli/internal/filter"
	"github.com/libroscan/catalog-cli/internal/keyword"
	"github.com/libroscan/catalog-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "catalog.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func filterOptions() filter.Options {
	return filter.Options{
		FullMatch:        cfg.Filter.FullMatch,
		RejectUnfiltered: cfg.Filter.RejectUnfiltered,
	}
}

// loadFilterCache builds a filter cache and loads every site's forest.
func loadFilterCache(ctx context.Context, st store.Store) (*filter.Cache, error) {
	cache := filter.NewCache(filterOptions())
	if err := cache.Reload(ctx, st); err != nil {
		return nil, eris.Wrap(err, "load filter snapshot")
	}
	return cache, nil
}

func newResolver(st store.Store) *keyword.Resolver {
	return keyword.New(st, cfg.Keyword.CaseFold)
}

// printJSON writes v to stdout, indented.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
