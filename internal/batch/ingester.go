// Package batch runs bulk catalog operations: mass ingestion of raw site
// records and series organization over books that lack one.
package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/libroscan/catalog-cli/internal/model"
	"github.com/libroscan/catalog-cli/internal/reconcile"
)

// Ingester feeds raw records through the reconciler with bounded concurrency.
// Individual record failures are collected, not fatal: one bad row must not
// abort a ten-thousand-row import.
type Ingester struct {
	rec     *reconcile.Reconciler
	workers int
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewIngester creates an Ingester. workers bounds concurrent ingestions;
// perSecond throttles overall throughput (0 = unlimited).
func NewIngester(rec *reconcile.Reconciler, workers int, perSecond float64) *Ingester {
	if workers < 1 {
		workers = 1
	}
	var limiter *rate.Limiter
	if perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSecond), workers)
	}
	return &Ingester{
		rec:     rec,
		workers: workers,
		limiter: limiter,
		log:     zap.L().With(zap.String("component", "batch_ingester")),
	}
}

// Report summarizes one ingestion run.
type Report struct {
	RunID    string        `json:"run_id"`
	Total    int           `json:"total"`
	Admitted int64         `json:"admitted"`
	Rejected int64         `json:"rejected"`
	Created  int64         `json:"created"`
	Updated  int64         `json:"updated"`
	Failed   int64         `json:"failed"`
	Failures []Failure     `json:"failures,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failure records one record that could not be ingested.
type Failure struct {
	Index int    `json:"index"`
	Site  string `json:"site"`
	ISBN  string `json:"isbn,omitempty"`
	Title string `json:"title,omitempty"`
	Err   string `json:"error"`
}

// Run ingests every record and returns a Report. It returns an error only
// when the run as a whole cannot proceed (context cancellation); per-record
// errors land in the report.
func (in *Ingester) Run(ctx context.Context, records []model.RawRecord) (*Report, error) {
	report := &Report{
		RunID: uuid.NewString(),
		Total: len(records),
	}
	if len(records) == 0 {
		return report, nil
	}

	log := in.log.With(zap.String("run_id", report.RunID))
	log.Info("ingestion run starting",
		zap.Int("records", len(records)),
		zap.Int("workers", in.workers),
	)
	start := time.Now()

	var admitted, rejected, created, updated, failed atomic.Int64
	var failuresMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.workers)

	for i, rec := range records {
		g.Go(func() error {
			if in.limiter != nil {
				if err := in.limiter.Wait(gctx); err != nil {
					return err
				}
			}

			res, err := in.rec.Ingest(gctx, rec)
			if err != nil {
				failed.Add(1)
				log.Error("record ingestion failed",
					zap.Int("index", i),
					zap.String("site", rec.Site),
					zap.String("isbn", rec.ISBN),
					zap.Error(err),
				)
				failuresMu.Lock()
				report.Failures = append(report.Failures, Failure{
					Index: i,
					Site:  rec.Site,
					ISBN:  rec.ISBN,
					Title: rec.Title,
					Err:   err.Error(),
				})
				failuresMu.Unlock()
				return nil
			}

			switch res.Outcome {
			case reconcile.OutcomeRejected:
				rejected.Add(1)
			default:
				admitted.Add(1)
				if res.Created {
					created.Add(1)
				} else {
					updated.Add(1)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Admitted = admitted.Load()
	report.Rejected = rejected.Load()
	report.Created = created.Load()
	report.Updated = updated.Load()
	report.Failed = failed.Load()
	report.Duration = time.Since(start)

	log.Info("ingestion run complete",
		zap.Int64("admitted", report.Admitted),
		zap.Int64("rejected", report.Rejected),
		zap.Int64("created", report.Created),
		zap.Int64("updated", report.Updated),
		zap.Int64("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}
