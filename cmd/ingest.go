package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/libroscan/catalog-cli/internal/batch"
	"github.com/libroscan/catalog-cli/internal/reconcile"
	"github.com/libroscan/catalog-cli/internal/source"
)

var (
	ingestFile    string
	ingestSite    string
	ingestSheet   string
	ingestWorkers int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest raw book records from a file",
	Long:  "Reads raw records (JSON, CSV, or XLSX), runs each through the site's origin filters, and reconciles admitted records into the catalog.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		records, err := source.ReadRecords(ctx, ingestFile, source.Options{
			Site:      ingestSite,
			SheetName: ingestSheet,
		})
		if err != nil {
			return err
		}
		zap.L().Info("records loaded",
			zap.String("file", ingestFile),
			zap.Int("records", len(records)),
		)

		cache, err := loadFilterCache(ctx, st)
		if err != nil {
			return err
		}

		workers := cfg.Batch.Workers
		if ingestWorkers > 0 {
			workers = ingestWorkers
		}

		rec := reconcile.New(st, cache, newResolver(st))
		ingester := batch.NewIngester(rec, workers, cfg.Batch.RatePerSecond)

		report, err := ingester.Run(ctx, records)
		if err != nil {
			return eris.Wrap(err, "ingestion run")
		}

		if n := cfg.Batch.FailureSummary; n > 0 && len(report.Failures) > n {
			report.Failures = report.Failures[:n]
		}
		return printJSON(report)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "record file (.json, .csv, or .xlsx)")
	ingestCmd.Flags().StringVar(&ingestSite, "site", "", "default site for rows without a site column")
	ingestCmd.Flags().StringVar(&ingestSheet, "sheet", "", "XLSX sheet name (default: first sheet)")
	ingestCmd.Flags().IntVar(&ingestWorkers, "workers", 0, "override configured worker count")
	_ = ingestCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(ingestCmd)
}
