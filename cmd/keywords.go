package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/libroscan/catalog-cli/internal/keyword"
	"github.com/libroscan/catalog-cli/internal/source"
	"github.com/libroscan/catalog-cli/internal/store"
)

var (
	keywordSite      string
	keywordText      string
	keywordPublisher string
	keywordFile      string
	keywordSheet     string
)

var keywordsCmd = &cobra.Command{
	Use:   "keywords",
	Short: "Manage publisher keyword mappings",
}

var keywordsBindCmd = &cobra.Command{
	Use:   "bind",
	Short: "Bind a (site, keyword) pair to a publisher",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		resolver := newResolver(st)
		return st.WithTx(ctx, func(tx store.Store) error {
			p, err := tx.FindPublisherByName(ctx, keywordPublisher)
			if err != nil {
				return err
			}
			if p == nil {
				p, err = tx.CreatePublisher(ctx, keywordPublisher)
				if err != nil {
					return err
				}
				zap.L().Info("publisher created",
					zap.Int64("publisher_id", p.ID),
					zap.String("name", p.Name),
				)
			}

			if err := resolver.WithStore(tx).Bind(ctx, keywordSite, keywordText, p.ID); err != nil {
				return eris.Wrapf(err, "bind keyword %s/%s", keywordSite, keywordText)
			}

			zap.L().Info("keyword bound",
				zap.String("site", keywordSite),
				zap.String("keyword", keywordText),
				zap.Int64("publisher_id", p.ID),
			)
			return nil
		})
	},
}

var keywordsResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a (site, keyword) pair to its publisher",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		id, ok, err := newResolver(st).Resolve(ctx, keywordSite, keywordText)
		if err != nil {
			return err
		}
		if !ok {
			return eris.Errorf("no publisher bound to %s/%s", keywordSite, keywordText)
		}

		p, err := st.GetPublisher(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(p)
	},
}

var keywordsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk import keyword mappings from an XLSX sheet",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		rows, err := source.ReadKeywordSheet(keywordFile, source.Options{
			Site:      keywordSite,
			SheetName: keywordSheet,
		})
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		report, err := keyword.NewImporter(st, newResolver(st)).Import(ctx, rows)
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

func init() {
	keywordsBindCmd.Flags().StringVar(&keywordSite, "site", "", "site code (required)")
	keywordsBindCmd.Flags().StringVar(&keywordText, "keyword", "", "keyword text (required)")
	keywordsBindCmd.Flags().StringVar(&keywordPublisher, "publisher", "", "publisher name, created if absent (required)")
	_ = keywordsBindCmd.MarkFlagRequired("site")
	_ = keywordsBindCmd.MarkFlagRequired("keyword")
	_ = keywordsBindCmd.MarkFlagRequired("publisher")

	keywordsResolveCmd.Flags().StringVar(&keywordSite, "site", "", "site code (required)")
	keywordsResolveCmd.Flags().StringVar(&keywordText, "keyword", "", "keyword text (required)")
	_ = keywordsResolveCmd.MarkFlagRequired("site")
	_ = keywordsResolveCmd.MarkFlagRequired("keyword")

	keywordsImportCmd.Flags().StringVar(&keywordFile, "file", "", "XLSX keyword sheet (required)")
	keywordsImportCmd.Flags().StringVar(&keywordSheet, "sheet", "", "sheet name (default: first sheet)")
	keywordsImportCmd.Flags().StringVar(&keywordSite, "site", "", "default site for rows without a site column")
	_ = keywordsImportCmd.MarkFlagRequired("file")

	keywordsCmd.AddCommand(keywordsBindCmd, keywordsResolveCmd, keywordsImportCmd)
	rootCmd.AddCommand(keywordsCmd)
}
