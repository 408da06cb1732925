package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/libroscan/catalog-cli/internal/batch"
	"github.com/libroscan/catalog-cli/internal/cost"
	"github.com/libroscan/catalog-cli/pkg/anthropic"
)

// organizeOutput augments the organize report with API spend when the
// model-backed normalizer ran.
type organizeOutput struct {
	*batch.OrganizeReport
	InputTokens  int64   `json:"input_tokens,omitempty"`
	OutputTokens int64   `json:"output_tokens,omitempty"`
	CostUSD      float64 `json:"cost_usd,omitempty"`
}

var seriesCmd = &cobra.Command{
	Use:   "series",
	Short: "Manage book series",
}

var seriesOrganizeCmd = &cobra.Command{
	Use:   "organize",
	Short: "Assign series to books that have none",
	Long:  "Scans books without a series, infers a series name from each title, and links the book to an existing or newly created series.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		var norm batch.Normalizer
		var modelNorm *batch.ModelNormalizer
		switch cfg.Series.Normalizer {
		case "", "heuristic":
			norm = batch.HeuristicNormalizer{}
		case "model":
			if cfg.Anthropic.Key == "" {
				return eris.New("anthropic key is required for the model normalizer (CATALOG_ANTHROPIC_KEY)")
			}
			modelNorm = batch.NewModelNormalizer(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model)
			norm = modelNorm
		default:
			return eris.Errorf("unknown series normalizer: %s", cfg.Series.Normalizer)
		}

		report, err := batch.NewOrganizer(st, norm, cfg.Series.Limit).Run(ctx)
		if err != nil {
			return err
		}

		out := organizeOutput{OrganizeReport: report}
		if modelNorm != nil {
			usage := modelNorm.Usage()
			out.InputTokens = usage.InputTokens
			out.OutputTokens = usage.OutputTokens
			out.CostUSD = cost.NewCalculator(cost.DefaultRates()).Message(cfg.Anthropic.Model, usage)
		}
		return printJSON(out)
	},
}

func init() {
	seriesCmd.AddCommand(seriesOrganizeCmd)
	rootCmd.AddCommand(seriesCmd)
}
