package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/libroscan/catalog-cli/internal/filter"
	"github.com/libroscan/catalog-cli/internal/model"
)

var (
	filterFile string
	filterSite string
)

var filtersCmd = &cobra.Command{
	Use:   "filters",
	Short: "Manage per-site origin filter rules",
}

var filtersValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a filter definition file without persisting it",
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := readDefinition(filterFile)
		if err != nil {
			return err
		}
		if err := def.Validate(filterOptions()); err != nil {
			return err
		}

		zap.L().Info("filter definition is valid",
			zap.String("site", def.Site),
			zap.Int("nodes", len(def.Rows())),
		)
		return nil
	},
}

var filtersLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Replace a site's filter rules from a definition file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		def, err := readDefinition(filterFile)
		if err != nil {
			return err
		}
		// Reject malformed forests before touching the store.
		if err := def.Validate(filterOptions()); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		rows := def.Rows()
		if err := st.ReplaceFilters(ctx, def.Site, rows); err != nil {
			return eris.Wrapf(err, "replace filters for site %s", def.Site)
		}

		zap.L().Info("filter rules replaced",
			zap.String("site", def.Site),
			zap.Int("nodes", len(rows)),
		)
		return nil
	},
}

// filterStatus is the show command's per-site report.
type filterStatus struct {
	Site  model.Site `json:"site"`
	Nodes int        `json:"nodes"`
	Valid bool       `json:"valid"`
	Error string     `json:"error,omitempty"`
}

var filtersShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show configured filter sites and their validation status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sites, err := st.ListFilterSites(ctx)
		if err != nil {
			return err
		}

		var statuses []filterStatus
		for _, site := range sites {
			if filterSite != "" && site != model.NormalizeSite(filterSite) {
				continue
			}
			rows, err := st.ListFilters(ctx, site)
			if err != nil {
				return err
			}
			status := filterStatus{Site: site, Nodes: len(rows)}
			if _, err := filter.Build(site, rows, filterOptions()); err != nil {
				status.Error = err.Error()
			} else {
				status.Valid = true
			}
			statuses = append(statuses, status)
		}

		return printJSON(statuses)
	},
}

func readDefinition(path string) (*filter.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read filter definition")
	}
	return filter.ParseDefinition(data)
}

func init() {
	filtersValidateCmd.Flags().StringVar(&filterFile, "file", "", "YAML filter definition")
	_ = filtersValidateCmd.MarkFlagRequired("file")

	filtersLoadCmd.Flags().StringVar(&filterFile, "file", "", "YAML filter definition")
	_ = filtersLoadCmd.MarkFlagRequired("file")

	filtersShowCmd.Flags().StringVar(&filterSite, "site", "", "limit to one site")

	filtersCmd.AddCommand(filtersValidateCmd, filtersLoadCmd, filtersShowCmd)
	rootCmd.AddCommand(filtersCmd)
}
