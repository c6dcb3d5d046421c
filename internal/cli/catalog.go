package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/frontdesk/internal/catalog"
)

// CatalogResult is the JSON payload of catalog suggest.
type CatalogResult struct {
	Kind        catalog.Kind `json:"kind"`
	Prefix      string       `json:"prefix"`
	Suggestions []string     `json:"suggestions"`
}

// NewCatalogCommand creates the catalog command group.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Known companies and providers",
	}
	cmd.AddCommand(newCatalogSuggestCommand(rootOpts))
	return cmd
}

func newCatalogSuggestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <companies|providers> [prefix]",
		Short: "Suggest known names starting with prefix",
		Long: `Suggest known companies or providers starting with prefix, ignoring case.

The catalog is only a typing aid; register accepts names that are not in it.

Examples:
  frontdesk catalog suggest companies ac
  frontdesk catalog suggest providers`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 2 {
				prefix = args[1]
			}
			return runCatalogSuggest(rootOpts, args[0], prefix, cmd)
		},
	}
}

func runCatalogSuggest(opts *RootOptions, kindArg, prefix string, cmd *cobra.Command) error {
	kind, err := catalog.ParseKind(kindArg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid catalog", err)
	}

	cfg, logger, err := loadConfig(opts, cmd)
	if err != nil {
		return err
	}
	logger.Debug("loading catalog", "path", cfg.Catalog.Path)
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load catalog", err)
	}

	result := CatalogResult{Kind: kind, Prefix: prefix, Suggestions: cat.Suggest(kind, prefix)}
	if result.Suggestions == nil {
		result.Suggestions = []string{}
	}

	if opts.Format == "json" {
		return formatter(opts, cmd).Success(result)
	}
	for _, s := range result.Suggestions {
		fmt.Fprintln(cmd.OutOrStdout(), s)
	}
	return nil
}
