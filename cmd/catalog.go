package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Another0Noob/boxd-recommend/internal/catalog"
	"github.com/Another0Noob/boxd-recommend/internal/tmdb"
)

var (
	catalogOut      string
	catalogMaxPages int
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the recommendation catalog",
}

var catalogBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a catalog CSV from TMDb's top rated movies",
	Long: `Pages through TMDb's top rated movies, fetches runtime and genres for each
and writes the catalog CSV. Needs tmdb.api_key (or BOXD_TMDB_API_KEY).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCatalogBuild(cmd)
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogBuildCmd)

	catalogBuildCmd.Flags().StringVarP(&catalogOut, "out", "o", "", "output CSV (default recommend.catalog)")
	catalogBuildCmd.Flags().IntVar(&catalogMaxPages, "max-pages", 0, "top rated pages to fetch (default tmdb.max_pages)")
}

func runCatalogBuild(cmd *cobra.Command) error {
	if cfg.TMDb.APIKey == "" {
		return tmdb.ErrNoAPIKey
	}
	out := catalogOut
	if out == "" {
		out = cfg.Recommend.Catalog
	}
	maxPages := cfg.TMDb.MaxPages
	if catalogMaxPages > 0 {
		maxPages = catalogMaxPages
	}

	client := tmdb.NewClient(cfg.TMDb.APIKey,
		tmdb.WithBaseURL(cfg.TMDb.BaseURL),
		tmdb.WithRateLimit(cfg.TMDb.RequestsPerSecond),
	)

	fmt.Println("--- Requesting TMDb top rated ---")
	cat, err := tmdb.BuildCatalog(cmd.Context(), client, tmdb.BuildOptions{
		MaxPages: maxPages,
		Progress: func(page, entries int) {
			fmt.Printf("\rPage %d/%d, %d movies", page, maxPages, entries)
		},
	})
	fmt.Println()
	if cat.Len() == 0 {
		if err == nil {
			err = errors.New("no movies returned")
		}
		return err
	}
	if err != nil {
		fmt.Printf("Stopped early: %v\n", err)
	}

	fmt.Printf("--- Writing %s ---\n", out)
	if err := catalog.Save(out, cat); err != nil {
		return err
	}
	fmt.Printf("Wrote %d movies.\n", cat.Len())
	return err
}
