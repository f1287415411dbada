package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Another0Noob/boxd-recommend/internal/collector"
	"github.com/Another0Noob/boxd-recommend/internal/pipeline"
)

var (
	collectUser    string
	collectDataset string
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect a user's watched films into the dataset",
	Long: `Walks /{user}/films/ page by page, enriches every title not yet in the
dataset and merges the run into it. Titles already in the dataset only have
their occurrence count increased.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCollect(cmd, collectUser, datasetPath(collectDataset))
	},
}

func init() {
	rootCmd.AddCommand(collectCmd)

	collectCmd.Flags().StringVarP(&collectUser, "user", "u", "", "site username")
	collectCmd.MarkFlagRequired("user")
	collectCmd.Flags().StringVar(&collectDataset, "dataset", "", "dataset CSV to merge into (default collector.dataset)")
}

func datasetPath(flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.Collector.Dataset
}

func runCollect(cmd *cobra.Command, user, path string) error {
	fetcher, closeCache, err := newFetcher(cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	runner := pipeline.New(newCollector(cfg, fetcher), path)

	fmt.Printf("--- Collecting %s ---\n", user)
	out, err := runner.CollectUser(cmd.Context(), user)
	printOutcome(out, path)
	return err
}

func printOutcome(out pipeline.Outcome, path string) {
	if out.Collect.RunID == "" {
		return
	}
	fmt.Printf("Got %d titles from %d pages (%s).\n", len(out.Collect.Refs), out.Collect.PagesScraped, out.Collect.Stop)
	if out.Collect.Stop == collector.StopFetchFailed {
		fmt.Println("Listing may be incomplete: a page could not be fetched.")
	}
	if out.Merge.Records == nil && out.Merge.Added == 0 && out.Merge.Updated == 0 {
		return
	}
	fmt.Printf("--- Merged into %s ---\n", path)
	fmt.Printf("Added %d, updated %d, missing %d. Dataset has %d titles.\n",
		out.Merge.Added, out.Merge.Updated, out.Merge.Missing, len(out.Merge.Records))
}
