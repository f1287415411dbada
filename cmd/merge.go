package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Another0Noob/boxd-recommend/internal/dataset"
	"github.com/Another0Noob/boxd-recommend/internal/pipeline"
)

var (
	mergeInput   string
	mergeColumn  string
	mergeList    string
	mergeDataset string
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge slugs from a CSV or a list into the dataset",
	Long: `Counts every slug of --input (one row per reference) or every title of
--list and merges the counts into the dataset. Only slugs missing from the
dataset are fetched. An interrupted merge still saves what was enriched, so
re-running it resumes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (mergeInput == "") == (mergeList == "") {
			return errors.New("exactly one of --input or --list is required")
		}
		return runMerge(cmd, datasetPath(mergeDataset))
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().StringVarP(&mergeInput, "input", "i", "", "CSV with a slug column")
	mergeCmd.Flags().StringVar(&mergeColumn, "column", "slug", "slug column name in --input")
	mergeCmd.Flags().StringVar(&mergeList, "list", "", "list URL (https://letterboxd.com/{user}/list/{slug}/)")
	mergeCmd.Flags().StringVar(&mergeDataset, "dataset", "", "dataset CSV to merge into (default collector.dataset)")
}

func runMerge(cmd *cobra.Command, path string) error {
	fetcher, closeCache, err := newFetcher(cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	runner := pipeline.New(newCollector(cfg, fetcher), path)

	if mergeList != "" {
		fmt.Printf("--- Collecting list %s ---\n", mergeList)
		out, err := runner.CollectList(cmd.Context(), mergeList)
		printOutcome(out, path)
		return err
	}

	fmt.Printf("--- Reading %s ---\n", mergeInput)
	slugs, err := dataset.LoadSlugs(mergeInput, mergeColumn)
	if err != nil {
		return err
	}
	fmt.Printf("Got %d references to %d titles.\n", len(slugs), len(dataset.CountSlugs(slugs)))

	fmt.Printf("--- Merging into %s ---\n", path)
	res, err := runner.MergeSlugs(cmd.Context(), slugs)
	fmt.Printf("Added %d, updated %d, missing %d. Dataset has %d titles.\n",
		res.Added, res.Updated, res.Missing, len(res.Records))
	return err
}
