package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Another0Noob/boxd-recommend/internal/history"
	"github.com/Another0Noob/boxd-recommend/internal/humanize"
	"github.com/Another0Noob/boxd-recommend/internal/pipeline"
	"github.com/Another0Noob/boxd-recommend/internal/recommend"
)

var (
	recHistory       string
	recUser          string
	recCatalog       string
	recDataset       string
	recCount         int
	recDiverse       bool
	recFraction      float64
	recMinPopularity int64
	recFuzzy         bool
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Rank unseen catalog titles from a rating history",
	Long: `Builds a taste profile from a rated history and ranks the catalog against it.

The history comes from --history (a ratings or diary export) or from --user,
which collects the user's films into the dataset first and recommends 12
titles with a popularity floor of 50 unless -n or --min-popularity say
otherwise. --diverse mixes in lower ranked picks.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (recHistory == "") == (recUser == "") {
			return errors.New("exactly one of --history or --user is required")
		}
		return runRecommend(cmd)
	},
}

func init() {
	rootCmd.AddCommand(recommendCmd)

	f := recommendCmd.Flags()
	f.StringVarP(&recHistory, "history", "H", "", "history CSV (ratings or diary export)")
	f.StringVarP(&recUser, "user", "u", "", "collect this user's history first")
	f.StringVar(&recCatalog, "catalog", "", "catalog CSV (default recommend.catalog)")
	f.StringVar(&recDataset, "dataset", "", "dataset CSV used with --user (default collector.dataset)")
	f.IntVarP(&recCount, "count", "n", 0, "number of recommendations (default recommend.count)")
	f.BoolVar(&recDiverse, "diverse", false, "mix exploration picks into the results")
	f.Float64Var(&recFraction, "fraction", 0, "share of exploration picks with --diverse (default recommend.diversity_fraction)")
	f.Int64Var(&recMinPopularity, "min-popularity", 0, "popularity floor (default recommend.min_popularity, or recommend.diverse_min_popularity with --diverse)")
	f.BoolVar(&recFuzzy, "fuzzy", false, "fall back to fuzzy title matching")
}

func runRecommend(cmd *cobra.Command) error {
	ctx := cmd.Context()
	flags := cmd.Flags()

	catalogPath := recCatalog
	if catalogPath == "" {
		catalogPath = cfg.Recommend.Catalog
	}
	fmt.Printf("--- Loading catalog %s ---\n", catalogPath)
	eng, size, err := loadEngine(cfg, catalogPath, recFuzzy || cfg.Recommend.Fuzzy)
	if err != nil {
		return err
	}
	fmt.Printf("Got %d titles.\n", size)

	n := cfg.Recommend.Count
	minPopularity := cfg.Recommend.MinPopularity
	if recUser != "" {
		n = pipeline.UserFlowCount
		minPopularity = pipeline.UserFlowMinPopularity
	}
	if flags.Changed("count") {
		n = recCount
	}
	if flags.Changed("min-popularity") {
		minPopularity = recMinPopularity
	}
	fraction := cfg.Recommend.DiversityFraction
	if flags.Changed("fraction") {
		fraction = recFraction
	}

	var hist []history.Entry
	if recUser != "" {
		fetcher, closeCache, err := newFetcher(cfg)
		if err != nil {
			return err
		}
		defer closeCache()

		path := datasetPath(recDataset)
		runner := pipeline.New(newCollector(cfg, fetcher), path)
		fmt.Printf("--- Collecting %s ---\n", recUser)
		out, err := runner.CollectUser(ctx, recUser)
		printOutcome(out, path)
		if err != nil {
			return err
		}
		hist = pipeline.UserHistory(out.Collect.Refs, out.Merge.Records)
	} else {
		fmt.Printf("--- Reading history %s ---\n", recHistory)
		hist, err = history.Load(recHistory)
		if err != nil {
			return err
		}
	}
	fmt.Printf("Got %d rated titles.\n", len(hist))

	var recs recommend.Recommendations
	switch {
	case recDiverse && flags.Changed("min-popularity"):
		recs, err = eng.RecommendDiverseWithFloor(ctx, hist, n, fraction, minPopularity)
	case recDiverse:
		recs, err = eng.RecommendDiverse(ctx, hist, n, fraction)
	default:
		recs, err = eng.RecommendWithFloor(ctx, hist, n, minPopularity)
	}
	if err != nil {
		return err
	}

	printRecommendations(recs)
	return nil
}

func printRecommendations(recs recommend.Recommendations) {
	fmt.Printf("Matched %d titles, %d not in catalog.\n", len(recs.Matched), len(recs.Unmatched))
	if len(recs.Model.TopGenres) > 0 {
		fmt.Printf("Top genres: %s\n", strings.Join(recs.Model.TopGenres, ", "))
	}

	fmt.Println("--- Recommendations ---")
	if len(recs.Items) == 0 {
		fmt.Println("Nothing left to recommend above the popularity floor.")
		return
	}
	for i, it := range recs.Items {
		fmt.Printf("%2d. %s  %.3f  %s  %s\n",
			i+1, titleWithYear(it), it.Score, strings.Join(it.Entry.Genres, ", "), humanize.Count(it.Entry.Popularity))
	}
}

func titleWithYear(s recommend.Scored) string {
	if s.Entry.Year == nil {
		return s.Entry.Title
	}
	return fmt.Sprintf("%s (%d)", s.Entry.Title, *s.Entry.Year)
}
