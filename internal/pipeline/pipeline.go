// Package pipeline chains collection, the resumable dataset merge and the
// recommendation engine into the flows used by the CLI and the job API.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Another0Noob/boxd-recommend/internal/collector"
	"github.com/Another0Noob/boxd-recommend/internal/dataset"
	"github.com/Another0Noob/boxd-recommend/internal/history"
	"github.com/Another0Noob/boxd-recommend/internal/logging"
	"github.com/Another0Noob/boxd-recommend/internal/recommend"
)

// Collect-then-recommend defaults.
const (
	UserFlowCount         = 12
	UserFlowMinPopularity = 50
)

var ErrNoDataset = errors.New("dataset path required")

// Runner owns one collector and the dataset file it merges into.
type Runner struct {
	collector   *collector.Collector
	merger      *dataset.Merger
	datasetPath string
	log         zerolog.Logger
}

func New(c *collector.Collector, datasetPath string) *Runner {
	return &Runner{
		collector:   c,
		merger:      dataset.NewMerger(c),
		datasetPath: datasetPath,
		log:         logging.Component("pipeline"),
	}
}

// Outcome is what one collection run did to the dataset.
type Outcome struct {
	Collect collector.Result
	Merge   dataset.MergeResult
}

// CollectUser collects a user's watched titles and merges them into the
// dataset.
func (r *Runner) CollectUser(ctx context.Context, user string) (Outcome, error) {
	res, err := r.collector.Collect(ctx, user)
	if err != nil {
		return Outcome{Collect: res}, err
	}
	return r.merge(ctx, res)
}

// CollectList collects the titles of a list and merges them into the dataset.
func (r *Runner) CollectList(ctx context.Context, listURL string) (Outcome, error) {
	res, err := r.collector.CollectList(ctx, listURL)
	if err != nil {
		return Outcome{Collect: res}, err
	}
	return r.merge(ctx, res)
}

// MergeSlugs merges an already known slug list (one entry per reference).
func (r *Runner) MergeSlugs(ctx context.Context, slugs []string) (dataset.MergeResult, error) {
	if r.datasetPath == "" {
		return dataset.MergeResult{}, ErrNoDataset
	}
	return r.merger.MergeFile(ctx, r.datasetPath, dataset.CountSlugs(slugs))
}

func (r *Runner) merge(ctx context.Context, res collector.Result) (Outcome, error) {
	out := Outcome{Collect: res}
	if res.Stop == collector.StopFetchFailed {
		r.log.Warn().Err(res.FetchErr).Int("titles", len(res.Refs)).Msg("listing incomplete, merging what was collected")
	}

	m, err := r.MergeSlugs(ctx, Slugs(res.Refs))
	out.Merge = m
	if err != nil {
		return out, fmt.Errorf("merge dataset: %w", err)
	}

	r.log.Info().
		Str("run_id", res.RunID).
		Int("titles", len(res.Refs)).
		Int("added", m.Added).
		Int("updated", m.Updated).
		Int("missing", m.Missing).
		Msg("collection merged")
	return out, nil
}

// RecommendForUser collects the user, builds their history from the merged
// records and asks eng for n titles above minPopularity.
func (r *Runner) RecommendForUser(ctx context.Context, eng *recommend.Engine, user string, n int, minPopularity int64) (recommend.Recommendations, Outcome, error) {
	out, err := r.CollectUser(ctx, user)
	if err != nil {
		return recommend.Recommendations{}, out, err
	}

	hist := UserHistory(out.Collect.Refs, out.Merge.Records)
	r.log.Debug().Str("user", user).Int("history", len(hist)).Msg("history built from dataset")

	recs, err := eng.RecommendWithFloor(ctx, hist, n, minPopularity)
	return recs, out, err
}

// Slugs lists the slugs of refs in order.
func Slugs(refs []collector.TitleRef) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		out = append(out, ref.Slug)
	}
	return out
}

// UserHistory keeps the records whose slug the user watched and turns them
// into history entries in watch order.
func UserHistory(refs []collector.TitleRef, records []dataset.Record) []history.Entry {
	bySlug := make(map[string]dataset.Record, len(records))
	for _, rec := range records {
		bySlug[rec.Slug] = rec
	}

	watched := make([]dataset.Record, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		rec, ok := bySlug[ref.Slug]
		if !ok {
			continue
		}
		if _, dup := seen[ref.Slug]; dup {
			continue
		}
		seen[ref.Slug] = struct{}{}
		watched = append(watched, rec)
	}
	return history.FromDataset(watched)
}

// Explain turns the failures users can act on into plain messages. Other
// errors keep their own text.
func Explain(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, collector.ErrPrivate):
		return "this profile is private"
	case errors.Is(err, collector.ErrNotFound):
		return "no such user or list"
	case errors.Is(err, collector.ErrUnavailable):
		return "the site keeps failing, try again later"
	case errors.Is(err, collector.ErrInvalidUser):
		return "usernames may only contain letters, digits and underscores"
	case errors.Is(err, collector.ErrInvalidList):
		return "not a list url (expected https://letterboxd.com/{user}/list/{slug}/)"
	case errors.Is(err, recommend.ErrNoMatchedTitles):
		return "none of the watched titles were found in the catalog"
	case errors.Is(err, recommend.ErrEmptyCatalog):
		return "the catalog is empty"
	case errors.Is(err, context.Canceled):
		return "operation cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "operation timed out"
	}
	return err.Error()
}
