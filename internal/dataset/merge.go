package dataset

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Another0Noob/boxd-recommend/internal/logging"
	"github.com/Another0Noob/boxd-recommend/internal/metrics"
)

// SlugCount is how many times a slug was referenced by one collection batch.
type SlugCount struct {
	Slug  string
	Count int
}

// CountSlugs counts occurrences per slug, in first-seen order. Blank slugs
// are ignored.
func CountSlugs(slugs []string) []SlugCount {
	pos := make(map[string]int, len(slugs))
	var out []SlugCount
	for _, s := range slugs {
		if s == "" {
			continue
		}
		if i, ok := pos[s]; ok {
			out[i].Count++
			continue
		}
		pos[s] = len(out)
		out = append(out, SlugCount{Slug: s, Count: 1})
	}
	return out
}

// Enricher fetches full records for slugs not yet in the dataset. It may
// return fewer records than requested (cancellation) but never records for
// slugs it was not asked about.
type Enricher interface {
	EnrichSlugs(ctx context.Context, slugs []string) []Record
}

type Merger struct {
	enricher Enricher
	log      zerolog.Logger
}

func NewMerger(e Enricher) *Merger {
	return &Merger{
		enricher: e,
		log:      logging.Component("merge"),
	}
}

// MergeResult reports what a merge did.
type MergeResult struct {
	Records []Record
	Updated int // existing rows whose count grew
	Added   int // new rows inserted
	Missing int // new slugs the enricher did not return
}

// Merge folds counts into existing. Slugs already present only have their
// OccurrenceCount increased: their other fields are never re-fetched or
// overwritten. Absent slugs are enriched in one call and appended in
// first-seen order with OccurrenceCount set to their batch count.
//
// existing is not modified. If ctx is cancelled while enriching, the records
// merged so far are returned together with ctx.Err().
func (m *Merger) Merge(ctx context.Context, counts []SlugCount, existing []Record) (MergeResult, error) {
	out := make([]Record, len(existing))
	copy(out, existing)

	pos := make(map[string]int, len(out))
	for i, r := range out {
		pos[r.Slug] = i
	}

	var res MergeResult
	pending := make(map[string]int)
	var order []string
	touched := make(map[string]struct{})

	for _, c := range counts {
		if c.Slug == "" || c.Count <= 0 {
			continue
		}
		if i, ok := pos[c.Slug]; ok {
			out[i].OccurrenceCount += c.Count
			if _, seen := touched[c.Slug]; !seen {
				touched[c.Slug] = struct{}{}
				res.Updated++
			}
			continue
		}
		if _, ok := pending[c.Slug]; !ok {
			order = append(order, c.Slug)
		}
		pending[c.Slug] += c.Count
	}

	m.log.Info().
		Int("existing", len(existing)).
		Int("updated", res.Updated).
		Int("to_fetch", len(order)).
		Msg("merging batch")

	if len(order) > 0 && m.enricher != nil {
		enriched := m.enricher.EnrichSlugs(ctx, order)
		bySlug := make(map[string]Record, len(enriched))
		for _, r := range enriched {
			bySlug[r.Slug] = r
		}

		for _, slug := range order {
			r, ok := bySlug[slug]
			if !ok {
				res.Missing++
				continue
			}
			r.Slug = slug
			r.OccurrenceCount = pending[slug]
			out = append(out, r)
			res.Added++
		}
	} else {
		res.Missing = len(order)
	}

	metrics.RecordsMerged.WithLabelValues("updated").Add(float64(res.Updated))
	metrics.RecordsMerged.WithLabelValues("added").Add(float64(res.Added))

	res.Records = out
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// MergeFile loads the dataset at path, merges counts and writes it back in
// full. On cancellation the partial merge is still saved so the next run
// resumes where this one stopped.
func (m *Merger) MergeFile(ctx context.Context, path string, counts []SlugCount) (MergeResult, error) {
	existing, err := Load(path)
	if err != nil {
		return MergeResult{}, err
	}

	res, mergeErr := m.Merge(ctx, counts, existing)
	if err := Save(path, res.Records); err != nil {
		return res, fmt.Errorf("save merged dataset: %w", err)
	}
	return res, mergeErr
}
