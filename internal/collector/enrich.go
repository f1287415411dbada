package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Another0Noob/boxd-recommend/internal/dataset"
	"github.com/Another0Noob/boxd-recommend/internal/fetch"
	"github.com/Another0Noob/boxd-recommend/internal/metrics"
	"github.com/Another0Noob/boxd-recommend/internal/pageparser"
)

// results collects enriched records by input position.
type results struct {
	mu      sync.Mutex
	records []*dataset.Record
	done    int
}

func (r *results) put(i int, rec dataset.Record) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[i] = &rec
	r.done++
	return r.done
}

// Enrich fetches detail, stats and ratings for every ref. At most
// Concurrency units run at once. Refs are submitted in batches of BatchSize
// and a batch starts only once the previous one has fully finished.
//
// A unit whose fetches all fail still yields a record carrying its slug and
// id. A unit interrupted by cancellation or an open circuit breaker yields
// nothing, so the merger reports it missing and a later run fetches it. When
// ctx is cancelled no further units are scheduled and only the records
// finished so far are returned, in input order.
func (c *Collector) Enrich(ctx context.Context, refs []TitleRef) []dataset.Record {
	if len(refs) == 0 {
		return nil
	}

	acc := &results{records: make([]*dataset.Record, len(refs))}
	sem := semaphore.NewWeighted(int64(c.cfg.Concurrency))
	total := len(refs)

	for start := 0; start < total; start += c.cfg.BatchSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+c.cfg.BatchSize, total)

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			if err := sem.Acquire(gctx, 1); err != nil {
				break
			}
			g.Go(func() error {
				defer sem.Release(1)
				rec, ok := c.enrichOne(gctx, refs[i])
				if !ok {
					return nil
				}
				done := acc.put(i, rec)
				if c.progress != nil {
					c.progress(done, total)
				}
				return nil
			})
		}
		_ = g.Wait()

		c.log.Debug().
			Int("batch_start", start).
			Int("batch_end", end).
			Int("total", total).
			Msg("enrich batch finished")
	}

	out := make([]dataset.Record, 0, total)
	for _, r := range acc.records {
		if r != nil {
			out = append(out, *r)
		}
	}
	c.log.Info().Int("requested", total).Int("enriched", len(out)).Msg("enrichment finished")
	return out
}

// EnrichSlugs enriches bare slugs, for the dataset merger.
func (c *Collector) EnrichSlugs(ctx context.Context, slugs []string) []dataset.Record {
	refs := make([]TitleRef, len(slugs))
	for i, s := range slugs {
		refs[i] = TitleRef{Slug: s}
	}
	return c.Enrich(ctx, refs)
}

// enrichOne reports false when the unit was cut short and its record must
// not be kept.
func (c *Collector) enrichOne(ctx context.Context, ref TitleRef) (dataset.Record, bool) {
	start := time.Now()
	defer func() { metrics.EnrichDuration.Observe(time.Since(start).Seconds()) }()

	rec := dataset.Record{Slug: ref.Slug, ID: ref.ID}

	body, err := c.fetchPart(ctx, ref.Slug, fmt.Sprintf("%s/film/%s/", c.cfg.BaseURL, ref.Slug))
	if interrupted(ctx, err) {
		return rec, false
	}
	if body != nil {
		film := pageparser.ParseFilm(body)
		if rec.ID == "" {
			rec.ID = film.ID
		}
		rec.Name = film.Name
		rec.Poster = film.Poster
		rec.Runtime = film.Runtime
		rec.Genres = film.Genres
		rec.Directors = film.Directors
	}

	body, err = c.fetchPart(ctx, ref.Slug, fmt.Sprintf("%s/csi/film/%s/stats/", c.cfg.BaseURL, ref.Slug))
	if interrupted(ctx, err) {
		return rec, false
	}
	if body != nil {
		stats := pageparser.ParseStats(body)
		rec.Views = stats.Views
		rec.Likes = stats.Likes
	}

	body, err = c.fetchPart(ctx, ref.Slug, fmt.Sprintf("%s/csi/film/%s/ratings-summary/", c.cfg.BaseURL, ref.Slug))
	if interrupted(ctx, err) {
		return rec, false
	}
	if body != nil {
		rec.Rating = pageparser.ParseRating(body)
	}

	return rec, true
}

// fetchPart logs a failure and returns it with a nil body, so that one
// missing fragment leaves the others intact.
func (c *Collector) fetchPart(ctx context.Context, slug, url string) ([]byte, error) {
	body, err := c.fetcher.Get(ctx, url)
	if err != nil {
		c.log.Warn().Err(err).Str("slug", slug).Str("url", url).Msg("fetch failed, field left empty")
		return nil, err
	}
	return body, nil
}

// interrupted reports whether a unit stopped for reasons unrelated to the
// title itself: the run was cancelled or the site is being shed.
func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, fetch.ErrCanceled) || errors.Is(err, fetch.ErrCircuitOpen)
}
