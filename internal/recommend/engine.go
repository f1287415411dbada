package recommend

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog"

	"github.com/Another0Noob/boxd-recommend/internal/catalog"
	"github.com/Another0Noob/boxd-recommend/internal/history"
	"github.com/Another0Noob/boxd-recommend/internal/logging"
	"github.com/Another0Noob/boxd-recommend/internal/match"
	"github.com/Another0Noob/boxd-recommend/internal/metrics"
)

const (
	DefaultMinPopularity        = 1000
	DefaultDiverseMinPopularity = 50
)

var ErrInvalidFraction = errors.New("diversity fraction must be within [0, 1]")

type Options struct {
	// MinPopularity is the floor used by Recommend.
	MinPopularity int64
	// DiverseMinPopularity is the floor used when building the diverse pool.
	DiverseMinPopularity int64
	// Fuzzy enables fuzzy title matching as a fallback.
	Fuzzy bool
	// Rand drives exploration picks. Nil seeds a fresh generator per call.
	Rand   *rand.Rand
	Logger *zerolog.Logger
}

func DefaultOptions() Options {
	return Options{
		MinPopularity:        DefaultMinPopularity,
		DiverseMinPopularity: DefaultDiverseMinPopularity,
	}
}

type Recommendations struct {
	Items     []Scored
	Model     Model
	Matched   []match.Match
	Unmatched []history.Entry
}

// Engine ranks one catalog for many requests. It is safe for concurrent use
// when Options.Rand is nil.
type Engine struct {
	catalog *catalog.Catalog
	matcher *match.Matcher
	opts    Options
	log     zerolog.Logger
}

func NewEngine(cat *catalog.Catalog, opts Options) *Engine {
	if cat == nil {
		cat = &catalog.Catalog{}
	}
	var mopts []match.Option
	if opts.Fuzzy {
		mopts = append(mopts, match.WithFuzzy())
	}

	e := &Engine{
		catalog: cat,
		matcher: match.NewMatcher(cat.Entries, mopts...),
		opts:    opts,
		log:     logging.Component("recommend"),
	}
	if opts.Logger != nil {
		e.log = *opts.Logger
	}
	return e
}

// Recommend returns the n best titles with popularity at least
// Options.MinPopularity.
func (e *Engine) Recommend(ctx context.Context, hist []history.Entry, n int) (Recommendations, error) {
	return e.RecommendWithFloor(ctx, hist, n, e.opts.MinPopularity)
}

// RecommendWithFloor is Recommend with an explicit popularity floor.
func (e *Engine) RecommendWithFloor(ctx context.Context, hist []history.Entry, n int, minPopularity int64) (Recommendations, error) {
	recs, err := e.rank(ctx, hist, n, minPopularity)
	e.record(err)
	return recs, err
}

// RecommendDiverse ranks a pool of int(n*3/(1-fraction)) titles above the
// diverse popularity floor and mixes safe and explore picks from it.
func (e *Engine) RecommendDiverse(ctx context.Context, hist []history.Entry, n int, fraction float64) (Recommendations, error) {
	return e.RecommendDiverseWithFloor(ctx, hist, n, fraction, e.opts.DiverseMinPopularity)
}

// RecommendDiverseWithFloor is RecommendDiverse with an explicit popularity floor.
func (e *Engine) RecommendDiverseWithFloor(ctx context.Context, hist []history.Entry, n int, fraction float64, minPopularity int64) (Recommendations, error) {
	if fraction < 0 || fraction > 1 {
		e.record(ErrInvalidFraction)
		return Recommendations{}, fmt.Errorf("%w: %v", ErrInvalidFraction, fraction)
	}

	pool := int(float64(n) * 3 / (1 - fraction + 1e-9))
	pool = min(pool, e.catalog.Len())

	recs, err := e.rank(ctx, hist, pool, minPopularity)
	if err != nil {
		e.record(err)
		return recs, err
	}

	recs.Items = Diversify(recs.Items, n, fraction, e.opts.Rand)
	e.record(nil)
	return recs, nil
}

func (e *Engine) rank(ctx context.Context, hist []history.Entry, n int, minPopularity int64) (Recommendations, error) {
	if err := ctx.Err(); err != nil {
		return Recommendations{}, err
	}
	if e.catalog.Len() == 0 {
		return Recommendations{}, ErrEmptyCatalog
	}

	res := e.matcher.Match(hist)
	recs := Recommendations{Matched: res.Matches, Unmatched: res.Unmatched}

	rated := make([]Rated, 0, len(res.Matches))
	for _, m := range res.Matches {
		rated = append(rated, Rated{Entry: e.matcher.Entry(m.Index), Rating: m.Entry.Rating})
	}
	model, err := Profile(rated)
	if err != nil {
		e.log.Warn().Int("history", len(hist)).Msg("no history title matched the catalog")
		return recs, err
	}
	recs.Model = model

	if err := ctx.Err(); err != nil {
		return recs, err
	}

	excluded := e.matcher.Excluded(res, hist)
	items, err := Rank(e.catalog.Entries, model, excluded, n, minPopularity)
	if err != nil {
		return recs, err
	}
	recs.Items = items

	e.log.Info().
		Int("history", len(hist)).
		Int("matched", len(res.Matches)).
		Int("unmatched", len(res.Unmatched)).
		Strs("top_genres", model.TopGenres).
		Int("results", len(items)).
		Int64("min_popularity", minPopularity).
		Msg("recommendations ranked")
	return recs, nil
}

func (e *Engine) record(err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNoMatchedTitles):
		result = "no_match"
	case errors.Is(err, ErrEmptyCatalog):
		result = "empty_catalog"
	default:
		result = "error"
	}
	metrics.Recommendations.WithLabelValues(result).Inc()
}
