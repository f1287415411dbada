package recommend

import (
	"context"
	"io"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Another0Noob/boxd-recommend/internal/catalog"
	"github.com/Another0Noob/boxd-recommend/internal/history"
	"github.com/Another0Noob/boxd-recommend/internal/logging"
	"github.com/Another0Noob/boxd-recommend/internal/normalize"
)

func ptr[T any](v T) *T { return &v }

type entryOpt func(*catalog.Entry)

func year(y int) entryOpt         { return func(e *catalog.Entry) { e.Year = ptr(y) } }
func runtime(m int) entryOpt      { return func(e *catalog.Entry) { e.Runtime = ptr(m) } }
func rating(r float64) entryOpt   { return func(e *catalog.Entry) { e.Rating = ptr(r) } }
func popularity(p int64) entryOpt { return func(e *catalog.Entry) { e.Popularity = p } }

func mk(title string, genres []string, opts ...entryOpt) catalog.Entry {
	e := catalog.Entry{
		Title:           title,
		NormalizedTitle: normalize.Title(title),
		Genres:          genres,
		RatingScale:     catalog.ScaleTMDb,
	}
	for _, o := range opts {
		o(&e)
	}
	return e
}

func TestProfileRequiresMatches(t *testing.T) {
	_, err := Profile(nil)
	assert.ErrorIs(t, err, ErrNoMatchedTitles)
}

func TestProfile(t *testing.T) {
	matched := []Rated{
		{Entry: mk("A", []string{"Drama", "Crime"}, year(1990), runtime(100)), Rating: 5},
		{Entry: mk("B", []string{"Crime", "Drama", "Crime"}, year(2000), runtime(120)), Rating: 4},
		{Entry: mk("C", []string{"Comedy"}, year(2010)), Rating: 2},
		{Entry: mk("D", []string{"Horror", "Comedy"}), Rating: 4.5},
	}

	m, err := Profile(matched)
	require.NoError(t, err)

	assert.InDelta(t, 4.5, m.GenreAffinity["Drama"], 1e-9)
	assert.InDelta(t, 4.5, m.GenreAffinity["Crime"], 1e-9, "repeated genre counted once per title")
	assert.InDelta(t, 3.25, m.GenreAffinity["Comedy"], 1e-9)
	assert.InDelta(t, 4.5, m.GenreAffinity["Horror"], 1e-9)
	assert.NotContains(t, m.GenreAffinity, "Western")

	assert.Equal(t, []string{"Drama", "Crime", "Horror", "Comedy"}, m.TopGenres,
		"count desc, ties in first-encounter order, low ratings ignored")

	assert.InDelta(t, 3.875, m.Rating.Mean, 1e-9)
	assert.Equal(t, 4, m.Rating.N)

	assert.InDelta(t, 2000, m.Year.Mean, 1e-9)
	assert.InDelta(t, math.Sqrt(200.0/3), m.Year.Spread, 1e-9, "population spread over present years")
	assert.Equal(t, 3, m.Year.N)

	assert.InDelta(t, 110, m.Runtime.Mean, 1e-9)
	assert.InDelta(t, 10, m.Runtime.Spread, 1e-9)
}

func TestProfileSingleObservationHasNoSpread(t *testing.T) {
	m, err := Profile([]Rated{{Entry: mk("A", nil, year(1999)), Rating: 3}})
	require.NoError(t, err)
	assert.Zero(t, m.Rating.Spread)
	assert.Zero(t, m.Year.Spread)
	assert.True(t, m.Year.Known())
	assert.False(t, m.Runtime.Known())
	assert.Empty(t, m.TopGenres)
}

func TestProfileTopGenresCapped(t *testing.T) {
	m, err := Profile([]Rated{
		{Entry: mk("A", []string{"a", "b", "c", "d", "e", "f", "g"}), Rating: 5},
		{Entry: mk("B", []string{"g"}), Rating: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"g", "a", "b", "c", "d"}, m.TopGenres)
}

func TestScoreExcludedSentinel(t *testing.T) {
	m := Model{GenreAffinity: map[string]float64{"Drama": 5}, TopGenres: []string{"Drama"}}
	e := mk("Heat", []string{"Drama"}, rating(10), popularity(1e9))
	assert.Equal(t, -1.0, Score(e, m, map[string]struct{}{"heat": {}}))
	assert.Greater(t, Score(e, m, nil), 0.0)
}

func TestBreakdownComponents(t *testing.T) {
	m := Model{
		GenreAffinity: map[string]float64{"Drama": 4, "Crime": 3},
		TopGenres:     []string{"Drama", "Comedy"},
		Year:          Stat{Mean: 2000, Spread: 2, N: 2},
		Runtime:       Stat{Mean: 100, Spread: 5, N: 2},
	}

	tests := []struct {
		name  string
		entry catalog.Entry
		want  Components
	}{
		{
			name:  "all components",
			entry: mk("x", []string{"Drama", "Crime", "Western"}, rating(8), popularity(9999), year(2002), runtime(110)),
			want: Components{
				Genre:      3.5 / 5 * WeightGenre,
				Overlap:    0.5 * WeightOverlap,
				Quality:    0.8 * WeightQuality,
				Popularity: 0.8 * WeightPopularity,
				Year:       (1 - 2.0/5) * WeightYear,
				Runtime:    (1 - 10.0/20) * WeightRuntime,
			},
		},
		{
			name:  "nothing computable",
			entry: mk("y", nil),
			want:  Components{},
		},
		{
			name:  "far year and runtime floor at zero",
			entry: mk("z", []string{"Western"}, year(1900), runtime(400)),
			want:  Components{},
		},
		{
			name:  "site scale and huge popularity",
			entry: func() catalog.Entry { e := mk("w", nil, rating(6), popularity(1e12)); e.RatingScale = 5; return e }(),
			want:  Components{Quality: WeightQuality, Popularity: WeightPopularity},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Breakdown(tt.entry, m)
			assert.InDelta(t, tt.want.Genre, got.Genre, 1e-9, "genre")
			assert.InDelta(t, tt.want.Overlap, got.Overlap, 1e-9, "overlap")
			assert.InDelta(t, tt.want.Quality, got.Quality, 1e-9, "quality")
			assert.InDelta(t, tt.want.Popularity, got.Popularity, 1e-9, "popularity")
			assert.InDelta(t, tt.want.Year, got.Year, 1e-9, "year")
			assert.InDelta(t, tt.want.Runtime, got.Runtime, 1e-9, "runtime")
		})
	}
}

func TestScoreBounded(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	genres := []string{"Drama", "Crime", "Comedy", "Horror", "Sci-Fi"}

	for range 500 {
		aff := map[string]float64{}
		for _, g := range genres {
			if rng.IntN(2) == 0 {
				aff[g] = rng.Float64() * 5
			}
		}
		m := Model{
			GenreAffinity: aff,
			TopGenres:     genres[:rng.IntN(len(genres)+1)],
			Year:          Stat{Mean: 1950 + rng.Float64()*70, Spread: rng.Float64() * 20, N: 2},
			Runtime:       Stat{Mean: 80 + rng.Float64()*80, Spread: rng.Float64() * 30, N: 2},
		}
		e := mk("t", genres[rng.IntN(len(genres)):],
			rating(rng.Float64()*12),
			popularity(rng.Int64N(1e10)),
			year(1900+rng.IntN(130)),
			runtime(rng.IntN(300)))

		c := Breakdown(e, m)
		for _, part := range []struct{ v, w float64 }{
			{c.Genre, WeightGenre}, {c.Overlap, WeightOverlap}, {c.Quality, WeightQuality},
			{c.Popularity, WeightPopularity}, {c.Year, WeightYear}, {c.Runtime, WeightRuntime},
		} {
			assert.GreaterOrEqual(t, part.v, 0.0)
			assert.LessOrEqual(t, part.v, part.w+1e-12)
		}
		assert.LessOrEqual(t, c.Total(), 1.0+1e-9)
	}
}

func TestRank(t *testing.T) {
	m := Model{GenreAffinity: map[string]float64{"Drama": 5, "Comedy": 1}}
	entries := []catalog.Entry{
		mk("Seen", []string{"Drama"}, popularity(5000)),
		mk("Low Pop", []string{"Drama"}, popularity(10)),
		mk("Tie One", []string{"Comedy"}, popularity(5000)),
		mk("Best", []string{"Drama"}, popularity(5000)),
		mk("Tie Two", []string{"Comedy"}, popularity(5000)),
		mk("Zero", nil),
	}
	excluded := map[string]struct{}{"seen": {}}

	got, err := Rank(entries, m, excluded, 10, 1000)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Best", got[0].Entry.Title)
	assert.Equal(t, 3, got[0].Index)
	assert.Equal(t, "Tie One", got[1].Entry.Title, "ties keep catalog order")
	assert.Equal(t, "Tie Two", got[2].Entry.Title)

	top, err := Rank(entries, m, excluded, 1, 1000)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "Best", top[0].Entry.Title)

	none, err := Rank(entries, m, excluded, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = Rank(nil, m, excluded, 5, 0)
	assert.ErrorIs(t, err, ErrEmptyCatalog)
}

func scored(scores ...float64) []Scored {
	out := make([]Scored, len(scores))
	for i, s := range scores {
		out[i] = Scored{Index: i, Score: s}
	}
	return out
}

func TestDiversifySplit(t *testing.T) {
	ranked := scored(1, .95, .9, .85, .8, .75, .7, .65, .6, .55, .5, .45, .4, .35, .3)
	rng := rand.New(rand.NewPCG(7, 7))

	got := Diversify(ranked, 10, 0.3, rng)
	require.Len(t, got, 10)
	for i := range 7 {
		assert.Equal(t, i, got[i].Index, "safe picks are the top 7 verbatim")
	}

	seen := map[int]bool{}
	for _, s := range got[7:] {
		assert.GreaterOrEqual(t, s.Index, 7, "explore picks come from the remaining pool")
		assert.False(t, seen[s.Index], "no repeats")
		seen[s.Index] = true
	}
	assert.Equal(t, 0, ranked[0].Index, "input untouched")
	assert.Len(t, ranked, 15)
}

func TestDiversifyEdgeCases(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))

	t.Run("pool exhausted returns safe only", func(t *testing.T) {
		got := Diversify(scored(.9, .8, .7), 5, 0.4, rng)
		assert.Len(t, got, 3)
	})

	t.Run("no remaining pool", func(t *testing.T) {
		got := Diversify(scored(.9, .8), 10, 0.1, rng)
		assert.Equal(t, []int{0, 1}, indexes(got))
	})

	t.Run("zero fraction is plain top n", func(t *testing.T) {
		got := Diversify(scored(.9, .8, .7, .6), 3, 0, rng)
		assert.Equal(t, []int{0, 1, 2}, indexes(got))
	})

	t.Run("zero weights draw uniformly", func(t *testing.T) {
		got := Diversify(scored(.9, 0, 0, 0), 3, 0.5, rng)
		require.Len(t, got, 3)
		assert.Equal(t, 0, got[0].Index)
	})

	t.Run("non-positive n", func(t *testing.T) {
		assert.Empty(t, Diversify(scored(.9), 0, 0.3, rng))
	})
}

func TestDiversifyFavoursHigherScores(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 42))
	ranked := scored(1, 0.81, 0.01)

	counts := map[int]int{}
	for range 2000 {
		got := Diversify(ranked, 2, 0.5, rng)
		counts[got[1].Index]++
	}
	// weights sqrt(.81)=.9 vs sqrt(.01)=.1
	assert.Greater(t, counts[1], counts[2]*5)
	assert.Greater(t, counts[2], 0)
}

func TestDrawIndexSkipsZeroWeights(t *testing.T) {
	assert.Equal(t, 1, drawIndex([]float64{0, 1, 0}, rand.New(rand.NewPCG(3, 3))))
}

func indexes(s []Scored) []int {
	out := make([]int, len(s))
	for i, x := range s {
		out[i] = x.Index
	}
	return out
}

func testEngine(entries []catalog.Entry, opts Options) *Engine {
	log := logging.NewTestLogger(io.Discard)
	opts.Logger = &log
	return NewEngine(&catalog.Catalog{Entries: entries}, opts)
}

func endToEndCatalog() []catalog.Entry {
	return []catalog.Entry{
		mk("Gladiator", []string{"Action", "Drama"}, year(2000), runtime(155), rating(8.2), popularity(20000)),
		mk("Interstellar", []string{"Sci-Fi", "Drama"}, year(2014), runtime(169), rating(8.4), popularity(30000)),
		mk("Shares Drama", []string{"Drama"}, year(2008), runtime(160), rating(7), popularity(5000)),
		mk("Shares Nothing", []string{"Documentary"}, year(2008), runtime(160), rating(7), popularity(5000)),
		mk("Obscure", []string{"Drama"}, year(2008), runtime(160), rating(10), popularity(60)),
	}
}

func TestEngineEndToEnd(t *testing.T) {
	hist := []history.Entry{
		{Title: "Gladiator", Year: ptr(2000), Rating: 5},
		{Title: "Interstellar", Year: ptr(2014), Rating: 5},
		{Title: "Not In Catalog", Rating: 3},
	}
	eng := testEngine(endToEndCatalog(), DefaultOptions())

	recs, err := eng.Recommend(context.Background(), hist, 10)
	require.NoError(t, err)

	assert.Contains(t, recs.Model.TopGenres, "Drama")
	assert.Len(t, recs.Matched, 2)
	assert.Len(t, recs.Unmatched, 1)

	require.Len(t, recs.Items, 2, "watched and below-floor titles are left out")
	assert.Equal(t, "Shares Drama", recs.Items[0].Entry.Title)
	assert.Equal(t, "Shares Nothing", recs.Items[1].Entry.Title)
	assert.Greater(t, recs.Items[0].Components.Genre, recs.Items[1].Components.Genre)

	low, err := eng.RecommendWithFloor(context.Background(), hist, 10, 50)
	require.NoError(t, err)
	assert.Len(t, low.Items, 3)
	assert.Equal(t, "Obscure", low.Items[0].Entry.Title)
}

func TestEngineErrors(t *testing.T) {
	ctx := context.Background()

	_, err := testEngine(nil, DefaultOptions()).Recommend(ctx, []history.Entry{{Title: "x", Rating: 4}}, 5)
	assert.ErrorIs(t, err, ErrEmptyCatalog)

	_, err = testEngine(endToEndCatalog(), DefaultOptions()).Recommend(ctx, []history.Entry{{Title: "Unknown", Rating: 4}}, 5)
	assert.ErrorIs(t, err, ErrNoMatchedTitles)

	_, err = testEngine(endToEndCatalog(), DefaultOptions()).RecommendDiverse(ctx, nil, 5, 1.5)
	assert.ErrorIs(t, err, ErrInvalidFraction)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = testEngine(endToEndCatalog(), DefaultOptions()).Recommend(cancelled, nil, 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngineRecommendDiverse(t *testing.T) {
	var entries []catalog.Entry
	entries = append(entries, mk("Liked", []string{"Drama"}, year(2000), rating(8), popularity(1000)))
	for i := range 40 {
		entries = append(entries, mk("Candidate "+string(rune('A'+i%26))+string(rune('a'+i/26)), []string{"Drama"},
			year(1990+i), rating(float64(i%10)), popularity(int64(100+i))))
	}

	opts := DefaultOptions()
	opts.Rand = rand.New(rand.NewPCG(9, 9))
	eng := testEngine(entries, opts)

	recs, err := eng.RecommendDiverse(context.Background(), []history.Entry{{Title: "Liked", Rating: 5}}, 10, DefaultDiversity)
	require.NoError(t, err)
	require.Len(t, recs.Items, 10)

	plain, err := eng.RecommendWithFloor(context.Background(), []history.Entry{{Title: "Liked", Rating: 5}}, 6, DefaultDiverseMinPopularity)
	require.NoError(t, err)
	assert.Equal(t, indexes(plain.Items), indexes(recs.Items[:6]), "floor(10*0.65)=6 safe picks")

	seen := map[int]bool{}
	for _, it := range recs.Items {
		assert.False(t, seen[it.Index])
		seen[it.Index] = true
		assert.NotEqual(t, "Liked", it.Entry.Title)
	}
}

func TestEngineRecommendDiverseHonoursFloor(t *testing.T) {
	var entries []catalog.Entry
	entries = append(entries, mk("Liked", []string{"Drama"}, year(2000), rating(8), popularity(1000)))
	for i := range 40 {
		entries = append(entries, mk("Candidate "+string(rune('A'+i%26))+string(rune('a'+i/26)), []string{"Drama"},
			year(1990+i), rating(float64(i%10)), popularity(int64(100+i))))
	}

	opts := DefaultOptions()
	opts.Rand = rand.New(rand.NewPCG(3, 3))
	eng := testEngine(entries, opts)

	recs, err := eng.RecommendDiverseWithFloor(context.Background(), []history.Entry{{Title: "Liked", Rating: 5}}, 6, DefaultDiversity, 130)
	require.NoError(t, err)
	require.Len(t, recs.Items, 6)
	for _, it := range recs.Items {
		assert.GreaterOrEqual(t, it.Entry.Popularity, int64(130), it.Entry.Title)
	}
}
