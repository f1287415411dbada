package recommend

import (
	"math"
	"sort"

	"github.com/Another0Noob/boxd-recommend/internal/catalog"
)

// Component weights. They sum to 1 and are never renormalized when a
// component cannot be computed.
const (
	WeightGenre      = 0.40
	WeightOverlap    = 0.10
	WeightQuality    = 0.20
	WeightPopularity = 0.10
	WeightYear       = 0.10
	WeightRuntime    = 0.10
)

// Excluded is the score of a title the user has already seen.
const Excluded = -1.0

// runtimeBaseline widens the runtime tolerance by a fixed number of minutes.
const runtimeBaseline = 10.0

// Components holds each weighted contribution to a score. Each lies in
// [0, its weight].
type Components struct {
	Genre      float64
	Overlap    float64
	Quality    float64
	Popularity float64
	Year       float64
	Runtime    float64
}

func (c Components) Total() float64 {
	return c.Genre + c.Overlap + c.Quality + c.Popularity + c.Year + c.Runtime
}

// Breakdown computes the weighted components of e against m.
func Breakdown(e catalog.Entry, m Model) Components {
	var c Components
	genres := uniqueGenres(e.Genres)

	if len(genres) > 0 && len(m.GenreAffinity) > 0 {
		var sum float64
		var n int
		for _, g := range genres {
			if a, ok := m.GenreAffinity[g]; ok {
				sum += a
				n++
			}
		}
		if n > 0 {
			c.Genre = clamp01(sum/float64(n)/MaxRating) * WeightGenre
		}
	}

	if len(m.TopGenres) > 0 {
		hits := 0
		for _, g := range genres {
			for _, t := range m.TopGenres {
				if g == t {
					hits++
					break
				}
			}
		}
		c.Overlap = clamp01(float64(hits)/float64(len(m.TopGenres))) * WeightOverlap
	}

	if e.Rating != nil {
		scale := e.RatingScale
		if scale <= 0 {
			scale = catalog.ScaleDataset
		}
		c.Quality = clamp01(*e.Rating/scale) * WeightQuality
	}

	if e.Popularity > 0 {
		c.Popularity = math.Min(math.Log10(float64(e.Popularity)+1)/5, 1) * WeightPopularity
	}

	if m.Year.Known() && e.Year != nil {
		d := math.Abs(float64(*e.Year) - m.Year.Mean)
		c.Year = math.Max(0, 1-d/(2*m.Year.Spread+1)) * WeightYear
	}

	if m.Runtime.Known() && e.Runtime != nil {
		d := math.Abs(float64(*e.Runtime) - m.Runtime.Mean)
		c.Runtime = math.Max(0, 1-d/(2*m.Runtime.Spread+runtimeBaseline)) * WeightRuntime
	}

	return c
}

// Score returns Excluded when e's normalized title is in excluded and the
// weighted component sum otherwise.
func Score(e catalog.Entry, m Model, excluded map[string]struct{}) float64 {
	if _, ok := excluded[e.NormalizedTitle]; ok {
		return Excluded
	}
	return Breakdown(e, m).Total()
}

// Scored is a ranked catalog entry. Index is its catalog position.
type Scored struct {
	Entry      catalog.Entry
	Index      int
	Score      float64
	Components Components
}

// Rank scores every entry whose popularity reaches minPopularity, drops
// excluded and non-positive scores, and returns the best n by score. Ties
// keep catalog order. An empty catalog is ErrEmptyCatalog; no survivors is
// an empty, successful result.
func Rank(entries []catalog.Entry, m Model, excluded map[string]struct{}, n int, minPopularity int64) ([]Scored, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyCatalog
	}
	if n <= 0 {
		return []Scored{}, nil
	}

	out := make([]Scored, 0, min(n, len(entries)))
	for i, e := range entries {
		if e.Popularity < minPopularity {
			continue
		}
		if _, ok := excluded[e.NormalizedTitle]; ok {
			continue
		}
		c := Breakdown(e, m)
		s := c.Total()
		if s <= 0 {
			continue
		}
		out = append(out, Scored{Entry: e, Index: i, Score: s, Components: c})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
