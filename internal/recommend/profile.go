// Package recommend turns a user's rated history into a preference model and
// ranks catalog titles against it.
package recommend

import (
	"errors"
	"math"
	"sort"

	"github.com/Another0Noob/boxd-recommend/internal/catalog"
)

const (
	// MaxRating is the top of the user rating scale.
	MaxRating = 5.0
	// LikedThreshold is the rating from which a title counts as liked.
	LikedThreshold = 4.0
	maxTopGenres   = 5
)

var (
	ErrNoMatchedTitles = errors.New("no history titles could be matched to the catalog")
	ErrEmptyCatalog    = errors.New("catalog is empty")
)

// Rated is a matched catalog entry with the user's rating for it.
type Rated struct {
	Entry  catalog.Entry
	Rating float64
}

// Stat is a population mean and standard deviation. N counts the
// observations; Spread is 0 when N < 2.
type Stat struct {
	Mean   float64
	Spread float64
	N      int
}

func (s Stat) Known() bool { return s.N > 0 }

type Model struct {
	// GenreAffinity is the mean user rating per genre seen in the history.
	GenreAffinity map[string]float64
	// TopGenres are the most frequent genres among liked titles, most
	// frequent first, ties in first-encounter order.
	TopGenres []string
	Rating    Stat
	Year      Stat
	Runtime   Stat
}

// Profile builds a preference model from matched titles.
func Profile(matched []Rated) (Model, error) {
	if len(matched) == 0 {
		return Model{}, ErrNoMatchedTitles
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)

	type liked struct {
		count int
		first int
	}
	likedGenres := make(map[string]*liked)
	var likedOrder []string

	var ratings, years, runtimes []float64
	for _, r := range matched {
		ratings = append(ratings, r.Rating)
		if r.Entry.Year != nil {
			years = append(years, float64(*r.Entry.Year))
		}
		if r.Entry.Runtime != nil {
			runtimes = append(runtimes, float64(*r.Entry.Runtime))
		}

		for _, g := range uniqueGenres(r.Entry.Genres) {
			sums[g] += r.Rating
			counts[g]++

			if r.Rating < LikedThreshold {
				continue
			}
			if l, ok := likedGenres[g]; ok {
				l.count++
				continue
			}
			likedGenres[g] = &liked{count: 1, first: len(likedOrder)}
			likedOrder = append(likedOrder, g)
		}
	}

	m := Model{
		GenreAffinity: make(map[string]float64, len(sums)),
		Rating:        stat(ratings),
		Year:          stat(years),
		Runtime:       stat(runtimes),
	}
	for g, s := range sums {
		m.GenreAffinity[g] = s / float64(counts[g])
	}

	sort.SliceStable(likedOrder, func(i, j int) bool {
		return likedGenres[likedOrder[i]].count > likedGenres[likedOrder[j]].count
	})
	if len(likedOrder) > maxTopGenres {
		likedOrder = likedOrder[:maxTopGenres]
	}
	m.TopGenres = likedOrder

	return m, nil
}

func stat(xs []float64) Stat {
	if len(xs) == 0 {
		return Stat{}
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	s := Stat{Mean: mean, N: len(xs)}
	if len(xs) < 2 {
		return s
	}
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	s.Spread = math.Sqrt(sq / float64(len(xs)))
	return s
}

func uniqueGenres(genres []string) []string {
	if len(genres) < 2 {
		return genres
	}
	seen := make(map[string]struct{}, len(genres))
	out := make([]string, 0, len(genres))
	for _, g := range genres {
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}
