package match

import (
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/Another0Noob/boxd-recommend/internal/catalog"
	"github.com/Another0Noob/boxd-recommend/internal/history"
	"github.com/Another0Noob/boxd-recommend/internal/normalize"
)

type Kind string

const (
	KindExact Kind = "exact"
	KindFuzzy Kind = "fuzzy"
)

// Match ties a history entry to a catalog position.
type Match struct {
	Entry history.Entry
	Index int
	Kind  Kind
}

type Result struct {
	Matches   []Match
	Unmatched []history.Entry
}

// Matcher looks up history titles in a catalog. Catalog entries are never
// modified.
type Matcher struct {
	entries []catalog.Entry
	index   map[string][]int // normalized title -> positions, storage order

	fuzzy       bool
	looseIndex  map[string][]int
	looseTitles []string // deduped keys of looseIndex, storage order
}

type Option func(*Matcher)

// WithFuzzy enables the fuzzy fallback for titles without an exact match.
func WithFuzzy() Option {
	return func(m *Matcher) { m.fuzzy = true }
}

func NewMatcher(entries []catalog.Entry, opts ...Option) *Matcher {
	m := &Matcher{
		entries: entries,
		index:   make(map[string][]int, len(entries)),
	}
	for _, o := range opts {
		o(m)
	}

	for i, e := range entries {
		n := e.NormalizedTitle
		if n == "" {
			n = normalize.Title(e.Title)
		}
		if n != "" {
			m.index[n] = append(m.index[n], i)
		}
	}

	if m.fuzzy {
		m.looseIndex = make(map[string][]int, len(entries))
		for i, e := range entries {
			n := normalize.Loose(e.Title)
			if n == "" {
				continue
			}
			if _, seen := m.looseIndex[n]; !seen {
				m.looseTitles = append(m.looseTitles, n)
			}
			m.looseIndex[n] = append(m.looseIndex[n], i)
		}
	}
	return m
}

// Entry returns the catalog entry at i.
func (m *Matcher) Entry(i int) catalog.Entry {
	return m.entries[i]
}

// Lookup finds the catalog position for a title. When several entries share
// the normalized title and year is set, the candidates are narrowed to that
// year if any of them has it. The first remaining candidate in storage order
// wins.
func (m *Matcher) Lookup(title string, year *int) (int, bool) {
	n := normalize.Title(title)
	if n == "" {
		return 0, false
	}
	positions := m.index[n]
	if len(positions) == 0 {
		return 0, false
	}
	return m.pick(positions, year), true
}

func (m *Matcher) pick(positions []int, year *int) int {
	if len(positions) > 1 && year != nil {
		for _, p := range positions {
			if y := m.entries[p].Year; y != nil && *y == *year {
				return p
			}
		}
	}
	return positions[0]
}

// Match resolves every history entry. Exact matches are tried first, then
// the fuzzy fallback when enabled.
func (m *Matcher) Match(entries []history.Entry) Result {
	var res Result
	var pending []history.Entry

	for _, e := range entries {
		if i, ok := m.Lookup(e.Title, e.Year); ok {
			res.Matches = append(res.Matches, Match{Entry: e, Index: i, Kind: KindExact})
			continue
		}
		pending = append(pending, e)
	}

	if !m.fuzzy {
		res.Unmatched = pending
		return res
	}

	for _, e := range pending {
		if i, ok := m.fuzzyLookup(e); ok {
			res.Matches = append(res.Matches, Match{Entry: e, Index: i, Kind: KindFuzzy})
			continue
		}
		res.Unmatched = append(res.Unmatched, e)
	}
	return res
}

// fuzzyLookup accepts only a best candidate within the distance threshold
// that maps to a single catalog entry (after year narrowing).
func (m *Matcher) fuzzyLookup(e history.Entry) (int, bool) {
	pat := normalize.Loose(e.Title)
	if pat == "" {
		return 0, false
	}

	thr := distanceThreshold(len(pat))
	candidates := filterCandidates(m.looseTitles, pat, thr)
	if len(candidates) == 0 {
		return 0, false
	}

	ranks := fuzzy.RankFind(pat, candidates)
	if len(ranks) == 0 {
		return 0, false
	}
	sort.Sort(ranks)
	if ranks[0].Distance > thr {
		return 0, false
	}

	positions := m.looseIndex[ranks[0].Target]
	if len(positions) > 1 && e.Year != nil {
		var narrowed []int
		for _, p := range positions {
			if y := m.entries[p].Year; y != nil && *y == *e.Year {
				narrowed = append(narrowed, p)
			}
		}
		positions = narrowed
	}
	if len(positions) != 1 {
		return 0, false
	}
	return positions[0], true
}

// Excluded returns the normalized titles that must never be recommended: every
// matched catalog title and every history title.
func (m *Matcher) Excluded(res Result, hist []history.Entry) map[string]struct{} {
	out := make(map[string]struct{}, len(res.Matches)+len(hist))
	for _, mt := range res.Matches {
		if n := m.entries[mt.Index].NormalizedTitle; n != "" {
			out[n] = struct{}{}
		}
	}
	for _, h := range hist {
		if n := normalize.Title(h.Title); n != "" {
			out[n] = struct{}{}
		}
	}
	return out
}

// distanceThreshold calculates acceptable edit distance (~20% of length)
func distanceThreshold(n int) int {
	th := n / 5
	if th < 1 {
		return 1
	}
	if th > 3 {
		return 3
	}
	return th
}

// filterCandidates pre-filters candidates by length window and first rune
func filterCandidates(all []string, pattern string, threshold int) []string {
	firstRune := func(s string) rune {
		for _, r := range s {
			return r
		}
		return 0
	}

	fr := firstRune(pattern)
	patLen := len(pattern)

	var candidates []string
	for _, t := range all {
		if abs(len(t)-patLen) > threshold {
			continue
		}
		if firstRune(t) != fr {
			continue
		}
		candidates = append(candidates, t)
	}
	return candidates
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
