// Package pageparser extracts structured fields from catalog site pages.
//
// Every extractor is best effort: a missing element yields a zero value or a
// nil pointer, and nothing here returns an error. Callers treat an empty
// result as "no data".
package pageparser

import (
	"bytes"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/goccy/go-json"
	"golang.org/x/net/html"

	"github.com/Another0Noob/boxd-recommend/internal/numfield"
)

// TitleRef identifies one title on a listing page.
type TitleRef struct {
	ID   string
	Slug string
}

// Film holds the fields read from a title's detail page.
type Film struct {
	ID          string
	Name        string
	Year        *int
	Description string
	Genres      []string
	Cast        []string
	Directors   []string
	Runtime     *int
	Poster      string
}

// Stats holds the shorthand counters from the stats fragment.
type Stats struct {
	Views *int64
	Lists *int64
	Likes *int64
}

var reDigits = regexp.MustCompile(`\d[\d,]*`)

func parse(page []byte) *goquery.Document {
	if len(page) == 0 {
		return nil
	}
	root, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil
	}
	return goquery.NewDocumentFromNode(root)
}

// ParseFilmList reads the poster grid of a listing page, in page order.
func ParseFilmList(page []byte) []TitleRef {
	doc := parse(page)
	if doc == nil {
		return nil
	}

	var refs []TitleRef
	doc.Find("div.poster-grid > ul").First().Find("li").Each(func(_ int, li *goquery.Selection) {
		div := li.Find("div.react-component").First()
		if div.Length() == 0 {
			div = li.Find("div").First()
		}
		slug := attrFirst(div, "data-item-slug", "data-film-slug")
		if slug == "" {
			return
		}
		refs = append(refs, TitleRef{
			ID:   strings.TrimSpace(div.AttrOr("data-film-id", "")),
			Slug: slug,
		})
	})
	return refs
}

// ParseFilm reads a title's detail page.
func ParseFilm(page []byte) Film {
	doc := parse(page)
	if doc == nil {
		return Film{}
	}

	f := Film{
		ID:          strings.TrimSpace(doc.Find("[data-film-id]").First().AttrOr("data-film-id", "")),
		Name:        title(doc),
		Description: strings.TrimSpace(doc.Find(`meta[name="description"]`).First().AttrOr("content", "")),
		Genres:      texts(doc.Find("#tab-genres a")),
		Cast:        texts(doc.Find("#tab-cast a.tooltip")),
		Directors:   texts(doc.Find("#tab-crew p").First().Find("a")),
		Poster:      poster(doc),
	}

	if y, err := strconv.Atoi(strings.TrimSpace(doc.Find("span.releasedate a").First().Text())); err == nil {
		f.Year = &y
	}
	if m := reDigits.FindString(doc.Find("p.text-footer").First().Text()); m != "" {
		if n, err := strconv.Atoi(strings.ReplaceAll(m, ",", "")); err == nil {
			f.Runtime = &n
		}
	}
	return f
}

func title(doc *goquery.Document) string {
	if h1 := doc.Find("h1.primaryname").First(); h1.Length() > 0 {
		if span := h1.Find("span.name").First(); span.Length() > 0 {
			return strings.TrimSpace(span.Text())
		}
		return strings.TrimSpace(h1.Text())
	}
	return strings.TrimSpace(doc.Find("h1.filmtitle").First().Text())
}

// poster reads the image URL from the page's JSON-LD block. The site wraps
// the payload in /* <![CDATA[ */ ... /* ]]> */ comments.
func poster(doc *goquery.Document) string {
	raw := strings.TrimSpace(doc.Find(`script[type="application/ld+json"]`).First().Text())
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "/*") && strings.Contains(raw, "*/") {
		parts := strings.SplitN(raw, "*/", 2)
		raw = strings.SplitN(parts[1], "/*", 2)[0]
	}

	var ld struct {
		Image string `json:"image"`
	}
	if err := json.Unmarshal([]byte(raw), &ld); err != nil {
		return ""
	}
	img, _, _ := strings.Cut(ld.Image, "?")
	return img
}

// ParseStats reads the views / lists / likes counters of the stats fragment.
func ParseStats(page []byte) Stats {
	doc := parse(page)
	if doc == nil {
		return Stats{}
	}
	list := doc.Find("div.production-statistic-list").First()
	if list.Length() == 0 {
		return Stats{}
	}
	return Stats{
		Views: statValue(list.Find("div.-watches").First()),
		Lists: statValue(list.Find("div.-lists").First()),
		Likes: statValue(list.Find("div.-likes").First()),
	}
}

// statValue prefers the shorthand badge text and falls back to the full
// number in the aria-label ("Watched by 1,419,375 members").
func statValue(div *goquery.Selection) *int64 {
	if div.Length() == 0 {
		return nil
	}
	if n, ok := ParseShorthand(div.Find("a span").First().Text()); ok {
		return &n
	}
	label := div.AttrOr("aria-label", div.Find("a").First().AttrOr("title", ""))
	if m := reDigits.FindString(label); m != "" {
		if n, ok := ParseShorthand(m); ok {
			return &n
		}
	}
	return nil
}

// ParseRating reads the average rating of the ratings-summary fragment.
func ParseRating(page []byte) *float64 {
	doc := parse(page)
	if doc == nil {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(doc.Find("a.display-rating").First().Text()), 64)
	if err != nil {
		return nil
	}
	return &v
}

// Private reports whether page is the site's "this profile is private" page.
func Private(page []byte) bool {
	doc := parse(page)
	if doc == nil {
		return false
	}
	if doc.Find(".private-profile, section.-private").Length() > 0 {
		return true
	}
	if doc.Find("body.error").Length() > 0 {
		return strings.Contains(strings.ToLower(doc.Find("body").Text()), "private")
	}
	return false
}

// ParseShorthand converts counters like "13k", "2M", "1.5B" or "1,204" to
// integers. Suffixes are case-insensitive.
func ParseShorthand(s string) (int64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false
	}

	mult := 1.0
	switch s[len(s)-1] {
	case 'k':
		mult = 1_000
	case 'm':
		mult = 1_000_000
	case 'b':
		mult = 1_000_000_000
	}
	if mult != 1 {
		s = strings.TrimSpace(s[:len(s)-1])
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	v := math.Round(f * mult)
	if !numfield.FitsInt64(v) {
		return 0, false
	}
	return int64(v), true
}

func attrFirst(s *goquery.Selection, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(s.AttrOr(n, "")); v != "" {
			return v
		}
	}
	return ""
}

func texts(s *goquery.Selection) []string {
	var out []string
	s.Each(func(_ int, el *goquery.Selection) {
		if t := strings.TrimSpace(el.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}
