// Package history loads a user's rated titles: the diary export, the site's
// ratings export, or the user's own enriched dataset.
package history

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Another0Noob/boxd-recommend/internal/dataset"
)

// MaxRating is the top of the user rating scale.
const MaxRating = 5.0

var ErrNoNameColumn = errors.New("history header has no name column")

// Entry is one title the user has rated. Rating is on the 0-5 scale.
type Entry struct {
	Title  string
	Year   *int
	Rating float64
	Slug   string
}

// column names (after normalizeHeader) accepted for each field
var (
	nameColumns   = []string{"name", "title", "film"}
	yearColumns   = []string{"release", "year", "release_year"}
	ratingColumns = []string{"rating", "your_rating", "user_rating"}
	slugColumns   = []string{"slug"}
	uriColumns    = []string{"letterboxd_uri", "uri", "url"}
)

// Read parses a history CSV. Both the diary layout (name, slug, id, release,
// runtime, rewatched, rating, liked, reviewed, date) and the ratings export
// (Date, Name, Year, Letterboxd URI, Rating) are accepted. Rows without a
// name, or with an empty, zero or unparsable rating, are skipped.
//
// Diary ratings count half stars (1-10); values above MaxRating are halved
// onto the 0-5 scale.
func Read(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = normalizeHeader(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}

	nameIdx := findIndex(idx, nameColumns)
	if nameIdx < 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoNameColumn, header)
	}
	yearIdx := findIndex(idx, yearColumns)
	ratingIdx := findIndex(idx, ratingColumns)
	slugIdx := findIndex(idx, slugColumns)
	uriIdx := findIndex(idx, uriColumns)

	get := func(rec []string, i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []Entry
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		name := get(rec, nameIdx)
		if name == "" {
			continue
		}
		rating, ok := parseRating(get(rec, ratingIdx))
		if !ok {
			continue
		}

		e := Entry{Title: name, Rating: rating, Slug: get(rec, slugIdx)}
		if y, err := strconv.Atoi(get(rec, yearIdx)); err == nil && y > 0 {
			e.Year = &y
		}
		if e.Slug == "" {
			e.Slug = slugFromURI(get(rec, uriIdx))
		}
		out = append(out, e)
	}
	return out, nil
}

func Load(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	entries, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("parse history %s: %w", path, err)
	}
	return entries, nil
}

// FromDataset uses the user's own enriched records as history. Records
// without a rating are skipped.
func FromDataset(records []dataset.Record) []Entry {
	var out []Entry
	for _, r := range records {
		if r.Rating == nil || *r.Rating <= 0 {
			continue
		}
		name := r.Name
		if name == "" {
			continue
		}
		out = append(out, Entry{Title: name, Rating: *r.Rating, Slug: r.Slug})
	}
	return out
}

func parseRating(s string) (float64, bool) {
	if s == "" || s == "0" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 || f > 2*MaxRating {
		return 0, false
	}
	if f > MaxRating {
		f /= 2
	}
	return f, true
}

// slugFromURI takes the last path segment of a film URI. Short links
// (boxd.it) carry no slug and yield "".
func slugFromURI(uri string) string {
	if !strings.Contains(uri, "/film/") {
		return ""
	}
	_, rest, _ := strings.Cut(uri, "/film/")
	slug, _, _ := strings.Cut(rest, "/")
	return slug
}

func findIndex(idx map[string]int, names []string) int {
	for _, n := range names {
		if i, ok := idx[n]; ok {
			return i
		}
	}
	return -1
}

// normalizeHeader lowercases and trims a header and maps spaces and dashes to
// underscores, so "Letterboxd URI" and "letterboxd_uri" compare equal.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "_")
	h = strings.ReplaceAll(h, "-", "_")
	h = strings.ReplaceAll(h, ".", "")
	h = strings.ReplaceAll(h, "\"", "")
	for strings.Contains(h, "__") {
		h = strings.ReplaceAll(h, "__", "_")
	}
	return h
}
