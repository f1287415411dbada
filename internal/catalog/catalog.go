// Package catalog holds the reference titles that recommendations are
// scored against.
package catalog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Another0Noob/boxd-recommend/internal/dataset"
	"github.com/Another0Noob/boxd-recommend/internal/normalize"
	"github.com/Another0Noob/boxd-recommend/internal/numfield"
)

// Rating scales of the two catalog sources.
const (
	ScaleTMDb    = 10.0
	ScaleDataset = 5.0
)

var ErrNoTitleColumn = errors.New("catalog header has no title column")

// Header is the column order written by Write.
var Header = []string{
	"id",
	"title",
	"release_year",
	"runtime_minutes",
	"genres",
	"vote_average",
	"vote_count",
	"url",
}

var headerAliases = map[string]string{
	"tmdb_id":  "id",
	"tmdb_url": "url",
	"name":     "title",
	"year":     "release_year",
	"runtime":  "runtime_minutes",
}

// Entry is one catalog title. It is never mutated after load.
type Entry struct {
	ID              string
	Title           string
	NormalizedTitle string
	Year            *int
	Runtime         *int
	Rating          *float64
	// RatingScale is the maximum of Rating (10 for TMDb, 5 for the site).
	RatingScale float64
	VoteCount   int64
	// Popularity is what the popularity floor and score use: vote count for
	// TMDb, total likes for the site dataset.
	Popularity int64
	Genres     []string
	URL        string
	Poster     string
}

// HasGenre reports whether g is one of the entry's genres.
func (e Entry) HasGenre(g string) bool {
	for _, eg := range e.Genres {
		if eg == g {
			return true
		}
	}
	return false
}

type Catalog struct {
	Entries []Entry
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Entries)
}

// Read parses a catalog CSV. A header with a slug column is read as an
// enriched dataset (see FromDataset), anything else as the TMDb layout with
// pipe-delimited genres.
func Read(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return &Catalog{}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if a, ok := headerAliases[h]; ok {
			h = a
		}
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}

	if _, ok := idx["slug"]; ok {
		records, err := dataset.Read(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return FromDataset(records), nil
	}
	if _, ok := idx["title"]; !ok {
		return nil, fmt.Errorf("%w: %v", ErrNoTitleColumn, header)
	}

	get := func(rec []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	c := &Catalog{}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		title := get(rec, "title")
		if title == "" {
			continue
		}
		votes := int64(0)
		if n := numfield.Int64(get(rec, "vote_count")); n != nil {
			votes = *n
		}
		c.Entries = append(c.Entries, Entry{
			ID:              get(rec, "id"),
			Title:           title,
			NormalizedTitle: normalize.Title(title),
			Year:            numfield.Int(get(rec, "release_year")),
			Runtime:         numfield.Int(get(rec, "runtime_minutes")),
			Rating:          numfield.Float(get(rec, "vote_average")),
			RatingScale:     ScaleTMDb,
			VoteCount:       votes,
			Popularity:      votes,
			Genres:          SplitGenres(get(rec, "genres")),
			URL:             get(rec, "url"),
		})
	}
	return c, nil
}

// FromDataset turns enriched site records into catalog entries. Ratings are
// on the site's 0-5 scale and popularity is total likes.
func FromDataset(records []dataset.Record) *Catalog {
	c := &Catalog{Entries: make([]Entry, 0, len(records))}
	for _, r := range records {
		name := r.Name
		if name == "" {
			name = r.Slug
		}
		var likes int64
		if r.Likes != nil {
			likes = *r.Likes
		}
		var views int64
		if r.Views != nil {
			views = *r.Views
		}
		c.Entries = append(c.Entries, Entry{
			ID:              r.ID,
			Title:           name,
			NormalizedTitle: normalize.Title(name),
			Runtime:         r.Runtime,
			Rating:          r.Rating,
			RatingScale:     ScaleDataset,
			VoteCount:       views,
			Popularity:      likes,
			Genres:          r.Genres,
			URL:             "https://letterboxd.com/film/" + r.Slug + "/",
			Poster:          r.Poster,
		})
	}
	return c
}

func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	c, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return c, nil
}

// Write writes the catalog in the TMDb layout.
func Write(w io.Writer, c *Catalog) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, e := range c.Entries {
		row := []string{
			e.ID,
			e.Title,
			numfield.FormatInt(e.Year),
			numfield.FormatInt(e.Runtime),
			strings.Join(e.Genres, "|"),
			numfield.FormatFloat(e.Rating),
			strconv.FormatInt(e.VoteCount, 10),
			e.URL,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Save writes the catalog to path through a temporary file and rename.
func Save(path string, c *Catalog) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".catalog-*.csv")
	if err != nil {
		return fmt.Errorf("create temp catalog: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, c); err != nil {
		tmp.Close()
		return fmt.Errorf("write catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// SplitGenres splits a pipe-delimited genre cell. Empty input yields no
// genres.
func SplitGenres(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, g := range strings.Split(s, "|") {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}
