package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Another0Noob/boxd-recommend/internal/numfield"
)

// Header is the persisted column order.
var Header = []string{
	"name",
	"slug",
	"occurrence_count",
	"id",
	"poster",
	"runtime",
	"director",
	"user_rating",
	"views",
	"total_likes",
	"genres",
}

// headerAliases maps older column names onto the current ones.
var headerAliases = map[string]string{
	"list_count":   "occurrence_count",
	"users_rating": "user_rating",
	"directors":    "director",
}

// Record is one enriched title. Nil pointers are unknown values and are
// written as empty cells.
type Record struct {
	Slug            string
	ID              string
	Name            string
	Poster          string
	Runtime         *int
	Rating          *float64
	Views           *int64
	Likes           *int64
	Genres          []string
	Directors       []string
	OccurrenceCount int
}

// Read parses a dataset CSV. Unparsable numbers become nil and the row is
// kept; rows without a slug are dropped; repeated slugs are folded into the
// first row with their counts summed.
func Read(r io.Reader) ([]Record, error) {
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
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if alias, ok := headerAliases[h]; ok {
			h = alias
		}
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}
	if _, ok := idx["slug"]; !ok {
		return nil, fmt.Errorf("dataset header has no slug column: %v", header)
	}

	get := func(rec []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []Record
	pos := make(map[string]int)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		slug := get(rec, "slug")
		if slug == "" {
			continue
		}

		count := 0
		if n := numfield.Int(get(rec, "occurrence_count")); n != nil && *n > 0 {
			count = *n
		}

		if i, seen := pos[slug]; seen {
			out[i].OccurrenceCount += count
			continue
		}

		pos[slug] = len(out)
		out = append(out, Record{
			Slug:            slug,
			ID:              get(rec, "id"),
			Name:            get(rec, "name"),
			Poster:          get(rec, "poster"),
			Runtime:         numfield.Int(get(rec, "runtime")),
			Rating:          numfield.Float(get(rec, "user_rating")),
			Views:           numfield.Int64(get(rec, "views")),
			Likes:           numfield.Int64(get(rec, "total_likes")),
			Genres:          SplitList(get(rec, "genres")),
			Directors:       SplitList(get(rec, "director")),
			OccurrenceCount: count,
		})
	}
	return out, nil
}

// Load reads the dataset at path. A missing file is an empty dataset.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	records, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	return records, nil
}

// Write writes records in Header order.
func Write(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.Name,
			r.Slug,
			strconv.Itoa(r.OccurrenceCount),
			r.ID,
			r.Poster,
			numfield.FormatInt(r.Runtime),
			strings.Join(r.Directors, ","),
			numfield.FormatFloat(r.Rating),
			numfield.FormatInt64(r.Views),
			numfield.FormatInt64(r.Likes),
			strings.Join(r.Genres, ","),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Save replaces the file at path with records. The new content is written to
// a temporary file in the same directory and renamed over the old one, so a
// crash never leaves a half-written dataset. Concurrent writers are not
// coordinated.
func Save(path string, records []Record) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".dataset-*.csv")
	if err != nil {
		return fmt.Errorf("create temp dataset: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, records); err != nil {
		tmp.Close()
		return fmt.Errorf("write dataset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close dataset: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace dataset: %w", err)
	}
	return nil
}

// SplitList splits a comma-joined cell, dropping blanks.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
