package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Another0Noob/boxd-recommend/internal/catalog"
	"github.com/Another0Noob/boxd-recommend/internal/collector"
	"github.com/Another0Noob/boxd-recommend/internal/dataset"
	"github.com/Another0Noob/boxd-recommend/internal/logging"
	"github.com/Another0Noob/boxd-recommend/internal/normalize"
	"github.com/Another0Noob/boxd-recommend/internal/recommend"
	"github.com/Another0Noob/boxd-recommend/internal/testutil"
)

const base = "https://site.test"

func newRunner(t *testing.T, site *testutil.FakeSite) (*Runner, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dataset.csv")
	c := collector.New(site, collector.Config{BaseURL: base, Concurrency: 2},
		collector.WithLogger(logging.NewTestLogger(io.Discard)))
	return New(c, path), path
}

func ptr[T any](v T) *T { return &v }

func entry(title string, pop int64, rating float64, genres ...string) catalog.Entry {
	return catalog.Entry{
		Title:           title,
		NormalizedTitle: normalize.Title(title),
		Rating:          ptr(rating),
		RatingScale:     catalog.ScaleTMDb,
		Popularity:      pop,
		Genres:          genres,
		Runtime:         ptr(120),
	}
}

func TestCollectUserMergesIntoDataset(t *testing.T) {
	site := testutil.NewFakeSite(base)
	site.AddUser("ana",
		testutil.Film{Slug: "heat", Name: "Heat", Genres: []string{"Crime"}, Rating: "4.3"},
		testutil.Film{Slug: "up", Name: "Up", Genres: []string{"Animation"}, Rating: "4.0"},
	)
	r, path := newRunner(t, site)

	out, err := r.CollectUser(context.Background(), "ana")
	require.NoError(t, err)
	assert.Equal(t, collector.StopExhausted, out.Collect.Stop)
	assert.Equal(t, 2, out.Merge.Added)

	// A second run only bumps counts and fetches no detail page again.
	out, err = r.CollectUser(context.Background(), "ana")
	require.NoError(t, err)
	assert.Equal(t, 0, out.Merge.Added)
	assert.Equal(t, 2, out.Merge.Updated)
	assert.Equal(t, 1, site.Hits(base+"/film/heat/"))

	records, err := dataset.Load(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "heat", records[0].Slug)
	assert.Equal(t, 2, records[0].OccurrenceCount)
}

func TestCollectUserPrivate(t *testing.T) {
	site := testutil.NewFakeSite(base)
	site.AddPrivateUser("hidden")
	r, _ := newRunner(t, site)

	_, err := r.CollectUser(context.Background(), "hidden")
	assert.ErrorIs(t, err, collector.ErrPrivate)
}

func TestCollectUserUnknown(t *testing.T) {
	site := testutil.NewFakeSite(base)
	r, path := newRunner(t, site)

	_, err := r.CollectUser(context.Background(), "nobody")
	require.ErrorIs(t, err, collector.ErrNotFound)
	assert.Equal(t, "no such user or list", Explain(err))
	assert.NoFileExists(t, path, "an unknown user must not produce an empty dataset")
}

func TestMergeSlugsNeedsDataset(t *testing.T) {
	site := testutil.NewFakeSite(base)
	c := collector.New(site, collector.Config{BaseURL: base})
	_, err := New(c, "").MergeSlugs(context.Background(), []string{"heat"})
	assert.ErrorIs(t, err, ErrNoDataset)
}

func TestUserHistory(t *testing.T) {
	refs := []collector.TitleRef{{Slug: "heat"}, {Slug: "up"}, {Slug: "heat"}, {Slug: "gone"}}
	records := []dataset.Record{
		{Slug: "up", Name: "Up", Rating: ptr(4.0)},
		{Slug: "alien", Name: "Alien", Rating: ptr(4.2)},
		{Slug: "heat", Name: "Heat", Rating: ptr(4.3)},
	}

	hist := UserHistory(refs, records)
	require.Len(t, hist, 2)
	assert.Equal(t, "Heat", hist[0].Title)
	assert.Equal(t, 4.3, hist[0].Rating)
	assert.Equal(t, "up", hist[1].Slug)
}

func TestRecommendForUser(t *testing.T) {
	site := testutil.NewFakeSite(base)
	site.AddUser("ana",
		testutil.Film{Slug: "heat", Name: "Heat", Genres: []string{"Crime"}, Rating: "4.5"},
	)
	r, _ := newRunner(t, site)

	cat := &catalog.Catalog{Entries: []catalog.Entry{
		entry("Heat", 5000, 8.3, "Crime"),
		entry("Ronin", 3000, 7.2, "Crime", "Action"),
		entry("Up", 9000, 8.0, "Animation"),
		entry("Tiny Crime Film", 10, 9.0, "Crime"),
	}}
	eng := recommend.NewEngine(cat, recommend.DefaultOptions())

	recs, out, err := r.RecommendForUser(context.Background(), eng, "ana", UserFlowCount, UserFlowMinPopularity)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Merge.Added)
	require.Len(t, recs.Matched, 1)
	require.NotEmpty(t, recs.Items)
	assert.Equal(t, "Ronin", recs.Items[0].Entry.Title)
	for _, it := range recs.Items {
		assert.NotEqual(t, "Heat", it.Entry.Title)
		assert.NotEqual(t, "Tiny Crime Film", it.Entry.Title, "below the popularity floor")
	}
}

func TestRecommendForUserNoMatch(t *testing.T) {
	site := testutil.NewFakeSite(base)
	site.AddUser("ana", testutil.Film{Slug: "obscure", Name: "Obscure", Rating: "3.0"})
	r, _ := newRunner(t, site)

	eng := recommend.NewEngine(&catalog.Catalog{Entries: []catalog.Entry{entry("Up", 9000, 8, "Animation")}}, recommend.DefaultOptions())
	_, _, err := r.RecommendForUser(context.Background(), eng, "ana", 5, 0)
	assert.ErrorIs(t, err, recommend.ErrNoMatchedTitles)
}

func TestExplain(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("listing: %w", collector.ErrPrivate), "this profile is private"},
		{fmt.Errorf("listing: %w", collector.ErrNotFound), "no such user or list"},
		{fmt.Errorf("listing: %w", collector.ErrUnavailable), "the site keeps failing, try again later"},
		{recommend.ErrNoMatchedTitles, "none of the watched titles were found in the catalog"},
		{context.Canceled, "operation cancelled"},
		{errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Explain(tt.err))
	}
}
