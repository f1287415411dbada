package tmdb

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/Another0Noob/boxd-recommend/internal/catalog"
	"github.com/Another0Noob/boxd-recommend/internal/logging"
	"github.com/Another0Noob/boxd-recommend/internal/normalize"
)

const DefaultMaxPages = 500

type BuildOptions struct {
	MaxPages int
	// Progress is called after each page with the entries collected so far.
	Progress func(page, entries int)
	Logger   *zerolog.Logger
}

// BuildCatalog walks the top rated list from page 1 and enriches every movie
// with runtime and genres. It stops at MaxPages, at the last page TMDb
// reports, or at the first empty page. A failed details call keeps the movie
// without runtime and genres; a failed page stops the build and returns what
// was collected along with the error.
func BuildCatalog(ctx context.Context, c *Client, opts BuildOptions) (*catalog.Catalog, error) {
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	log := logging.Component("tmdb")
	if opts.Logger != nil {
		log = *opts.Logger
	}

	out := &catalog.Catalog{}
	for page := 1; page <= opts.MaxPages; page++ {
		res, err := c.TopRated(ctx, page)
		if err != nil {
			return out, fmt.Errorf("top rated page %d: %w", page, err)
		}
		if len(res.Results) == 0 {
			log.Info().Int("page", page).Msg("no results, stopping")
			break
		}

		for _, m := range res.Results {
			entry := toEntry(m)
			details, err := c.Details(ctx, m.ID)
			if err != nil {
				if ctx.Err() != nil {
					return out, ctx.Err()
				}
				log.Warn().Err(err).Int64("tmdb_id", m.ID).Msg("details failed, keeping movie without runtime and genres")
			} else {
				entry.Runtime = details.Runtime
				entry.Genres = details.GenreNames()
			}
			out.Entries = append(out.Entries, entry)
		}

		log.Debug().Int("page", page).Int("entries", len(out.Entries)).Msg("top rated page collected")
		if opts.Progress != nil {
			opts.Progress(page, len(out.Entries))
		}
		if res.TotalPages > 0 && page >= res.TotalPages {
			break
		}
	}

	log.Info().Int("entries", len(out.Entries)).Msg("catalog built")
	return out, nil
}

func toEntry(m MovieResult) catalog.Entry {
	title := m.DisplayTitle()
	var votes int64
	if m.VoteCount != nil {
		votes = *m.VoteCount
	}
	id := strconv.FormatInt(m.ID, 10)
	return catalog.Entry{
		ID:              id,
		Title:           title,
		NormalizedTitle: normalize.Title(title),
		Year:            m.Year(),
		Rating:          m.VoteAverage,
		RatingScale:     catalog.ScaleTMDb,
		VoteCount:       votes,
		Popularity:      votes,
		URL:             "https://www.themoviedb.org/movie/" + id,
	}
}
