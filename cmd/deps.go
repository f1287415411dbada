package cmd

import (
	"fmt"
	"os"

	"github.com/Another0Noob/boxd-recommend/internal/catalog"
	"github.com/Another0Noob/boxd-recommend/internal/collector"
	"github.com/Another0Noob/boxd-recommend/internal/config"
	"github.com/Another0Noob/boxd-recommend/internal/fetch"
	"github.com/Another0Noob/boxd-recommend/internal/pagecache"
	"github.com/Another0Noob/boxd-recommend/internal/recommend"
)

// newFetcher builds the site client, backed by the page cache when
// cache.path is set. The returned func closes the cache.
func newFetcher(c *config.Config) (*fetch.Client, func(), error) {
	opts := fetch.Options{
		Timeout:           c.Site.Timeout,
		UserAgent:         c.Site.UserAgent,
		RequestsPerSecond: c.Site.RequestsPerSecond,
		Burst:             c.Site.Burst,
		BreakerFailures:   c.Site.BreakerFailures,
		BreakerTimeout:    c.Site.BreakerTimeout,
	}
	closeFn := func() {}

	if c.Cache.Path != "" {
		pc, err := pagecache.Open(c.Cache.Path, c.Cache.TTL)
		if err != nil {
			return nil, nil, err
		}
		opts.Cache = pc
		closeFn = func() { _ = pc.Close() }
	}
	return fetch.NewClient(opts), closeFn, nil
}

func collectorConfig(c *config.Config) collector.Config {
	return collector.Config{
		BaseURL:     c.Site.BaseURL,
		Concurrency: c.Collector.Concurrency,
		BatchSize:   c.Collector.BatchSize,
		MaxPages:    c.Collector.MaxPages,
	}
}

// newCollector prints enrichment progress on stderr.
func newCollector(c *config.Config, f collector.Fetcher) *collector.Collector {
	return collector.New(f, collectorConfig(c), collector.WithProgress(func(done, total int) {
		fmt.Fprintf(os.Stderr, "\rEnriched %d/%d titles", done, total)
		if done == total {
			fmt.Fprintln(os.Stderr)
		}
	}))
}

func loadEngine(c *config.Config, catalogPath string, fuzzy bool) (*recommend.Engine, int, error) {
	cat, err := catalog.Load(catalogPath)
	if err != nil {
		return nil, 0, err
	}
	eng := recommend.NewEngine(cat, recommend.Options{
		MinPopularity:        c.Recommend.MinPopularity,
		DiverseMinPopularity: c.Recommend.DiverseMinPopularity,
		Fuzzy:                fuzzy,
	})
	return eng, cat.Len(), nil
}
