// Package collector walks a user's watched-title listing and enriches each
// title with its detail, stats and ratings pages.
package collector

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Another0Noob/boxd-recommend/internal/fetch"
	"github.com/Another0Noob/boxd-recommend/internal/logging"
	"github.com/Another0Noob/boxd-recommend/internal/metrics"
	"github.com/Another0Noob/boxd-recommend/internal/pageparser"
)

const (
	DefaultBaseURL     = "https://letterboxd.com"
	DefaultConcurrency = 6
	DefaultBatchSize   = 50
)

var (
	// ErrPrivate is returned when the site reports the listing as private
	// or otherwise inaccessible.
	ErrPrivate = fetch.ErrPrivate
	// ErrNotFound is returned when the first listing page does not exist,
	// which means the user or list is unknown.
	ErrNotFound = errors.New("no such user or list")
	// ErrUnavailable is returned when the first listing page is refused
	// because the site has been failing.
	ErrUnavailable = fetch.ErrCircuitOpen
	ErrInvalidUser = errors.New("invalid username")
	ErrInvalidList = errors.New("invalid list url")
)

var reUsername = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

type TitleRef = pageparser.TitleRef

// Fetcher returns a page body or an error. *fetch.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// ProgressFunc is called after each enriched title.
type ProgressFunc func(done, total int)

type Config struct {
	BaseURL     string
	Concurrency int
	BatchSize   int
	// MaxPages caps pagination; 0 means no cap.
	MaxPages int
}

type Collector struct {
	fetcher  Fetcher
	cfg      Config
	log      zerolog.Logger
	progress ProgressFunc
}

type Option func(*Collector)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Collector) { c.log = l }
}

func WithProgress(fn ProgressFunc) Option {
	return func(c *Collector) { c.progress = fn }
}

func New(f Fetcher, cfg Config, opts ...Option) *Collector {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	c := &Collector{
		fetcher: f,
		cfg:     cfg,
		log:     logging.Component("collector"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// StopReason says why pagination ended.
type StopReason string

const (
	// StopExhausted: a page listed no titles at all.
	StopExhausted StopReason = "exhausted"
	// StopRepeated: a page listed only titles already collected.
	StopRepeated StopReason = "repeated"
	// StopFetchFailed: a page could not be fetched. The titles collected so
	// far are kept, but the listing may be incomplete.
	StopFetchFailed StopReason = "fetch_failed"
	StopMaxPages    StopReason = "max_pages"
)

type Result struct {
	RunID string
	Refs  []TitleRef
	// PagesScraped is the last page index that produced new titles.
	PagesScraped int
	Stop         StopReason
	// FetchErr is set when Stop is StopFetchFailed.
	FetchErr error
}

// Collect walks /{user}/films/ page by page until a page yields no title that
// was not already seen in this run.
func (c *Collector) Collect(ctx context.Context, user string) (Result, error) {
	user = strings.TrimSpace(user)
	if !reUsername.MatchString(user) {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidUser, user)
	}

	base := fmt.Sprintf("%s/%s/films/", c.cfg.BaseURL, user)
	return c.paginate(ctx, base)
}

// CollectList walks a user list (https://letterboxd.com/{user}/list/{slug}/).
func (c *Collector) CollectList(ctx context.Context, listURL string) (Result, error) {
	user, slug, err := ParseListURL(listURL)
	if err != nil {
		return Result{}, err
	}

	base := fmt.Sprintf("%s/%s/list/%s/", c.cfg.BaseURL, user, slug)
	return c.paginate(ctx, base)
}

func (c *Collector) paginate(ctx context.Context, base string) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	log := c.log.With().Str("run_id", res.RunID).Str("listing", base).Logger()
	seen := make(map[string]struct{})

	for page := 1; ; page++ {
		if c.cfg.MaxPages > 0 && page > c.cfg.MaxPages {
			res.Stop = StopMaxPages
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		url := base
		if page > 1 {
			url = fmt.Sprintf("%spage/%d/", base, page)
		}

		body, err := c.fetcher.Get(ctx, url)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			if page == 1 && errors.Is(err, fetch.ErrPrivate) {
				return res, fmt.Errorf("listing %s: %w", base, ErrPrivate)
			}
			if page == 1 && errors.Is(err, fetch.ErrNotFound) {
				return res, fmt.Errorf("listing %s: %w", base, ErrNotFound)
			}
			if page == 1 && errors.Is(err, ErrUnavailable) {
				return res, fmt.Errorf("listing %s: %w", base, err)
			}
			log.Warn().Err(err).Int("page", page).Msg("listing page fetch failed, stopping")
			res.Stop = StopFetchFailed
			res.FetchErr = err
			break
		}
		if page == 1 && pageparser.Private(body) {
			return res, fmt.Errorf("listing %s: %w", base, ErrPrivate)
		}

		refs := pageparser.ParseFilmList(body)
		if len(refs) == 0 {
			res.Stop = StopExhausted
			break
		}

		added := 0
		for _, r := range refs {
			if _, ok := seen[r.Slug]; ok {
				continue
			}
			seen[r.Slug] = struct{}{}
			res.Refs = append(res.Refs, r)
			added++
		}
		if added == 0 {
			res.Stop = StopRepeated
			break
		}

		res.PagesScraped = page
		metrics.PagesCollected.Inc()
		log.Debug().Int("page", page).Int("new", added).Int("total", len(res.Refs)).Msg("listing page collected")
	}

	log.Info().
		Int("titles", len(res.Refs)).
		Int("pages", res.PagesScraped).
		Str("stop", string(res.Stop)).
		Msg("listing collected")
	return res, nil
}

var reListURL = regexp.MustCompile(`letterboxd\.com/([^/]+)/list/([^/?#]+)/?`)

// ParseListURL extracts (user, list slug) from a list URL. The user is
// lowercased.
func ParseListURL(raw string) (user, slug string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", fmt.Errorf("%w: empty", ErrInvalidList)
	}

	if m := reListURL.FindStringSubmatch(raw); m != nil {
		return strings.ToLower(m[1]), m[2], nil
	}

	// Looser form: .../letterboxd.com/{user}/{slug}
	parts := strings.Split(strings.TrimRight(raw, "/"), "/")
	if len(parts) >= 3 && parts[len(parts)-3] == "letterboxd.com" {
		return strings.ToLower(parts[len(parts)-2]), parts[len(parts)-1], nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrInvalidList, raw)
}
