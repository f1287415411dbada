package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/Another0Noob/boxd-recommend/internal/logging"
	"github.com/Another0Noob/boxd-recommend/internal/metrics"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"
	DefaultTimeout   = 30 * time.Second

	defaultRequestsPerSecond = 4
	defaultBurst             = 6
	defaultBreakerFailures   = 5
	defaultBreakerTimeout    = 30 * time.Second

	maxBodySize = 10 << 20
)

// Cache is the page cache consulted before the network.
type Cache interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, body []byte) error
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	Timeout           time.Duration
	UserAgent         string
	RequestsPerSecond float64
	Burst             int
	// BreakerFailures is the number of consecutive failures that opens the breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	Cache           Cache
	Logger          *zerolog.Logger
}

// Client fetches pages. It never retries: every failure is reported once and
// the caller decides whether it degrades to "no data".
type Client struct {
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
	cache      Cache
	log        zerolog.Logger
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = defaultRequestsPerSecond
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultBurst
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = defaultBreakerFailures
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = defaultBreakerTimeout
	}

	log := logging.Component("fetch")
	if opts.Logger != nil {
		log = *opts.Logger
	}

	c := &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		userAgent:  opts.UserAgent,
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		cache:      opts.Cache,
		log:        log,
	}

	failures := opts.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "site",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !tripsBreaker(err)
		},
		IsExcluded: cancelled,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})

	return c
}

// Get fetches url and returns its body. Non-2xx responses and transport
// failures come back as *Error.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	if c.cache != nil {
		body, ok, err := c.cache.Get(url)
		if err != nil {
			c.log.Debug().Err(err).Str("url", url).Msg("page cache read failed")
		}
		if ok {
			metrics.PageCacheHits.Inc()
			return body, nil
		}
		metrics.PageCacheMisses.Inc()
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, url)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = &Error{Op: "get", URL: url, Err: ErrCircuitOpen}
	}
	metrics.FetchRequests.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(url, body); err != nil {
			c.log.Debug().Err(err).Str("url", url).Msg("page cache write failed")
		}
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Op: "get", URL: url, Err: fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())}
		}
		// The wait would outlast the deadline; the remote was never asked.
		return nil, &Error{Op: "get", URL: url, Err: fmt.Errorf("%w: rate limit wait: %w", ErrCanceled, err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Op: "get", URL: url, Err: fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())}
		}
		return nil, &Error{Op: "get", URL: url, Err: fmt.Errorf("%w: %w", ErrTransport, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, &Error{Op: "get", URL: url, Status: resp.StatusCode, Err: classify(resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Op: "get", URL: url, Err: fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())}
		}
		return nil, &Error{Op: "get", URL: url, Err: fmt.Errorf("%w: read body: %w", ErrTransport, err)}
	}
	return body, nil
}
