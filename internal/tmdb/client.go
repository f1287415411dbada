// Package tmdb is a small client for the TMDb v3 API, used to build the
// reference catalog.
package tmdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.themoviedb.org/3"
	userAgent      = "boxdrec/0.1 (https://github.com/Another0Noob/boxd-recommend)"
	requestTimeout = 15 * time.Second
)

const (
	rateLimitRequests = 20
	rateLimitDuration = time.Second
)

var (
	ErrNoAPIKey = errors.New("tmdb api key not set")
	ErrNotFound = errors.New("tmdb: not found")
)

// APIError is the error body TMDb sends with non-2xx responses.
type APIError struct {
	HTTPStatus    int    `json:"-"`
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tmdb api error (%d/%d): %s", e.HTTPStatus, e.StatusCode, e.StatusMessage)
}

func (e *APIError) Unwrap() error {
	if e.HTTPStatus == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	language    string
	rateLimiter *rate.Limiter
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithRateLimit sets requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.rateLimiter = rate.NewLimiter(rate.Limit(rps), int(max(rps, 1)))
		}
	}
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: requestTimeout},
		baseURL:     DefaultBaseURL,
		apiKey:      apiKey,
		language:    "en-US",
		rateLimiter: rate.NewLimiter(rate.Every(rateLimitDuration/time.Duration(rateLimitRequests)), rateLimitRequests),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// TopRated returns one page (1-based) of the top rated movie list.
func (c *Client) TopRated(ctx context.Context, page int) (*MoviePage, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))

	var out MoviePage
	if err := c.getJSON(ctx, "/movie/top_rated", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Details returns runtime and genres for one movie.
func (c *Client) Details(ctx context.Context, id int64) (*MovieDetails, error) {
	var out MovieDetails
	if err := c.getJSON(ctx, "/movie/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	if c.apiKey == "" {
		return ErrNoAPIKey
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit error: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)
	params.Set("language", c.language)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{HTTPStatus: resp.StatusCode}
		if json.Unmarshal(b, apiErr) != nil || apiErr.StatusMessage == "" {
			apiErr.StatusMessage = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}
