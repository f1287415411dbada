package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(opts Options) *Client {
	nop := zerolog.Nop()
	opts.Logger = &nop
	if opts.RequestsPerSecond == 0 {
		opts.RequestsPerSecond = 1000
		opts.Burst = 1000
	}
	return NewClient(opts)
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memCache) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	return b, ok, nil
}

func (m *memCache) Set(key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = body
	return nil
}

func TestGetSendsIdentityAndReturnsBody(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	c := newTestClient(Options{})
	body, err := c.Get(context.Background(), srv.URL+"/film/heat/")
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", string(body))
	assert.Equal(t, DefaultUserAgent, gotUA)
}

func TestGetFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new/", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("moved"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(Options{})
	body, err := c.Get(context.Background(), srv.URL+"/old/")
	require.NoError(t, err)
	assert.Equal(t, "moved", string(body))
}

func TestGetClassifiesStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, ErrNotFound},
		{"forbidden", http.StatusForbidden, ErrPrivate},
		{"unauthorized", http.StatusUnauthorized, ErrPrivate},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"server", http.StatusBadGateway, ErrServer},
		{"other", http.StatusTeapot, ErrStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := newTestClient(Options{})
			_, err := c.Get(context.Background(), srv.URL)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var fe *Error
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.status, fe.Status)
		})
	}
}

func TestGetTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestClient(Options{})
	_, err := c.Get(context.Background(), url)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestGetTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := newTestClient(Options{Timeout: 50 * time.Millisecond})
	_, err := c.Get(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestCancelledRequestsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(200 * time.Millisecond):
			_, _ = w.Write([]byte("page"))
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := newTestClient(Options{BreakerFailures: 2, BreakerTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.Get(ctx, srv.URL)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, err, ErrCanceled)
		assert.NotErrorIs(t, err, ErrTransport)
	}

	body, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err, "a cancelled run must not leave the breaker open")
	assert.Equal(t, "page", string(body))
}

func TestTripsBreaker(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transport", &Error{Err: ErrTransport}, true},
		{"server", &Error{Status: 503, Err: ErrServer}, true},
		{"rate limited", &Error{Status: 429, Err: ErrRateLimited}, true},
		{"not found", &Error{Status: 404, Err: ErrNotFound}, false},
		{"private", &Error{Status: 403, Err: ErrPrivate}, false},
		{"cancelled", &Error{Err: fmt.Errorf("%w: %w", ErrCanceled, context.Canceled)}, false},
		{"deadline", &Error{Err: fmt.Errorf("%w: %w", ErrCanceled, context.DeadlineExceeded)}, false},
		{"bare cancel", fmt.Errorf("%w: %w", ErrTransport, context.Canceled), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tripsBreaker(tt.err))
		})
	}
}

func TestBreakerOpensOnServerFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(Options{BreakerFailures: 2, BreakerTimeout: time.Minute})
	for i := 0; i < 2; i++ {
		_, err := c.Get(context.Background(), srv.URL)
		assert.ErrorIs(t, err, ErrServer)
	}

	_, err := c.Get(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load())
}

func TestBreakerIgnoresNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(Options{BreakerFailures: 1})
	for i := 0; i < 3; i++ {
		_, err := c.Get(context.Background(), srv.URL)
		assert.ErrorIs(t, err, ErrNotFound)
	}
}

func TestCacheServesRepeatFetches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("page"))
	}))
	defer srv.Close()

	c := newTestClient(Options{Cache: &memCache{}})
	for i := 0; i < 3; i++ {
		body, err := c.Get(context.Background(), srv.URL+"/film/heat/")
		require.NoError(t, err)
		assert.Equal(t, "page", string(body))
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestCacheSkipsFailures(t *testing.T) {
	cache := &memCache{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(Options{Cache: cache})
	_, err := c.Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Empty(t, cache.data)
}
