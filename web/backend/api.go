// Package backend serves the collect and recommend job API: jobs run one at
// a time from a queue and report progress over server-sent events.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/Another0Noob/boxd-recommend/internal/collector"
	"github.com/Another0Noob/boxd-recommend/internal/logging"
	"github.com/Another0Noob/boxd-recommend/internal/metrics"
	"github.com/Another0Noob/boxd-recommend/internal/recommend"
)

const (
	DefaultQueueSize       = 100
	DefaultSessionTTL      = time.Hour
	DefaultCleanupInterval = 10 * time.Minute
	DefaultJobTimeout      = 30 * time.Minute
)

var errQueueFull = errors.New("job queue full")

// Job is a unit of work run by the single worker.
type Job interface {
	Name() string
	Run(ctx context.Context, api *JobAPI, s *Session)
}

type queuedJob struct {
	session *Session
	job     Job
}

// Deps are the collaborators jobs run against.
type Deps struct {
	Fetcher     collector.Fetcher
	Collector   collector.Config
	DatasetPath string
	// Engine may be nil, in which case recommend jobs are refused.
	Engine            *recommend.Engine
	Count             int
	DiversityFraction float64
}

type Options struct {
	QueueSize       int
	SessionTTL      time.Duration
	CleanupInterval time.Duration
	JobTimeout      time.Duration
	Logger          *zerolog.Logger
}

type JobAPI struct {
	deps     Deps
	opts     Options
	sessions *SessionManager
	log      zerolog.Logger

	jobQueue chan queuedJob

	// queueOrder holds the session IDs waiting in jobQueue, oldest first.
	// running is the job the worker is executing, if any.
	queueMu    sync.Mutex
	queueOrder []string
	running    *queuedJob

	queueSubsMu sync.Mutex
	queueSubs   map[chan struct{}]struct{}
}

func NewJobAPI(deps Deps, opts Options) *JobAPI {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = DefaultJobTimeout
	}
	if deps.Count <= 0 {
		deps.Count = 20
	}

	api := &JobAPI{
		deps:       deps,
		opts:       opts,
		sessions:   NewSessionManager(),
		log:        logging.Component("jobs"),
		jobQueue:   make(chan queuedJob, opts.QueueSize),
		queueOrder: make([]string, 0, opts.QueueSize),
		queueSubs:  make(map[chan struct{}]struct{}),
	}
	if opts.Logger != nil {
		api.log = *opts.Logger
	}
	return api
}

// Start runs the worker and the stale-session sweeper until ctx is done.
func (api *JobAPI) Start(ctx context.Context) {
	go api.work(ctx)

	go func() {
		ticker := time.NewTicker(api.opts.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := api.sessions.CleanupStale(api.opts.SessionTTL); n > 0 {
					api.log.Info().Int("sessions", n).Msg("stale sessions removed")
				}
			}
		}
	}()
}

func (api *JobAPI) work(ctx context.Context) {
	for {
		var qj queuedJob
		select {
		case <-ctx.Done():
			return
		case qj = <-api.jobQueue:
		}
		metrics.JobsQueued.Dec()

		s := qj.session
		if s.Ctx.Err() != nil {
			api.dequeue(s.ID)
			api.log.Debug().Str("session_id", s.ID).Msg("skipping cancelled job")
			continue
		}
		api.setRunning(&qj)

		jobCtx, cancel := context.WithTimeout(s.Ctx, api.opts.JobTimeout)
		start := time.Now()
		api.log.Info().Str("session_id", s.ID).Str("job", qj.job.Name()).Msg("job started")
		qj.job.Run(jobCtx, api, s)
		cancel()
		api.setRunning(nil)
		api.log.Info().Str("session_id", s.ID).Str("job", qj.job.Name()).Dur("took", time.Since(start)).Msg("job finished")

		// Buffered events stay readable until the session goes stale.
		s.CancelFn()
	}
}

// submit creates a session for owner and queues job under it.
func (api *JobAPI) submit(w http.ResponseWriter, owner string, job Job) {
	if prev, ok := api.sessions.Get(owner); ok {
		api.dequeue(prev.ID)
	}
	s := api.sessions.Create(owner)
	if err := api.enqueue(s, job); err != nil {
		api.sessions.Remove(s)
		http.Error(w, "Server busy, try again later", http.StatusTooManyRequests)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"session_id": s.ID,
		"owner":      owner,
		"job":        job.Name(),
		"status":     "queued",
		"position":   api.position(s.ID),
	})
}

func (api *JobAPI) enqueue(s *Session, job Job) error {
	api.queueMu.Lock()
	defer api.queueMu.Unlock()

	select {
	case api.jobQueue <- queuedJob{session: s, job: job}:
		api.queueOrder = append(api.queueOrder, s.ID)
		metrics.JobsQueued.Inc()
		api.notifyLocked()
		return nil
	default:
		return errQueueFull
	}
}

// dequeue drops sessionID from the waiting jobs, if present.
func (api *JobAPI) dequeue(sessionID string) {
	api.queueMu.Lock()
	defer api.queueMu.Unlock()

	if i := queuePosition(api.queueOrder, sessionID); i > 0 {
		api.queueOrder = append(api.queueOrder[:i-1], api.queueOrder[i:]...)
		api.notifyLocked()
	}
}

// setRunning moves qj from the waiting jobs to the worker; nil marks the
// worker idle.
func (api *JobAPI) setRunning(qj *queuedJob) {
	api.queueMu.Lock()
	defer api.queueMu.Unlock()

	if qj != nil {
		if i := queuePosition(api.queueOrder, qj.session.ID); i > 0 {
			api.queueOrder = append(api.queueOrder[:i-1], api.queueOrder[i:]...)
		}
	}
	api.running = qj
	api.notifyLocked()
}

func (api *JobAPI) position(sessionID string) int {
	api.queueMu.Lock()
	defer api.queueMu.Unlock()
	return queuePosition(api.queueOrder, sessionID)
}

// queuePosition is the 1-based place of sessionID in queue, 0 if absent.
func queuePosition(queue []string, sessionID string) int {
	if sessionID == "" {
		return 0
	}
	for i, id := range queue {
		if id == sessionID {
			return i + 1
		}
	}
	return 0
}

// HandleProgress streams a session's progress events until it completes,
// fails or the client goes away.
func (api *JobAPI) HandleProgress(w http.ResponseWriter, r *http.Request) {
	s, ok := api.lookup(r)
	if !ok {
		http.Error(w, "No active session", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	sseHeaders(w)

	for {
		select {
		case update, open := <-s.Progress():
			if !open {
				return
			}
			writeEvent(w, update)
			flusher.Flush()
			if update.Type == EventComplete || update.Type == EventError {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// HandleCancel cancels a queued or running job by session_id or owner.
func (api *JobAPI) HandleCancel(w http.ResponseWriter, r *http.Request) {
	s, ok := api.lookup(r)
	if !ok {
		if r.URL.Query().Get("session_id") == "" && r.URL.Query().Get("owner") == "" {
			http.Error(w, "owner or session_id required", http.StatusBadRequest)
			return
		}
		http.Error(w, "No active session", http.StatusNotFound)
		return
	}

	api.dequeue(s.ID)
	api.sessions.Remove(s)
	api.log.Info().Str("session_id", s.ID).Msg("job cancelled")
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (api *JobAPI) lookup(r *http.Request) (*Session, bool) {
	q := r.URL.Query()
	if id := q.Get("session_id"); id != "" {
		return api.sessions.GetByID(id)
	}
	if owner := q.Get("owner"); owner != "" {
		return api.sessions.Get(owner)
	}
	return nil, false
}

func sseHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

func writeEvent(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
