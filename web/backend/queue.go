package backend

import (
	"net/http"
)

// Job states reported on the queue stream.
const (
	StateQueued  = "queued"
	StateRunning = "running"
	StateIdle    = "idle"
)

// QueueStatus is what a client sees of the job queue. Position is 1-based
// and 0 unless State is StateQueued. Job names the running job when the
// caller's own session is the one running.
type QueueStatus struct {
	State    string `json:"state"`
	Position int    `json:"position"`
	Queued   int    `json:"queued"`
	Busy     bool   `json:"busy"`
	Job      string `json:"job,omitempty"`
}

func (api *JobAPI) status(sessionID string) QueueStatus {
	api.queueMu.Lock()
	defer api.queueMu.Unlock()

	st := QueueStatus{
		State:  StateIdle,
		Queued: len(api.queueOrder),
		Busy:   api.running != nil,
	}
	switch {
	case sessionID == "":
	case api.running != nil && api.running.session.ID == sessionID:
		st.State = StateRunning
		st.Job = api.running.job.Name()
	default:
		if pos := queuePosition(api.queueOrder, sessionID); pos > 0 {
			st.State = StateQueued
			st.Position = pos
		}
	}
	return st
}

// subscribe returns a channel that is signalled whenever the queue changes
// and a func that unregisters it.
func (api *JobAPI) subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	api.queueSubsMu.Lock()
	api.queueSubs[ch] = struct{}{}
	api.queueSubsMu.Unlock()

	return ch, func() {
		api.queueSubsMu.Lock()
		delete(api.queueSubs, ch)
		api.queueSubsMu.Unlock()
	}
}

// notifyLocked wakes every subscriber without blocking. Callers hold queueMu.
func (api *JobAPI) notifyLocked() {
	api.queueSubsMu.Lock()
	defer api.queueSubsMu.Unlock()

	for ch := range api.queueSubs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// HandleQueue streams the QueueStatus of session_id each time the queue
// or the running job changes. Without session_id only the totals are useful.
func (api *JobAPI) HandleQueue(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	changed, unsubscribe := api.subscribe()
	defer unsubscribe()

	sseHeaders(w)
	last := api.status(sessionID)
	writeEvent(w, last)
	flusher.Flush()

	for {
		select {
		case <-changed:
			st := api.status(sessionID)
			if st == last {
				continue
			}
			last = st
			writeEvent(w, st)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
