package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/Another0Noob/boxd-recommend/internal/collector"
	"github.com/Another0Noob/boxd-recommend/internal/history"
	"github.com/Another0Noob/boxd-recommend/internal/pipeline"
	"github.com/Another0Noob/boxd-recommend/internal/recommend"
)

const maxBodySize = 1 << 20

// CollectRequest asks for a user's watched titles (User) or a list (List) to
// be collected and merged into the dataset.
type CollectRequest struct {
	Owner string `json:"owner"`
	User  string `json:"user"`
	List  string `json:"list"`
}

type CollectJob struct {
	Req CollectRequest
}

func (CollectJob) Name() string { return "collect" }

func (j CollectJob) Run(ctx context.Context, api *JobAPI, s *Session) {
	runner := api.runner(s)

	var (
		out pipeline.Outcome
		err error
	)
	if j.Req.List != "" {
		s.Send(EventInfo, "Collecting list "+j.Req.List, nil)
		out, err = runner.CollectList(ctx, j.Req.List)
	} else {
		s.Send(EventInfo, "Collecting films of "+j.Req.User, nil)
		out, err = runner.CollectUser(ctx, j.Req.User)
	}
	if err != nil {
		s.Send(EventError, pipeline.Explain(err), nil)
		return
	}

	s.Send(EventComplete, "Collection merged", collectSummary(out))
}

// HistoryItem is one rated title supplied directly by the client.
type HistoryItem struct {
	Title  string  `json:"title"`
	Year   *int    `json:"year,omitempty"`
	Rating float64 `json:"rating"`
}

// RecommendRequest ranks recommendations either for a site user (collected
// first) or for an explicit history.
type RecommendRequest struct {
	Owner    string        `json:"owner"`
	User     string        `json:"user"`
	History  []HistoryItem `json:"history"`
	N        int           `json:"n"`
	Diverse  bool          `json:"diverse"`
	Fraction *float64      `json:"fraction,omitempty"`
}

type RecommendJob struct {
	Req RecommendRequest
}

func (RecommendJob) Name() string { return "recommend" }

func (j RecommendJob) Run(ctx context.Context, api *JobAPI, s *Session) {
	eng := api.deps.Engine
	n := j.Req.N

	hist := make([]history.Entry, 0, len(j.Req.History))
	for _, h := range j.Req.History {
		if strings.TrimSpace(h.Title) == "" || h.Rating <= 0 {
			continue
		}
		hist = append(hist, history.Entry{Title: h.Title, Year: h.Year, Rating: min(h.Rating, history.MaxRating)})
	}

	var (
		recs recommend.Recommendations
		err  error
	)
	switch {
	case j.Req.User != "" && !j.Req.Diverse:
		if n <= 0 {
			n = pipeline.UserFlowCount
		}
		s.Send(EventInfo, "Collecting films of "+j.Req.User, nil)
		var out pipeline.Outcome
		recs, out, err = api.runner(s).RecommendForUser(ctx, eng, j.Req.User, n, pipeline.UserFlowMinPopularity)
		if err == nil {
			s.Send(EventInfo, "Collection merged", collectSummary(out))
		}
	case j.Req.User != "":
		s.Send(EventInfo, "Collecting films of "+j.Req.User, nil)
		out, cerr := api.runner(s).CollectUser(ctx, j.Req.User)
		if cerr != nil {
			s.Send(EventError, pipeline.Explain(cerr), nil)
			return
		}
		hist = pipeline.UserHistory(out.Collect.Refs, out.Merge.Records)
		fallthrough
	default:
		if n <= 0 {
			n = api.deps.Count
		}
		s.Send(EventInfo, fmt.Sprintf("Ranking from %d rated titles", len(hist)), nil)
		if j.Req.Diverse {
			fraction := api.deps.DiversityFraction
			if j.Req.Fraction != nil {
				fraction = *j.Req.Fraction
			}
			recs, err = eng.RecommendDiverse(ctx, hist, n, fraction)
		} else {
			recs, err = eng.Recommend(ctx, hist, n)
		}
	}
	if err != nil {
		s.Send(EventError, pipeline.Explain(err), nil)
		return
	}

	s.Send(EventComplete, fmt.Sprintf("%d recommendations", len(recs.Items)), recommendSummary(recs))
}

// HandleCollect queues a collect job.
func (api *JobAPI) HandleCollect(w http.ResponseWriter, r *http.Request) {
	var req CollectRequest
	if err := decode(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.User = strings.TrimSpace(req.User)
	req.List = strings.TrimSpace(req.List)

	if (req.User == "") == (req.List == "") {
		http.Error(w, "exactly one of user or list required", http.StatusBadRequest)
		return
	}
	if req.List != "" {
		if _, _, err := collector.ParseListURL(req.List); err != nil {
			http.Error(w, pipeline.Explain(err), http.StatusBadRequest)
			return
		}
	}

	owner := ownerOf(req.Owner, req.User, req.List)
	api.submit(w, owner, CollectJob{Req: req})
}

// HandleRecommend queues a recommend job.
func (api *JobAPI) HandleRecommend(w http.ResponseWriter, r *http.Request) {
	if api.deps.Engine == nil {
		http.Error(w, "No catalog loaded", http.StatusServiceUnavailable)
		return
	}

	var req RecommendRequest
	if err := decode(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.User = strings.TrimSpace(req.User)

	if req.User == "" && len(req.History) == 0 {
		http.Error(w, "user or history required", http.StatusBadRequest)
		return
	}
	if req.N < 0 {
		http.Error(w, "n must not be negative", http.StatusBadRequest)
		return
	}
	if req.Fraction != nil && (*req.Fraction < 0 || *req.Fraction > 1) {
		http.Error(w, "fraction must be within [0, 1]", http.StatusBadRequest)
		return
	}

	owner := ownerOf(req.Owner, req.User, "")
	api.submit(w, owner, RecommendJob{Req: req})
}

func (api *JobAPI) runner(s *Session) *pipeline.Runner {
	c := collector.New(api.deps.Fetcher, api.deps.Collector,
		collector.WithLogger(api.log.With().Str("session_id", s.ID).Logger()),
		collector.WithProgress(func(done, total int) {
			s.Send(EventProgress, fmt.Sprintf("Enriched %d/%d titles", done, total),
				map[string]int{"done": done, "total": total})
		}),
	)
	return pipeline.New(c, api.deps.DatasetPath)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func ownerOf(owner string, fallbacks ...string) string {
	if owner = strings.TrimSpace(owner); owner != "" {
		return owner
	}
	for _, f := range fallbacks {
		if f != "" {
			return f
		}
	}
	return "anonymous"
}

func collectSummary(out pipeline.Outcome) map[string]any {
	return map[string]any{
		"run_id":  out.Collect.RunID,
		"titles":  len(out.Collect.Refs),
		"pages":   out.Collect.PagesScraped,
		"stop":    out.Collect.Stop,
		"added":   out.Merge.Added,
		"updated": out.Merge.Updated,
		"missing": out.Merge.Missing,
	}
}

// Recommendation is the wire form of a ranked title.
type Recommendation struct {
	Title      string   `json:"title"`
	Year       *int     `json:"year,omitempty"`
	Score      float64  `json:"score"`
	Genres     []string `json:"genres,omitempty"`
	Popularity int64    `json:"popularity"`
	URL        string   `json:"url,omitempty"`
}

func recommendSummary(recs recommend.Recommendations) map[string]any {
	items := make([]Recommendation, 0, len(recs.Items))
	for _, it := range recs.Items {
		items = append(items, Recommendation{
			Title:      it.Entry.Title,
			Year:       it.Entry.Year,
			Score:      it.Score,
			Genres:     it.Entry.Genres,
			Popularity: it.Entry.Popularity,
			URL:        it.Entry.URL,
		})
	}
	return map[string]any{
		"items":      items,
		"matched":    len(recs.Matched),
		"unmatched":  len(recs.Unmatched),
		"top_genres": recs.Model.TopGenres,
	}
}
