// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchRequests counts outbound page fetches by outcome
	// (ok, not_found, private, rate_limited, server, status, transport, circuit_open).
	FetchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxdrec_fetch_requests_total",
			Help: "Outbound page fetches by outcome",
		},
		[]string{"outcome"},
	)

	PageCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boxdrec_page_cache_hits_total",
			Help: "Page fetches served from the local cache",
		},
	)

	PageCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boxdrec_page_cache_misses_total",
			Help: "Page fetches that missed the local cache",
		},
	)

	EnrichDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "boxdrec_enrich_duration_seconds",
			Help:    "Time to fetch and parse one title (detail, stats, ratings)",
			Buckets: prometheus.DefBuckets,
		},
	)

	PagesCollected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boxdrec_listing_pages_total",
			Help: "Listing pages that produced new titles",
		},
	)

	// RecordsMerged counts dataset rows touched by a merge, by kind (updated, added).
	RecordsMerged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxdrec_records_merged_total",
			Help: "Dataset rows touched by merges",
		},
		[]string{"kind"},
	)

	// Recommendations counts recommendation requests by result (ok, no_match, empty_catalog, error).
	Recommendations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxdrec_recommend_requests_total",
			Help: "Recommendation requests by result",
		},
		[]string{"result"},
	)

	JobsQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "boxdrec_jobs_queued",
			Help: "Jobs waiting in the web job queue",
		},
	)
)
