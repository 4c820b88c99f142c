package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Solve metrics
	SolveRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dcapal_solve_requests_total",
			Help: "Total number of allocation solve requests",
		},
		[]string{"mode", "status"},
	)

	SolveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dcapal_solve_duration_seconds",
			Help:    "Allocation solve duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"mode"},
	)

	StaleResults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dcapal_stale_results_total",
		Help: "Total number of late solve or search results discarded",
	})

	WorkersBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dcapal_workers_busy",
		Help: "Number of pool workers currently leased",
	})

	// Lookup metrics
	LookupRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dcapal_lookup_requests_total",
			Help: "Total number of market data provider requests",
		},
		[]string{"provider", "status"},
	)

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dcapal_cache_hits_total",
		Help: "Total number of market data cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dcapal_cache_misses_total",
		Help: "Total number of market data cache misses",
	})
)

// Status labels
const (
	StatusOK       = "ok"
	StatusInvalid  = "invalid"
	StatusFault    = "fault"
	StatusTimeout  = "timeout"
	StatusError    = "error"
	StatusNotFound = "not_found"
)
