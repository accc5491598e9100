package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "drawd",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drawd",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "drawd",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	ticketsSold = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "drawd",
			Subsystem: "lottery",
			Name:      "tickets_sold_total",
			Help:      "Total number of tickets sold.",
		},
	)

	resolutionsRequested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "drawd",
			Subsystem: "lottery",
			Name:      "resolutions_requested_total",
			Help:      "Total number of resolution requests accepted.",
		},
	)

	drawsSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drawd",
			Subsystem: "lottery",
			Name:      "draws_settled_total",
			Help:      "Total number of settled draws.",
		},
		[]string{"had_winners"},
	)

	payoutAmount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "drawd",
			Subsystem: "lottery",
			Name:      "payout_units_total",
			Help:      "Total value disbursed to winners and operator, in smallest units.",
		},
	)

	currentPool = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "drawd",
			Subsystem: "lottery",
			Name:      "current_prize_pool_units",
			Help:      "Prize pool of the current draw, in smallest units.",
		},
	)

	currentTickets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "drawd",
			Subsystem: "lottery",
			Name:      "current_ticket_count",
			Help:      "Tickets sold against the current draw.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ticketsSold,
		resolutionsRequested,
		drawsSettled,
		payoutAmount,
		currentPool,
		currentTickets,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordTicketSold records an accepted ticket purchase and the resulting pool.
func RecordTicketSold(pool, ticketCount int64) {
	ticketsSold.Inc()
	currentPool.Set(float64(pool))
	currentTickets.Set(float64(ticketCount))
}

// RecordResolutionRequested records an accepted resolution request.
func RecordResolutionRequested() {
	resolutionsRequested.Inc()
}

// RecordDrawSettled records a settled draw and the total value disbursed.
func RecordDrawSettled(winnerCount int, disbursed int64) {
	had := "false"
	if winnerCount > 0 {
		had = "true"
	}
	drawsSettled.WithLabelValues(had).Inc()
	if disbursed > 0 {
		payoutAmount.Add(float64(disbursed))
	}
}

// RecordRollover resets the per-draw gauges for a fresh draw.
func RecordRollover() {
	currentPool.Set(0)
	currentTickets.Set(0)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses identifier segments so label cardinality stays bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "draws":
		if len(parts) == 1 {
			return "/draws"
		}
		if parts[1] == "current" {
			if len(parts) > 2 {
				return "/draws/current/" + parts[2]
			}
			return "/draws/current"
		}
		if len(parts) > 2 {
			return "/draws/:id/" + parts[2]
		}
		return "/draws/:id"
	case "randomness":
		return "/randomness/:token"
	default:
		return "/" + parts[0]
	}
}
