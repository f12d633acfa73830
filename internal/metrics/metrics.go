package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnalyticsRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storepulse_analytics_runs_total",
		Help: "Total analytics runs",
	})
	AnalyticsErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storepulse_analytics_errors_total",
		Help: "Total failed analytics runs",
	})
	AnalyticsDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "storepulse_analytics_duration_seconds",
		Help:    "Analytics run duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	InsufficientData = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storepulse_insufficient_data_total",
		Help: "Posts skipped for lack of snapshots",
	})
	DataQualityWarnings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storepulse_data_quality_warnings_total",
		Help: "Counter repairs by field",
	}, []string{"field"})
	Attributions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storepulse_attributions_total",
		Help: "Attributed orders by confidence",
	}, []string{"confidence"})
	ViralFlags = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storepulse_viral_flags_total",
		Help: "Classified posts by tier",
	}, []string{"tier"})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storepulse_command_runs_total",
		Help: "CLI command invocations",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storepulse_command_errors_total",
		Help: "CLI command failures",
	}, []string{"command"})
	APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storepulse_api_requests_total",
		Help: "HTTP API requests by route and status",
	}, []string{"route", "status"})
)

func init() {
	prometheus.MustRegister(AnalyticsRuns, AnalyticsErrors, AnalyticsDuration, InsufficientData,
		DataQualityWarnings, Attributions, ViralFlags, CommandRuns, CommandErrors, APIRequests)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, mux) }()
}

// ObserveAnalyticsDuration records a run duration
func ObserveAnalyticsDuration(start time.Time) {
	AnalyticsDuration.Observe(time.Since(start).Seconds())
}

func IncDataQuality(field string)      { DataQualityWarnings.WithLabelValues(field).Inc() }
func IncAttribution(confidence string) { Attributions.WithLabelValues(confidence).Inc() }
func IncViralFlag(tier string)         { ViralFlags.WithLabelValues(tier).Inc() }
func IncCommandRun(cmd string)         { CommandRuns.WithLabelValues(cmd).Inc() }
func IncCommandError(cmd string)       { CommandErrors.WithLabelValues(cmd).Inc() }

// IncAPIRequest counts a served request.
func IncAPIRequest(route string, status int) {
	APIRequests.WithLabelValues(route, http.StatusText(status)).Inc()
}
