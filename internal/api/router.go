// Package api serves the latest analytics run over HTTP.
package api

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"storepulse/internal/analytics"
	"storepulse/internal/engine"
	"storepulse/internal/metrics"
	"storepulse/internal/model"
)

// Latest holds the most recent run output. Scheduled runs replace it whole.
type Latest struct {
	mu  sync.RWMutex
	out *engine.Output
}

func (l *Latest) Set(out engine.Output) {
	l.mu.Lock()
	l.out = &out
	l.mu.Unlock()
}

// Get returns the current output, or false before the first run.
func (l *Latest) Get() (engine.Output, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.out == nil {
		return engine.Output{}, false
	}
	return *l.out, true
}

// NewRouter wires the report API. /health and /metrics are not rate limited.
func NewRouter(latest *Latest, limiter *rate.Limiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), countRequests())
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := &handlers{latest: latest}
	v1 := r.Group("/api/v1")
	if limiter != nil {
		v1.Use(RateLimit(limiter))
	}
	v1.GET("/run", h.run)
	v1.GET("/report", h.report)
	v1.GET("/flags", h.flags)
	v1.GET("/attributions", h.attributions)
	return r
}

func countRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.IncAPIRequest(route, c.Writer.Status())
	}
}

type handlers struct {
	latest *Latest
}

func (h *handlers) current(c *gin.Context) (engine.Output, bool) {
	out, ok := h.latest.Get()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no analytics run yet"})
	}
	return out, ok
}

func (h *handlers) run(c *gin.Context) {
	out, ok := h.current(c)
	if !ok {
		return
	}
	failures := make([]string, 0, len(out.Failures))
	for _, f := range out.Failures {
		failures = append(failures, f.Error())
	}
	c.JSON(http.StatusOK, gin.H{
		"runId":        out.RunID,
		"asOf":         out.AsOf,
		"records":      len(out.Records),
		"attributions": len(out.Attributions),
		"warnings":     len(out.Warnings),
		"failures":     failures,
	})
}

// report returns the run's report, regrouped when groupBy or period are given.
func (h *handlers) report(c *gin.Context) {
	out, ok := h.current(c)
	if !ok {
		return
	}
	rep := out.Report
	if dims, period := c.Query("groupBy"), c.Query("period"); dims != "" || period != "" {
		if dims == "" {
			dims = joinDims(rep.GroupBy)
		}
		by, err := analytics.ParseGroupBy(dims, period)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !by.Equal(rep.GroupBy) {
			rep = analytics.Aggregate(out.Records, out.Flags, out.Attributions, by)
		}
	}
	if v := c.Query("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "top must be a positive integer"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"runId": out.RunID, "groupBy": rep.GroupBy, "groups": analytics.TopGroups(rep, n)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runId": out.RunID, "groupBy": rep.GroupBy, "groups": rep.Summaries()})
}

func joinDims(by analytics.GroupBy) string {
	s := ""
	for i, d := range by.Dimensions {
		if i > 0 {
			s += ","
		}
		s += string(d)
	}
	return s
}

// flags lists viral flags at or above the requested tier (default rising).
func (h *handlers) flags(c *gin.Context) {
	out, ok := h.current(c)
	if !ok {
		return
	}
	floor := model.ViralTier(c.DefaultQuery("tier", string(model.TierRising)))
	if !floor.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown tier " + strconv.Quote(string(floor))})
		return
	}
	flags := make([]model.ViralFlag, 0)
	for _, f := range out.Flags {
		if f.Tier.Rank() >= floor.Rank() {
			flags = append(flags, f)
		}
	}
	c.JSON(http.StatusOK, gin.H{"runId": out.RunID, "flags": flags})
}

// attributions lists results at or above the requested confidence (default low).
func (h *handlers) attributions(c *gin.Context) {
	out, ok := h.current(c)
	if !ok {
		return
	}
	floor := model.Confidence(c.DefaultQuery("confidence", string(model.ConfidenceLow)))
	if !floor.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown confidence " + strconv.Quote(string(floor))})
		return
	}
	results := make([]model.AttributionResult, 0)
	for _, a := range out.Attributions {
		if a.Confidence.Rank() >= floor.Rank() {
			results = append(results, a)
		}
	}
	c.JSON(http.StatusOK, gin.H{"runId": out.RunID, "attributions": results})
}
