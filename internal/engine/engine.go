// Package engine runs one analytics pass over an input snapshot.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"storepulse/internal/analytics"
	"storepulse/internal/attribution"
	"storepulse/internal/logging"
	"storepulse/internal/metrics"
	"storepulse/internal/model"
	"storepulse/internal/normalize"
	"storepulse/internal/viral"
)

// Options configures a run.
type Options struct {
	LookbackWindow            time.Duration
	HighConfidenceWindow      time.Duration
	MinSample                 int
	StaticEngagementThreshold float64
	StaticSaveThreshold       float64
	HistoryWindow             time.Duration
	// AsOf selects the snapshot used per post; zero means latest.
	AsOf      time.Time
	TypeOrder []model.AttributionType
	// Accounts limits attribution candidates; empty means every account.
	Accounts []string
	Workers  int
	GroupBy  analytics.GroupBy
}

// DefaultOptions mirrors the package defaults of the stages.
func DefaultOptions() Options {
	a := attribution.DefaultConfig()
	v := viral.DefaultConfig()
	return Options{
		LookbackWindow:            a.LookbackWindow,
		HighConfidenceWindow:      a.HighConfidenceWindow,
		MinSample:                 v.MinSample,
		StaticEngagementThreshold: v.StaticEngagementThreshold,
		StaticSaveThreshold:       v.StaticSaveThreshold,
		TypeOrder:                 a.TypeOrder,
		Workers:                   4,
		GroupBy:                   analytics.GroupBy{Dimensions: []analytics.Dimension{analytics.DimPlatform}, Period: analytics.PeriodWeek},
	}
}

// Validate reports the first invalid option as a *model.ConfigurationError.
func (o Options) Validate() error {
	bad := func(field, format string, args ...any) error {
		return &model.ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
	}
	switch {
	case o.LookbackWindow < 0:
		return bad("lookback_window", "must not be negative, got %s", o.LookbackWindow)
	case o.HighConfidenceWindow < 0:
		return bad("high_confidence_window", "must not be negative, got %s", o.HighConfidenceWindow)
	case o.LookbackWindow < o.HighConfidenceWindow:
		return bad("lookback_window", "%s is shorter than the high confidence window %s", o.LookbackWindow, o.HighConfidenceWindow)
	case o.MinSample < 1:
		return bad("min_sample", "must be at least 1, got %d", o.MinSample)
	case !unit(o.StaticEngagementThreshold):
		return bad("static_engagement_threshold", "must be within [0,1], got %v", o.StaticEngagementThreshold)
	case !unit(o.StaticSaveThreshold):
		return bad("static_save_threshold", "must be within [0,1], got %v", o.StaticSaveThreshold)
	case o.HistoryWindow < 0:
		return bad("history_window", "must not be negative, got %s", o.HistoryWindow)
	case o.Workers < 0:
		return bad("workers", "must not be negative, got %d", o.Workers)
	}
	for _, t := range o.TypeOrder {
		if !t.Valid() || t == model.AttrUnattributed {
			return bad("type_order", "unknown attribution type %q", t)
		}
	}
	for _, d := range o.GroupBy.Dimensions {
		switch d {
		case analytics.DimPlatform, analytics.DimLocation, analytics.DimPeriod, analytics.DimContentType:
		default:
			return bad("group_by", "unknown dimension %q", d)
		}
	}
	if _, err := analytics.ParsePeriod(string(o.GroupBy.Period)); err != nil {
		return bad("group_by.period", "%v", err)
	}
	return nil
}

func unit(f float64) bool { return f >= 0 && f <= 1 }

func (o Options) viralConfig() viral.Config {
	return viral.Config{
		MinSample:                 o.MinSample,
		StaticEngagementThreshold: o.StaticEngagementThreshold,
		StaticSaveThreshold:       o.StaticSaveThreshold,
		HistoryWindow:             o.HistoryWindow,
	}
}

func (o Options) attributionConfig() attribution.Config {
	cfg := attribution.Config{
		LookbackWindow:       o.LookbackWindow,
		HighConfidenceWindow: o.HighConfidenceWindow,
		TypeOrder:            o.TypeOrder,
	}
	if len(o.Accounts) > 0 {
		cfg.Accounts = make(map[string]bool, len(o.Accounts))
		for _, a := range o.Accounts {
			cfg.Accounts[a] = true
		}
	}
	return cfg
}

// Window bounds what a store loads for a run: orders placed at or after
// Orders, and posts published at or after Posts with their snapshots.
// Zero values load everything.
type Window struct {
	Orders time.Time
	Posts  time.Time
}

// LoadWindow returns the window for orders placed since since. Posts reach
// back one lookback further so every order sees all of its candidates.
func (o Options) LoadWindow(since time.Time) Window {
	if since.IsZero() {
		return Window{}
	}
	return Window{Orders: since, Posts: since.Add(-o.LookbackWindow)}
}

// Input is the immutable snapshot a run works on.
type Input struct {
	Posts     []model.Post
	Snapshots []model.MetricSnapshot
	Orders    []model.Order
	Customers []model.Customer
}

// Output is everything a run produced.
type Output struct {
	RunID        string
	AsOf         time.Time
	Records      []model.EngagementRecord
	Flags        []model.ViralFlag
	Attributions []model.AttributionResult
	Report       analytics.Report
	Failures     []error
	Warnings     []model.DataQualityWarning
}

// Run executes one pass over in. Per-post data problems are collected in the
// output; only invalid options and cancellation return an error.
func Run(ctx context.Context, opts Options, in Input) (Output, error) {
	if err := opts.Validate(); err != nil {
		return Output{}, err
	}
	start := time.Now()
	metrics.AnalyticsRuns.Inc()
	defer metrics.ObserveAnalyticsDuration(start)

	out := Output{RunID: uuid.New().String(), AsOf: opts.AsOf}
	fields := map[string]any{"run": out.RunID, "posts": len(in.Posts), "orders": len(in.Orders)}
	logging.Info("analytics_start", fields)

	batch, err := normalize.NormalizeAll(ctx, in.Posts, in.Snapshots, opts.AsOf, opts.Workers)
	if err != nil {
		metrics.AnalyticsErrors.Inc()
		return Output{}, err
	}
	out.Records, out.Warnings, out.Failures = batch.Records, batch.Warnings, batch.Failures
	for _, w := range out.Warnings {
		metrics.IncDataQuality(w.Field)
		logging.Warn("data_quality", map[string]any{"run": out.RunID, "post": w.PostID, "field": w.Field, "value": w.Value, "action": w.Action})
	}
	for _, f := range out.Failures {
		var insufficient *model.InsufficientDataError
		if errors.As(f, &insufficient) {
			metrics.InsufficientData.Inc()
		}
		logging.Warn("post_skipped", map[string]any{"run": out.RunID, "error": f.Error()})
	}

	out.Flags = viral.ClassifyAll(out.Records, opts.viralConfig())
	for _, f := range out.Flags {
		metrics.IncViralFlag(string(f.Tier))
	}

	rates := make(map[string]float64, len(out.Records))
	for _, r := range out.Records {
		rates[r.PostID] = r.EngagementRate
	}
	candidates := make([]attribution.Candidate, 0, len(in.Posts))
	for _, p := range in.Posts {
		candidates = append(candidates, attribution.Candidate{Post: p, EngagementRate: rates[p.ID]})
	}
	customers := make(map[string]model.Customer, len(in.Customers))
	for _, c := range in.Customers {
		customers[c.ID] = c
	}
	out.Attributions, err = attribution.AttributeAll(ctx, in.Orders, customers, candidates, opts.attributionConfig(), opts.Workers)
	if err != nil {
		metrics.AnalyticsErrors.Inc()
		return Output{}, err
	}
	for _, a := range out.Attributions {
		metrics.IncAttribution(string(a.Confidence))
	}

	out.Report = analytics.Aggregate(out.Records, out.Flags, out.Attributions, opts.GroupBy)
	logging.Info("analytics_done", map[string]any{
		"run":          out.RunID,
		"records":      len(out.Records),
		"skipped":      len(out.Failures),
		"warnings":     len(out.Warnings),
		"attributions": len(out.Attributions),
		"groups":       len(out.Report.Groups),
		"duration_ms":  time.Since(start).Milliseconds(),
	})
	return out, nil
}
