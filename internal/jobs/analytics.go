package jobs

import (
	"context"
	"time"

	"storepulse/internal/engine"
	"storepulse/internal/logging"
	"storepulse/internal/metrics"
	"storepulse/internal/model"
	"storepulse/internal/schedule"
)

const cursorKey = "analytics:last_run"

// Loader loads run input.
type Loader interface {
	LoadInput(ctx context.Context, w engine.Window) (engine.Input, error)
}

// Source loads run input and stores attribution results.
type Source interface {
	Loader
	SaveAttributions(ctx context.Context, runID string, results []model.AttributionResult) error
}

// cursorStore is implemented by stores that track progress markers.
type cursorStore interface {
	SaveCursor(ctx context.Context, name, value string) error
}

var now = func() time.Time { return time.Now().UTC() }

// Analyze loads orders from the last history window, plus the posts they can
// be attributed to, and runs the engine without writing anything back.
// A zero history loads everything.
func Analyze(ctx context.Context, src Loader, opts engine.Options, history time.Duration) (engine.Output, error) {
	_, out, err := analyze(ctx, src, opts, history)
	return out, err
}

func analyze(ctx context.Context, src Loader, opts engine.Options, history time.Duration) (time.Time, engine.Output, error) {
	started := now()
	var since time.Time
	if history > 0 {
		since = started.Add(-history)
	}
	w := opts.LoadWindow(since)
	in, err := src.LoadInput(ctx, w)
	if err != nil {
		metrics.AnalyticsErrors.Inc()
		return started, engine.Output{}, err
	}
	logging.Debug("analytics_input", map[string]any{"orders_since": w.Orders, "posts_since": w.Posts, "posts": len(in.Posts), "orders": len(in.Orders)})
	out, err := engine.Run(ctx, opts, in)
	return started, out, err
}

// RunAnalyticsOnce runs Analyze and writes the attributions back to src.
func RunAnalyticsOnce(ctx context.Context, src Source, opts engine.Options, history time.Duration) (engine.Output, error) {
	started, out, err := analyze(ctx, src, opts, history)
	if err != nil {
		return engine.Output{}, err
	}
	if err := src.SaveAttributions(ctx, out.RunID, out.Attributions); err != nil {
		metrics.AnalyticsErrors.Inc()
		return out, err
	}
	if c, ok := src.(cursorStore); ok {
		_ = c.SaveCursor(ctx, cursorKey, started.Format(time.RFC3339Nano))
	}
	logging.Info("analytics_once", map[string]any{"run": out.RunID, "history": history.String(), "attributions": len(out.Attributions)})
	return out, nil
}

// RunAnalyticsLoop runs RunAnalyticsOnce on a ticker until ctx is cancelled,
// skipping ticks inside quiet hours. publish receives every successful output.
func RunAnalyticsLoop(ctx context.Context, src Source, opts engine.Options, history, interval time.Duration, quietHours []int, publish func(engine.Output)) error {
	tick := func() {
		if schedule.IsQuiet(now(), quietHours) {
			logging.Info("analytics_quiet_skip", map[string]any{"next": schedule.NextWindow(now(), quietHours)})
			return
		}
		out, err := RunAnalyticsOnce(ctx, src, opts, history)
		if err != nil {
			logging.Error("analytics_once_error", map[string]any{"error": err.Error()})
			return
		}
		if publish != nil {
			publish(out)
		}
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	// run immediately
	tick()
	for {
		select {
		case <-ctx.Done():
			logging.Info("analytics_loop_stop", nil)
			return ctx.Err()
		case <-t.C:
			tick()
		}
	}
}
