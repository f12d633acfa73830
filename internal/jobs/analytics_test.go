package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storepulse/internal/engine"
	"storepulse/internal/model"
	"storepulse/internal/store/sqlitestore"
)

type fakeSource struct {
	mu      sync.Mutex
	in      engine.Input
	since   []engine.Window
	saved   map[string][]model.AttributionResult
	loadErr error
}

func (f *fakeSource) LoadInput(ctx context.Context, w engine.Window) (engine.Input, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.since = append(f.since, w)
	return f.in, f.loadErr
}

func (f *fakeSource) SaveAttributions(ctx context.Context, runID string, results []model.AttributionResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = make(map[string][]model.AttributionResult)
	}
	f.saved[runID] = results
	return nil
}

func fixedNow(t *testing.T, at time.Time) {
	t.Helper()
	prev := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = prev })
}

func sampleInput(at time.Time) engine.Input {
	return engine.Input{
		Posts:     []model.Post{{ID: "p1", AccountID: "shop", Platform: model.PlatformInstagram, PostedAt: at.Add(-24 * time.Hour), ContentType: model.ContentPhoto}},
		Snapshots: []model.MetricSnapshot{{PostID: "p1", Date: at, Impressions: 100, Likes: 5}},
		Orders:    []model.Order{{ID: "o1", PlacedAt: at.Add(-time.Hour), TotalCents: 500}},
	}
}

func TestRunAnalyticsOnce(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fixedNow(t, at)
	src := &fakeSource{in: sampleInput(at)}
	out, err := RunAnalyticsOnce(context.Background(), src, engine.DefaultOptions(), 30*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	w := src.since[0]
	if !w.Orders.Equal(at.AddDate(0, 0, -30)) || !w.Posts.Equal(w.Orders.Add(-engine.DefaultOptions().LookbackWindow)) {
		t.Fatalf("window = %+v", w)
	}
	saved := src.saved[out.RunID]
	if len(saved) != 1 || saved[0].OrderID != "o1" || saved[0].Confidence != model.ConfidenceMedium {
		t.Fatalf("saved = %+v", saved)
	}
}

func TestRunAnalyticsOnceLoadError(t *testing.T) {
	src := &fakeSource{loadErr: errors.New("db down")}
	if _, err := RunAnalyticsOnce(context.Background(), src, engine.DefaultOptions(), 0); err == nil {
		t.Fatal("expected load error")
	}
	if src.since[0] != (engine.Window{}) {
		t.Fatalf("zero history should load everything, window = %+v", src.since[0])
	}
}

func TestRunAnalyticsOnceAdvancesCursor(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fixedNow(t, at)
	db, err := sqlitestore.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	ctx := context.Background()
	if _, err := RunAnalyticsOnce(ctx, db, engine.DefaultOptions(), 0); err != nil {
		t.Fatal(err)
	}
	v, err := db.LoadCursor(ctx, cursorKey)
	if err != nil || v != at.Format(time.RFC3339Nano) {
		t.Fatalf("cursor = %q (%v)", v, err)
	}
}

func TestRunAnalyticsOnceSeesPostsBeforeHistory(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fixedNow(t, at)
	db, err := sqlitestore.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	ctx := context.Background()
	posted := at.AddDate(0, 0, -91)
	post := model.Post{ID: "jacket-post", AccountID: "shop", Platform: model.PlatformInstagram, PostedAt: posted, ContentType: model.ContentPhoto, FeaturedItems: []string{"jacket"}}
	if err := db.PutPost(ctx, post); err != nil {
		t.Fatal(err)
	}
	if err := db.PutSnapshot(ctx, model.MetricSnapshot{PostID: post.ID, Date: posted, Impressions: 1000, Likes: 50}); err != nil {
		t.Fatal(err)
	}
	order := model.Order{ID: "o1", PlacedAt: posted.AddDate(0, 0, 2), TotalCents: 12000, Items: []string{"jacket"}}
	if err := db.PutOrder(ctx, order); err != nil {
		t.Fatal(err)
	}

	out, err := RunAnalyticsOnce(ctx, db, engine.DefaultOptions(), 90*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Attributions) != 1 || out.Attributions[0].PostID != post.ID || out.Attributions[0].Confidence != model.ConfidenceHigh {
		t.Fatalf("attributions = %+v", out.Attributions)
	}
	stored, err := db.LoadAttributions(ctx, model.ConfidenceNone)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || stored[0].Confidence != model.ConfidenceHigh {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestAnalyzeDoesNotSave(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fixedNow(t, at)
	src := &fakeSource{in: sampleInput(at)}
	out, err := Analyze(context.Background(), src, engine.DefaultOptions(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Attributions) != 1 || len(src.saved) != 0 {
		t.Fatalf("attributions = %d saved = %d", len(out.Attributions), len(src.saved))
	}
}

func TestRunAnalyticsLoopPublishesAndStops(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fixedNow(t, at)
	src := &fakeSource{in: sampleInput(at)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var published []engine.Output
	err := RunAnalyticsLoop(ctx, src, engine.DefaultOptions(), 0, time.Hour, nil, func(out engine.Output) {
		published = append(published, out)
		cancel()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("loop error = %v", err)
	}
	if len(published) != 1 || len(published[0].Attributions) != 1 {
		t.Fatalf("published = %+v", published)
	}
}

func TestRunAnalyticsLoopSkipsQuietHours(t *testing.T) {
	at := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)
	fixedNow(t, at)
	src := &fakeSource{in: sampleInput(at)}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := RunAnalyticsLoop(ctx, src, engine.DefaultOptions(), 0, time.Hour, []int{3}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("loop error = %v", err)
	}
	if len(src.since) != 0 {
		t.Fatalf("quiet hour run loaded input %d times", len(src.since))
	}
}
