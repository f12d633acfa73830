package sqlitestore

import (
	"context"
	"testing"
	"time"

	"storepulse/internal/engine"
	"storepulse/internal/model"
)

func openMem(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCursors(t *testing.T) {
	db := openMem(t)
	ctx := context.Background()
	v, err := db.LoadCursor(ctx, "schedule:last_run")
	if err != nil || v != "" {
		t.Fatalf("unset cursor: %v %q", err, v)
	}
	if err := db.SaveCursor(ctx, "schedule:last_run", "123"); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveCursor(ctx, "schedule:last_run", "456"); err != nil {
		t.Fatal(err)
	}
	v, err = db.LoadCursor(ctx, "schedule:last_run")
	if err != nil || v != "456" {
		t.Fatalf("cursor mismatch: %v %s", err, v)
	}
}

func TestLoadInputRoundTrip(t *testing.T) {
	db := openMem(t)
	ctx := context.Background()
	posted := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	old := model.Post{ID: "old", AccountID: "shop", Platform: model.PlatformTikTok, PostedAt: posted.AddDate(0, -6, 0), ContentType: model.ContentVideo}
	post := model.Post{ID: "p1", AccountID: "shop", Platform: model.PlatformInstagram, PostedAt: posted, ContentType: model.ContentCarousel,
		FeaturedItems: []string{"sku-2", "sku-1"}, Promotional: true, LocationID: "market-1"}
	for _, p := range []model.Post{old, post} {
		if err := db.PutPost(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	// the second snapshot of the same day replaces the first
	for _, s := range []model.MetricSnapshot{
		{PostID: "p1", Date: posted.Add(2 * time.Hour), Impressions: 100, Likes: 1},
		{PostID: "p1", Date: posted.Add(5 * time.Hour), Impressions: 200, Likes: 9, Saves: 3},
		{PostID: "old", Date: old.PostedAt, Impressions: 50},
	} {
		if err := db.PutSnapshot(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.PutCustomer(ctx, model.Customer{ID: "c1", AcquisitionSource: "instagram dm"}); err != nil {
		t.Fatal(err)
	}
	order := model.Order{ID: "o1", CustomerID: "c1", PlacedAt: posted.Add(3 * time.Hour), TotalCents: 4250, Items: []string{"sku-1"}, Signal: model.AttrBioLinkClick}
	if err := db.PutOrder(ctx, order); err != nil {
		t.Fatal(err)
	}

	since := posted.AddDate(0, 0, -30)
	in, err := db.LoadInput(ctx, engine.Window{Orders: since, Posts: since})
	if err != nil {
		t.Fatal(err)
	}
	if len(in.Posts) != 1 || in.Posts[0].ID != "p1" {
		t.Fatalf("posts: %+v", in.Posts)
	}
	got := in.Posts[0]
	if !got.PostedAt.Equal(posted) || !got.Promotional || got.LocationID != "market-1" || len(got.FeaturedItems) != 2 || got.FeaturedItems[0] != "sku-1" {
		t.Fatalf("post: %+v", got)
	}
	if len(in.Snapshots) != 1 || in.Snapshots[0].Impressions != 200 || in.Snapshots[0].Saves != 3 {
		t.Fatalf("snapshots: %+v", in.Snapshots)
	}
	if len(in.Orders) != 1 || in.Orders[0].Signal != model.AttrBioLinkClick || in.Orders[0].TotalCents != 4250 || len(in.Orders[0].Items) != 1 {
		t.Fatalf("orders: %+v", in.Orders)
	}
	if len(in.Customers) != 1 || in.Customers[0].AcquisitionSource != "instagram dm" {
		t.Fatalf("customers: %+v", in.Customers)
	}

	all, err := db.LoadInput(ctx, engine.Window{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all.Posts) != 2 || len(all.Snapshots) != 2 {
		t.Fatalf("zero since should load everything: %d posts %d snapshots", len(all.Posts), len(all.Snapshots))
	}
}

func TestLoadInputPostsReachBeforeOrders(t *testing.T) {
	db := openMem(t)
	ctx := context.Background()
	since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	early := model.Post{ID: "early", AccountID: "shop", Platform: model.PlatformInstagram, PostedAt: since.AddDate(0, 0, -1), FeaturedItems: []string{"jacket"}}
	if err := db.PutPost(ctx, early); err != nil {
		t.Fatal(err)
	}
	if err := db.PutSnapshot(ctx, model.MetricSnapshot{PostID: "early", Date: early.PostedAt, Impressions: 10}); err != nil {
		t.Fatal(err)
	}
	for _, o := range []model.Order{
		{ID: "before", PlacedAt: since.Add(-time.Hour), TotalCents: 1},
		{ID: "after", PlacedAt: since.AddDate(0, 0, 1), TotalCents: 1, Items: []string{"jacket"}},
	} {
		if err := db.PutOrder(ctx, o); err != nil {
			t.Fatal(err)
		}
	}

	in, err := db.LoadInput(ctx, engine.DefaultOptions().LoadWindow(since))
	if err != nil {
		t.Fatal(err)
	}
	if len(in.Posts) != 1 || in.Posts[0].ID != "early" || len(in.Posts[0].FeaturedItems) != 1 || len(in.Snapshots) != 1 {
		t.Fatalf("posts inside the lookback before since should load: %+v %+v", in.Posts, in.Snapshots)
	}
	if len(in.Orders) != 1 || in.Orders[0].ID != "after" || len(in.Orders[0].Items) != 1 {
		t.Fatalf("orders: %+v", in.Orders)
	}
}

func TestSaveAttributionsReplacesByOrder(t *testing.T) {
	db := openMem(t)
	ctx := context.Background()
	at := time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC)
	first := []model.AttributionResult{
		{OrderID: "o1", PostID: "p1", Type: model.AttrPostComment, Confidence: model.ConfidenceLow, Elapsed: 90 * time.Hour, PlacedAt: at, TotalCents: 100},
		{OrderID: "o2", Type: model.AttrUnattributed, Confidence: model.ConfidenceNone, PlacedAt: at.Add(time.Hour), TotalCents: 50},
	}
	if err := db.SaveAttributions(ctx, "run-1", first); err != nil {
		t.Fatal(err)
	}
	second := []model.AttributionResult{
		{OrderID: "o1", PostID: "p2", Type: model.AttrDirectMessage, Confidence: model.ConfidenceHigh, Elapsed: 3 * time.Hour, ItemMatch: true,
			Platform: model.PlatformInstagram, ContentType: model.ContentPhoto, LocationID: "online", PlacedAt: at, TotalCents: 100},
	}
	if err := db.SaveAttributions(ctx, "run-2", second); err != nil {
		t.Fatal(err)
	}

	all, err := db.LoadAttributions(ctx, model.ConfidenceNone)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected one row per order, got %d", len(all))
	}
	o1 := all[0]
	if o1.PostID != "p2" || o1.Confidence != model.ConfidenceHigh || o1.Elapsed != 3*time.Hour || !o1.ItemMatch || !o1.PlacedAt.Equal(at) {
		t.Fatalf("o1 not replaced: %+v", o1)
	}
	confident, err := db.LoadAttributions(ctx, model.ConfidenceMedium)
	if err != nil {
		t.Fatal(err)
	}
	if len(confident) != 1 || confident[0].OrderID != "o1" {
		t.Fatalf("filter: %+v", confident)
	}
}
