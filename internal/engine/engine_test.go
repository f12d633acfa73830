package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storepulse/internal/analytics"
	"storepulse/internal/model"
)

var base = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

func sampleInput() Input {
	var in Input
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("ig-%02d", i)
		at := base.AddDate(0, 0, i)
		in.Posts = append(in.Posts, model.Post{ID: id, AccountID: "shop", Platform: model.PlatformInstagram, PostedAt: at, ContentType: model.ContentPhoto})
		in.Snapshots = append(in.Snapshots, model.MetricSnapshot{PostID: id, Date: at.AddDate(0, 0, 1), Impressions: 1000, Likes: int64(20 + i), Comments: 5})
	}
	in.Posts = append(in.Posts, model.Post{ID: "sneaker-drop", AccountID: "shop", Platform: model.PlatformInstagram, PostedAt: base.AddDate(0, 0, 12), ContentType: model.ContentVideo, FeaturedItems: []string{"SKU-1"}})
	in.Snapshots = append(in.Snapshots,
		model.MetricSnapshot{PostID: "sneaker-drop", Date: base.AddDate(0, 0, 13), Impressions: 1000, Reach: 900, Likes: 150, Comments: 30, Shares: 10, Saves: 10},
	)
	in.Posts = append(in.Posts, model.Post{ID: "no-metrics", AccountID: "shop", Platform: model.PlatformTikTok, PostedAt: base})
	in.Customers = []model.Customer{{ID: "c1", AcquisitionSource: "Instagram DM"}}
	in.Orders = []model.Order{
		{ID: "o1", CustomerID: "c1", PlacedAt: base.AddDate(0, 0, 12).Add(5 * time.Hour), TotalCents: 8999, Items: []string{"SKU-1"}},
		{ID: "o2", CustomerID: "c2", PlacedAt: base.AddDate(0, -2, 0), TotalCents: 1200},
	}
	return in
}

func TestRunEndToEnd(t *testing.T) {
	out, err := Run(context.Background(), DefaultOptions(), sampleInput())
	require.NoError(t, err)

	_, err = uuid.Parse(out.RunID)
	assert.NoError(t, err)
	assert.Len(t, out.Records, 13)
	require.Len(t, out.Failures, 1)
	var insufficient *model.InsufficientDataError
	assert.True(t, errors.As(out.Failures[0], &insufficient))
	assert.Equal(t, "no-metrics", insufficient.PostID)

	var drop model.ViralFlag
	for _, f := range out.Flags {
		if f.PostID == "sneaker-drop" {
			drop = f
		}
	}
	assert.Equal(t, model.TierViral, drop.Tier)

	require.Len(t, out.Attributions, 2)
	o1 := out.Attributions[0]
	assert.Equal(t, "sneaker-drop", o1.PostID)
	assert.Equal(t, model.ConfidenceHigh, o1.Confidence)
	assert.Equal(t, model.AttrDirectMessage, o1.Type)
	assert.Equal(t, model.ConfidenceNone, out.Attributions[1].Confidence)

	var igRevenue int64
	for _, g := range out.Report.Groups {
		if g.Platform == model.PlatformInstagram {
			igRevenue += g.AttributedRevenueCents
		}
	}
	assert.Equal(t, int64(8999), igRevenue)
}

func TestRunIsDeterministic(t *testing.T) {
	opts := DefaultOptions()
	opts.AsOf = base.AddDate(0, 1, 0)
	a, err := Run(context.Background(), opts, sampleInput())
	require.NoError(t, err)
	b, err := Run(context.Background(), opts, sampleInput())
	require.NoError(t, err)
	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, a.Records, b.Records)
	assert.Equal(t, a.Flags, b.Flags)
	assert.Equal(t, a.Attributions, b.Attributions)
	assert.Equal(t, a.Report.Sorted(), b.Report.Sorted())
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Options){
		"lookback_window":             func(o *Options) { o.LookbackWindow = -time.Hour },
		"high_confidence_window":      func(o *Options) { o.HighConfidenceWindow = -time.Hour },
		"min_sample":                  func(o *Options) { o.MinSample = 0 },
		"static_engagement_threshold": func(o *Options) { o.StaticEngagementThreshold = 1.5 },
		"static_save_threshold":       func(o *Options) { o.StaticSaveThreshold = -0.1 },
		"workers":                     func(o *Options) { o.Workers = -1 },
		"type_order":                  func(o *Options) { o.TypeOrder = []model.AttributionType{"carrier_pigeon"} },
		"group_by":                    func(o *Options) { o.GroupBy.Dimensions = []analytics.Dimension{"region"} },
		"group_by.period":             func(o *Options) { o.GroupBy.Period = "quarter" },
	}
	for field, mutate := range cases {
		opts := DefaultOptions()
		mutate(&opts)
		err := opts.Validate()
		var cfgErr *model.ConfigurationError
		require.ErrorAs(t, err, &cfgErr, field)
		assert.Equal(t, field, cfgErr.Field)

		_, err = Run(context.Background(), opts, sampleInput())
		assert.ErrorAs(t, err, &cfgErr, field)
	}

	opts := DefaultOptions()
	opts.LookbackWindow = time.Hour
	assert.Error(t, opts.Validate(), "lookback shorter than the high confidence window")
	assert.NoError(t, DefaultOptions().Validate())
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, DefaultOptions(), sampleInput())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadWindow(t *testing.T) {
	opts := DefaultOptions()
	since := base.AddDate(0, 0, -90)
	w := opts.LoadWindow(since)
	assert.Equal(t, since, w.Orders)
	assert.Equal(t, since.Add(-opts.LookbackWindow), w.Posts)
	assert.Equal(t, Window{}, opts.LoadWindow(time.Time{}))
}
