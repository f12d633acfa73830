package viral

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storepulse/internal/model"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func history(rates ...float64) []model.EngagementRecord {
	out := make([]model.EngagementRecord, 0, len(rates))
	for i, r := range rates {
		out = append(out, model.EngagementRecord{
			PostID:         "h" + string(rune('a'+i)),
			AccountID:      "acct",
			Platform:       model.PlatformInstagram,
			PostedAt:       t0.Add(time.Duration(i) * time.Hour),
			EngagementRate: r,
			SaveRate:       r / 10,
		})
	}
	return out
}

func rec(e, s float64) model.EngagementRecord {
	return model.EngagementRecord{PostID: "p", AccountID: "acct", Platform: model.PlatformInstagram, PostedAt: t0.AddDate(0, 1, 0), EngagementRate: e, SaveRate: s}
}

func TestPercentileLinearInterpolation(t *testing.T) {
	sample := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, 3.0, Percentile(sample, 0.5))
	assert.InDelta(t, 4.6, Percentile(sample, 0.9), 1e-12)
	assert.Equal(t, 4.0, Percentile(sample, 0.75))
	assert.Equal(t, 1.0, Percentile(sample, 0))
	assert.Equal(t, 5.0, Percentile(sample, 1))
	assert.Equal(t, 0.0, Percentile(nil, 0.9))
}

func TestClassifyDistributionTiers(t *testing.T) {
	cfg := DefaultConfig()
	h := history(0.01, 0.02, 0.03, 0.04, 0.05, 0.06, 0.07, 0.08, 0.09, 0.10)
	ref := BuildReference("acct", model.PlatformInstagram, h, cfg)
	require.False(t, ref.Static())
	require.Equal(t, 10, ref.SampleSize())

	// p90 = 0.091, p75 = 0.0775
	assert.Equal(t, model.TierViral, ref.Classify(rec(0.2, 0), cfg).Tier)
	assert.Equal(t, model.TierRising, ref.Classify(rec(0.08, 0), cfg).Tier)
	assert.Equal(t, model.TierNotViral, ref.Classify(rec(0.05, 0), cfg).Tier)

	f := ref.Classify(rec(0.2, 0), cfg)
	require.Len(t, f.Triggers, 2)
	assert.Equal(t, "engagement_rate_p90", f.Triggers[0].Metric)
	assert.InDelta(t, 0.091, f.Triggers[0].Threshold, 1e-12)
}

func TestClassifyRequiresStaticFloorForViral(t *testing.T) {
	cfg := DefaultConfig()
	h := history(0.001, 0.002, 0.003, 0.004, 0.005, 0.006, 0.007, 0.008, 0.009, 0.010)
	flag := Classify(rec(0.02, 0), h, cfg)
	assert.Equal(t, model.TierRising, flag.Tier, "above p90 but under the static floor")
}

func TestClassifySaveRateDoesNotChangeDistributionTier(t *testing.T) {
	cfg := DefaultConfig()
	h := history(0.01, 0.02, 0.03, 0.04, 0.05, 0.06, 0.07, 0.08, 0.09, 0.10)
	flag := Classify(rec(0.02, 0.05), h, cfg)
	assert.Equal(t, model.TierNotViral, flag.Tier)
	assert.Empty(t, flag.Triggers)
}

func TestClassifyFallsBackToStaticThresholds(t *testing.T) {
	cfg := DefaultConfig()
	h := history(0.5, 0.6, 0.7)
	flag := Classify(rec(0.04, 0.02), h, cfg)
	assert.True(t, flag.Reference.Static)
	assert.Equal(t, 3, flag.Reference.SampleSize)
	assert.Equal(t, model.TierViral, flag.Tier)

	assert.Equal(t, model.TierRising, Classify(rec(0.04, 0.001), h, cfg).Tier)
	assert.Equal(t, model.TierNotViral, Classify(rec(0.01, 0.001), h, cfg).Tier)
}

func TestClassifyStaticWithoutSaves(t *testing.T) {
	cfg := DefaultConfig()
	fb := model.EngagementRecord{PostID: "fb", AccountID: "acct", Platform: model.PlatformFacebook, PostedAt: t0, EngagementRate: 0.5}
	flag := Classify(fb, nil, cfg)
	assert.True(t, flag.Reference.Static)
	assert.Equal(t, model.TierViral, flag.Tier)
	require.Len(t, flag.Triggers, 1)
	assert.Equal(t, "engagement_rate_static", flag.Triggers[0].Metric)

	fb.EngagementRate = 0.01
	assert.Equal(t, model.TierNotViral, Classify(fb, nil, cfg).Tier)
}

func TestClassifyIgnoresOtherAccounts(t *testing.T) {
	h := history(0.01, 0.02, 0.03, 0.04, 0.05, 0.06, 0.07, 0.08, 0.09, 0.10)
	for i := range h {
		h[i].Platform = model.PlatformTikTok
	}
	flag := Classify(rec(0.5, 0), h, DefaultConfig())
	assert.True(t, flag.Reference.Static)
}

func TestClassifyMonotonicInEngagement(t *testing.T) {
	cfg := DefaultConfig()
	ref := BuildReference("acct", model.PlatformInstagram, history(0.01, 0.015, 0.02, 0.04, 0.05, 0.05, 0.06, 0.08, 0.11, 0.2, 0.3), cfg)
	for _, s := range []float64{0, 0.005, 0.05} {
		prev := -1
		for e := 0.0; e <= 0.5; e += 0.0025 {
			r := ref.Classify(rec(e, s), cfg).Tier.Rank()
			require.GreaterOrEqual(t, r, prev, "tier dropped at e=%v s=%v", e, s)
			prev = r
		}
	}
}

func TestClassifyNaNIsNotViral(t *testing.T) {
	flag := Classify(rec(math.NaN(), 0), history(0.1, 0.2), DefaultConfig())
	assert.Equal(t, model.TierNotViral, flag.Tier)
}

func TestClassifyAllUsesTrailingHistoryOnly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSample = 2
	recs := history(0.01, 0.02, 0.5)
	flags := ClassifyAll(recs, cfg)
	require.Len(t, flags, 3)
	assert.Equal(t, 0, flags[0].Reference.SampleSize)
	assert.Equal(t, 1, flags[1].Reference.SampleSize)
	assert.Equal(t, 2, flags[2].Reference.SampleSize)
	assert.Equal(t, model.TierViral, flags[2].Tier)

	cfg.HistoryWindow = 90 * time.Minute
	flags = ClassifyAll(recs, cfg)
	assert.Equal(t, 1, flags[2].Reference.SampleSize)
}
