// Package viral flags posts whose engagement stands out against their own
// account and platform history.
package viral

import (
	"math"
	"sort"
	"time"

	"storepulse/internal/model"
)

// Config holds the classifier thresholds.
type Config struct {
	MinSample                 int
	StaticEngagementThreshold float64
	StaticSaveThreshold       float64
	// HistoryWindow bounds the trailing history used by ClassifyAll; zero means unbounded.
	HistoryWindow time.Duration
}

// DefaultConfig returns the baseline thresholds.
func DefaultConfig() Config {
	return Config{MinSample: 10, StaticEngagementThreshold: 0.03, StaticSaveThreshold: 0.01}
}

// Percentile returns the p-th percentile (0..1) of an ascending sample using
// linear interpolation between closest ranks. An empty sample yields 0.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}
	rank := p * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Reference is an immutable snapshot of one account+platform history.
type Reference struct {
	AccountID  string
	Platform   model.Platform
	engagement []float64
	static     bool
}

// BuildReference copies the engagement rates of history records belonging to
// accountID and platform into a sorted reference sample.
func BuildReference(accountID string, platform model.Platform, history []model.EngagementRecord, cfg Config) Reference {
	ref := Reference{AccountID: accountID, Platform: platform}
	for _, h := range history {
		if h.AccountID != accountID || h.Platform != platform || !finite(h.EngagementRate) || !finite(h.SaveRate) {
			continue
		}
		ref.engagement = append(ref.engagement, h.EngagementRate)
	}
	sort.Float64s(ref.engagement)
	ref.static = len(ref.engagement) < cfg.MinSample
	return ref
}

// SampleSize is the number of history records in the reference.
func (r Reference) SampleSize() int { return len(r.engagement) }

// Static reports whether the reference falls back to static thresholds.
func (r Reference) Static() bool { return r.static }

// Classify flags rec against the reference. It never fails; ambiguous input
// yields not_viral.
func (r Reference) Classify(rec model.EngagementRecord, cfg Config) model.ViralFlag {
	flag := model.ViralFlag{
		PostID: rec.PostID,
		Tier:   model.TierNotViral,
		Reference: model.ReferenceInfo{
			AccountID:  r.AccountID,
			Platform:   r.Platform,
			SampleSize: len(r.engagement),
			Static:     r.static,
		},
	}
	e, s := rec.EngagementRate, rec.SaveRate
	if !finite(e) || !finite(s) {
		return flag
	}
	if r.static {
		return classifyStatic(flag, e, s, rec.Platform.CountsSaves(), cfg)
	}

	p90 := Percentile(r.engagement, 0.90)
	p75 := Percentile(r.engagement, 0.75)
	switch {
	case e >= p90 && e > cfg.StaticEngagementThreshold:
		flag.Tier = model.TierViral
		flag.Triggers = []model.Trigger{
			{Metric: "engagement_rate_p90", Value: e, Threshold: p90},
			{Metric: "engagement_rate_floor", Value: e, Threshold: cfg.StaticEngagementThreshold},
		}
	case e >= p75:
		flag.Tier = model.TierRising
		flag.Triggers = []model.Trigger{{Metric: "engagement_rate_p75", Value: e, Threshold: p75}}
	}
	return flag
}

// classifyStatic needs both static thresholds for viral and either for rising.
// Without saves, the engagement threshold alone decides viral.
func classifyStatic(flag model.ViralFlag, e, s float64, countsSaves bool, cfg Config) model.ViralFlag {
	var hits []model.Trigger
	if e >= cfg.StaticEngagementThreshold {
		hits = append(hits, model.Trigger{Metric: "engagement_rate_static", Value: e, Threshold: cfg.StaticEngagementThreshold})
	}
	need := 1
	if countsSaves {
		need = 2
		if s >= cfg.StaticSaveThreshold {
			hits = append(hits, model.Trigger{Metric: "save_rate_static", Value: s, Threshold: cfg.StaticSaveThreshold})
		}
	}
	switch {
	case len(hits) == need:
		flag.Tier = model.TierViral
	case len(hits) > 0:
		flag.Tier = model.TierRising
	}
	flag.Triggers = hits
	return flag
}

// Classify flags rec against history of its own account and platform.
func Classify(rec model.EngagementRecord, history []model.EngagementRecord, cfg Config) model.ViralFlag {
	return BuildReference(rec.AccountID, rec.Platform, history, cfg).Classify(rec, cfg)
}

// ClassifyAll flags every record against the records of the same account and
// platform posted strictly before it. records is treated as read-only.
func ClassifyAll(records []model.EngagementRecord, cfg Config) []model.ViralFlag {
	type key struct {
		account  string
		platform model.Platform
	}
	groups := make(map[key][]model.EngagementRecord)
	for _, r := range records {
		k := key{r.AccountID, r.Platform}
		groups[k] = append(groups[k], r)
	}
	out := make([]model.ViralFlag, 0, len(records))
	for _, rec := range records {
		var history []model.EngagementRecord
		for _, h := range groups[key{rec.AccountID, rec.Platform}] {
			if !h.PostedAt.Before(rec.PostedAt) {
				continue
			}
			if cfg.HistoryWindow > 0 && rec.PostedAt.Sub(h.PostedAt) > cfg.HistoryWindow {
				continue
			}
			history = append(history, h)
		}
		out = append(out, Classify(rec, history, cfg))
	}
	return out
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
