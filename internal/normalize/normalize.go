// Package normalize turns raw per-day metric snapshots into engagement records.
package normalize

import (
	"math"
	"time"

	"storepulse/internal/model"
)

// Normalize computes the engagement record of post from the latest snapshot
// observed on or before asOf. A zero asOf selects the latest snapshot and
// ComputedAt falls back to that snapshot's date.
// Out-of-range counters are repaired and reported as warnings.
func Normalize(post model.Post, snapshots []model.MetricSnapshot, asOf time.Time) (model.EngagementRecord, []model.DataQualityWarning, error) {
	snap, ok := Select(post.ID, snapshots, asOf)
	if !ok {
		return model.EngagementRecord{}, nil, &model.InsufficientDataError{PostID: post.ID, AsOf: asOf}
	}

	var warns []model.DataQualityWarning
	counter := func(field string, v int64) float64 {
		if v < 0 {
			warns = append(warns, model.DataQualityWarning{PostID: post.ID, Field: field, Value: float64(v), Action: "clamped to 0"})
			return 0
		}
		return float64(v)
	}
	impressions := counter("impressions", snap.Impressions)
	reach := counter("reach", snap.Reach)
	likes := counter("likes", snap.Likes)
	comments := counter("comments", snap.Comments)
	shares := counter("shares", snap.Shares)
	saves := counter("saves", snap.Saves)
	_ = counter("clicks", snap.Clicks)

	if !post.Platform.CountsSaves() {
		saves = 0
	}
	if reach > impressions && impressions > 0 {
		warns = append(warns, model.DataQualityWarning{PostID: post.ID, Field: "reach", Value: reach, Action: "impressions raised to reach"})
		impressions = reach
	}

	interactions := likes + comments + shares + saves
	rec := model.EngagementRecord{
		PostID:       post.ID,
		AccountID:    post.AccountID,
		Platform:     post.Platform,
		ContentType:  post.ContentType,
		LocationID:   post.Location(),
		PostedAt:     post.PostedAt,
		SnapshotDate: snap.Date,
		ComputedAt:   asOf,
	}
	if asOf.IsZero() {
		rec.ComputedAt = day(snap.Date)
	}
	if impressions == 0 {
		if interactions > 0 {
			warns = append(warns, model.DataQualityWarning{PostID: post.ID, Field: "impressions", Value: 0, Action: "rates set to 0"})
		}
		return rec, warns, nil
	}

	rate := func(field string, num float64) float64 {
		r := num / math.Max(impressions, 1)
		if r > 1 {
			warns = append(warns, model.DataQualityWarning{PostID: post.ID, Field: field, Value: r, Action: "rate clamped to 1"})
			return 1
		}
		return r
	}
	rec.EngagementRate = rate("engagement_rate", interactions)
	rec.SaveRate = rate("save_rate", saves)
	rec.ShareRate = rate("share_rate", shares)
	return rec, warns, nil
}

// Select returns the snapshot of postID with the latest date on or before asOf.
// Dates are compared at day granularity; on equal dates the later element wins.
func Select(postID string, snapshots []model.MetricSnapshot, asOf time.Time) (model.MetricSnapshot, bool) {
	var best model.MetricSnapshot
	found := false
	cutoff := day(asOf)
	for _, s := range snapshots {
		if s.PostID != postID {
			continue
		}
		d := day(s.Date)
		if !asOf.IsZero() && d.After(cutoff) {
			continue
		}
		if !found || !d.Before(day(best.Date)) {
			best = s
			found = true
		}
	}
	return best, found
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
