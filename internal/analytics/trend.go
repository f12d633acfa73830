package analytics

import (
	"sort"
	"time"

	"storepulse/internal/model"
	"storepulse/internal/normalize"
)

// Point is the engagement of a post as of one observation day.
type Point struct {
	Date           time.Time `json:"date"`
	Impressions    int64     `json:"impressions"`
	EngagementRate float64   `json:"engagementRate"`
	SaveRate       float64   `json:"saveRate"`
	Change         float64   `json:"change"` // engagement rate change since the previous point
}

// DailySeries returns one point per observation day of the post, in date order.
func DailySeries(post model.Post, snapshots []model.MetricSnapshot) []Point {
	seen := make(map[time.Time]bool)
	var days []time.Time
	for _, s := range snapshots {
		if s.PostID != post.ID {
			continue
		}
		d := PeriodDay.Start(s.Date)
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	out := make([]Point, 0, len(days))
	for _, d := range days {
		rec, _, err := normalize.Normalize(post, snapshots, d)
		if err != nil {
			continue
		}
		snap, _ := normalize.Select(post.ID, snapshots, d)
		p := Point{Date: d, Impressions: snap.Impressions, EngagementRate: rec.EngagementRate, SaveRate: rec.SaveRate}
		if len(out) > 0 {
			p.Change = p.EngagementRate - out[len(out)-1].EngagementRate
		}
		out = append(out, p)
	}
	return out
}
