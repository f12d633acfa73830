// Package analytics rolls engagement, virality, and attribution results up
// into grouped reports.
package analytics

import (
	"fmt"
	"sort"
	"time"

	"storepulse/internal/model"
	"storepulse/internal/viral"
)

// Key identifies a report group. Dimensions that are not grouped on are zero.
type Key struct {
	Platform    model.Platform    `json:"platform,omitempty"`
	Location    string            `json:"location,omitempty"`
	Period      string            `json:"period,omitempty"`
	ContentType model.ContentType `json:"contentType,omitempty"`
}

// cell is the (location, period) part of a key; order totals are per cell.
type cell struct {
	location string
	period   string
}

// Group holds the additive state of one report group. Means and medians are
// derived from the sorted rate sample so that merging is exact.
type Group struct {
	Key
	Posts                  int
	Rates                  []float64 // ascending engagement rates
	Viral                  int
	Rising                 int
	AttributedOrders       int // confidence above none
	ConfidentOrders        int // confidence medium or high
	AttributedRevenueCents int64
	TotalOrders            int
}

// MeanEngagement is the mean engagement rate of the group, 0 when empty.
func (g Group) MeanEngagement() float64 {
	if len(g.Rates) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range g.Rates {
		sum += r
	}
	return sum / float64(len(g.Rates))
}

// MedianEngagement is the median engagement rate of the group, 0 when empty.
func (g Group) MedianEngagement() float64 { return viral.Percentile(g.Rates, 0.5) }

// AttributionRate is attributed orders over all orders of the group's cell.
func (g Group) AttributionRate() float64 {
	if g.TotalOrders == 0 {
		return 0
	}
	return float64(g.AttributedOrders) / float64(g.TotalOrders)
}

// Report is a grouped rollup.
type Report struct {
	GroupBy GroupBy
	Groups  map[Key]*Group
}

func newReport(by GroupBy) Report {
	return Report{GroupBy: by, Groups: make(map[Key]*Group)}
}

func (r Report) cellOf(location string, at time.Time) cell {
	var c cell
	if r.GroupBy.Has(DimLocation) {
		c.location = location
	}
	if r.GroupBy.Has(DimPeriod) {
		c.period = r.GroupBy.period().Key(at)
	}
	return c
}

func (r Report) group(c cell, p model.Platform, ct model.ContentType) *Group {
	k := Key{Location: c.location, Period: c.period}
	if r.GroupBy.Has(DimPlatform) {
		k.Platform = p
	}
	if r.GroupBy.Has(DimContentType) {
		k.ContentType = ct
	}
	g, ok := r.Groups[k]
	if !ok {
		g = &Group{Key: k}
		r.Groups[k] = g
	}
	return g
}

// fill creates every enumerated platform/content type group of a cell so
// empty groups are reported with zero counts.
func (r Report) fill(c cell) {
	platforms := []model.Platform{""}
	if r.GroupBy.Has(DimPlatform) {
		platforms = model.Platforms
	}
	types := []model.ContentType{""}
	if r.GroupBy.Has(DimContentType) {
		types = model.ContentTypes
	}
	for _, p := range platforms {
		for _, ct := range types {
			r.group(c, p, ct)
		}
	}
}

// Aggregate rolls records, flags, and attribution results up by the grouping.
// Posts are placed by posting time, orders by purchase time.
func Aggregate(records []model.EngagementRecord, flags []model.ViralFlag, results []model.AttributionResult, by GroupBy) Report {
	r := newReport(by)
	cells := make(map[cell]bool)
	orders := make(map[cell]int)
	if !by.Has(DimLocation) && !by.Has(DimPeriod) {
		cells[cell{}] = true
	}

	tiers := make(map[string]model.ViralTier, len(flags))
	for _, f := range flags {
		tiers[f.PostID] = f.Tier
	}
	for _, rec := range records {
		c := r.cellOf(rec.LocationID, rec.PostedAt)
		cells[c] = true
		g := r.group(c, rec.Platform, rec.ContentType)
		g.Posts++
		g.Rates = append(g.Rates, rec.EngagementRate)
		switch tiers[rec.PostID] {
		case model.TierViral:
			g.Viral++
		case model.TierRising:
			g.Rising++
		}
	}
	for _, res := range results {
		c := r.cellOf(res.LocationID, res.PlacedAt)
		cells[c] = true
		orders[c]++
		if !res.Attributed() {
			continue
		}
		g := r.group(c, res.Platform, res.ContentType)
		g.AttributedOrders++
		if res.Confidence.Rank() >= model.ConfidenceMedium.Rank() {
			g.ConfidentOrders++
			g.AttributedRevenueCents += res.TotalCents
		}
	}

	for c := range cells {
		r.fill(c)
	}
	for k, g := range r.Groups {
		g.TotalOrders = orders[cell{location: k.Location, period: k.Period}]
		sort.Float64s(g.Rates)
	}
	return r
}

// Merge combines two reports built with the same grouping. Merging reports
// of disjoint inputs equals aggregating the union of the inputs.
func Merge(a, b Report) (Report, error) {
	if !a.GroupBy.Equal(b.GroupBy) {
		return Report{}, fmt.Errorf("merge: grouping mismatch %v vs %v", a.GroupBy, b.GroupBy)
	}
	out := newReport(a.GroupBy)
	for _, src := range []Report{a, b} {
		for k, g := range src.Groups {
			dst, ok := out.Groups[k]
			if !ok {
				cp := *g
				cp.Rates = append([]float64(nil), g.Rates...)
				out.Groups[k] = &cp
				continue
			}
			dst.Posts += g.Posts
			dst.Rates = mergeSorted(dst.Rates, g.Rates)
			dst.Viral += g.Viral
			dst.Rising += g.Rising
			dst.AttributedOrders += g.AttributedOrders
			dst.ConfidentOrders += g.ConfidentOrders
			dst.AttributedRevenueCents += g.AttributedRevenueCents
			dst.TotalOrders += g.TotalOrders
		}
	}
	return out, nil
}

func mergeSorted(a, b []float64) []float64 {
	if len(a)+len(b) == 0 {
		return nil
	}
	out := make([]float64, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// Sorted returns the groups ordered by period, location, platform, and content type.
func (r Report) Sorted() []Group {
	out := make([]Group, 0, len(r.Groups))
	for _, g := range r.Groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return keyLess(out[i].Key, out[j].Key) })
	return out
}

func keyLess(a, b Key) bool {
	if a.Period != b.Period {
		return a.Period < b.Period
	}
	if a.Location != b.Location {
		return a.Location < b.Location
	}
	if pa, pb := platformIndex(a.Platform), platformIndex(b.Platform); pa != pb {
		return pa < pb
	}
	return contentIndex(a.ContentType) < contentIndex(b.ContentType)
}

func platformIndex(p model.Platform) int {
	for i, x := range model.Platforms {
		if x == p {
			return i
		}
	}
	return -1
}

func contentIndex(c model.ContentType) int {
	for i, x := range model.ContentTypes {
		if x == c {
			return i
		}
	}
	return -1
}
