package analytics

import "sort"

// Summary is the presentation view of a group.
type Summary struct {
	Key
	Posts                  int     `json:"posts"`
	MeanEngagement         float64 `json:"meanEngagementRate"`
	MedianEngagement       float64 `json:"medianEngagementRate"`
	Viral                  int     `json:"viral"`
	Rising                 int     `json:"rising"`
	AttributedOrders       int     `json:"attributedOrders"`
	ConfidentOrders        int     `json:"confidentOrders"`
	AttributedRevenueCents int64   `json:"attributedRevenueCents"`
	TotalOrders            int     `json:"totalOrders"`
	AttributionRate        float64 `json:"attributionRate"`
}

// Summarize converts a group into its presentation view.
func Summarize(g Group) Summary {
	return Summary{
		Key:                    g.Key,
		Posts:                  g.Posts,
		MeanEngagement:         g.MeanEngagement(),
		MedianEngagement:       g.MedianEngagement(),
		Viral:                  g.Viral,
		Rising:                 g.Rising,
		AttributedOrders:       g.AttributedOrders,
		ConfidentOrders:        g.ConfidentOrders,
		AttributedRevenueCents: g.AttributedRevenueCents,
		TotalOrders:            g.TotalOrders,
		AttributionRate:        g.AttributionRate(),
	}
}

// Summaries returns the sorted presentation view of the report.
func (r Report) Summaries() []Summary {
	groups := r.Sorted()
	out := make([]Summary, 0, len(groups))
	for _, g := range groups {
		out = append(out, Summarize(g))
	}
	return out
}

// TopGroups returns up to n non-empty groups with the highest mean engagement.
func TopGroups(r Report, n int) []Summary {
	var out []Summary
	for _, g := range r.Sorted() {
		if g.Posts > 0 {
			out = append(out, Summarize(g))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MeanEngagement > out[j].MeanEngagement })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
