package analytics

import (
	"fmt"
	"strings"
)

// Dimension is a grouping axis of a report.
type Dimension string

const (
	DimPlatform    Dimension = "platform"
	DimLocation    Dimension = "location"
	DimPeriod      Dimension = "period"
	DimContentType Dimension = "content_type"
)

// GroupBy selects the report dimensions and the period size.
type GroupBy struct {
	Dimensions []Dimension `json:"dimensions"`
	Period     Period      `json:"period"`
}

// Has reports whether d is one of the grouping dimensions.
func (g GroupBy) Has(d Dimension) bool {
	for _, x := range g.Dimensions {
		if x == d {
			return true
		}
	}
	return false
}

// Equal reports whether two groupings produce the same keys.
func (g GroupBy) Equal(o GroupBy) bool {
	for _, d := range []Dimension{DimPlatform, DimLocation, DimPeriod, DimContentType} {
		if g.Has(d) != o.Has(d) {
			return false
		}
	}
	return !g.Has(DimPeriod) || g.period() == o.period()
}

func (g GroupBy) period() Period {
	if g.Period == "" {
		return PeriodWeek
	}
	return g.Period
}

// ParseGroupBy parses a comma separated dimension list such as "platform,period".
func ParseGroupBy(dims string, period string) (GroupBy, error) {
	p, err := ParsePeriod(period)
	if err != nil {
		return GroupBy{}, err
	}
	g := GroupBy{Period: p}
	for _, raw := range strings.Split(dims, ",") {
		d := Dimension(strings.ToLower(strings.TrimSpace(raw)))
		switch d {
		case "":
			continue
		case DimPlatform, DimLocation, DimPeriod, DimContentType:
			if !g.Has(d) {
				g.Dimensions = append(g.Dimensions, d)
			}
		default:
			return GroupBy{}, fmt.Errorf("unknown dimension %q", raw)
		}
	}
	return g, nil
}
