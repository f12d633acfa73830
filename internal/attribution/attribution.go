// Package attribution matches sales orders to the social posts most likely to
// have driven them. Matching is a greedy, explainable heuristic: an explicit
// comparator ranks candidates and confidence tiers come from elapsed time and
// featured-item overlap.
package attribution

import (
	"fmt"
	"time"

	"storepulse/internal/model"
	"storepulse/internal/util"
)

// Config controls candidate generation and tiering.
type Config struct {
	LookbackWindow       time.Duration
	HighConfidenceWindow time.Duration
	// TypeOrder is tried in order when no explicit signal names the channel.
	TypeOrder []model.AttributionType
	// Accounts restricts candidates to the business's accounts; empty allows all.
	Accounts map[string]bool
}

// DefaultConfig returns a 14 day lookback with a 48 hour high-confidence window.
func DefaultConfig() Config {
	return Config{
		LookbackWindow:       14 * 24 * time.Hour,
		HighConfidenceWindow: 48 * time.Hour,
		TypeOrder:            []model.AttributionType{model.AttrDirectMessage, model.AttrPostComment},
	}
}

// Candidate is a post that may have driven an order.
type Candidate struct {
	Post           model.Post
	EngagementRate float64
}

// Scored is a candidate evaluated against one order.
type Scored struct {
	Candidate
	ItemMatch bool
	Elapsed   time.Duration
}

// Candidates returns the posts published within the lookback window before the order.
func Candidates(order model.Order, all []Candidate, cfg Config) []Scored {
	var out []Scored
	for _, c := range all {
		if len(cfg.Accounts) > 0 && !cfg.Accounts[c.Post.AccountID] {
			continue
		}
		elapsed := order.PlacedAt.Sub(c.Post.PostedAt)
		if elapsed < 0 || elapsed > cfg.LookbackWindow {
			continue
		}
		out = append(out, Scored{Candidate: c, ItemMatch: itemMatch(c.Post, order), Elapsed: elapsed})
	}
	return out
}

func itemMatch(p model.Post, o model.Order) bool {
	for _, it := range o.Items {
		if p.Features(it) {
			return true
		}
	}
	return false
}

// Compare orders two candidates, returning a negative number when a is the
// better match. Criteria in order: featured-item match, shorter elapsed time,
// higher engagement rate, then post id so the order is total.
func Compare(a, b Scored) int {
	if a.ItemMatch != b.ItemMatch {
		if a.ItemMatch {
			return -1
		}
		return 1
	}
	if a.Elapsed != b.Elapsed {
		if a.Elapsed < b.Elapsed {
			return -1
		}
		return 1
	}
	if a.EngagementRate != b.EngagementRate {
		if a.EngagementRate > b.EngagementRate {
			return -1
		}
		return 1
	}
	switch {
	case a.Post.ID < b.Post.ID:
		return -1
	case a.Post.ID > b.Post.ID:
		return 1
	}
	return 0
}

// Tier assigns the confidence of a chosen candidate.
func Tier(s Scored, cfg Config) model.Confidence {
	switch {
	case s.ItemMatch && s.Elapsed <= cfg.HighConfidenceWindow:
		return model.ConfidenceHigh
	case s.ItemMatch && s.Elapsed <= cfg.LookbackWindow:
		return model.ConfidenceMedium
	case s.Elapsed <= cfg.HighConfidenceWindow:
		return model.ConfidenceMedium
	}
	return model.ConfidenceLow
}

// Attribute picks the best candidate for order. customer may be nil.
// No candidate is a valid outcome with confidence none.
func Attribute(order model.Order, customer *model.Customer, candidates []Candidate, cfg Config) model.AttributionResult {
	res := model.AttributionResult{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Type:       model.AttrUnattributed,
		Confidence: model.ConfidenceNone,
		LocationID: order.Location(),
		PlacedAt:   order.PlacedAt,
		TotalCents: order.TotalCents,
		Reason:     "no posts within lookback window",
	}
	scored := Candidates(order, candidates, cfg)
	if len(scored) == 0 {
		return res
	}
	best := scored[0]
	for _, s := range scored[1:] {
		if Compare(s, best) < 0 {
			best = s
		}
	}

	res.PostID = best.Post.ID
	res.Platform = best.Post.Platform
	res.ContentType = best.Post.ContentType
	res.Elapsed = best.Elapsed
	res.ItemMatch = best.ItemMatch
	res.Confidence = Tier(best, cfg)
	var source string
	res.Type, source = ResolveType(order, customer, best.Post.Platform, cfg.TypeOrder)
	match := "no item match"
	if best.ItemMatch {
		match = "featured item ordered"
	}
	res.Reason = fmt.Sprintf("%s, %s after post, %d candidate(s), type from %s", match, best.Elapsed.Round(time.Minute), len(scored), source)
	return res
}

// ResolveType decides the attribution channel: an explicit order signal, then
// the customer's acquisition source, then the first entry of typeOrder the
// platform supports. The second result names where the answer came from.
func ResolveType(order model.Order, customer *model.Customer, platform model.Platform, typeOrder []model.AttributionType) (model.AttributionType, string) {
	if order.Signal.Valid() && order.Signal != model.AttrUnattributed {
		return order.Signal, "order signal"
	}
	if customer != nil {
		if t, ok := SignalFromSource(customer.AcquisitionSource); ok {
			return t, "acquisition source"
		}
	}
	for _, t := range typeOrder {
		if Supports(platform, t) {
			return t, "default order"
		}
	}
	return model.AttrPostComment, "fallback"
}

// SignalFromSource reads an attribution channel out of a free-form acquisition source.
func SignalFromSource(src string) (model.AttributionType, bool) {
	switch {
	case src == "":
		return "", false
	case util.HasAnyToken(src, "dm", "dms", "messenger") || util.ContainsAnyCaseInsensitive(src, []string{"direct message"}):
		return model.AttrDirectMessage, true
	case util.HasAnyToken(src, "comment", "comments"):
		return model.AttrPostComment, true
	case util.HasAnyToken(src, "bio", "linkinbio", "link"):
		return model.AttrBioLinkClick, true
	}
	return "", false
}

// Supports reports whether platform offers the channel t.
func Supports(p model.Platform, t model.AttributionType) bool {
	switch t {
	case model.AttrDirectMessage:
		return p != model.PlatformOther
	case model.AttrBioLinkClick:
		return p == model.PlatformInstagram || p == model.PlatformTikTok
	case model.AttrPostComment:
		return true
	}
	return false
}
