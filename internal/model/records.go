package model

import "time"

// EngagementRecord is the normalized, point-in-time engagement of a post.
type EngagementRecord struct {
	PostID         string
	AccountID      string
	Platform       Platform
	ContentType    ContentType
	LocationID     string
	PostedAt       time.Time
	SnapshotDate   time.Time // date of the snapshot the rates came from
	EngagementRate float64
	SaveRate       float64
	ShareRate      float64
	ComputedAt     time.Time
}

// ViralTier classifies a post against its account's history.
type ViralTier string

const (
	TierNotViral ViralTier = "not_viral"
	TierRising   ViralTier = "rising"
	TierViral    ViralTier = "viral"
)

// Valid reports whether t is a known tier.
func (t ViralTier) Valid() bool {
	return t == TierNotViral || t == TierRising || t == TierViral
}

// Rank orders tiers: not_viral < rising < viral.
func (t ViralTier) Rank() int {
	switch t {
	case TierViral:
		return 2
	case TierRising:
		return 1
	default:
		return 0
	}
}

// Trigger is a metric that crossed a threshold.
type Trigger struct {
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

// ReferenceInfo describes the distribution a post was classified against.
type ReferenceInfo struct {
	AccountID  string   `json:"accountId"`
	Platform   Platform `json:"platform"`
	SampleSize int      `json:"sampleSize"`
	Static     bool     `json:"static"` // static thresholds were used
}

// ViralFlag is the classification of one post.
type ViralFlag struct {
	PostID    string        `json:"postId"`
	Tier      ViralTier     `json:"tier"`
	Triggers  []Trigger     `json:"triggers,omitempty"`
	Reference ReferenceInfo `json:"reference"`
}

// AttributionType is the channel through which a post drove a sale.
type AttributionType string

const (
	AttrDirectMessage AttributionType = "direct_message"
	AttrPostComment   AttributionType = "post_comment"
	AttrBioLinkClick  AttributionType = "bio_link_click"
	AttrUnattributed  AttributionType = "unattributed"
)

// Valid reports whether t is a known attribution type.
func (t AttributionType) Valid() bool {
	switch t {
	case AttrDirectMessage, AttrPostComment, AttrBioLinkClick, AttrUnattributed:
		return true
	}
	return false
}

// Confidence is the strength of an attribution.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceNone   Confidence = "none"
)

// Valid reports whether c is a known confidence level.
func (c Confidence) Valid() bool {
	return c == ConfidenceNone || c == ConfidenceLow || c == ConfidenceMedium || c == ConfidenceHigh
}

// Rank orders confidence: none < low < medium < high.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}

// AttributionResult links an order to the post judged to have driven it.
// PostID is empty when nothing was attributed.
type AttributionResult struct {
	OrderID     string          `json:"orderId"`
	CustomerID  string          `json:"customerId,omitempty"`
	PostID      string          `json:"postId,omitempty"`
	Type        AttributionType `json:"type"`
	Confidence  Confidence      `json:"confidence"`
	Elapsed     time.Duration   `json:"elapsed"`
	ItemMatch   bool            `json:"itemMatch"`
	Reason      string          `json:"reason"`
	Platform    Platform        `json:"platform,omitempty"`
	ContentType ContentType     `json:"contentType,omitempty"`
	LocationID  string          `json:"locationId"`
	PlacedAt    time.Time       `json:"placedAt"`
	TotalCents  int64           `json:"totalCents"`
}

// Attributed reports whether a post was matched at all.
func (r AttributionResult) Attributed() bool { return r.Confidence.Rank() > 0 }
