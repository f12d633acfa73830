package model

import "time"

// Platform identifies the social network a post was published on.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformFacebook  Platform = "facebook"
	PlatformOther     Platform = "other"
)

// Platforms lists every platform in a stable order.
var Platforms = []Platform{PlatformInstagram, PlatformTikTok, PlatformFacebook, PlatformOther}

// CountsSaves is false where the platform's "saves" are not comparable to a
// bookmark. Such platforms always report a zero save rate.
func (p Platform) CountsSaves() bool { return p != PlatformFacebook }

// ContentType is the format of a post.
type ContentType string

const (
	ContentPhoto    ContentType = "photo"
	ContentVideo    ContentType = "video"
	ContentCarousel ContentType = "carousel"
	ContentStory    ContentType = "story"
)

// ContentTypes lists every content type in a stable order.
var ContentTypes = []ContentType{ContentPhoto, ContentVideo, ContentCarousel, ContentStory}

// LocationOnline is the location used for posts and orders without a physical market.
const LocationOnline = "online"

// Post is a piece of social content published by one of the business's accounts.
type Post struct {
	ID            string
	AccountID     string
	Platform      Platform
	PostedAt      time.Time
	ContentType   ContentType
	FeaturedItems []string // inventory item ids shown in the post
	Promotional   bool
	LocationID    string // market the post promotes; empty means online
}

// Features reports whether item is featured in the post.
func (p Post) Features(item string) bool {
	for _, f := range p.FeaturedItems {
		if f == item {
			return true
		}
	}
	return false
}

// Location returns the post location, defaulting to LocationOnline.
func (p Post) Location() string { return locationOrOnline(p.LocationID) }

// MetricSnapshot holds the raw counters observed for a post on one day.
type MetricSnapshot struct {
	PostID      string
	Date        time.Time
	Impressions int64
	Reach       int64
	Likes       int64
	Comments    int64
	Shares      int64
	Saves       int64
	Clicks      int64
}

// Order is a point-of-sale transaction.
type Order struct {
	ID         string
	CustomerID string
	LocationID string
	PlacedAt   time.Time
	TotalCents int64
	Items      []string        // inventory item ids sold
	Signal     AttributionType // explicit attribution signal, if the POS captured one
}

// Location returns the order location, defaulting to LocationOnline.
func (o Order) Location() string { return locationOrOnline(o.LocationID) }

// Customer is the buyer on an order.
type Customer struct {
	ID                string
	AcquisitionSource string
}

func locationOrOnline(id string) string {
	if id == "" {
		return LocationOnline
	}
	return id
}
