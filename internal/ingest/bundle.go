// Package ingest decodes export bundles of posts, metrics, and orders and
// loads them into a store.
package ingest

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"storepulse/internal/model"
)

// Bundle is the on-disk export format. JSON files decode as well since
// YAML is a superset.
type Bundle struct {
	Posts     []PostEntry     `yaml:"posts"`
	Snapshots []SnapshotEntry `yaml:"snapshots"`
	Customers []CustomerEntry `yaml:"customers"`
	Orders    []OrderEntry    `yaml:"orders"`
}

type PostEntry struct {
	ID          string   `yaml:"id"`
	Account     string   `yaml:"account"`
	Platform    string   `yaml:"platform"`
	PostedAt    string   `yaml:"postedAt"`
	ContentType string   `yaml:"contentType"`
	Items       []string `yaml:"items"`
	Promotional bool     `yaml:"promotional"`
	Location    string   `yaml:"location"`
}

type SnapshotEntry struct {
	Post        string `yaml:"post"`
	Date        string `yaml:"date"`
	Impressions int64  `yaml:"impressions"`
	Reach       int64  `yaml:"reach"`
	Likes       int64  `yaml:"likes"`
	Comments    int64  `yaml:"comments"`
	Shares      int64  `yaml:"shares"`
	Saves       int64  `yaml:"saves"`
	Clicks      int64  `yaml:"clicks"`
}

type CustomerEntry struct {
	ID     string `yaml:"id"`
	Source string `yaml:"source"`
}

type OrderEntry struct {
	ID       string   `yaml:"id"`
	Customer string   `yaml:"customer"`
	Location string   `yaml:"location"`
	PlacedAt string   `yaml:"placedAt"`
	Total    float64  `yaml:"total"` // currency units, converted to cents
	Items    []string `yaml:"items"`
	Signal   string   `yaml:"signal"`
}

// ReadFile decodes a bundle from path.
func ReadFile(path string) (Bundle, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Bundle{}, err
	}
	return Decode(b)
}

// Decode parses a YAML or JSON bundle.
func Decode(b []byte) (Bundle, error) {
	var bundle Bundle
	if err := yaml.Unmarshal(b, &bundle); err != nil {
		return Bundle{}, fmt.Errorf("decode bundle: %w", err)
	}
	return bundle, nil
}

// parseTime accepts RFC3339 timestamps and plain dates.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", s)
}

func (e PostEntry) toModel() (model.Post, error) {
	if e.ID == "" {
		return model.Post{}, fmt.Errorf("post without id")
	}
	at, err := parseTime(e.PostedAt)
	if err != nil {
		return model.Post{}, fmt.Errorf("post %s: postedAt: %w", e.ID, err)
	}
	return model.Post{
		ID:            e.ID,
		AccountID:     e.Account,
		Platform:      model.ParsePlatform(e.Platform),
		PostedAt:      at,
		ContentType:   model.ParseContentType(e.ContentType),
		FeaturedItems: e.Items,
		Promotional:   e.Promotional,
		LocationID:    e.Location,
	}, nil
}

func (e SnapshotEntry) toModel() (model.MetricSnapshot, error) {
	d, err := parseTime(e.Date)
	if err != nil {
		return model.MetricSnapshot{}, fmt.Errorf("snapshot of %s: date: %w", e.Post, err)
	}
	return model.MetricSnapshot{
		PostID:      e.Post,
		Date:        d,
		Impressions: e.Impressions,
		Reach:       e.Reach,
		Likes:       e.Likes,
		Comments:    e.Comments,
		Shares:      e.Shares,
		Saves:       e.Saves,
		Clicks:      e.Clicks,
	}, nil
}

func (e OrderEntry) toModel() (model.Order, error) {
	if e.ID == "" {
		return model.Order{}, fmt.Errorf("order without id")
	}
	at, err := parseTime(e.PlacedAt)
	if err != nil {
		return model.Order{}, fmt.Errorf("order %s: placedAt: %w", e.ID, err)
	}
	o := model.Order{
		ID:         e.ID,
		CustomerID: e.Customer,
		LocationID: e.Location,
		PlacedAt:   at,
		TotalCents: int64(math.Round(e.Total * 100)),
		Items:      e.Items,
	}
	if e.Signal != "" {
		sig, ok := model.ParseAttributionType(e.Signal)
		if !ok {
			return model.Order{}, fmt.Errorf("order %s: unknown signal %q", e.ID, e.Signal)
		}
		o.Signal = sig
	}
	return o, nil
}
