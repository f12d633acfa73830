package ingest

import (
	"context"

	"storepulse/internal/logging"
	"storepulse/internal/model"
)

// Sink is where imported rows are written. Writes must be upserts so that
// importing the same bundle twice leaves the store unchanged.
type Sink interface {
	PutPost(ctx context.Context, p model.Post) error
	PutSnapshot(ctx context.Context, s model.MetricSnapshot) error
	PutCustomer(ctx context.Context, c model.Customer) error
	PutOrder(ctx context.Context, o model.Order) error
}

// Counts reports how many rows of each kind were written.
type Counts struct {
	Posts     int `json:"posts"`
	Snapshots int `json:"snapshots"`
	Customers int `json:"customers"`
	Orders    int `json:"orders"`
	Rejected  int `json:"rejected"`
}

// Import writes the bundle to db. Malformed entries are logged and skipped;
// store errors abort the import.
func Import(ctx context.Context, db Sink, b Bundle) (Counts, error) {
	var c Counts
	reject := func(err error) {
		c.Rejected++
		logging.Warn("import_rejected", map[string]any{"error": err.Error()})
	}
	for _, e := range b.Posts {
		p, err := e.toModel()
		if err != nil {
			reject(err)
			continue
		}
		if err := db.PutPost(ctx, p); err != nil {
			return c, err
		}
		c.Posts++
	}
	for _, e := range b.Snapshots {
		s, err := e.toModel()
		if err != nil {
			reject(err)
			continue
		}
		if err := db.PutSnapshot(ctx, s); err != nil {
			return c, err
		}
		c.Snapshots++
	}
	for _, e := range b.Customers {
		if e.ID == "" {
			continue
		}
		if err := db.PutCustomer(ctx, model.Customer{ID: e.ID, AcquisitionSource: e.Source}); err != nil {
			return c, err
		}
		c.Customers++
	}
	for _, e := range b.Orders {
		o, err := e.toModel()
		if err != nil {
			reject(err)
			continue
		}
		if err := db.PutOrder(ctx, o); err != nil {
			return c, err
		}
		c.Orders++
	}
	logging.Info("import_done", map[string]any{"posts": c.Posts, "snapshots": c.Snapshots, "customers": c.Customers, "orders": c.Orders, "rejected": c.Rejected})
	return c, nil
}
