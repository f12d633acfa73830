package attribution

import (
	"context"

	"golang.org/x/sync/errgroup"

	"storepulse/internal/model"
)

// AttributeAll matches orders in parallel; results follow order order.
// Orders are independent so no state is shared between workers.
func AttributeAll(ctx context.Context, orders []model.Order, customers map[string]model.Customer, candidates []Candidate, cfg Config, workers int) ([]model.AttributionResult, error) {
	if workers <= 0 {
		workers = 4
	}
	out := make([]model.AttributionResult, len(orders))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, o := range orders {
		i, o := i, o
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var cust *model.Customer
			if c, ok := customers[o.CustomerID]; ok {
				cust = &c
			}
			out[i] = Attribute(o, cust, candidates, cfg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
