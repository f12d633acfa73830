package normalize

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"storepulse/internal/model"
)

// Batch is the outcome of normalizing many posts.
// Records follow input post order with failed posts left out.
type Batch struct {
	Records  []model.EngagementRecord
	Warnings []model.DataQualityWarning
	Failures []error
}

type slot struct {
	rec   model.EngagementRecord
	warns []model.DataQualityWarning
	err   error
}

// NormalizeAll normalizes posts in parallel. Per-post failures are collected in
// the batch; the returned error is only set when ctx is cancelled.
func NormalizeAll(ctx context.Context, posts []model.Post, snapshots []model.MetricSnapshot, asOf time.Time, workers int) (Batch, error) {
	byPost := make(map[string][]model.MetricSnapshot, len(posts))
	for _, s := range snapshots {
		byPost[s.PostID] = append(byPost[s.PostID], s)
	}
	if workers <= 0 {
		workers = 4
	}

	slots := make([]slot, len(posts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range posts {
		i, p := i, p
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, warns, err := Normalize(p, byPost[p.ID], asOf)
			slots[i] = slot{rec: rec, warns: warns, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Batch{}, err
	}
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}

	var b Batch
	for _, s := range slots {
		b.Warnings = append(b.Warnings, s.warns...)
		if s.err != nil {
			b.Failures = append(b.Failures, s.err)
			continue
		}
		b.Records = append(b.Records, s.rec)
	}
	return b, nil
}
