// Package pgstore reads posts, metrics, and orders from the shop's PostgreSQL
// database and writes attribution results back to social_media_attribution.
package pgstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"storepulse/internal/config"
	"storepulse/internal/engine"
	"storepulse/internal/model"
)

// Store is a PostgreSQL-backed source of analytics input.
type Store struct {
	db *sqlx.DB
}

// Connect opens a connection using the storage config.
func Connect(cfg config.PostgresConfig) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return New(db), nil
}

// New wraps an existing connection.
func New(db *sqlx.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

type postRow struct {
	PostID      int64     `db:"post_id"`
	AccountID   int64     `db:"account_id"`
	Platform    string    `db:"platform"`
	PostType    string    `db:"post_type"`
	PostedDate  time.Time `db:"posted_date"`
	Promotional bool      `db:"is_promotional"`
}

type itemRow struct {
	ParentID int64 `db:"parent_id"`
	ItemID   int64 `db:"item_id"`
}

type metricRow struct {
	PostID      int64     `db:"post_id"`
	MetricDate  time.Time `db:"metric_date"`
	Impressions int64     `db:"impressions"`
	Reach       int64     `db:"reach"`
	Likes       int64     `db:"likes"`
	Comments    int64     `db:"comments"`
	Shares      int64     `db:"shares"`
	Saves       int64     `db:"saves"`
	Clicks      int64     `db:"clicks"`
}

type orderRow struct {
	OrderID     int64     `db:"order_id"`
	CustomerID  int64     `db:"customer_id"`
	LocationID  int64     `db:"location_id"`
	OrderDate   time.Time `db:"order_date"`
	TotalCents  int64     `db:"total_cents"`
	OrderSource string    `db:"order_source"`
}

type customerRow struct {
	CustomerID        int64  `db:"customer_id"`
	AcquisitionSource string `db:"acquisition_source"`
}

const (
	postsQuery = `
		SELECT p.post_id, COALESCE(p.account_id, 0) AS account_id, COALESCE(a.platform, '') AS platform,
			COALESCE(p.post_type, '') AS post_type, p.posted_date, COALESCE(p.is_promotional, FALSE) AS is_promotional
		FROM social_media_posts p
		LEFT JOIN social_media_accounts a ON a.account_id = p.account_id
		WHERE p.posted_date >= $1
		ORDER BY p.posted_date, p.post_id`
	featuredQuery = `
		SELECT f.post_id AS parent_id, f.item_id
		FROM post_items_featured f
		JOIN social_media_posts p ON p.post_id = f.post_id
		WHERE p.posted_date >= $1 AND f.item_id IS NOT NULL
		ORDER BY f.post_id, f.item_id`
	metricsQuery = `
		SELECT m.post_id, m.metric_date,
			COALESCE(m.impressions, 0) AS impressions, COALESCE(m.reach, 0) AS reach, COALESCE(m.likes, 0) AS likes,
			COALESCE(m.comments, 0) AS comments, COALESCE(m.shares, 0) AS shares, COALESCE(m.saves, 0) AS saves,
			COALESCE(m.clicks, 0) AS clicks
		FROM social_media_metrics m
		JOIN social_media_posts p ON p.post_id = m.post_id
		WHERE p.posted_date >= $1
		ORDER BY m.post_id, m.metric_date`
	ordersQuery = `
		SELECT order_id, COALESCE(customer_id, 0) AS customer_id, COALESCE(location_id, 0) AS location_id, order_date,
			ROUND(total_amount * 100)::BIGINT AS total_cents, COALESCE(order_source, '') AS order_source
		FROM orders
		WHERE order_date >= $1
		ORDER BY order_date, order_id`
	orderItemsQuery = `
		SELECT i.order_id AS parent_id, i.item_id
		FROM order_items i
		JOIN orders o ON o.order_id = i.order_id
		WHERE o.order_date >= $1 AND i.item_id IS NOT NULL
		ORDER BY i.order_id, i.item_id`
	customersQuery = `
		SELECT customer_id, COALESCE(acquisition_source, '') AS acquisition_source
		FROM customers
		ORDER BY customer_id`
)

// LoadInput returns the posts and orders inside w.
func (s *Store) LoadInput(ctx context.Context, w engine.Window) (engine.Input, error) {
	var in engine.Input

	var posts []postRow
	if err := s.db.SelectContext(ctx, &posts, postsQuery, w.Posts); err != nil {
		return in, fmt.Errorf("load posts: %w", err)
	}
	featured, err := s.items(ctx, featuredQuery, w.Posts)
	if err != nil {
		return in, fmt.Errorf("load featured items: %w", err)
	}
	for _, r := range posts {
		id := strconv.FormatInt(r.PostID, 10)
		in.Posts = append(in.Posts, model.Post{
			ID:            id,
			AccountID:     optionalID(r.AccountID),
			Platform:      model.ParsePlatform(r.Platform),
			PostedAt:      r.PostedDate.UTC(),
			ContentType:   model.ParseContentType(r.PostType),
			FeaturedItems: featured[id],
			Promotional:   r.Promotional,
		})
	}

	var metrics []metricRow
	if err := s.db.SelectContext(ctx, &metrics, metricsQuery, w.Posts); err != nil {
		return in, fmt.Errorf("load metrics: %w", err)
	}
	for _, m := range metrics {
		in.Snapshots = append(in.Snapshots, model.MetricSnapshot{
			PostID:      strconv.FormatInt(m.PostID, 10),
			Date:        m.MetricDate.UTC(),
			Impressions: m.Impressions,
			Reach:       m.Reach,
			Likes:       m.Likes,
			Comments:    m.Comments,
			Shares:      m.Shares,
			Saves:       m.Saves,
			Clicks:      m.Clicks,
		})
	}

	var orders []orderRow
	if err := s.db.SelectContext(ctx, &orders, ordersQuery, w.Orders); err != nil {
		return in, fmt.Errorf("load orders: %w", err)
	}
	sold, err := s.items(ctx, orderItemsQuery, w.Orders)
	if err != nil {
		return in, fmt.Errorf("load order items: %w", err)
	}
	for _, o := range orders {
		id := strconv.FormatInt(o.OrderID, 10)
		signal, ok := model.ParseAttributionType(o.OrderSource)
		if !ok || signal == model.AttrUnattributed {
			signal = ""
		}
		in.Orders = append(in.Orders, model.Order{
			ID:         id,
			CustomerID: optionalID(o.CustomerID),
			LocationID: optionalID(o.LocationID),
			PlacedAt:   o.OrderDate.UTC(),
			TotalCents: o.TotalCents,
			Items:      sold[id],
			Signal:     signal,
		})
	}

	var customers []customerRow
	if err := s.db.SelectContext(ctx, &customers, customersQuery); err != nil {
		return in, fmt.Errorf("load customers: %w", err)
	}
	for _, c := range customers {
		in.Customers = append(in.Customers, model.Customer{ID: strconv.FormatInt(c.CustomerID, 10), AcquisitionSource: c.AcquisitionSource})
	}
	return in, nil
}

func (s *Store) items(ctx context.Context, query string, since time.Time) (map[string][]string, error) {
	var rows []itemRow
	if err := s.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	for _, r := range rows {
		k := strconv.FormatInt(r.ParentID, 10)
		out[k] = append(out[k], strconv.FormatInt(r.ItemID, 10))
	}
	return out, nil
}

// SaveAttributions recomputes the attribution rows of the given orders:
// earlier rows are deleted and attributed results are inserted.
func (s *Store) SaveAttributions(ctx context.Context, runID string, results []model.AttributionResult) error {
	orderIDs := make([]int64, 0, len(results))
	for _, r := range results {
		id, err := strconv.ParseInt(r.OrderID, 10, 64)
		if err != nil {
			return fmt.Errorf("run %s: order id %q: %w", runID, r.OrderID, err)
		}
		orderIDs = append(orderIDs, id)
	}
	if len(orderIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM social_media_attribution WHERE order_id = ANY($1)`, pq.Array(orderIDs)); err != nil {
		return fmt.Errorf("run %s: clear attributions: %w", runID, err)
	}
	for i, r := range results {
		if !r.Attributed() {
			continue
		}
		postID, err := strconv.ParseInt(r.PostID, 10, 64)
		if err != nil {
			return fmt.Errorf("run %s: post id %q: %w", runID, r.PostID, err)
		}
		var customer any
		if r.CustomerID != "" {
			c, err := strconv.ParseInt(r.CustomerID, 10, 64)
			if err != nil {
				return fmt.Errorf("run %s: customer id %q: %w", runID, r.CustomerID, err)
			}
			customer = c
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO social_media_attribution
				(customer_id, order_id, post_id, attribution_type, attribution_confidence, time_from_post_to_purchase)
			VALUES ($1, $2, $3, $4, $5, $6::interval)`,
			customer, orderIDs[i], postID, string(r.Type), string(r.Confidence), interval(r.Elapsed)); err != nil {
			return fmt.Errorf("run %s: insert attribution for order %s: %w", runID, r.OrderID, err)
		}
	}
	return tx.Commit()
}

func interval(d time.Duration) string {
	return strconv.FormatInt(int64(d/time.Second), 10) + " seconds"
}

func optionalID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
