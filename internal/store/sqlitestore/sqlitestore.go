// Package sqlitestore keeps posts, metric snapshots, orders, and attribution
// results in a local SQLite database.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"storepulse/internal/engine"
	"storepulse/internal/model"
)

// DB wraps a SQLite database.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one connection so ":memory:" databases are shared and writes serialize
	d.SetMaxOpenConns(1)
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA foreign_keys=ON;`); err != nil {
		_ = d.Close()
		return nil, err
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS posts (
	  id TEXT PRIMARY KEY,
	  account_id TEXT NOT NULL,
	  platform TEXT NOT NULL,
	  posted_at INTEGER NOT NULL,
	  content_type TEXT NOT NULL,
	  promotional INTEGER NOT NULL DEFAULT 0,
	  location_id TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_posts_posted ON posts(posted_at);
	CREATE TABLE IF NOT EXISTS post_items (
	  post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
	  item_id TEXT NOT NULL,
	  PRIMARY KEY (post_id, item_id)
	);
	CREATE TABLE IF NOT EXISTS metric_snapshots (
	  post_id TEXT NOT NULL,
	  metric_date INTEGER NOT NULL,
	  impressions INTEGER NOT NULL,
	  reach INTEGER NOT NULL,
	  likes INTEGER NOT NULL,
	  comments INTEGER NOT NULL,
	  shares INTEGER NOT NULL,
	  saves INTEGER NOT NULL,
	  clicks INTEGER NOT NULL,
	  PRIMARY KEY (post_id, metric_date)
	);
	CREATE TABLE IF NOT EXISTS customers (
	  id TEXT PRIMARY KEY,
	  acquisition_source TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS orders (
	  id TEXT PRIMARY KEY,
	  customer_id TEXT NOT NULL DEFAULT '',
	  location_id TEXT NOT NULL DEFAULT '',
	  placed_at INTEGER NOT NULL,
	  total_cents INTEGER NOT NULL,
	  signal TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_orders_placed ON orders(placed_at);
	CREATE TABLE IF NOT EXISTS order_items (
	  order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	  item_id TEXT NOT NULL,
	  PRIMARY KEY (order_id, item_id)
	);
	CREATE TABLE IF NOT EXISTS attributions (
	  order_id TEXT PRIMARY KEY,
	  run_id TEXT NOT NULL,
	  customer_id TEXT NOT NULL,
	  post_id TEXT NOT NULL,
	  attribution_type TEXT NOT NULL,
	  confidence TEXT NOT NULL,
	  elapsed_seconds INTEGER NOT NULL,
	  item_match INTEGER NOT NULL,
	  reason TEXT NOT NULL,
	  platform TEXT NOT NULL,
	  content_type TEXT NOT NULL,
	  location_id TEXT NOT NULL,
	  placed_at INTEGER NOT NULL,
	  total_cents INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS cursors (
	  name TEXT PRIMARY KEY,
	  value TEXT NOT NULL
	);
	`)
	return err
}

func (d *DB) tx(ctx context.Context, f func(*sql.Tx) error) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := f(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// PutPost inserts or replaces a post and its featured items.
func (d *DB) PutPost(ctx context.Context, p model.Post) error {
	return d.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO posts(id, account_id, platform, posted_at, content_type, promotional, location_id) VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET account_id=excluded.account_id, platform=excluded.platform, posted_at=excluded.posted_at,
		  content_type=excluded.content_type, promotional=excluded.promotional, location_id=excluded.location_id`,
			p.ID, p.AccountID, string(p.Platform), p.PostedAt.Unix(), string(p.ContentType), p.Promotional, p.LocationID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM post_items WHERE post_id=?`, p.ID); err != nil {
			return err
		}
		for _, item := range p.FeaturedItems {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO post_items(post_id, item_id) VALUES(?,?)`, p.ID, item); err != nil {
				return err
			}
		}
		return nil
	})
}

// PutSnapshot upserts the counters of a post for one day. A re-sent day replaces the earlier row.
func (d *DB) PutSnapshot(ctx context.Context, s model.MetricSnapshot) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO metric_snapshots(post_id, metric_date, impressions, reach, likes, comments, shares, saves, clicks) VALUES(?,?,?,?,?,?,?,?,?)
	ON CONFLICT(post_id, metric_date) DO UPDATE SET impressions=excluded.impressions, reach=excluded.reach, likes=excluded.likes,
	  comments=excluded.comments, shares=excluded.shares, saves=excluded.saves, clicks=excluded.clicks`,
		s.PostID, dayUnix(s.Date), s.Impressions, s.Reach, s.Likes, s.Comments, s.Shares, s.Saves, s.Clicks)
	return err
}

func (d *DB) PutCustomer(ctx context.Context, c model.Customer) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO customers(id, acquisition_source) VALUES(?,?)
	ON CONFLICT(id) DO UPDATE SET acquisition_source=excluded.acquisition_source`, c.ID, c.AcquisitionSource)
	return err
}

// PutOrder inserts or replaces an order and its line items.
func (d *DB) PutOrder(ctx context.Context, o model.Order) error {
	return d.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO orders(id, customer_id, location_id, placed_at, total_cents, signal) VALUES(?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET customer_id=excluded.customer_id, location_id=excluded.location_id, placed_at=excluded.placed_at,
		  total_cents=excluded.total_cents, signal=excluded.signal`,
			o.ID, o.CustomerID, o.LocationID, o.PlacedAt.Unix(), o.TotalCents, string(o.Signal)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id=?`, o.ID); err != nil {
			return err
		}
		for _, item := range o.Items {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO order_items(order_id, item_id) VALUES(?,?)`, o.ID, item); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadInput returns the posts and orders inside w, with their snapshots,
// items, and every customer.
func (d *DB) LoadInput(ctx context.Context, w engine.Window) (engine.Input, error) {
	var in engine.Input
	lower, orderLower := unixOrZero(w.Posts), unixOrZero(w.Orders)

	items, err := d.itemsByParent(ctx, `SELECT i.post_id, i.item_id FROM post_items i JOIN posts p ON p.id=i.post_id WHERE p.posted_at>=? ORDER BY i.post_id, i.item_id`, lower)
	if err != nil {
		return in, fmt.Errorf("load post items: %w", err)
	}
	rows, err := d.sql.QueryContext(ctx, `SELECT id, account_id, platform, posted_at, content_type, promotional, location_id FROM posts WHERE posted_at>=? ORDER BY posted_at, id`, lower)
	if err != nil {
		return in, fmt.Errorf("load posts: %w", err)
	}
	for rows.Next() {
		var p model.Post
		var platform, ct string
		var at int64
		if err := rows.Scan(&p.ID, &p.AccountID, &platform, &at, &ct, &p.Promotional, &p.LocationID); err != nil {
			rows.Close()
			return in, err
		}
		p.Platform, p.ContentType, p.PostedAt = model.Platform(platform), model.ContentType(ct), time.Unix(at, 0).UTC()
		p.FeaturedItems = items[p.ID]
		in.Posts = append(in.Posts, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return in, err
	}

	rows, err = d.sql.QueryContext(ctx, `SELECT s.post_id, s.metric_date, s.impressions, s.reach, s.likes, s.comments, s.shares, s.saves, s.clicks
	FROM metric_snapshots s JOIN posts p ON p.id=s.post_id WHERE p.posted_at>=? ORDER BY s.post_id, s.metric_date`, lower)
	if err != nil {
		return in, fmt.Errorf("load snapshots: %w", err)
	}
	for rows.Next() {
		var s model.MetricSnapshot
		var day int64
		if err := rows.Scan(&s.PostID, &day, &s.Impressions, &s.Reach, &s.Likes, &s.Comments, &s.Shares, &s.Saves, &s.Clicks); err != nil {
			rows.Close()
			return in, err
		}
		s.Date = time.Unix(day, 0).UTC()
		in.Snapshots = append(in.Snapshots, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return in, err
	}

	items, err = d.itemsByParent(ctx, `SELECT i.order_id, i.item_id FROM order_items i JOIN orders o ON o.id=i.order_id WHERE o.placed_at>=? ORDER BY i.order_id, i.item_id`, orderLower)
	if err != nil {
		return in, fmt.Errorf("load order items: %w", err)
	}
	rows, err = d.sql.QueryContext(ctx, `SELECT id, customer_id, location_id, placed_at, total_cents, signal FROM orders WHERE placed_at>=? ORDER BY placed_at, id`, orderLower)
	if err != nil {
		return in, fmt.Errorf("load orders: %w", err)
	}
	for rows.Next() {
		var o model.Order
		var at int64
		var signal string
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.LocationID, &at, &o.TotalCents, &signal); err != nil {
			rows.Close()
			return in, err
		}
		o.PlacedAt, o.Signal, o.Items = time.Unix(at, 0).UTC(), model.AttributionType(signal), items[o.ID]
		in.Orders = append(in.Orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return in, err
	}

	rows, err = d.sql.QueryContext(ctx, `SELECT id, acquisition_source FROM customers ORDER BY id`)
	if err != nil {
		return in, fmt.Errorf("load customers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c model.Customer
		if err := rows.Scan(&c.ID, &c.AcquisitionSource); err != nil {
			return in, err
		}
		in.Customers = append(in.Customers, c)
	}
	return in, rows.Err()
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func (d *DB) itemsByParent(ctx context.Context, query string, args ...any) (map[string][]string, error) {
	rows, err := d.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]string)
	for rows.Next() {
		var parent, item string
		if err := rows.Scan(&parent, &item); err != nil {
			return nil, err
		}
		out[parent] = append(out[parent], item)
	}
	return out, rows.Err()
}

// SaveAttributions replaces the stored result of every order in results.
func (d *DB) SaveAttributions(ctx context.Context, runID string, results []model.AttributionResult) error {
	return d.tx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO attributions(order_id, run_id, customer_id, post_id, attribution_type, confidence, elapsed_seconds,
		  item_match, reason, platform, content_type, location_id, placed_at, total_cents) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(order_id) DO UPDATE SET run_id=excluded.run_id, customer_id=excluded.customer_id, post_id=excluded.post_id,
		  attribution_type=excluded.attribution_type, confidence=excluded.confidence, elapsed_seconds=excluded.elapsed_seconds,
		  item_match=excluded.item_match, reason=excluded.reason, platform=excluded.platform, content_type=excluded.content_type,
		  location_id=excluded.location_id, placed_at=excluded.placed_at, total_cents=excluded.total_cents`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range results {
			if _, err := stmt.ExecContext(ctx, r.OrderID, runID, r.CustomerID, r.PostID, string(r.Type), string(r.Confidence),
				int64(r.Elapsed/time.Second), r.ItemMatch, r.Reason, string(r.Platform), string(r.ContentType), r.LocationID,
				r.PlacedAt.Unix(), r.TotalCents); err != nil {
				return fmt.Errorf("order %s: %w", r.OrderID, err)
			}
		}
		return nil
	})
}

// LoadAttributions returns stored results with at least minConfidence, by purchase time.
func (d *DB) LoadAttributions(ctx context.Context, minConfidence model.Confidence) ([]model.AttributionResult, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT order_id, customer_id, post_id, attribution_type, confidence, elapsed_seconds, item_match,
	  reason, platform, content_type, location_id, placed_at, total_cents FROM attributions ORDER BY placed_at, order_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AttributionResult
	for rows.Next() {
		var r model.AttributionResult
		var typ, conf, platform, ct string
		var elapsed, at int64
		if err := rows.Scan(&r.OrderID, &r.CustomerID, &r.PostID, &typ, &conf, &elapsed, &r.ItemMatch,
			&r.Reason, &platform, &ct, &r.LocationID, &at, &r.TotalCents); err != nil {
			return nil, err
		}
		r.Type, r.Confidence = model.AttributionType(typ), model.Confidence(conf)
		r.Platform, r.ContentType = model.Platform(platform), model.ContentType(ct)
		r.Elapsed, r.PlacedAt = time.Duration(elapsed)*time.Second, time.Unix(at, 0).UTC()
		if r.Confidence.Rank() >= minConfidence.Rank() {
			out = append(out, r)
		}
	}
	return out, rows.Err()
}

// SaveCursor stores a named progress marker such as the last scheduled run.
func (d *DB) SaveCursor(ctx context.Context, name, value string) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO cursors(name, value) VALUES(?,?) ON CONFLICT(name) DO UPDATE SET value=excluded.value`, name, value)
	return err
}

// LoadCursor returns the stored value or "" when the cursor is unset.
func (d *DB) LoadCursor(ctx context.Context, name string) (string, error) {
	var v string
	err := d.sql.QueryRowContext(ctx, `SELECT value FROM cursors WHERE name=?`, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

func dayUnix(t time.Time) int64 {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix()
}
