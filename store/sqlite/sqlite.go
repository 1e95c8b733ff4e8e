/*
Package sqlite provides a SQLite-backed implementation of the pricing
collaborator interfaces.

PURPOSE:
  Persists room products, per-night inventory, rate plans and promo codes so
  the server keeps its reference data across restarts. The engine only reads
  through the pricing interfaces; writes come from the admin API and
  scenario loading.

INTERFACES IMPLEMENTED:
  pricing.Catalog:           Room products
  pricing.InventoryProvider: Per-night inventory
  pricing.RatePlanProvider:  Rate plans valid on a date
  pricing.PromoRegistry:     Promo lookup and redemption recording

KEY TABLES:
  room_products:     One row per sellable product
  inventory:         One row per (product, night), keyed on the ISO date
  rate_plans:        Plan metadata plus the full plan as config_json
  promo_codes:       The promo as config_json plus a live usage counter
  promo_redemptions: One row per confirmed redemption, for per-guest limits

USAGE COUNTERS:
  promo_codes.current_usage is owned by RecordRedemption. Saving a promo
  again updates its definition but never resets the counter, and the
  increment and the redemption row are written in one transaction.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, WAL mode for concurrent readers.
  ":memory:" databases are pinned to a single connection, since every new
  connection would otherwise see its own empty database.

USAGE:
  store, err := sqlite.New("./data/rates.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := booking.NewEngine(booking.Deps{Catalog: store, Inventory: store, ...}, cfg)

SEE ALSO:
  - pricing/provider.go: Interface definitions
  - pricing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pentouz/rate-engine/pricing"
)

// Store implements the pricing provider interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS room_products (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		max_occupancy INTEGER NOT NULL,
		base_rate INTEGER NOT NULL,
		rate_key TEXT,
		amenities_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- One row per product per night; date is YYYY-MM-DD so it sorts and
	-- compares as a calendar date
	CREATE TABLE IF NOT EXISTS inventory (
		product_id TEXT NOT NULL,
		date TEXT NOT NULL,
		total_units INTEGER NOT NULL,
		sold_units INTEGER NOT NULL DEFAULT 0,
		blocked_units INTEGER NOT NULL DEFAULT 0,
		selling_rate INTEGER NOT NULL,
		extra_adult_rate INTEGER NOT NULL DEFAULT 0,
		extra_child_rate INTEGER NOT NULL DEFAULT 0,
		stop_sell BOOLEAN NOT NULL DEFAULT FALSE,
		closed_to_arrival BOOLEAN NOT NULL DEFAULT FALSE,
		closed_to_departure BOOLEAN NOT NULL DEFAULT FALSE,
		min_stay INTEGER NOT NULL DEFAULT 0,
		max_stay INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (product_id, date)
	);

	CREATE TABLE IF NOT EXISTS rate_plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		valid_from TEXT,
		valid_to TEXT,
		config_json TEXT NOT NULL,
		version INTEGER DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rate_plans_validity
		ON rate_plans(valid_from, valid_to);

	CREATE TABLE IF NOT EXISTS promo_codes (
		code TEXT PRIMARY KEY,
		config_json TEXT NOT NULL,
		current_usage INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS promo_redemptions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL REFERENCES promo_codes(code) ON DELETE CASCADE,
		guest_id TEXT NOT NULL,
		redeemed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_promo_redemptions_guest
		ON promo_redemptions(code, guest_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// =============================================================================
// CATALOG (pricing.Catalog interface)
// =============================================================================

// SaveProduct inserts or replaces a room product.
func (s *Store) SaveProduct(ctx context.Context, p pricing.RoomProduct) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	amenities, err := json.Marshal(p.Amenities)
	if err != nil {
		return fmt.Errorf("failed to encode amenities: %w", err)
	}

	query := `
		INSERT INTO room_products (id, code, name, max_occupancy, base_rate, rate_key, amenities_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			max_occupancy = excluded.max_occupancy,
			base_rate = excluded.base_rate,
			rate_key = excluded.rate_key,
			amenities_json = excluded.amenities_json,
			updated_at = excluded.updated_at
	`
	ts := now()
	_, err = s.db.ExecContext(ctx, query,
		p.ID, p.Code, p.Name, p.MaxOccupancy, int64(p.BaseRate), nullString(p.RateKey), string(amenities), ts, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to save product %s: %w", p.ID, err)
	}
	return nil
}

// Products returns every room product ordered by ID.
func (s *Store) Products(ctx context.Context) ([]pricing.RoomProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, code, name, max_occupancy, base_rate, rate_key, amenities_json FROM room_products ORDER BY id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []pricing.RoomProduct
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// Product returns one product, or ErrProductNotFound.
func (s *Store) Product(ctx context.Context, id pricing.ProductID) (pricing.RoomProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.product(ctx, id)
}

func (s *Store) product(ctx context.Context, id pricing.ProductID) (pricing.RoomProduct, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, code, name, max_occupancy, base_rate, rate_key, amenities_json FROM room_products WHERE id = ?", id,
	)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return pricing.RoomProduct{}, fmt.Errorf("%s: %w", id, pricing.ErrProductNotFound)
	}
	return p, err
}

// DeleteProduct removes a product and its inventory.
func (s *Store) DeleteProduct(ctx context.Context, id pricing.ProductID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM inventory WHERE product_id = ?", id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM room_products WHERE id = ?", id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%s: %w", id, pricing.ErrProductNotFound)
		}
		return nil
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (pricing.RoomProduct, error) {
	var (
		p         pricing.RoomProduct
		baseRate  int64
		rateKey   sql.NullString
		amenities sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Code, &p.Name, &p.MaxOccupancy, &baseRate, &rateKey, &amenities); err != nil {
		return p, err
	}
	p.BaseRate = pricing.Money(baseRate)
	p.RateKey = rateKey.String
	if amenities.Valid && amenities.String != "" && amenities.String != "null" {
		if err := json.Unmarshal([]byte(amenities.String), &p.Amenities); err != nil {
			return p, fmt.Errorf("failed to decode amenities of %s: %w", p.ID, err)
		}
	}
	return p, nil
}

// =============================================================================
// INVENTORY (pricing.InventoryProvider interface)
// =============================================================================

// SaveInventory upserts records in one transaction.
func (s *Store) SaveInventory(ctx context.Context, records []pricing.InventoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			if err := saveInventoryRecord(ctx, tx, r); err != nil {
				return err
			}
		}
		return nil
	})
}

func saveInventoryRecord(ctx context.Context, db execer, r pricing.InventoryRecord) error {
	query := `
		INSERT INTO inventory
		(product_id, date, total_units, sold_units, blocked_units, selling_rate, extra_adult_rate, extra_child_rate,
		 stop_sell, closed_to_arrival, closed_to_departure, min_stay, max_stay, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(product_id, date) DO UPDATE SET
			total_units = excluded.total_units,
			sold_units = excluded.sold_units,
			blocked_units = excluded.blocked_units,
			selling_rate = excluded.selling_rate,
			extra_adult_rate = excluded.extra_adult_rate,
			extra_child_rate = excluded.extra_child_rate,
			stop_sell = excluded.stop_sell,
			closed_to_arrival = excluded.closed_to_arrival,
			closed_to_departure = excluded.closed_to_departure,
			min_stay = excluded.min_stay,
			max_stay = excluded.max_stay,
			updated_at = excluded.updated_at
	`
	_, err := db.ExecContext(ctx, query,
		r.ProductID, r.Date.String(), r.TotalUnits, r.SoldUnits, r.BlockedUnits,
		int64(r.SellingRate), int64(r.ExtraAdultRate), int64(r.ExtraChildRate),
		r.StopSell, r.ClosedToArrival, r.ClosedToDeparture, r.MinStay, r.MaxStay, now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save inventory for %s on %s: %w", r.ProductID, r.Date, err)
	}
	return nil
}

// GetInventory returns one record per night in [start, end). A missing
// night fails the whole call with ErrInventoryMismatch.
func (s *Store) GetInventory(ctx context.Context, productID pricing.ProductID, start, end pricing.Date) ([]pricing.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, date, total_units, sold_units, blocked_units, selling_rate, extra_adult_rate, extra_child_rate,
		       stop_sell, closed_to_arrival, closed_to_departure, min_stay, max_stay
		FROM inventory
		WHERE product_id = ? AND date >= ? AND date < ?
		ORDER BY date`,
		productID, start.String(), end.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []pricing.InventoryRecord
	for rows.Next() {
		var (
			r                     pricing.InventoryRecord
			date                  string
			selling, adult, child int64
		)
		if err := rows.Scan(&r.ProductID, &date, &r.TotalUnits, &r.SoldUnits, &r.BlockedUnits,
			&selling, &adult, &child,
			&r.StopSell, &r.ClosedToArrival, &r.ClosedToDeparture, &r.MinStay, &r.MaxStay); err != nil {
			return nil, err
		}
		if r.Date, err = pricing.ParseDate(date); err != nil {
			return nil, err
		}
		r.SellingRate = pricing.Money(selling)
		r.ExtraAdultRate = pricing.Money(adult)
		r.ExtraChildRate = pricing.Money(child)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if want := pricing.DaysBetween(start, end); len(records) != want {
		return nil, fmt.Errorf("%s: %d of %d nights loaded: %w", productID, len(records), want, pricing.ErrInventoryMismatch)
	}
	return records, nil
}

// =============================================================================
// RATE PLANS (pricing.RatePlanProvider interface)
// =============================================================================

// SaveRatePlan inserts or replaces a plan, bumping its version.
func (s *Store) SaveRatePlan(ctx context.Context, plan pricing.RatePlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	config, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to encode rate plan %s: %w", plan.ID, err)
	}

	query := `
		INSERT INTO rate_plans (id, name, valid_from, valid_to, config_json, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			valid_from = excluded.valid_from,
			valid_to = excluded.valid_to,
			config_json = excluded.config_json,
			version = rate_plans.version + 1,
			updated_at = excluded.updated_at
	`
	ts := now()
	_, err = s.db.ExecContext(ctx, query,
		plan.ID, plan.Name, nullDate(plan.Validity.Start), nullDate(plan.Validity.End), string(config), ts, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to save rate plan %s: %w", plan.ID, err)
	}
	return nil
}

// ListRatePlans returns every plan ordered by ID.
func (s *Store) ListRatePlans(ctx context.Context) ([]pricing.RatePlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryRatePlans(ctx, "SELECT config_json FROM rate_plans ORDER BY id")
}

// GetRatePlans returns the plans valid on date that carry a rate for the
// product's rate key. Plans are not filtered for unknown products.
// Currency is resolved by the caller.
func (s *Store) GetRatePlans(ctx context.Context, productID pricing.ProductID, date pricing.Date, _ pricing.Currency) ([]pricing.RatePlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, err := s.product(ctx, productID)
	known := err == nil
	if err != nil && !errors.Is(err, pricing.ErrProductNotFound) {
		return nil, err
	}

	d := date.String()
	plans, err := s.queryRatePlans(ctx, `
		SELECT config_json FROM rate_plans
		WHERE (valid_from IS NULL OR valid_from <= ?)
		  AND (valid_to IS NULL OR valid_to >= ?)
		ORDER BY id`, d, d)
	if err != nil {
		return nil, err
	}

	if !known {
		return plans, nil
	}
	out := plans[:0]
	for _, p := range plans {
		if _, ok := p.BaseRates[product.PlanKey()]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) queryRatePlans(ctx context.Context, query string, args ...any) ([]pricing.RatePlan, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []pricing.RatePlan
	for rows.Next() {
		var config string
		if err := rows.Scan(&config); err != nil {
			return nil, err
		}
		var plan pricing.RatePlan
		if err := json.Unmarshal([]byte(config), &plan); err != nil {
			return nil, fmt.Errorf("failed to decode rate plan: %w", err)
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

// =============================================================================
// PROMO REGISTRY (pricing.PromoRegistry interface)
// =============================================================================

// SavePromo inserts or updates a promo definition. The usage counter of an
// existing promo is left alone.
func (s *Store) SavePromo(ctx context.Context, promo pricing.PromoCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	promo.Code = pricing.NormalizeCode(promo.Code)
	config, err := json.Marshal(promo)
	if err != nil {
		return fmt.Errorf("failed to encode promo %s: %w", promo.Code, err)
	}

	query := `
		INSERT INTO promo_codes (code, config_json, current_usage, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			config_json = excluded.config_json,
			updated_at = excluded.updated_at
	`
	ts := now()
	if _, err := s.db.ExecContext(ctx, query, promo.Code, string(config), promo.Usage.CurrentUsage, ts, ts); err != nil {
		return fmt.Errorf("failed to save promo %s: %w", promo.Code, err)
	}
	return nil
}

// Lookup returns the promo with its live usage count, or ErrPromoNotFound.
func (s *Store) Lookup(ctx context.Context, code string) (pricing.PromoCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := pricing.NormalizeCode(code)
	var (
		config string
		usage  int
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT config_json, current_usage FROM promo_codes WHERE code = ?", key,
	).Scan(&config, &usage)
	if errors.Is(err, sql.ErrNoRows) {
		return pricing.PromoCode{}, fmt.Errorf("%s: %w", key, pricing.ErrPromoNotFound)
	}
	if err != nil {
		return pricing.PromoCode{}, err
	}

	var promo pricing.PromoCode
	if err := json.Unmarshal([]byte(config), &promo); err != nil {
		return pricing.PromoCode{}, fmt.Errorf("failed to decode promo %s: %w", key, err)
	}
	promo.Usage.CurrentUsage = usage
	return promo, nil
}

// ListPromos returns every promo ordered by code.
func (s *Store) ListPromos(ctx context.Context) ([]pricing.PromoCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT config_json, current_usage FROM promo_codes ORDER BY code")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var promos []pricing.PromoCode
	for rows.Next() {
		var (
			config string
			promo  pricing.PromoCode
			usage  int
		)
		if err := rows.Scan(&config, &usage); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(config), &promo); err != nil {
			return nil, fmt.Errorf("failed to decode promo: %w", err)
		}
		promo.Usage.CurrentUsage = usage
		promos = append(promos, promo)
	}
	return promos, rows.Err()
}

// RecordRedemption increments the promo's usage and records the guest's
// redemption atomically.
func (s *Store) RecordRedemption(ctx context.Context, code string, guestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pricing.NormalizeCode(code)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE promo_codes SET current_usage = current_usage + 1, updated_at = ? WHERE code = ?", now(), key)
		if err != nil {
			return fmt.Errorf("failed to record redemption of %s: %w", key, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%s: %w", key, pricing.ErrPromoNotFound)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO promo_redemptions (code, guest_id, redeemed_at) VALUES (?, ?, ?)", key, guestID, now())
		return err
	})
}

// RedemptionCount returns how many times guestID redeemed code.
func (s *Store) RedemptionCount(ctx context.Context, code string, guestID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM promo_redemptions WHERE code = ? AND guest_id = ?",
		pricing.NormalizeCode(code), guestID,
	).Scan(&n)
	return n, err
}

// =============================================================================
// UTILITIES
// =============================================================================

// withTx runs fn in a database transaction. Callers hold s.mu.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"promo_redemptions", "promo_codes", "rate_plans", "inventory", "room_products"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d pricing.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

var (
	_ pricing.Catalog           = (*Store)(nil)
	_ pricing.InventoryProvider = (*Store)(nil)
	_ pricing.RatePlanProvider  = (*Store)(nil)
	_ pricing.PromoRegistry     = (*Store)(nil)
)
