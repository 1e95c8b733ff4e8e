/*
provider.go - Collaborator interfaces consumed by the engine

PURPOSE:
  The engine never owns inventory, rate plans or promo codes. It reads
  them through these interfaces, which are the only places execution may
  block. Implementations live outside the engine:
  - pricing/store/memory.go: In-memory, for tests and local runs
  - store/sqlite/sqlite.go: SQLite-backed
  - store/rediscache: Read-through cache around any InventoryProvider

READ-ONLY CONTRACT:
  Records returned by providers are treated as immutable reference data.
  The engine never writes back, and promo usage counters change only via
  PromoRegistry.RecordRedemption after an external booking confirmation.
*/
package pricing

import "context"

// Catalog lists the room products that can be searched.
type Catalog interface {
	Products(ctx context.Context) ([]RoomProduct, error)
}

// InventoryProvider returns per-night inventory.
type InventoryProvider interface {
	// GetInventory returns exactly one record per date in [start, end),
	// ordered by date, or an error.
	GetInventory(ctx context.Context, productID ProductID, start, end Date) ([]InventoryRecord, error)
}

// RatePlanProvider returns the rate plans that may price a product on a date.
type RatePlanProvider interface {
	GetRatePlans(ctx context.Context, productID ProductID, date Date, currency Currency) ([]RatePlan, error)
}

// PromoRegistry resolves promo codes.
type PromoRegistry interface {
	// Lookup returns ErrPromoNotFound for unknown codes.
	Lookup(ctx context.Context, code string) (PromoCode, error)

	// RecordRedemption is called only after an external booking
	// confirmation. The engine itself never calls it.
	RecordRedemption(ctx context.Context, code string, guestID string) error
}

// CurrencyConverter converts amounts with externally supplied rates.
// Implementations must be pure.
type CurrencyConverter interface {
	Convert(amount Money, from, to Currency) (Money, error)
}
