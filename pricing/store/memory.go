// Package store provides in-memory implementations of the pricing
// collaborator interfaces.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pentouz/rate-engine/pricing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	products    map[pricing.ProductID]pricing.RoomProduct
	inventory   map[inventoryKey]pricing.InventoryRecord
	ratePlans   map[string]pricing.RatePlan
	promos      map[string]pricing.PromoCode
	redemptions map[redemptionKey]int
}

type inventoryKey struct {
	ProductID pricing.ProductID
	Date      string
}

type redemptionKey struct {
	Code    string
	GuestID string
}

func NewMemory() *Memory {
	m := &Memory{}
	m.resetLocked()
	return m
}

func (m *Memory) resetLocked() {
	m.products = make(map[pricing.ProductID]pricing.RoomProduct)
	m.inventory = make(map[inventoryKey]pricing.InventoryRecord)
	m.ratePlans = make(map[string]pricing.RatePlan)
	m.promos = make(map[string]pricing.PromoCode)
	m.redemptions = make(map[redemptionKey]int)
}

// Reset drops all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	return nil
}

// =============================================================================
// CATALOG
// =============================================================================

func (m *Memory) SaveProduct(_ context.Context, p pricing.RoomProduct) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	return nil
}

// Products returns all products ordered by ID.
func (m *Memory) Products(_ context.Context) ([]pricing.RoomProduct, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]pricing.RoomProduct, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Product(_ context.Context, id pricing.ProductID) (pricing.RoomProduct, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return pricing.RoomProduct{}, fmt.Errorf("%s: %w", id, pricing.ErrProductNotFound)
	}
	return p, nil
}

// DeleteProduct removes a product and its inventory.
func (m *Memory) DeleteProduct(_ context.Context, id pricing.ProductID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[id]; !ok {
		return fmt.Errorf("%s: %w", id, pricing.ErrProductNotFound)
	}
	delete(m.products, id)
	for k := range m.inventory {
		if k.ProductID == id {
			delete(m.inventory, k)
		}
	}
	return nil
}

// =============================================================================
// INVENTORY
// =============================================================================

// SaveInventory upserts records keyed by (product, date).
func (m *Memory) SaveInventory(_ context.Context, records []pricing.InventoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.inventory[inventoryKey{ProductID: r.ProductID, Date: r.Date.String()}] = r
	}
	return nil
}

// GetInventory returns one record per night in [start, end), or an error if
// any night has no record.
func (m *Memory) GetInventory(_ context.Context, productID pricing.ProductID, start, end pricing.Date) ([]pricing.InventoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []pricing.InventoryRecord
	for d := start; d.Before(end); d = d.AddDays(1) {
		rec, ok := m.inventory[inventoryKey{ProductID: productID, Date: d.String()}]
		if !ok {
			return nil, fmt.Errorf("no inventory for %s on %s: %w", productID, d, pricing.ErrInventoryMismatch)
		}
		out = append(out, rec)
	}
	return out, nil
}

// =============================================================================
// RATE PLANS
// =============================================================================

func (m *Memory) SaveRatePlan(_ context.Context, plan pricing.RatePlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ratePlans[plan.ID] = plan
	return nil
}

func (m *Memory) ListRatePlans(_ context.Context) ([]pricing.RatePlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]pricing.RatePlan, 0, len(m.ratePlans))
	for _, p := range m.ratePlans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetRatePlans returns the plans valid on date that price the product.
// Currency filtering and conversion are left to the resolver.
func (m *Memory) GetRatePlans(_ context.Context, productID pricing.ProductID, date pricing.Date, _ pricing.Currency) ([]pricing.RatePlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	product, known := m.products[productID]

	var out []pricing.RatePlan
	for _, p := range m.ratePlans {
		if !p.Validity.Contains(date) {
			continue
		}
		if known {
			if _, ok := p.BaseRates[product.PlanKey()]; !ok {
				continue
			}
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// PROMO REGISTRY
// =============================================================================

// SavePromo creates or replaces a promo definition. Replacing keeps the
// stored usage counter; only RecordRedemption moves it.
func (m *Memory) SavePromo(_ context.Context, promo pricing.PromoCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pricing.NormalizeCode(promo.Code)
	promo.Code = key
	if existing, ok := m.promos[key]; ok {
		promo.Usage.CurrentUsage = existing.Usage.CurrentUsage
	}
	m.promos[key] = promo
	return nil
}

func (m *Memory) Lookup(_ context.Context, code string) (pricing.PromoCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	promo, ok := m.promos[pricing.NormalizeCode(code)]
	if !ok {
		return pricing.PromoCode{}, fmt.Errorf("%s: %w", code, pricing.ErrPromoNotFound)
	}
	return promo, nil
}

// ListPromos returns every promo ordered by code.
func (m *Memory) ListPromos(_ context.Context) ([]pricing.PromoCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]pricing.PromoCode, 0, len(m.promos))
	for _, p := range m.promos {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// RecordRedemption bumps the promo's usage and the guest's redemption count.
func (m *Memory) RecordRedemption(_ context.Context, code string, guestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pricing.NormalizeCode(code)
	promo, ok := m.promos[key]
	if !ok {
		return fmt.Errorf("%s: %w", code, pricing.ErrPromoNotFound)
	}
	promo.Usage.CurrentUsage++
	m.promos[key] = promo
	m.redemptions[redemptionKey{Code: key, GuestID: guestID}]++
	return nil
}

// RedemptionCount returns how many times guestID redeemed code.
func (m *Memory) RedemptionCount(_ context.Context, code string, guestID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.redemptions[redemptionKey{Code: pricing.NormalizeCode(code), GuestID: guestID}], nil
}

var (
	_ pricing.Catalog           = (*Memory)(nil)
	_ pricing.InventoryProvider = (*Memory)(nil)
	_ pricing.RatePlanProvider  = (*Memory)(nil)
	_ pricing.PromoRegistry     = (*Memory)(nil)
)
