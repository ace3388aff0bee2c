package domain

import (
	"sort"
	"time"
)

// InventoryItem is the ledger record for one product. Reserved never exceeds
// Stock.
type InventoryItem struct {
	Stock       int       `json:"stock"`
	Reserved    int       `json:"reserved"`
	Price       int64     `json:"price"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Available returns the quantity that can still be reserved.
func (i InventoryItem) Available() int {
	return i.Stock - i.Reserved
}

// ReserveResult is the answer to a reservation request. Available=false is a
// business outcome, not an error.
type ReserveResult struct {
	Available        bool   `json:"available"`
	ReservedQuantity int    `json:"reservedQuantity"`
	UnitPrice        int64  `json:"unitPrice"`
	ReservationID    string `json:"reservationId,omitempty"`
}

// ReleaseResult reports whether a release found the product.
type ReleaseResult struct {
	Released bool `json:"released"`
}

// ConfirmResult reports whether a confirmation found the product.
type ConfirmResult struct {
	Confirmed bool `json:"confirmed"`
}

// InventoryStats aggregates the whole ledger.
type InventoryStats struct {
	TotalProducts  int `json:"totalProducts"`
	TotalStock     int `json:"totalStock"`
	TotalReserved  int `json:"totalReserved"`
	TotalAvailable int `json:"totalAvailable"`
}

// InventoryView is a single product as reported by status queries.
type InventoryView struct {
	ProductID string `json:"productId"`
	InventoryItem
	Available int `json:"available"`
}

// NewInventoryView flattens an item for reporting.
func NewInventoryView(productID string, item InventoryItem) InventoryView {
	return InventoryView{ProductID: productID, InventoryItem: item, Available: item.Available()}
}

type catalogEntry struct {
	productID string
	stock     int
	price     int64
}

var defaultCatalog = []catalogEntry{
	{"Shirts", 10, 100},
	{"Pants", 20, 200},
	{"Shoes", 30, 300},
	{"Hats", 40, 400},
	{"Socks", 50, 500},
	{"Gloves", 60, 600},
	{"Jackets", 70, 700},
	{"Sweaters", 80, 800},
	{"Jeans", 90, 900},
	{"Dresses", 100, 1000},
}

// DefaultCatalog returns the seed inventory with nothing reserved, stamped
// with now.
func DefaultCatalog(now time.Time) map[string]InventoryItem {
	items := make(map[string]InventoryItem, len(defaultCatalog))
	for _, e := range defaultCatalog {
		items[e.productID] = InventoryItem{Stock: e.stock, Price: e.price, LastUpdated: now}
	}
	return items
}

// CloneInventory returns a copy of items that shares nothing with it.
func CloneInventory(items map[string]InventoryItem) map[string]InventoryItem {
	if items == nil {
		return nil
	}
	out := make(map[string]InventoryItem, len(items))
	for id, item := range items {
		out[id] = item
	}
	return out
}

// SortedProductIDs returns the keys of items in ascending order.
func SortedProductIDs(items map[string]InventoryItem) []string {
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
