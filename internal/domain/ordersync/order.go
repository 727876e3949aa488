package ordersync

import (
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Upstream Order Status
// ---------------------------------------------------------------------------

// Well-known status labels on the upstream platform. The upstream exposes
// free-form French labels; only StatusDispatch marks an order ready to be
// pulled into the back office.
const (
	// StatusDispatch marks an order ready for import ("En dispatch")
	StatusDispatch = "En dispatch"
	// StatusPreparation indicates the order is still being prepared upstream
	StatusPreparation = "En préparation"
	// StatusConfirmed indicates the order is confirmed but not yet dispatchable
	StatusConfirmed = "Confirmé"
	// StatusCancelled indicates the order was cancelled upstream
	StatusCancelled = "Annulé"
	// StatusReturned indicates the order was returned
	StatusReturned = "Retourné"
)

// IsImportable returns true if an upstream status label marks an order
// as ready to be imported into the local system.
func IsImportable(status string) bool {
	return status == StatusDispatch
}

// ---------------------------------------------------------------------------
// Order Snapshot
// ---------------------------------------------------------------------------

// OrderSnapshot is one order as observed on the upstream platform at fetch
// time. Snapshots are transient: they are produced per fetched page, filtered
// and deduplicated, handed to the Persister, and not retained by the engine.
type OrderSnapshot struct {
	// ExternalID is the order's numeric ID on the upstream platform.
	// IDs are assigned monotonically upstream; pagination is ordered by
	// descending ExternalID.
	ExternalID int64
	// Reference is the upstream order reference code (human-facing)
	Reference string
	// Status is the raw upstream status label at fetch time
	Status string
	// CustomerName is the buyer's full name
	CustomerName string
	// CustomerPhone is the buyer's phone number
	CustomerPhone string
	// Wilaya is the delivery province
	Wilaya string
	// Commune is the delivery commune/municipality
	Commune string
	// Address is the detailed delivery address
	Address string
	// Items contains the order line items
	Items []OrderItem
	// Total is the total order amount
	Total decimal.Decimal
	// DeliveryFee is the shipping fee charged to the buyer
	DeliveryFee decimal.Decimal
	// CreatedAt is when the order was created on the upstream platform
	CreatedAt time.Time
	// RawData is the original upstream JSON for this order
	RawData string
}

// OrderItem is a line item in an upstream order snapshot.
type OrderItem struct {
	// ProductRef is the upstream product reference/SKU
	ProductRef string
	// ProductName is the product name as listed upstream
	ProductName string
	// Quantity is the ordered quantity
	Quantity int
	// UnitPrice is the unit price
	UnitPrice decimal.Decimal
}

// Importable returns true if the snapshot's status makes it eligible for import.
func (o *OrderSnapshot) Importable() bool {
	return IsImportable(o.Status)
}

// ---------------------------------------------------------------------------
// Order Page
// ---------------------------------------------------------------------------

// OrderPage is one normalized page of upstream orders, newest-first
// (descending ExternalID).
type OrderPage struct {
	// Orders are the snapshots on this page, ordered by descending ExternalID
	Orders []OrderSnapshot
	// Page is the 1-indexed page number this response corresponds to
	Page int
	// NextPage is the next page number when HasMore is true
	NextPage int
	// HasMore indicates whether pages exist past this one
	HasMore bool
}

// Empty returns true if the page carries no orders.
func (p *OrderPage) Empty() bool {
	return len(p.Orders) == 0
}

// FirstID returns the highest (newest) external ID on the page, 0 if empty.
func (p *OrderPage) FirstID() int64 {
	if len(p.Orders) == 0 {
		return 0
	}
	return p.Orders[0].ExternalID
}

// LastID returns the lowest (oldest) external ID on the page, 0 if empty.
func (p *OrderPage) LastID() int64 {
	if len(p.Orders) == 0 {
		return 0
	}
	return p.Orders[len(p.Orders)-1].ExternalID
}

// Brackets returns true if id falls within the page's inclusive ID range.
func (p *OrderPage) Brackets(id int64) bool {
	if p.Empty() {
		return false
	}
	return p.LastID() <= id && id <= p.FirstID()
}

// Contains returns true if an order with the given external ID is on the page.
func (p *OrderPage) Contains(id int64) bool {
	for i := range p.Orders {
		if p.Orders[i].ExternalID == id {
			return true
		}
	}
	return false
}
