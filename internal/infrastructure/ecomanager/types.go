package ecomanager

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fulfillment/backoffice/internal/domain/ordersync"
)

// ---------------------------------------------------------------------------
// Wire Types
// ---------------------------------------------------------------------------

// orderListResponse is the upstream order list envelope:
// GET /api/orders?per_page=N&page=n&sort=-id
type orderListResponse struct {
	Data []orderPayload `json:"data"`
	Meta listMeta       `json:"meta"`
}

// listMeta carries the upstream pagination cursor.
type listMeta struct {
	CurrentPage int `json:"current_page"`
	NextPage    int `json:"next_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// orderPayload is one raw order as returned by the upstream API.
type orderPayload struct {
	ID            int64            `json:"id"`
	Reference     string           `json:"reference"`
	Status        string           `json:"status"`
	CustomerName  string           `json:"customer_name"`
	CustomerPhone string           `json:"customer_phone"`
	Wilaya        string           `json:"wilaya"`
	Commune       string           `json:"commune"`
	Address       string           `json:"address"`
	Total         decimal.Decimal  `json:"total"`
	DeliveryFee   decimal.Decimal  `json:"delivery_fee"`
	Products      []productPayload `json:"products"`
	CreatedAt     string           `json:"created_at"`
}

// productPayload is one raw line item.
type productPayload struct {
	Reference string          `json:"reference"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// upstreamTimeLayout is the timestamp format the upstream emits.
const upstreamTimeLayout = "2006-01-02 15:04:05"

// ---------------------------------------------------------------------------
// Conversion
// ---------------------------------------------------------------------------

// toSnapshot converts a raw order payload into a domain snapshot.
func (p *orderPayload) toSnapshot() ordersync.OrderSnapshot {
	items := make([]ordersync.OrderItem, 0, len(p.Products))
	for _, prod := range p.Products {
		items = append(items, ordersync.OrderItem{
			ProductRef:  prod.Reference,
			ProductName: prod.Name,
			Quantity:    prod.Quantity,
			UnitPrice:   prod.UnitPrice,
		})
	}

	createdAt, err := time.Parse(upstreamTimeLayout, p.CreatedAt)
	if err != nil {
		// The upstream occasionally emits ISO 8601 on newer endpoints
		createdAt, _ = time.Parse(time.RFC3339, p.CreatedAt)
	}

	raw, _ := json.Marshal(p)
	return ordersync.OrderSnapshot{
		ExternalID:    p.ID,
		Reference:     p.Reference,
		Status:        p.Status,
		CustomerName:  p.CustomerName,
		CustomerPhone: p.CustomerPhone,
		Wilaya:        p.Wilaya,
		Commune:       p.Commune,
		Address:       p.Address,
		Items:         items,
		Total:         p.Total,
		DeliveryFee:   p.DeliveryFee,
		CreatedAt:     createdAt,
		RawData:       string(raw),
	}
}

// toOrderPage normalizes a list response into a domain page. Orders are
// re-sorted by descending external ID; the upstream promises that ordering
// but concurrent inserts at the head can leave a page locally unsorted.
func (r *orderListResponse) toOrderPage(requestedPage int) *ordersync.OrderPage {
	orders := make([]ordersync.OrderSnapshot, 0, len(r.Data))
	for i := range r.Data {
		orders = append(orders, r.Data[i].toSnapshot())
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].ExternalID > orders[j].ExternalID
	})

	page := r.Meta.CurrentPage
	if page == 0 {
		page = requestedPage
	}
	nextPage := r.Meta.NextPage
	if nextPage == 0 {
		nextPage = page + 1
	}
	return &ordersync.OrderPage{
		Orders:   orders,
		Page:     page,
		NextPage: nextPage,
		HasMore:  r.Meta.LastPage > page && len(orders) > 0,
	}
}
