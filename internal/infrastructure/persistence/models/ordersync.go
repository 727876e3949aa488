package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fulfillment/backoffice/internal/domain/ordersync"
)

// StoreModel is the persistence model for an upstream store credential.
type StoreModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	Code       string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_stores_code"`
	Name       string    `gorm:"type:varchar(255);not null"`
	APIBaseURL string    `gorm:"type:varchar(500);not null;column:api_base_url"`
	APIToken   string    `gorm:"type:text;not null;column:api_token"`
	Active     bool      `gorm:"not null;default:true"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StoreModel) TableName() string {
	return "stores"
}

// ToDomain converts the persistence model to a domain StoreCredential.
func (m *StoreModel) ToDomain() *ordersync.StoreCredential {
	return &ordersync.StoreCredential{
		ID:         m.ID,
		Code:       m.Code,
		Name:       m.Name,
		APIBaseURL: m.APIBaseURL,
		APIToken:   m.APIToken,
		Active:     m.Active,
	}
}

// FromDomain populates the persistence model from a domain StoreCredential.
func (m *StoreModel) FromDomain(s *ordersync.StoreCredential) {
	m.ID = s.ID
	m.Code = s.Code
	m.Name = s.Name
	m.APIBaseURL = s.APIBaseURL
	m.APIToken = s.APIToken
	m.Active = s.Active
}

// SyncedOrderModel is the persistence model for one imported upstream order.
// Rows are unique per (store, external ID); re-importing the same order
// refreshes the row instead of duplicating it.
type SyncedOrderModel struct {
	ID            uuid.UUID             `gorm:"type:uuid;primary_key"`
	StoreID       uuid.UUID             `gorm:"type:uuid;not null;uniqueIndex:idx_synced_orders_store_external,priority:1"`
	ExternalID    int64                 `gorm:"not null;uniqueIndex:idx_synced_orders_store_external,priority:2;index:idx_synced_orders_external"`
	Reference     string                `gorm:"type:varchar(100);not null"`
	Status        string                `gorm:"type:varchar(50);not null"`
	CustomerName  string                `gorm:"type:varchar(255)"`
	CustomerPhone string                `gorm:"type:varchar(50)"`
	Wilaya        string                `gorm:"type:varchar(100)"`
	Commune       string                `gorm:"type:varchar(100)"`
	Address       string                `gorm:"type:text"`
	Total         decimal.Decimal       `gorm:"type:decimal(12,2);not null"`
	DeliveryFee   decimal.Decimal       `gorm:"type:decimal(12,2);not null"`
	OrderedAt     time.Time             `gorm:"not null"`
	RawData       string                `gorm:"type:text"`
	FirstSeenAt   time.Time             `gorm:"not null"`
	LastSyncedAt  time.Time             `gorm:"not null"`
	Items         []SyncedOrderItemModel `gorm:"foreignKey:OrderID"`
	CreatedAt     time.Time             `gorm:"not null"`
	UpdatedAt     time.Time             `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncedOrderModel) TableName() string {
	return "synced_orders"
}

// FromSnapshot populates the persistence model from an upstream snapshot.
// Identity fields (ID, StoreID, FirstSeenAt) are left to the repository.
func (m *SyncedOrderModel) FromSnapshot(s *ordersync.OrderSnapshot) {
	m.ExternalID = s.ExternalID
	m.Reference = s.Reference
	m.Status = s.Status
	m.CustomerName = s.CustomerName
	m.CustomerPhone = s.CustomerPhone
	m.Wilaya = s.Wilaya
	m.Commune = s.Commune
	m.Address = s.Address
	m.Total = s.Total
	m.DeliveryFee = s.DeliveryFee
	m.OrderedAt = s.CreatedAt
	m.RawData = s.RawData

	m.Items = make([]SyncedOrderItemModel, 0, len(s.Items))
	for _, item := range s.Items {
		m.Items = append(m.Items, SyncedOrderItemModel{
			ProductRef:  item.ProductRef,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
}

// SyncedOrderItemModel is the persistence model for one line item of an
// imported order.
type SyncedOrderItemModel struct {
	ID          uuid.UUID       `gorm:"type:uuid;primary_key"`
	OrderID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_synced_order_items_order"`
	ProductRef  string          `gorm:"type:varchar(100)"`
	ProductName string          `gorm:"type:varchar(255);not null"`
	Quantity    int             `gorm:"not null"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CreatedAt   time.Time       `gorm:"not null"`
	UpdatedAt   time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncedOrderItemModel) TableName() string {
	return "synced_order_items"
}
