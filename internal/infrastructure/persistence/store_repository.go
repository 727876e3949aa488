package persistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/fulfillment/backoffice/internal/domain/ordersync"
	"github.com/fulfillment/backoffice/internal/infrastructure/persistence/models"
)

// GormStoreRepository implements ordersync.StoreDirectory using GORM
type GormStoreRepository struct {
	db *gorm.DB
}

// NewGormStoreRepository creates a new GormStoreRepository
func NewGormStoreRepository(db *gorm.DB) *GormStoreRepository {
	return &GormStoreRepository{db: db}
}

// ListActive returns all stores enabled for synchronization, ordered by code.
func (r *GormStoreRepository) ListActive(ctx context.Context) ([]*ordersync.StoreCredential, error) {
	var rows []models.StoreModel
	if err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("code ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("persistence: failed to list active stores: %w", err)
	}

	stores := make([]*ordersync.StoreCredential, 0, len(rows))
	for i := range rows {
		stores = append(stores, rows[i].ToDomain())
	}
	return stores, nil
}

// FindByCode returns the store with the given code.
func (r *GormStoreRepository) FindByCode(ctx context.Context, code string) (*ordersync.StoreCredential, error) {
	var row models.StoreModel
	if err := r.db.WithContext(ctx).
		Where("code = ?", code).
		First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ordersync.ErrStoreNotConfigured
		}
		return nil, fmt.Errorf("persistence: failed to find store %s: %w", code, err)
	}
	return row.ToDomain(), nil
}

// Save creates or updates a store credential.
func (r *GormStoreRepository) Save(ctx context.Context, store *ordersync.StoreCredential) error {
	if err := store.Validate(); err != nil {
		return err
	}

	var row models.StoreModel
	row.FromDomain(store)
	if err := r.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("persistence: failed to save store %s: %w", store.Code, err)
	}
	return nil
}

// Ensure GormStoreRepository implements the domain port
var _ ordersync.StoreDirectory = (*GormStoreRepository)(nil)
