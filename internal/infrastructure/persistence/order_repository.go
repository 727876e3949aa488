package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fulfillment/backoffice/internal/domain/ordersync"
	"github.com/fulfillment/backoffice/internal/infrastructure/persistence/models"
)

// GormOrderRepository implements ordersync.Persister using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Upsert stores or refreshes one order snapshot, keyed by (store, external
// ID). A snapshot seen before refreshes the existing row and replaces its
// line items; identity fields and FirstSeenAt are preserved.
func (r *GormOrderRepository) Upsert(ctx context.Context, storeID uuid.UUID, snapshot *ordersync.OrderSnapshot) (ordersync.UpsertOutcome, error) {
	now := time.Now()
	outcome := ordersync.UpsertCreated

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.SyncedOrderModel
		err := tx.Where("store_id = ? AND external_id = ?", storeID, snapshot.ExternalID).
			First(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if errors.Is(err, gorm.ErrRecordNotFound) {
			row := models.SyncedOrderModel{
				ID:           uuid.New(),
				StoreID:      storeID,
				FirstSeenAt:  now,
				LastSyncedAt: now,
			}
			row.FromSnapshot(snapshot)
			for i := range row.Items {
				row.Items[i].ID = uuid.New()
				row.Items[i].OrderID = row.ID
			}
			return tx.Create(&row).Error
		}

		outcome = ordersync.UpsertUpdated

		updated := models.SyncedOrderModel{
			ID:           existing.ID,
			StoreID:      existing.StoreID,
			FirstSeenAt:  existing.FirstSeenAt,
			LastSyncedAt: now,
			CreatedAt:    existing.CreatedAt,
		}
		updated.FromSnapshot(snapshot)
		items := updated.Items
		updated.Items = nil
		if err := tx.Model(&models.SyncedOrderModel{}).
			Where("id = ?", existing.ID).
			Select("*").Omit("id", "created_at", "Items").
			Updates(&updated).Error; err != nil {
			return err
		}

		// Replace line items wholesale; upstream sends the full set each time
		if err := tx.Where("order_id = ?", existing.ID).
			Delete(&models.SyncedOrderItemModel{}).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].ID = uuid.New()
			items[i].OrderID = existing.ID
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("persistence: failed to upsert order %d: %w", snapshot.ExternalID, err)
	}
	return outcome, nil
}

// Exists returns the subset of externalIDs already persisted for the store,
// mapped to their recorded status labels.
func (r *GormOrderRepository) Exists(ctx context.Context, storeID uuid.UUID, externalIDs []int64) (map[int64]string, error) {
	found := make(map[int64]string, len(externalIDs))
	if len(externalIDs) == 0 {
		return found, nil
	}

	var rows []struct {
		ExternalID int64
		Status     string
	}
	if err := r.db.WithContext(ctx).
		Model(&models.SyncedOrderModel{}).
		Select("external_id", "status").
		Where("store_id = ? AND external_id IN ?", storeID, externalIDs).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("persistence: failed to query existing orders: %w", err)
	}

	for _, row := range rows {
		found[row.ExternalID] = row.Status
	}
	return found, nil
}

// LatestExternalID returns the highest persisted external ID for the store,
// 0 when the store has no orders yet.
func (r *GormOrderRepository) LatestExternalID(ctx context.Context, storeID uuid.UUID) (int64, error) {
	var latest *int64
	if err := r.db.WithContext(ctx).
		Model(&models.SyncedOrderModel{}).
		Select("MAX(external_id)").
		Where("store_id = ?", storeID).
		Scan(&latest).Error; err != nil {
		return 0, fmt.Errorf("persistence: failed to query latest external ID: %w", err)
	}
	if latest == nil {
		return 0, nil
	}
	return *latest, nil
}

// Ensure GormOrderRepository implements the domain port
var _ ordersync.Persister = (*GormOrderRepository)(nil)
