package position

import (
	"context"

	"github.com/fulfillment/backoffice/internal/domain/ordersync"
)

// CacheTier is the fast tier of the position store. Get returns (nil, nil)
// on a miss; entries carry a multi-day expiry so an idle store's position
// eventually falls back to the durable tier. SetIfNewer is an atomic
// compare-and-set keyed on CapturedAt: it returns
// ordersync.ErrStalePositionWrite when the tier already holds a strictly
// newer position, so two concurrent instances cannot overwrite each other
// with stale data.
type CacheTier interface {
	Get(ctx context.Context, storeCode string) (*ordersync.SyncPosition, error)
	SetIfNewer(ctx context.Context, storeCode string, pos *ordersync.SyncPosition) error
}
