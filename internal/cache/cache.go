package cache

import (
	"context"
	"time"
)

// Views whose cached reads go stale after a write.
const (
	ViewDashboard           = "dashboard"
	ViewPOS                 = "pos"
	ViewTransactions        = "transactions"
	ViewPurchaseOrderDetail = "purchase_order_detail"
)

const InvalidationChannel = "outletpos:views:invalidate"

// Invalidation is the message published when a tenant's views go stale.
type Invalidation struct {
	TenantID string    `json:"tenant_id"`
	Views    []string  `json:"views"`
	At       time.Time `json:"at"`
}

// ViewCache stores computed read models per tenant and view. Invalidate makes
// every entry of the named views unreachable for that tenant.
//
// Get reports the generation it looked at. Set stores under that generation,
// so a value loaded before an Invalidate is never readable after it.
type ViewCache interface {
	Get(ctx context.Context, tenantID string, view string, key string, dest any) (generation int64, hit bool, err error)
	Set(ctx context.Context, tenantID string, view string, key string, generation int64, value any, ttl time.Duration) error
	Invalidate(ctx context.Context, tenantID string, views ...string) error
}

type NoopViewCache struct{}

func (NoopViewCache) Get(_ context.Context, _ string, _ string, _ string, _ any) (int64, bool, error) {
	return 0, false, nil
}

func (NoopViewCache) Set(_ context.Context, _ string, _ string, _ string, _ int64, _ any, _ time.Duration) error {
	return nil
}

func (NoopViewCache) Invalidate(_ context.Context, _ string, _ ...string) error {
	return nil
}
