package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"outletpos/internal/domain"
	"outletpos/internal/store"
)

var _ store.Repository = (*Store)(nil)

func checkoutOrder(items ...domain.OrderItem) domain.Order {
	return domain.Order{
		TenantID:      DemoTenantID,
		OutletID:      DemoCentralOutlet,
		StaffID:       DemoCashierID,
		PaymentMethod: "cash",
		Items:         items,
	}
}

func TestCreateCheckoutDecrementsStockAndRecordsMovements(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	order := checkoutOrder(
		domain.OrderItem{ProductID: "prd_mie", Quantity: 3, Price: 3500},
		domain.OrderItem{ProductID: "prd_kopi", Quantity: 2, Price: 2600},
	)
	order.GrandTotal = 15700

	saved, err := s.CreateCheckout(ctx, order)
	require.NoError(t, err)
	require.Equal(t, int64(3*3500+2*2600), saved.TotalAmount)
	require.Equal(t, domain.OrderStatusCompleted, saved.Status)
	for _, item := range saved.Items {
		require.Equal(t, DemoTenantID, item.TenantID)
		require.Equal(t, saved.ID, item.OrderID)
	}

	stock, err := s.GetStockMap(ctx, DemoTenantID, DemoCentralOutlet, []string{"prd_mie", "prd_kopi"})
	require.NoError(t, err)
	require.Equal(t, demoInitialStock-3, stock["prd_mie"])
	require.Equal(t, demoInitialStock-2, stock["prd_kopi"])

	north, err := s.GetStockMap(ctx, DemoTenantID, DemoNorthOutlet, []string{"prd_mie"})
	require.NoError(t, err)
	require.Equal(t, demoNorthStock, north["prd_mie"])

	movements, err := s.ListStockMovements(ctx, DemoTenantID, DemoCentralOutlet, "prd_mie", 10)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.Equal(t, domain.MovementSale, movements[0].Kind)
	require.Equal(t, -3, movements[0].QuantityChange)
	require.Equal(t, saved.ID, movements[0].ReferenceID)
}

func TestCreateCheckoutIsAllOrNothing(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	_, err := s.CreateCheckout(ctx, checkoutOrder(
		domain.OrderItem{ProductID: "prd_mie", Quantity: 5, Price: 3500},
		domain.OrderItem{ProductID: "prd_kopi", Quantity: demoInitialStock + 1, Price: 2600},
	))
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	var shortfall *store.InsufficientStockError
	require.True(t, errors.As(err, &shortfall))
	require.Equal(t, "prd_kopi", shortfall.ProductID)
	require.Equal(t, demoInitialStock, shortfall.Available)
	require.Equal(t, demoInitialStock+1, shortfall.Requested)

	stock, err := s.GetStockMap(ctx, DemoTenantID, DemoCentralOutlet, []string{"prd_mie", "prd_kopi"})
	require.NoError(t, err)
	require.Equal(t, demoInitialStock, stock["prd_mie"])
	require.Equal(t, demoInitialStock, stock["prd_kopi"])

	orders, err := s.ListOrders(ctx, DemoTenantID, "", 10)
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestCreateCheckoutTreatsMissingStockRecordAsZero(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	product, err := s.CreateProduct(ctx, domain.Product{TenantID: DemoTenantID, Name: "Baru", Price: 1000, Active: true})
	require.NoError(t, err)

	_, err = s.CreateCheckout(ctx, checkoutOrder(domain.OrderItem{ProductID: product.ID, Quantity: 1, Price: 1000}))
	var shortfall *store.InsufficientStockError
	require.True(t, errors.As(err, &shortfall))
	require.Equal(t, 0, shortfall.Available)
}

func TestCreateCheckoutAggregatesDuplicateLines(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	_, err := s.CreateCheckout(ctx, checkoutOrder(
		domain.OrderItem{ProductID: "prd_mie", Quantity: demoInitialStock, Price: 3500},
		domain.OrderItem{ProductID: "prd_mie", Quantity: 1, Price: 3500},
	))
	require.ErrorIs(t, err, store.ErrInsufficientStock)
}

func TestCreateCheckoutRejectsReusedIdempotencyKey(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	order := checkoutOrder(domain.OrderItem{ProductID: "prd_teh", Quantity: 1, Price: 9800})
	order.IdempotencyKey = "idem-1"
	first, err := s.CreateCheckout(ctx, order)
	require.NoError(t, err)

	_, err = s.CreateCheckout(ctx, order)
	require.ErrorIs(t, err, store.ErrConflict)

	found, err := s.FindOrderByIdempotency(ctx, DemoTenantID, "idem-1")
	require.NoError(t, err)
	require.Equal(t, first.ID, found.ID)

	_, err = s.FindOrderByIdempotency(ctx, "tnt_other", "idem-1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateCheckoutCreditsCustomer(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	order := checkoutOrder(domain.OrderItem{ProductID: "prd_gula", Quantity: 1, Price: 17400})
	order.CustomerID = DemoCustomerID
	order.GrandTotal = 19314
	_, err := s.CreateCheckout(ctx, order)
	require.NoError(t, err)

	customer, err := s.GetCustomer(ctx, DemoTenantID, DemoCustomerID)
	require.NoError(t, err)
	require.Equal(t, int64(19314), customer.TotalSpent)
}

func TestAdjustStockModes(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	adj := domain.StockAdjustment{TenantID: DemoTenantID, OutletID: DemoNorthOutlet, ProductID: "prd_air", StaffID: DemoOwnerID}

	adj.Mode, adj.Quantity = domain.AdjustAdd, 10
	record, err := s.AdjustStock(ctx, adj)
	require.NoError(t, err)
	require.Equal(t, demoNorthStock+10, record.Quantity)

	adj.Mode, adj.Quantity = domain.AdjustSubtract, 1000
	record, err = s.AdjustStock(ctx, adj)
	require.NoError(t, err)
	require.Equal(t, 0, record.Quantity)

	adj.Mode, adj.Quantity = domain.AdjustSet, 7
	record, err = s.AdjustStock(ctx, adj)
	require.NoError(t, err)
	require.Equal(t, 7, record.Quantity)

	adj.Mode = "bogus"
	_, err = s.AdjustStock(ctx, adj)
	require.ErrorIs(t, err, store.ErrInvalidInput)

	movements, err := s.ListStockMovements(ctx, DemoTenantID, DemoNorthOutlet, "prd_air", 0)
	require.NoError(t, err)
	require.Len(t, movements, 3)
	require.Equal(t, domain.MovementAdjustSet, movements[0].Kind)
	require.Equal(t, -(demoNorthStock + 10), movements[1].QuantityChange)
}

func TestAdjustStockRejectsForeignOutlet(t *testing.T) {
	s := NewSeeded()
	_, err := s.AdjustStock(context.Background(), domain.StockAdjustment{
		TenantID: "tnt_other", OutletID: DemoCentralOutlet, ProductID: "prd_mie", Mode: domain.AdjustAdd, Quantity: 1,
	})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAdjustStockRejectsLevelsPastColumnRange(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	adj := domain.StockAdjustment{
		TenantID: DemoTenantID, OutletID: DemoCentralOutlet, ProductID: "prd_mie",
		Mode: domain.AdjustSet, Quantity: domain.MaxStockQuantity,
	}
	_, err := s.AdjustStock(ctx, adj)
	require.NoError(t, err)

	adj.Mode, adj.Quantity = domain.AdjustAdd, 1
	_, err = s.AdjustStock(ctx, adj)
	require.ErrorIs(t, err, store.ErrInvalidInput)

	adj.Mode, adj.Quantity = domain.AdjustSet, domain.MaxStockQuantity+1
	_, err = s.AdjustStock(ctx, adj)
	require.ErrorIs(t, err, store.ErrInvalidInput)

	stock, err := s.GetStockMap(ctx, DemoTenantID, DemoCentralOutlet, []string{"prd_mie"})
	require.NoError(t, err)
	require.Equal(t, domain.MaxStockQuantity, stock["prd_mie"])
}

func newOrderedPO(t *testing.T, s *Store) *domain.PurchaseOrder {
	t.Helper()
	po, err := s.CreatePurchaseOrder(context.Background(), domain.PurchaseOrder{
		TenantID:   DemoTenantID,
		SupplierID: DemoSupplierID,
		Status:     domain.PurchaseOrderOrdered,
		CreatedBy:  DemoOwnerID,
		Items: []domain.PurchaseOrderItem{
			{ProductID: "prd_mie", Quantity: 50, UnitCost: 2800},
			{ProductID: "prd_teh", Quantity: 10, UnitCost: 7000},
		},
	})
	require.NoError(t, err)
	return po
}

func TestCreatePurchaseOrderComputesTotalCost(t *testing.T) {
	s := NewSeeded()
	po := newOrderedPO(t, s)
	require.Equal(t, int64(50*2800+10*7000), po.TotalCost)
	require.Len(t, po.Items, 2)
	require.Empty(t, po.OutletID)

	_, err := s.CreatePurchaseOrder(context.Background(), domain.PurchaseOrder{
		TenantID:   DemoTenantID,
		SupplierID: DemoSupplierID,
		Items:      []domain.PurchaseOrderItem{{ProductID: "prd_missing", Quantity: 1, UnitCost: 1}},
	})
	require.ErrorIs(t, err, store.ErrNotFound)

	list, err := s.ListPurchaseOrders(context.Background(), DemoTenantID, "", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestReceivePurchaseOrderAddsStockAndCost(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	po := newOrderedPO(t, s)

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	receipt, err := s.ReceivePurchaseOrder(ctx, store.ReceiveCommand{
		TenantID: DemoTenantID, PurchaseOrderID: po.ID, OutletID: DemoNorthOutlet, ReceivedBy: DemoOwnerID, ReceivedAt: at,
	})
	require.NoError(t, err)
	require.Empty(t, receipt.CostUpdateFailures)
	require.Equal(t, domain.PurchaseOrderReceived, receipt.PurchaseOrder.Status)
	require.Equal(t, DemoNorthOutlet, receipt.PurchaseOrder.OutletID)
	require.Equal(t, at, *receipt.PurchaseOrder.ReceivedAt)

	stock, err := s.GetStockMap(ctx, DemoTenantID, DemoNorthOutlet, []string{"prd_mie", "prd_teh"})
	require.NoError(t, err)
	require.Equal(t, demoNorthStock+50, stock["prd_mie"])
	require.Equal(t, demoNorthStock+10, stock["prd_teh"])

	product, err := s.GetProduct(ctx, DemoTenantID, "prd_mie")
	require.NoError(t, err)
	require.Equal(t, int64(2800), product.CostPrice)

	_, err = s.ReceivePurchaseOrder(ctx, store.ReceiveCommand{TenantID: DemoTenantID, PurchaseOrderID: po.ID, OutletID: DemoNorthOutlet})
	require.ErrorIs(t, err, store.ErrConflict)
	require.Contains(t, err.Error(), "already processed")

	stock, err = s.GetStockMap(ctx, DemoTenantID, DemoNorthOutlet, []string{"prd_mie"})
	require.NoError(t, err)
	require.Equal(t, demoNorthStock+50, stock["prd_mie"])
}

func TestReceivePurchaseOrderReportsCostFailuresWithoutRollingBackStock(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	po := newOrderedPO(t, s)
	s.FailCostUpdatesFor(errors.New("cost column locked"), "prd_teh")

	receipt, err := s.ReceivePurchaseOrder(ctx, store.ReceiveCommand{
		TenantID: DemoTenantID, PurchaseOrderID: po.ID, OutletID: DemoCentralOutlet, ReceivedBy: DemoOwnerID,
	})
	require.NoError(t, err)
	require.Len(t, receipt.CostUpdateFailures, 1)
	require.Equal(t, "prd_teh", receipt.CostUpdateFailures[0].ProductID)
	require.Equal(t, "cost column locked", receipt.CostUpdateFailures[0].Reason)

	teh, err := s.GetProduct(ctx, DemoTenantID, "prd_teh")
	require.NoError(t, err)
	require.Equal(t, int64(7200), teh.CostPrice)

	stock, err := s.GetStockMap(ctx, DemoTenantID, DemoCentralOutlet, []string{"prd_teh"})
	require.NoError(t, err)
	require.Equal(t, demoInitialStock+10, stock["prd_teh"])
}

func TestReceivePurchaseOrderRejectsStockOverflowAtomically(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	po := newOrderedPO(t, s)

	_, err := s.AdjustStock(ctx, domain.StockAdjustment{
		TenantID: DemoTenantID, OutletID: DemoNorthOutlet, ProductID: "prd_teh",
		Mode: domain.AdjustSet, Quantity: domain.MaxStockQuantity - 5,
	})
	require.NoError(t, err)

	_, err = s.ReceivePurchaseOrder(ctx, store.ReceiveCommand{
		TenantID: DemoTenantID, PurchaseOrderID: po.ID, OutletID: DemoNorthOutlet, ReceivedBy: DemoOwnerID,
	})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	stock, err := s.GetStockMap(ctx, DemoTenantID, DemoNorthOutlet, []string{"prd_mie", "prd_teh"})
	require.NoError(t, err)
	require.Equal(t, demoNorthStock, stock["prd_mie"])
	require.Equal(t, domain.MaxStockQuantity-5, stock["prd_teh"])

	stored, err := s.GetPurchaseOrder(ctx, DemoTenantID, po.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PurchaseOrderOrdered, stored.Status)
}

func TestCreatePurchaseOrderRejectsOversizedLines(t *testing.T) {
	s := NewSeeded()
	_, err := s.CreatePurchaseOrder(context.Background(), domain.PurchaseOrder{
		TenantID:   DemoTenantID,
		SupplierID: DemoSupplierID,
		Items:      []domain.PurchaseOrderItem{{ProductID: "prd_mie", Quantity: domain.MaxLineQuantity + 1, UnitCost: 1}},
	})
	require.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestReceivePurchaseOrderRejectsDraftAndMissing(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	draft, err := s.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		TenantID:   DemoTenantID,
		SupplierID: DemoSupplierID,
		Items:      []domain.PurchaseOrderItem{{ProductID: "prd_mie", Quantity: 1, UnitCost: 2000}},
	})
	require.NoError(t, err)
	require.Equal(t, domain.PurchaseOrderDraft, draft.Status)

	_, err = s.ReceivePurchaseOrder(ctx, store.ReceiveCommand{TenantID: DemoTenantID, PurchaseOrderID: draft.ID, OutletID: DemoCentralOutlet})
	require.ErrorIs(t, err, store.ErrConflict)

	_, err = s.ReceivePurchaseOrder(ctx, store.ReceiveCommand{TenantID: DemoTenantID, PurchaseOrderID: "po_missing", OutletID: DemoCentralOutlet})
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.ReceivePurchaseOrder(ctx, store.ReceiveCommand{TenantID: "tnt_other", PurchaseOrderID: draft.ID, OutletID: DemoCentralOutlet})
	require.ErrorIs(t, err, store.ErrNotFound)

	ordered, err := s.MarkPurchaseOrderOrdered(ctx, DemoTenantID, draft.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PurchaseOrderOrdered, ordered.Status)

	_, err = s.MarkPurchaseOrderOrdered(ctx, DemoTenantID, draft.ID)
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestListLowStockIncludesProductsWithoutRecord(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	product, err := s.CreateProduct(ctx, domain.Product{TenantID: DemoTenantID, Name: "Kosong", Price: 500, Active: true})
	require.NoError(t, err)

	low, err := s.ListLowStock(ctx, DemoTenantID, DemoCentralOutlet, 5)
	require.NoError(t, err)
	require.Len(t, low, 1)
	require.Equal(t, product.ID, low[0].ProductID)
	require.Equal(t, 0, low[0].Quantity)
}

func TestSalesSummaryWindow(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	order := checkoutOrder(domain.OrderItem{ProductID: "prd_coklat", Quantity: 2, Price: 8600})
	order.GrandTotal = 17200
	_, err := s.CreateCheckout(ctx, order)
	require.NoError(t, err)

	now := time.Now().UTC()
	summary, err := s.GetSalesSummary(ctx, DemoTenantID, DemoCentralOutlet, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, summary.OrderCount)
	require.Equal(t, 2, summary.ItemsSold)
	require.Equal(t, int64(17200), summary.ByPaymentMethod["cash"])

	summary, err = s.GetSalesSummary(ctx, DemoTenantID, DemoNorthOutlet, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Zero(t, summary.OrderCount)
}

func TestStaffLookupIsCaseInsensitive(t *testing.T) {
	s := NewSeeded()
	staff, err := s.GetStaffByUsername(context.Background(), " Cashier ")
	require.NoError(t, err)
	require.Equal(t, DemoCashierID, staff.ID)
	require.Equal(t, DemoCentralOutlet, staff.OutletID)

	_, err = s.CreateStaff(context.Background(), domain.Staff{TenantID: DemoTenantID, Username: "CASHIER", Role: domain.RoleCashier})
	require.ErrorIs(t, err, store.ErrConflict)
}
