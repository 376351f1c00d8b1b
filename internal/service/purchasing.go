package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"outletpos/internal/cache"
	"outletpos/internal/domain"
	"outletpos/internal/metrics"
	"outletpos/internal/store"
	"outletpos/internal/xid"
)

// Side effects of receiving a purchase order and how failures are treated.
const (
	effectStockReceive    = "stock_receive"
	effectCostPriceUpdate = "cost_price_update"
)

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrder, error) {
	session, err := s.requireManager(ctx)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	req.SupplierID = strings.TrimSpace(req.SupplierID)
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if req.SupplierID == "" {
		return domain.PurchaseOrder{}, validation("supplier_id is required")
	}
	switch req.Status {
	case "":
		req.Status = domain.PurchaseOrderDraft
	case domain.PurchaseOrderDraft, domain.PurchaseOrderOrdered:
	default:
		return domain.PurchaseOrder{}, validation("status must be draft or ordered")
	}
	if len(req.Items) == 0 {
		return domain.PurchaseOrder{}, validation("purchase order requires at least one item")
	}
	if len(req.Items) > domain.MaxOrderLines {
		return domain.PurchaseOrder{}, validation("purchase order accepts at most %d items", domain.MaxOrderLines)
	}

	items := make([]domain.PurchaseOrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		if item.ProductID == "" {
			return domain.PurchaseOrder{}, validation("product_id is required")
		}
		if item.Quantity < 1 {
			return domain.PurchaseOrder{}, validation("quantity for %s must be at least 1", item.ProductID)
		}
		if item.UnitCost < 0 {
			return domain.PurchaseOrder{}, validation("unit_cost for %s must not be negative", item.ProductID)
		}
		if item.Quantity > domain.MaxLineQuantity || item.UnitCost > domain.MaxMoneyAmount {
			return domain.PurchaseOrder{}, validation("quantity or unit_cost for %s is too large", item.ProductID)
		}
		items = append(items, domain.PurchaseOrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitCost:  item.UnitCost,
		})
	}

	saved, err := s.repo.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		ID:         xid.New("po"),
		TenantID:   session.TenantID,
		SupplierID: req.SupplierID,
		Status:     req.Status,
		Notes:      strings.TrimSpace(req.Notes),
		CreatedBy:  session.StaffID,
		CreatedAt:  s.now().UTC(),
		Items:      items,
	})
	if err != nil {
		return domain.PurchaseOrder{}, storeErr(err, "supplier or product not found")
	}

	s.logAudit(ctx, session, "purchase_order_create", "purchase_order", saved.ID,
		fmt.Sprintf("supplier=%s,items=%d,total_cost=%d,status=%s", saved.SupplierID, len(saved.Items), saved.TotalCost, saved.Status))
	return *saved, nil
}

func (s *Service) ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	session, err := s.ResolveSession(ctx)
	if err != nil {
		return nil, err
	}
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "", domain.PurchaseOrderDraft, domain.PurchaseOrderOrdered, domain.PurchaseOrderReceived:
	default:
		return nil, validation("unknown purchase order status %q", status)
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	orders, err := s.repo.ListPurchaseOrders(ctx, session.TenantID, status, limit)
	if err != nil {
		return nil, storeErr(err, "purchase order not found")
	}
	return orders, nil
}

// GetPurchaseOrder is served from the purchase_order_detail view cache.
func (s *Service) GetPurchaseOrder(ctx context.Context, purchaseOrderID string) (domain.PurchaseOrder, error) {
	session, err := s.ResolveSession(ctx)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	purchaseOrderID = strings.TrimSpace(purchaseOrderID)
	return cachedView(ctx, s, session.TenantID, cache.ViewPurchaseOrderDetail, purchaseOrderID, func() (domain.PurchaseOrder, error) {
		po, err := s.repo.GetPurchaseOrder(ctx, session.TenantID, purchaseOrderID)
		if err != nil {
			return domain.PurchaseOrder{}, storeErr(err, "purchase order not found")
		}
		return *po, nil
	})
}

// MarkPurchaseOrderOrdered moves a draft to ordered.
func (s *Service) MarkPurchaseOrderOrdered(ctx context.Context, purchaseOrderID string) (domain.PurchaseOrder, error) {
	session, err := s.requireManager(ctx)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	po, err := s.repo.MarkPurchaseOrderOrdered(ctx, session.TenantID, strings.TrimSpace(purchaseOrderID))
	if err != nil {
		return domain.PurchaseOrder{}, storeErr(err, "purchase order not found")
	}
	s.notify(ctx, session.TenantID, cache.ViewPurchaseOrderDetail)
	s.logAudit(ctx, session, "purchase_order_order", "purchase_order", po.ID, "status=ordered")
	return *po, nil
}

// ReceivePurchaseOrder brings an ordered purchase order into stock at the
// resolved outlet. Stock increments are strict: one failure aborts the whole
// receipt. Cost price updates are best-effort: failures are reported in the
// response and logged, and the receipt still succeeds.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, purchaseOrderID string, req domain.PurchaseOrderReceiveRequest) (domain.PurchaseOrderReceiveResponse, error) {
	session, err := s.requireManager(ctx)
	if err != nil {
		s.metrics.IncReceive(metrics.ResultRejected)
		return domain.PurchaseOrderReceiveResponse{}, err
	}
	outletID, err := s.ResolveOutlet(ctx, session, req.OutletID)
	if err != nil {
		s.metrics.IncReceive(metrics.ResultRejected)
		return domain.PurchaseOrderReceiveResponse{}, err
	}
	ctx = s.log.WithSession(ctx, session.StaffID, session.TenantID, outletID)

	purchaseOrderID = strings.TrimSpace(purchaseOrderID)
	if purchaseOrderID == "" {
		s.metrics.IncReceive(metrics.ResultRejected)
		return domain.PurchaseOrderReceiveResponse{}, validation("purchase order id is required")
	}

	receipt, err := s.repo.ReceivePurchaseOrder(ctx, store.ReceiveCommand{
		TenantID:        session.TenantID,
		PurchaseOrderID: purchaseOrderID,
		OutletID:        outletID,
		ReceivedBy:      session.StaffID,
		ReceivedAt:      s.now().UTC(),
	})
	if err != nil {
		s.metrics.IncReceive(metrics.ResultRejected)
		return domain.PurchaseOrderReceiveResponse{}, storeErr(err, "purchase order not found")
	}

	for _, failure := range receipt.CostUpdateFailures {
		s.log.Event(ctx, zerolog.WarnLevel).
			Str("purchase_order_id", receipt.PurchaseOrder.ID).
			Str("product_id", failure.ProductID).
			Str("reason", failure.Reason).
			Msg("cost price update failed during receiving")
	}

	result := metrics.ResultSuccess
	if len(receipt.CostUpdateFailures) > 0 {
		result = metrics.ResultPartial
	}
	s.metrics.IncReceive(result)

	s.notify(ctx, session.TenantID, cache.ViewDashboard, cache.ViewPOS, cache.ViewPurchaseOrderDetail)
	s.logAudit(ctx, session, "purchase_order_receive", "purchase_order", receipt.PurchaseOrder.ID,
		fmt.Sprintf("outlet=%s,items=%d,cost_update_failures=%d", outletID, len(receipt.PurchaseOrder.Items), len(receipt.CostUpdateFailures)))

	return domain.PurchaseOrderReceiveResponse{
		PurchaseOrder: receipt.PurchaseOrder,
		SideEffects:   sideEffectReports(*receipt),
	}, nil
}

func sideEffectReports(receipt domain.PurchaseOrderReceipt) []domain.SideEffectReport {
	lines := len(receipt.PurchaseOrder.Items)
	costs := domain.SideEffectReport{
		Name:    effectCostPriceUpdate,
		Policy:  domain.SideEffectBestEffort,
		Applied: lines - len(receipt.CostUpdateFailures),
		Failed:  len(receipt.CostUpdateFailures),
	}
	for _, failure := range receipt.CostUpdateFailures {
		costs.FailedFor = append(costs.FailedFor, failure.ProductID)
	}
	return []domain.SideEffectReport{
		{Name: effectStockReceive, Policy: domain.SideEffectStrict, Applied: lines},
		costs,
	}
}
