package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"outletpos/internal/apperr"
	"outletpos/internal/cache"
	"outletpos/internal/domain"
)

// DashboardSummary reports one day of sales and the low-stock count for an
// outlet, or for every outlet when a roaming user names none. Results are
// cached per tenant; concurrent misses for the same key compute once.
func (s *Service) DashboardSummary(ctx context.Context, outletID string, date string) (domain.DashboardSummary, error) {
	session, err := s.ResolveSession(ctx)
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	outletID, err = s.resolveOptionalOutlet(ctx, session, outletID)
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	from, to, err := s.dayWindow(date)
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	key := fmt.Sprintf("%s|%s", outletOrAll(outletID), from.Format(dateLayout))
	// Callers share the fill, so one caller going away must not fail the rest.
	fillCtx := context.WithoutCancel(ctx)
	value, err, _ := s.dashboardFill.Do(session.TenantID+"|"+key, func() (any, error) {
		return cachedView(fillCtx, s, session.TenantID, cache.ViewDashboard, key, func() (domain.DashboardSummary, error) {
			return s.computeDashboard(fillCtx, session.TenantID, outletID, from, to)
		})
	})
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	return value.(domain.DashboardSummary), nil
}

func (s *Service) computeDashboard(ctx context.Context, tenantID string, outletID string, from time.Time, to time.Time) (domain.DashboardSummary, error) {
	sales, err := s.repo.GetSalesSummary(ctx, tenantID, outletID, from, to)
	if err != nil {
		return domain.DashboardSummary{}, storeErr(err, "outlet not found")
	}

	summary := domain.DashboardSummary{
		TenantID:    tenantID,
		OutletID:    outletID,
		Date:        from.Format(dateLayout),
		Sales:       sales,
		GeneratedAt: s.now().UTC().Format(time.RFC3339),
	}

	if outletID != "" {
		low, err := s.lowStockAt(ctx, tenantID, outletID, s.lowStockThreshold)
		if err != nil {
			return domain.DashboardSummary{}, err
		}
		summary.LowStock = low
		summary.LowStockCount = len(low)
		return summary, nil
	}

	outlets, err := s.repo.ListOutlets(ctx, tenantID)
	if err != nil {
		return domain.DashboardSummary{}, storeErr(err, "outlet not found")
	}
	for _, outlet := range outlets {
		records, err := s.repo.ListLowStock(ctx, tenantID, outlet.ID, s.lowStockThreshold)
		if err != nil {
			return domain.DashboardSummary{}, storeErr(err, "outlet not found")
		}
		summary.LowStockCount += len(records)
	}
	return summary, nil
}

func outletOrAll(outletID string) string {
	if outletID == "" {
		return "all"
	}
	return outletID
}

// ListOrders returns recent orders with their items, newest first. Pages are
// served from the transactions view cache.
func (s *Service) ListOrders(ctx context.Context, outletID string, limit int) ([]domain.Order, error) {
	session, err := s.ResolveSession(ctx)
	if err != nil {
		return nil, err
	}
	outletID, err = s.resolveOptionalOutlet(ctx, session, outletID)
	if err != nil {
		return nil, err
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	key := fmt.Sprintf("%s|%d", outletOrAll(outletID), limit)
	return cachedView(ctx, s, session.TenantID, cache.ViewTransactions, key, func() ([]domain.Order, error) {
		orders, err := s.repo.ListOrders(ctx, session.TenantID, outletID, limit)
		if err != nil {
			return nil, storeErr(err, "order not found")
		}
		return orders, nil
	})
}

// GetOrder returns an order of the caller's tenant. Pinned staff only see
// orders of their own outlet.
func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	session, err := s.ResolveSession(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	order, err := s.repo.GetOrder(ctx, session.TenantID, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, storeErr(err, "order not found")
	}
	if session.OutletID != "" && !session.IsOwner() && order.OutletID != session.OutletID {
		return domain.Order{}, apperr.New(apperr.CodeNotFound, "order not found")
	}
	return *order, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	session, err := s.requireManager(ctx)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	from, to, err := s.dayWindow(date)
	if err != nil {
		return nil, err
	}
	logs, err := s.repo.ListAuditLogs(ctx, session.TenantID, from, to, limit)
	if err != nil {
		return nil, storeErr(err, "audit log not found")
	}
	return logs, nil
}
