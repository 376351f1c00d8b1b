package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"outletpos/internal/cache"
	"outletpos/internal/domain"
	"outletpos/internal/pricing"
)

// AdjustStock applies a manual add, subtract or set at the resolved outlet.
// Subtract never drives stock below zero.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) (domain.StockRecord, error) {
	session, err := s.requireManager(ctx)
	if err != nil {
		return domain.StockRecord{}, err
	}
	outletID, err := s.ResolveOutlet(ctx, session, req.OutletID)
	if err != nil {
		return domain.StockRecord{}, err
	}

	req.Mode = strings.ToLower(strings.TrimSpace(req.Mode))
	switch req.Mode {
	case domain.AdjustAdd, domain.AdjustSubtract, domain.AdjustSet:
	default:
		return domain.StockRecord{}, validation("mode must be add, subtract or set")
	}
	if req.Quantity < 0 {
		return domain.StockRecord{}, validation("quantity must not be negative")
	}
	if req.Quantity > domain.MaxLineQuantity {
		return domain.StockRecord{}, validation("quantity must not exceed %d", domain.MaxLineQuantity)
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		return domain.StockRecord{}, validation("product_id is required")
	}

	record, err := s.repo.AdjustStock(ctx, domain.StockAdjustment{
		TenantID:  session.TenantID,
		OutletID:  outletID,
		ProductID: req.ProductID,
		Mode:      req.Mode,
		Quantity:  req.Quantity,
		StaffID:   session.StaffID,
		Note:      strings.TrimSpace(req.Note),
	})
	if err != nil {
		return domain.StockRecord{}, storeErr(err, "product not found")
	}

	s.metrics.IncStockAdjust(req.Mode)
	s.notify(ctx, session.TenantID, cache.ViewPOS, cache.ViewDashboard)
	s.logAudit(ctx, session, "stock_adjust", "product", record.ProductID,
		fmt.Sprintf("outlet=%s,mode=%s,qty=%d,after=%d", outletID, req.Mode, req.Quantity, record.Quantity))
	return *record, nil
}

func (s *Service) ListStock(ctx context.Context, outletID string) ([]domain.StockRecord, error) {
	session, err := s.ResolveSession(ctx)
	if err != nil {
		return nil, err
	}
	outletID, err = s.ResolveOutlet(ctx, session, outletID)
	if err != nil {
		return nil, err
	}
	records, err := s.repo.ListStock(ctx, session.TenantID, outletID)
	if err != nil {
		return nil, storeErr(err, "outlet not found")
	}
	return records, nil
}

// ListLowStock returns active products at or below threshold at the outlet.
// A threshold below one falls back to the configured default.
func (s *Service) ListLowStock(ctx context.Context, outletID string, threshold int) ([]domain.LowStockItem, error) {
	session, err := s.ResolveSession(ctx)
	if err != nil {
		return nil, err
	}
	outletID, err = s.ResolveOutlet(ctx, session, outletID)
	if err != nil {
		return nil, err
	}
	if threshold < 1 {
		threshold = s.lowStockThreshold
	}
	return s.lowStockAt(ctx, session.TenantID, outletID, threshold)
}

func (s *Service) lowStockAt(ctx context.Context, tenantID string, outletID string, threshold int) ([]domain.LowStockItem, error) {
	records, err := s.repo.ListLowStock(ctx, tenantID, outletID, threshold)
	if err != nil {
		return nil, storeErr(err, "outlet not found")
	}
	if len(records) == 0 {
		return []domain.LowStockItem{}, nil
	}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, storeErr(err, "product not found")
	}

	items := make([]domain.LowStockItem, 0, len(records))
	for _, r := range records {
		product, ok := products[r.ProductID]
		if !ok {
			continue
		}
		items = append(items, domain.LowStockItem{Product: product, Quantity: r.Quantity})
	}
	return items, nil
}

func (s *Service) ListStockMovements(ctx context.Context, outletID string, productID string, limit int) ([]domain.StockMovement, error) {
	session, err := s.ResolveSession(ctx)
	if err != nil {
		return nil, err
	}
	outletID, err = s.resolveOptionalOutlet(ctx, session, outletID)
	if err != nil {
		return nil, err
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	movements, err := s.repo.ListStockMovements(ctx, session.TenantID, outletID, strings.TrimSpace(productID), limit)
	if err != nil {
		return nil, storeErr(err, "outlet not found")
	}
	return movements, nil
}

// POSCatalog is the sellable catalog at one outlet with on-hand quantities
// and the tenant's taxes. It is served from the pos view cache.
func (s *Service) POSCatalog(ctx context.Context, outletID string) (domain.POSCatalog, error) {
	session, err := s.ResolveSession(ctx)
	if err != nil {
		return domain.POSCatalog{}, err
	}
	outletID, err = s.ResolveOutlet(ctx, session, outletID)
	if err != nil {
		return domain.POSCatalog{}, err
	}

	return cachedView(ctx, s, session.TenantID, cache.ViewPOS, outletID, func() (domain.POSCatalog, error) {
		products, err := s.repo.ListProducts(ctx, session.TenantID, false)
		if err != nil {
			return domain.POSCatalog{}, storeErr(err, "product not found")
		}
		ids := make([]string, 0, len(products))
		for _, p := range products {
			ids = append(ids, p.ID)
		}
		stock, err := s.repo.GetStockMap(ctx, session.TenantID, outletID, ids)
		if err != nil {
			return domain.POSCatalog{}, storeErr(err, "outlet not found")
		}
		taxes, err := s.repo.ListTaxes(ctx, session.TenantID)
		if err != nil {
			return domain.POSCatalog{}, storeErr(err, "tax not found")
		}

		catalog := domain.POSCatalog{
			OutletID: outletID,
			Items:    make([]domain.POSCatalogItem, 0, len(products)),
			Taxes:    taxes,
		}
		for _, p := range products {
			catalog.Items = append(catalog.Items, domain.POSCatalogItem{Product: p, Available: stock[p.ID]})
		}
		return catalog, nil
	})
}

// CartSummary is the priced cart plus any line asking for more than the
// outlet has on hand.
type CartSummary struct {
	OutletID  string                `json:"outlet_id"`
	Cart      pricing.Cart          `json:"cart"`
	Summary   pricing.Summary       `json:"summary"`
	Shortages []domain.CartShortage `json:"shortages"`
}

// PriceCart builds a cart from catalog prices and the tenant's taxes and
// checks every line against stock at the resolved outlet. Nothing is written.
func (s *Service) PriceCart(ctx context.Context, req domain.CartSummaryRequest) (CartSummary, error) {
	session, err := s.ResolveSession(ctx)
	if err != nil {
		return CartSummary{}, err
	}
	outletID, err := s.ResolveOutlet(ctx, session, req.OutletID)
	if err != nil {
		return CartSummary{}, err
	}

	ids := make([]string, 0, len(req.Lines))
	for _, line := range req.Lines {
		ids = append(ids, strings.TrimSpace(line.ProductID))
	}
	products, err := s.repo.GetProductsByIDs(ctx, session.TenantID, ids)
	if err != nil {
		return CartSummary{}, storeErr(err, "product not found")
	}
	stock, err := s.repo.GetStockMap(ctx, session.TenantID, outletID, ids)
	if err != nil {
		return CartSummary{}, storeErr(err, "outlet not found")
	}
	taxes, err := s.repo.ListTaxes(ctx, session.TenantID)
	if err != nil {
		return CartSummary{}, storeErr(err, "tax not found")
	}

	cart := pricing.SetTaxes(pricing.Cart{}, taxes)
	if req.Discount != nil {
		if err := pricing.ValidateDiscount(*req.Discount); err != nil {
			return CartSummary{}, validation("%s", err.Error())
		}
		cart = pricing.SetDiscount(cart, *req.Discount)
	}

	if len(req.Lines) > domain.MaxOrderLines {
		return CartSummary{}, validation("cart accepts at most %d lines", domain.MaxOrderLines)
	}

	result := CartSummary{OutletID: outletID, Shortages: []domain.CartShortage{}}
	for _, line := range req.Lines {
		product, ok := products[strings.TrimSpace(line.ProductID)]
		if !ok || !product.Active {
			return CartSummary{}, validation("product %s is not available", line.ProductID)
		}
		if line.Quantity <= 0 {
			continue
		}
		if line.Quantity > domain.MaxLineQuantity {
			return CartSummary{}, validation("quantity for %s must not exceed %d", product.ID, domain.MaxLineQuantity)
		}
		available := stock[product.ID]
		if err := pricing.CheckAvailability(cart, product.ID, line.Quantity, available); err != nil {
			if !errors.Is(err, pricing.ErrExceedsStock) {
				return CartSummary{}, validation("%s", err.Error())
			}
			result.Shortages = append(result.Shortages, domain.CartShortage{
				ProductID: product.ID,
				Requested: cart.QuantityOf(product.ID) + line.Quantity,
				Available: available,
			})
		}
		cart = pricing.AddItem(cart, product, line.Quantity)
	}

	result.Cart = cart
	result.Summary = pricing.Summarize(cart)
	return result, nil
}

// cachedView reads key from the tenant's view, computing and storing it on a
// miss. Cache failures degrade to a direct computation.
func cachedView[T any](ctx context.Context, s *Service, tenantID string, view string, key string, load func() (T, error)) (T, error) {
	var cached T
	generation, hit, err := s.views.Get(ctx, tenantID, view, key, &cached)
	if err != nil {
		s.log.Warn(ctx, fmt.Sprintf("view cache read failed view=%s", view), err)
	} else if hit {
		return cached, nil
	}

	value, err := load()
	if err != nil {
		var zero T
		return zero, err
	}
	if err := s.views.Set(ctx, tenantID, view, key, generation, value, s.viewCacheTTL); err != nil {
		s.log.Warn(ctx, fmt.Sprintf("view cache write failed view=%s", view), err)
	}
	return value, nil
}
