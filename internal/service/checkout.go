package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"outletpos/internal/apperr"
	"outletpos/internal/cache"
	"outletpos/internal/domain"
	"outletpos/internal/metrics"
	"outletpos/internal/pricing"
	"outletpos/internal/store"
)

var supportedPaymentMethods = map[string]struct{}{
	"cash":     {},
	"card":     {},
	"qris":     {},
	"ewallet":  {},
	"transfer": {},
}

// Checkout records a sale at the caller's outlet. Prices are re-read from the
// catalog and must match what the client showed; stock is verified and
// decremented for every line in one transaction, so a shortfall on any line
// leaves stock and orders untouched.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	started := time.Now()
	result := metrics.ResultError
	defer func() {
		s.metrics.ObserveCheckout(result, time.Since(started))
	}()

	session, err := s.ResolveSession(ctx)
	if err != nil {
		result = metrics.ResultRejected
		return domain.CheckoutResponse{}, err
	}
	outletID, err := s.ResolveOutlet(ctx, session, req.OutletID)
	if err != nil {
		result = metrics.ResultRejected
		return domain.CheckoutResponse{}, err
	}
	ctx = s.log.WithSession(ctx, session.StaffID, session.TenantID, outletID)

	lines, err := normalizeCheckout(&req)
	if err != nil {
		result = metrics.ResultRejected
		return domain.CheckoutResponse{}, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.repo.FindOrderByIdempotency(ctx, session.TenantID, req.IdempotencyKey)
		if err == nil {
			result = metrics.ResultDuplicate
			return domain.CheckoutResponse{Order: *existing, Duplicate: true}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.CheckoutResponse{}, storeErr(err, "order not found")
		}
	}

	order, err := s.priceCheckout(ctx, session, outletID, req, lines)
	if err != nil {
		result = metrics.ResultRejected
		return domain.CheckoutResponse{}, err
	}

	created, err := s.repo.CreateCheckout(ctx, order)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInsufficientStock):
			result = metrics.ResultInsufficientStock
			s.log.Info(ctx, "checkout rejected: "+err.Error())
		case errors.Is(err, store.ErrConflict) && req.IdempotencyKey != "":
			// Lost a race with a concurrent request carrying the same key.
			if existing, findErr := s.repo.FindOrderByIdempotency(ctx, session.TenantID, req.IdempotencyKey); findErr == nil {
				result = metrics.ResultDuplicate
				return domain.CheckoutResponse{Order: *existing, Duplicate: true}, nil
			}
		case errors.Is(err, store.ErrNotFound):
			result = metrics.ResultRejected
		}
		return domain.CheckoutResponse{}, storeErr(err, "checkout reference not found")
	}

	result = metrics.ResultSuccess
	s.notify(ctx, session.TenantID, cache.ViewDashboard, cache.ViewPOS, cache.ViewTransactions)
	s.logAudit(ctx, session, "checkout", "order", created.ID,
		fmt.Sprintf("outlet=%s,total=%d,grand_total=%d,payment=%s,items=%d",
			created.OutletID, created.TotalAmount, created.GrandTotal, created.PaymentMethod, len(created.Items)))
	return domain.CheckoutResponse{Order: *created, Duplicate: false}, nil
}

// normalizeCheckout trims the request and merges repeated product lines. The
// merged lines keep first-seen order.
func normalizeCheckout(req *domain.CheckoutRequest) ([]domain.CheckoutLine, error) {
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if req.PaymentMethod == "" {
		req.PaymentMethod = "cash"
	}
	if _, ok := supportedPaymentMethods[req.PaymentMethod]; !ok {
		return nil, validation("unsupported payment method %q", req.PaymentMethod)
	}
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if req.TotalAmount < 0 {
		return nil, validation("total_amount must not be negative")
	}
	if len(req.Items) == 0 {
		return nil, validation("checkout requires at least one item")
	}
	if len(req.Items) > domain.MaxOrderLines {
		return nil, validation("checkout accepts at most %d items", domain.MaxOrderLines)
	}

	index := make(map[string]int, len(req.Items))
	lines := make([]domain.CheckoutLine, 0, len(req.Items))
	for _, item := range req.Items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		if item.ProductID == "" {
			return nil, validation("product_id is required")
		}
		if item.Quantity < 1 {
			return nil, validation("quantity for %s must be at least 1", item.ProductID)
		}
		if item.UnitPrice < 0 {
			return nil, validation("unit_price for %s must not be negative", item.ProductID)
		}
		if item.Quantity > domain.MaxLineQuantity || item.UnitPrice > domain.MaxMoneyAmount {
			return nil, validation("quantity or unit_price for %s is too large", item.ProductID)
		}
		if i, seen := index[item.ProductID]; seen {
			if lines[i].UnitPrice != item.UnitPrice {
				return nil, validation("conflicting unit prices for %s", item.ProductID)
			}
			lines[i].Quantity += item.Quantity
			if lines[i].Quantity > domain.MaxLineQuantity {
				return nil, validation("quantity for %s must not exceed %d", item.ProductID, domain.MaxLineQuantity)
			}
			continue
		}
		index[item.ProductID] = len(lines)
		lines = append(lines, item)
	}
	return lines, nil
}

// priceCheckout checks the lines against the catalog, prices them with the
// tenant's active taxes and builds the order the store will write.
func (s *Service) priceCheckout(ctx context.Context, session domain.Session, outletID string, req domain.CheckoutRequest, lines []domain.CheckoutLine) (domain.Order, error) {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, session.TenantID, ids)
	if err != nil {
		return domain.Order{}, storeErr(err, "product not found")
	}

	taxes, err := s.repo.ListTaxes(ctx, session.TenantID)
	if err != nil {
		return domain.Order{}, storeErr(err, "tax not found")
	}
	cart := pricing.SetTaxes(pricing.Cart{}, taxes)
	if req.Discount != nil {
		if err := pricing.ValidateDiscount(*req.Discount); err != nil {
			return domain.Order{}, validation("%s", err.Error())
		}
		cart = pricing.SetDiscount(cart, *req.Discount)
	}

	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok || !product.Active {
			return domain.Order{}, validation("product %s is not available", line.ProductID)
		}
		if product.Price != line.UnitPrice {
			return domain.Order{}, apperr.Newf(apperr.CodeValidation, "price changed for %s", product.Name).
				WithDetails(map[string]any{
					"product_id":    product.ID,
					"client_price":  line.UnitPrice,
					"catalog_price": product.Price,
				})
		}
		cart = pricing.AddItem(cart, product, line.Quantity)
		items = append(items, domain.OrderItem{
			TenantID:    session.TenantID,
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			Price:       product.Price,
		})
	}

	summary := pricing.Summarize(cart)
	if req.TotalAmount != 0 && req.TotalAmount != summary.GrandTotal {
		return domain.Order{}, apperr.New(apperr.CodeValidation, "total_amount does not match the computed total").
			WithDetails(map[string]any{
				"client_total":   req.TotalAmount,
				"computed_total": summary.GrandTotal,
			})
	}

	if req.CustomerID != "" {
		if _, err := s.repo.GetCustomer(ctx, session.TenantID, req.CustomerID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Order{}, validation("customer %s does not exist", req.CustomerID)
			}
			return domain.Order{}, storeErr(err, "customer not found")
		}
	}

	return domain.Order{
		TenantID:       session.TenantID,
		OutletID:       outletID,
		StaffID:        session.StaffID,
		CustomerID:     req.CustomerID,
		IdempotencyKey: req.IdempotencyKey,
		PaymentMethod:  req.PaymentMethod,
		Status:         domain.OrderStatusCompleted,
		DiscountAmount: summary.DiscountAmount,
		TaxAmount:      summary.TotalTax,
		ServiceCharge:  summary.TotalServiceCharge,
		GrandTotal:     summary.GrandTotal,
		CreatedAt:      s.now().UTC(),
		Items:          items,
	}, nil
}
