package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"

	"outletpos/internal/domain"
	"outletpos/internal/store"
	"outletpos/internal/xid"
)

const orderColumns = `id, tenant_id, outlet_id, staff_id, COALESCE(customer_id, '') AS customer_id,
	COALESCE(idempotency_key, '') AS idempotency_key, payment_method, status, total_amount,
	discount_amount, tax_amount, service_charge, grand_total, created_at`

// CreateCheckout locks the outlet's stock rows for every product in id order,
// checks all lines before writing anything, then writes the order, its items,
// the decrements and the customer credit in the same transaction.
func (s *Store) CreateCheckout(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if order.TenantID == "" || order.OutletID == "" || len(order.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	requested := make(map[string]int, len(order.Items))
	for _, item := range order.Items {
		if item.Quantity < 1 || item.Price < 0 {
			return nil, store.ErrInvalidInput
		}
		requested[item.ProductID] += item.Quantity
	}
	productIDs := make([]string, 0, len(requested))
	for id := range requested {
		productIDs = append(productIDs, id)
	}
	slices.Sort(productIDs)

	now := time.Now().UTC()
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusCompleted
	}

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var outletOK bool
		if err := tx.GetContext(ctx, &outletOK, `
			SELECT EXISTS (SELECT 1 FROM outlets WHERE id = $1 AND tenant_id = $2)
		`, order.OutletID, order.TenantID); err != nil {
			return err
		}
		if !outletOK {
			return store.ErrNotFound
		}

		products, err := productsByIDs(ctx, tx, order.TenantID, productIDs)
		if err != nil {
			return err
		}
		for _, id := range productIDs {
			if _, ok := products[id]; !ok {
				return fmt.Errorf("product %s: %w", id, store.ErrNotFound)
			}
		}

		locked := make([]domain.StockRecord, 0, len(productIDs))
		if err := tx.SelectContext(ctx, &locked, `
			SELECT tenant_id, product_id, outlet_id, quantity, updated_at
			FROM stock
			WHERE outlet_id = $1 AND product_id = ANY($2)
			ORDER BY product_id
			FOR UPDATE
		`, order.OutletID, productIDs); err != nil {
			return err
		}
		available := make(map[string]int, len(locked))
		for _, r := range locked {
			available[r.ProductID] = r.Quantity
		}
		for _, item := range order.Items {
			if requested[item.ProductID] > available[item.ProductID] {
				return &store.InsufficientStockError{
					ProductID:   item.ProductID,
					ProductName: products[item.ProductID].Name,
					Available:   available[item.ProductID],
					Requested:   requested[item.ProductID],
				}
			}
		}

		order.TotalAmount = 0
		for i := range order.Items {
			item := &order.Items[i]
			item.ID = xid.New("oit")
			item.OrderID = order.ID
			item.TenantID = order.TenantID
			item.Subtotal = item.Price * int64(item.Quantity)
			if item.ProductName == "" {
				item.ProductName = products[item.ProductID].Name
			}
			order.TotalAmount += item.Subtotal
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO orders (
				id, tenant_id, outlet_id, staff_id, customer_id, idempotency_key, payment_method, status,
				total_amount, discount_amount, tax_amount, service_charge, grand_total, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		`, order.ID, order.TenantID, order.OutletID, order.StaffID, nullIfEmpty(order.CustomerID),
			nullIfEmpty(order.IdempotencyKey), order.PaymentMethod, order.Status, order.TotalAmount,
			order.DiscountAmount, order.TaxAmount, order.ServiceCharge, order.GrandTotal, order.CreatedAt); err != nil {
			return writeErr(err)
		}

		for _, item := range order.Items {
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO order_items (id, order_id, tenant_id, product_id, product_name, quantity, price, subtotal)
				VALUES (:id, :order_id, :tenant_id, :product_id, :product_name, :quantity, :price, :subtotal)
			`, item); err != nil {
				return writeErr(err)
			}

			var after int
			err := tx.GetContext(ctx, &after, `
				UPDATE stock
				SET quantity = quantity - $1, updated_at = now()
				WHERE outlet_id = $2 AND product_id = $3 AND quantity >= $1
				RETURNING quantity
			`, item.Quantity, order.OutletID, item.ProductID)
			if errors.Is(err, sql.ErrNoRows) {
				return &store.InsufficientStockError{
					ProductID:   item.ProductID,
					ProductName: item.ProductName,
					Available:   available[item.ProductID],
					Requested:   item.Quantity,
				}
			}
			if err != nil {
				return err
			}
			available[item.ProductID] = after

			if err := insertMovement(ctx, tx, domain.StockMovement{
				TenantID:       order.TenantID,
				OutletID:       order.OutletID,
				ProductID:      item.ProductID,
				Kind:           domain.MovementSale,
				QuantityChange: -item.Quantity,
				QuantityBefore: after + item.Quantity,
				QuantityAfter:  after,
				ReferenceType:  "order",
				ReferenceID:    order.ID,
				CreatedBy:      order.StaffID,
				CreatedAt:      now,
			}); err != nil {
				return err
			}
		}

		if order.CustomerID != "" {
			res, err := tx.ExecContext(ctx, `
				UPDATE customers SET total_spent = total_spent + $1
				WHERE id = $2 AND tenant_id = $3
			`, order.GrandTotal, order.CustomerID, order.TenantID)
			if err != nil {
				return err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 0 {
				return fmt.Errorf("customer %s: %w", order.CustomerID, store.ErrNotFound)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) FindOrderByIdempotency(ctx context.Context, tenantID string, key string) (*domain.Order, error) {
	return s.findOrder(ctx, `tenant_id = $1 AND idempotency_key = $2`, tenantID, key)
}

func (s *Store) GetOrder(ctx context.Context, tenantID string, orderID string) (*domain.Order, error) {
	return s.findOrder(ctx, `tenant_id = $1 AND id = $2`, tenantID, orderID)
}

func (s *Store) findOrder(ctx context.Context, where string, args ...any) (*domain.Order, error) {
	var order domain.Order
	if err := s.db.GetContext(ctx, &order, `SELECT `+orderColumns+` FROM orders WHERE `+where, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	orders := []domain.Order{order}
	if err := s.attachOrderItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (s *Store) ListOrders(ctx context.Context, tenantID string, outletID string, limit int) ([]domain.Order, error) {
	if limit < 1 {
		limit = 50
	}
	orders := make([]domain.Order, 0, limit)
	err := s.db.SelectContext(ctx, &orders, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE tenant_id = $1 AND ($2::text = '' OR outlet_id = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, tenantID, outletID, limit)
	if err != nil {
		return nil, err
	}
	if err := s.attachOrderItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) attachOrderItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, 0, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids = append(ids, o.ID)
		index[o.ID] = i
		orders[i].Items = make([]domain.OrderItem, 0, 4)
	}
	items := make([]domain.OrderItem, 0, len(orders)*4)
	if err := s.db.SelectContext(ctx, &items, `
		SELECT id, order_id, tenant_id, product_id, product_name, quantity, price, subtotal
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, id
	`, ids); err != nil {
		return err
	}
	for _, item := range items {
		i := index[item.OrderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return nil
}

func (s *Store) GetSalesSummary(ctx context.Context, tenantID string, outletID string, from time.Time, to time.Time) (domain.SalesSummary, error) {
	summary := domain.SalesSummary{ByPaymentMethod: make(map[string]int64)}

	var totals struct {
		OrderCount     int   `db:"order_count"`
		GrossAmount    int64 `db:"gross_amount"`
		DiscountAmount int64 `db:"discount_amount"`
		TaxAmount      int64 `db:"tax_amount"`
		GrandTotal     int64 `db:"grand_total"`
	}
	err := s.db.GetContext(ctx, &totals, `
		SELECT COUNT(*) AS order_count,
		       COALESCE(SUM(total_amount), 0) AS gross_amount,
		       COALESCE(SUM(discount_amount), 0) AS discount_amount,
		       COALESCE(SUM(tax_amount + service_charge), 0) AS tax_amount,
		       COALESCE(SUM(grand_total), 0) AS grand_total
		FROM orders
		WHERE tenant_id = $1 AND ($2::text = '' OR outlet_id = $2)
		  AND created_at >= $3 AND created_at < $4
	`, tenantID, outletID, from, to)
	if err != nil {
		return summary, err
	}
	summary.OrderCount = totals.OrderCount
	summary.GrossAmount = totals.GrossAmount
	summary.DiscountAmount = totals.DiscountAmount
	summary.TaxAmount = totals.TaxAmount
	summary.GrandTotal = totals.GrandTotal

	if err := s.db.GetContext(ctx, &summary.ItemsSold, `
		SELECT COALESCE(SUM(oi.quantity), 0)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.tenant_id = $1 AND ($2::text = '' OR o.outlet_id = $2)
		  AND o.created_at >= $3 AND o.created_at < $4
	`, tenantID, outletID, from, to); err != nil {
		return summary, err
	}

	var methods []struct {
		Method string `db:"payment_method"`
		Amount int64  `db:"amount"`
	}
	if err := s.db.SelectContext(ctx, &methods, `
		SELECT payment_method, SUM(grand_total) AS amount
		FROM orders
		WHERE tenant_id = $1 AND ($2::text = '' OR outlet_id = $2)
		  AND created_at >= $3 AND created_at < $4
		GROUP BY payment_method
	`, tenantID, outletID, from, to); err != nil {
		return summary, err
	}
	for _, m := range methods {
		summary.ByPaymentMethod[m.Method] = m.Amount
	}
	return summary, nil
}
