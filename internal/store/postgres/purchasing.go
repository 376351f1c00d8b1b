package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"outletpos/internal/domain"
	"outletpos/internal/store"
	"outletpos/internal/xid"
)

const purchaseOrderColumns = `id, tenant_id, supplier_id, COALESCE(outlet_id, '') AS outlet_id, status, total_cost,
	notes, created_by, created_at, COALESCE(received_by, '') AS received_by, received_at`

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if po.TenantID == "" || po.SupplierID == "" || len(po.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if po.ID == "" {
		po.ID = xid.New("po")
	}
	if po.CreatedAt.IsZero() {
		po.CreatedAt = time.Now().UTC()
	}
	if po.Status == "" {
		po.Status = domain.PurchaseOrderDraft
	}
	po.OutletID = ""

	productIDs := make([]string, 0, len(po.Items))
	po.TotalCost = 0
	for i := range po.Items {
		item := &po.Items[i]
		if item.Quantity < 1 || item.Quantity > domain.MaxLineQuantity || item.UnitCost < 0 || item.UnitCost > domain.MaxMoneyAmount {
			return nil, store.ErrInvalidInput
		}
		item.ID = xid.New("poi")
		item.PurchaseOrderID = po.ID
		po.TotalCost += int64(item.Quantity) * item.UnitCost
		productIDs = append(productIDs, item.ProductID)
	}

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var supplierOK bool
		if err := tx.GetContext(ctx, &supplierOK, `
			SELECT EXISTS (SELECT 1 FROM suppliers WHERE id = $1 AND tenant_id = $2)
		`, po.SupplierID, po.TenantID); err != nil {
			return err
		}
		if !supplierOK {
			return fmt.Errorf("supplier %s: %w", po.SupplierID, store.ErrNotFound)
		}

		products, err := productsByIDs(ctx, tx, po.TenantID, productIDs)
		if err != nil {
			return err
		}
		for _, id := range productIDs {
			if _, ok := products[id]; !ok {
				return fmt.Errorf("product %s: %w", id, store.ErrNotFound)
			}
		}

		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO purchase_orders (id, tenant_id, supplier_id, status, total_cost, notes, created_by, created_at)
			VALUES (:id, :tenant_id, :supplier_id, :status, :total_cost, :notes, :created_by, :created_at)
		`, po); err != nil {
			return writeErr(err)
		}
		for _, item := range po.Items {
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO purchase_order_items (id, purchase_order_id, product_id, quantity, unit_cost)
				VALUES (:id, :purchase_order_id, :product_id, :quantity, :unit_cost)
			`, item); err != nil {
				return writeErr(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &po, nil
}

func (s *Store) GetPurchaseOrder(ctx context.Context, tenantID string, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	err := s.db.GetContext(ctx, &po, `SELECT `+purchaseOrderColumns+` FROM purchase_orders WHERE id = $1 AND tenant_id = $2`,
		purchaseOrderID, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	items, err := purchaseOrderItems(ctx, s.db, po.ID)
	if err != nil {
		return nil, err
	}
	po.Items = items
	return &po, nil
}

func purchaseOrderItems(ctx context.Context, q sqlx.QueryerContext, purchaseOrderID string) ([]domain.PurchaseOrderItem, error) {
	items := make([]domain.PurchaseOrderItem, 0, 8)
	err := sqlx.SelectContext(ctx, q, &items, `
		SELECT id, purchase_order_id, product_id, quantity, unit_cost
		FROM purchase_order_items
		WHERE purchase_order_id = $1
		ORDER BY id
	`, purchaseOrderID)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ListPurchaseOrders returns headers only; Items is left empty.
func (s *Store) ListPurchaseOrders(ctx context.Context, tenantID string, status string, limit int) ([]domain.PurchaseOrder, error) {
	if limit < 1 {
		limit = 50
	}
	orders := make([]domain.PurchaseOrder, 0, limit)
	err := s.db.SelectContext(ctx, &orders, `
		SELECT `+purchaseOrderColumns+`
		FROM purchase_orders
		WHERE tenant_id = $1 AND ($2::text = '' OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, tenantID, status, limit)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) MarkPurchaseOrderOrdered(ctx context.Context, tenantID string, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE purchase_orders SET status = 'ordered'
		WHERE id = $1 AND tenant_id = $2 AND status = 'draft'
	`, purchaseOrderID, tenantID)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		current, err := s.GetPurchaseOrder(ctx, tenantID, purchaseOrderID)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: purchase order is %s", store.ErrConflict, current.Status)
	}
	return s.GetPurchaseOrder(ctx, tenantID, purchaseOrderID)
}

// ReceivePurchaseOrder locks the purchase order row so concurrent receipts
// serialize; the loser sees status received and gets ErrConflict. Each cost
// update runs under its own savepoint so a failure leaves the stock writes
// intact.
func (s *Store) ReceivePurchaseOrder(ctx context.Context, cmd store.ReceiveCommand) (*domain.PurchaseOrderReceipt, error) {
	receivedAt := cmd.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	receipt := &domain.PurchaseOrderReceipt{}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var po domain.PurchaseOrder
		err := tx.GetContext(ctx, &po, `
			SELECT `+purchaseOrderColumns+`
			FROM purchase_orders
			WHERE id = $1 AND tenant_id = $2
			FOR UPDATE
		`, cmd.PurchaseOrderID, cmd.TenantID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		switch po.Status {
		case domain.PurchaseOrderReceived:
			return fmt.Errorf("%w: purchase order already processed", store.ErrConflict)
		case domain.PurchaseOrderOrdered:
		default:
			return fmt.Errorf("%w: purchase order must be ordered before receiving", store.ErrConflict)
		}

		var outletOK bool
		if err := tx.GetContext(ctx, &outletOK, `
			SELECT EXISTS (SELECT 1 FROM outlets WHERE id = $1 AND tenant_id = $2)
		`, cmd.OutletID, cmd.TenantID); err != nil {
			return err
		}
		if !outletOK {
			return fmt.Errorf("outlet %s: %w", cmd.OutletID, store.ErrNotFound)
		}

		items, err := purchaseOrderItems(ctx, tx, po.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return store.ErrInvalidInput
		}
		po.Items = items

		for _, item := range items {
			var after int
			err := tx.GetContext(ctx, &after, `
				INSERT INTO stock (tenant_id, product_id, outlet_id, quantity, updated_at)
				SELECT p.tenant_id, p.id, $3, $4, $5
				FROM products p
				WHERE p.id = $1 AND p.tenant_id = $2
				ON CONFLICT (product_id, outlet_id)
				DO UPDATE SET quantity = stock.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
				RETURNING quantity
			`, item.ProductID, cmd.TenantID, cmd.OutletID, item.Quantity, receivedAt)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("receive stock for product %s: %w", item.ProductID, store.ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("receive stock for product %s: %w", item.ProductID, err)
			}
			if err := insertMovement(ctx, tx, domain.StockMovement{
				TenantID:       cmd.TenantID,
				OutletID:       cmd.OutletID,
				ProductID:      item.ProductID,
				Kind:           domain.MovementReceipt,
				QuantityChange: item.Quantity,
				QuantityBefore: after - item.Quantity,
				QuantityAfter:  after,
				ReferenceType:  "purchase_order",
				ReferenceID:    po.ID,
				CreatedBy:      cmd.ReceivedBy,
				CreatedAt:      receivedAt,
			}); err != nil {
				return err
			}

			if reason := updateCostBestEffort(ctx, tx, cmd.TenantID, item); reason != "" {
				receipt.CostUpdateFailures = append(receipt.CostUpdateFailures, domain.CostUpdateFailure{
					ProductID: item.ProductID,
					Reason:    reason,
				})
			}
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE purchase_orders
			SET status = 'received', outlet_id = $2, received_by = $3, received_at = $4
			WHERE id = $1 AND status = 'ordered'
		`, po.ID, cmd.OutletID, nullIfEmpty(cmd.ReceivedBy), receivedAt)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%w: purchase order already processed", store.ErrConflict)
		}

		po.Status = domain.PurchaseOrderReceived
		po.OutletID = cmd.OutletID
		po.ReceivedBy = cmd.ReceivedBy
		po.ReceivedAt = &receivedAt
		receipt.PurchaseOrder = po
		return nil
	})
	if err != nil {
		return nil, writeErr(err)
	}
	return receipt, nil
}

// updateCostBestEffort returns an empty string on success and the failure
// reason otherwise. The transaction stays usable either way.
func updateCostBestEffort(ctx context.Context, tx *sqlx.Tx, tenantID string, item domain.PurchaseOrderItem) string {
	if _, err := tx.ExecContext(ctx, `SAVEPOINT cost_update`); err != nil {
		return err.Error()
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE products SET cost_price = $1, updated_at = now()
		WHERE id = $2 AND tenant_id = $3
	`, item.UnitCost, item.ProductID, tenantID)
	if err == nil {
		var affected int64
		affected, err = res.RowsAffected()
		if err == nil && affected == 0 {
			err = store.ErrNotFound
		}
	}
	if err != nil {
		_, _ = tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT cost_update`)
		return err.Error()
	}
	_, _ = tx.ExecContext(ctx, `RELEASE SAVEPOINT cost_update`)
	return ""
}
