package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"outletpos/internal/domain"
	"outletpos/internal/store"
	"outletpos/internal/xid"
)

func (s *Store) GetStockMap(ctx context.Context, tenantID string, outletID string, productIDs []string) (map[string]int, error) {
	result := make(map[string]int, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}
	records := make([]domain.StockRecord, 0, len(productIDs))
	err := s.db.SelectContext(ctx, &records, `
		SELECT tenant_id, product_id, outlet_id, quantity, updated_at
		FROM stock
		WHERE tenant_id = $1 AND outlet_id = $2 AND product_id = ANY($3)
	`, tenantID, outletID, productIDs)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		result[r.ProductID] = r.Quantity
	}
	return result, nil
}

func (s *Store) ListStock(ctx context.Context, tenantID string, outletID string) ([]domain.StockRecord, error) {
	records := make([]domain.StockRecord, 0, 64)
	err := s.db.SelectContext(ctx, &records, `
		SELECT tenant_id, product_id, outlet_id, quantity, updated_at
		FROM stock
		WHERE tenant_id = $1 AND outlet_id = $2
		ORDER BY product_id
	`, tenantID, outletID)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ListLowStock includes active products that have never been stocked at the
// outlet; they count as zero.
func (s *Store) ListLowStock(ctx context.Context, tenantID string, outletID string, threshold int) ([]domain.StockRecord, error) {
	records := make([]domain.StockRecord, 0, 16)
	err := s.db.SelectContext(ctx, &records, `
		SELECT p.tenant_id,
		       p.id AS product_id,
		       $2::text AS outlet_id,
		       COALESCE(s.quantity, 0) AS quantity,
		       COALESCE(s.updated_at, p.updated_at) AS updated_at
		FROM products p
		LEFT JOIN stock s ON s.product_id = p.id AND s.outlet_id = $2
		WHERE p.tenant_id = $1 AND p.active AND COALESCE(s.quantity, 0) <= $3
		ORDER BY quantity, p.id
	`, tenantID, outletID, threshold)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) AdjustStock(ctx context.Context, adj domain.StockAdjustment) (*domain.StockRecord, error) {
	if adj.Quantity < 0 || adj.Quantity > domain.MaxStockQuantity {
		return nil, store.ErrInvalidInput
	}
	var kind string
	switch adj.Mode {
	case domain.AdjustAdd:
		kind = domain.MovementAdjustAdd
	case domain.AdjustSubtract:
		kind = domain.MovementAdjustSubtract
	case domain.AdjustSet:
		kind = domain.MovementAdjustSet
	default:
		return nil, store.ErrInvalidInput
	}

	var record domain.StockRecord
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var owned bool
		if err := tx.GetContext(ctx, &owned, `
			SELECT EXISTS (SELECT 1 FROM products WHERE id = $1 AND tenant_id = $3)
			   AND EXISTS (SELECT 1 FROM outlets WHERE id = $2 AND tenant_id = $3)
		`, adj.ProductID, adj.OutletID, adj.TenantID); err != nil {
			return err
		}
		if !owned {
			return store.ErrNotFound
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stock (tenant_id, product_id, outlet_id, quantity, updated_at)
			VALUES ($1,$2,$3,0,now())
			ON CONFLICT (product_id, outlet_id) DO NOTHING
		`, adj.TenantID, adj.ProductID, adj.OutletID); err != nil {
			return err
		}

		var before int
		if err := tx.GetContext(ctx, &before, `
			SELECT quantity FROM stock
			WHERE product_id = $1 AND outlet_id = $2
			FOR UPDATE
		`, adj.ProductID, adj.OutletID); err != nil {
			return err
		}

		after := before
		switch adj.Mode {
		case domain.AdjustAdd:
			if adj.Quantity > domain.MaxStockQuantity-before {
				return fmt.Errorf("%w: stock level would exceed %d", store.ErrInvalidInput, domain.MaxStockQuantity)
			}
			after = before + adj.Quantity
		case domain.AdjustSubtract:
			after = max(before-adj.Quantity, 0)
		case domain.AdjustSet:
			after = adj.Quantity
		}

		if err := tx.GetContext(ctx, &record, `
			UPDATE stock SET quantity = $3, updated_at = now()
			WHERE product_id = $1 AND outlet_id = $2
			RETURNING tenant_id, product_id, outlet_id, quantity, updated_at
		`, adj.ProductID, adj.OutletID, after); err != nil {
			return err
		}

		if after == before && adj.Mode != domain.AdjustSet {
			return nil
		}
		return insertMovement(ctx, tx, domain.StockMovement{
			TenantID:       adj.TenantID,
			OutletID:       adj.OutletID,
			ProductID:      adj.ProductID,
			Kind:           kind,
			QuantityChange: after - before,
			QuantityBefore: before,
			QuantityAfter:  after,
			ReferenceType:  "adjustment",
			Note:           adj.Note,
			CreatedBy:      adj.StaffID,
		})
	})
	if err != nil {
		return nil, writeErr(err)
	}
	return &record, nil
}

func insertMovement(ctx context.Context, tx *sqlx.Tx, mv domain.StockMovement) error {
	if mv.ID == "" {
		mv.ID = xid.New("mov")
	}
	if mv.CreatedAt.IsZero() {
		mv.CreatedAt = time.Now().UTC()
	}
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO stock_movements (
			id, tenant_id, outlet_id, product_id, kind, quantity_change, quantity_before, quantity_after,
			reference_type, reference_id, note, created_by, created_at
		)
		VALUES (
			:id, :tenant_id, :outlet_id, :product_id, :kind, :quantity_change, :quantity_before, :quantity_after,
			:reference_type, :reference_id, :note, :created_by, :created_at
		)
	`, mv)
	return err
}

func (s *Store) ListStockMovements(ctx context.Context, tenantID string, outletID string, productID string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 100
	}
	movements := make([]domain.StockMovement, 0, limit)
	err := s.db.SelectContext(ctx, &movements, `
		SELECT id, tenant_id, outlet_id, product_id, kind, quantity_change, quantity_before, quantity_after,
		       reference_type, reference_id, note, created_by, created_at
		FROM stock_movements
		WHERE tenant_id = $1
		  AND ($2::text = '' OR outlet_id = $2)
		  AND ($3::text = '' OR product_id = $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, tenantID, outletID, productID, limit)
	if err != nil {
		return nil, err
	}
	return movements, nil
}
