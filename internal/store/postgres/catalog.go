package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"outletpos/internal/domain"
	"outletpos/internal/store"
	"outletpos/internal/xid"
)

const productColumns = `id, tenant_id, COALESCE(category_id, '') AS category_id, sku, name, price, cost_price, image_url, active, created_at, updated_at`

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO categories (id, tenant_id, name, created_at)
		VALUES (:id, :tenant_id, :name, :created_at)
	`, category)
	if err != nil {
		return nil, writeErr(err)
	}
	return &category, nil
}

func (s *Store) GetCategory(ctx context.Context, tenantID string, categoryID string) (*domain.Category, error) {
	var category domain.Category
	err := s.db.GetContext(ctx, &category, `
		SELECT id, tenant_id, name, created_at
		FROM categories
		WHERE id = $1 AND tenant_id = $2
	`, categoryID, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &category, nil
}

func (s *Store) ListCategories(ctx context.Context, tenantID string) ([]domain.Category, error) {
	categories := make([]domain.Category, 0, 8)
	err := s.db.SelectContext(ctx, &categories, `
		SELECT id, tenant_id, name, created_at
		FROM categories
		WHERE tenant_id = $1
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.TenantID == "" || product.Name == "" || product.Price < 0 || product.CostPrice < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, tenant_id, category_id, sku, name, price, cost_price, image_url, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, product.ID, product.TenantID, nullIfEmpty(product.CategoryID), strings.TrimSpace(product.SKU), product.Name,
		product.Price, product.CostPrice, product.ImageURL, product.Active, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		return nil, writeErr(err)
	}
	return &product, nil
}

// UpdateProduct never writes cost_price; receiving owns that column.
func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Price < 0 {
		return nil, store.ErrInvalidInput
	}
	var updated domain.Product
	err := s.db.GetContext(ctx, &updated, `
		UPDATE products
		SET name = $3, category_id = $4, price = $5, image_url = $6, active = $7, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+productColumns,
		product.ID, product.TenantID, product.Name, nullIfEmpty(product.CategoryID), product.Price, product.ImageURL, product.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, writeErr(err)
	}
	return &updated, nil
}

func (s *Store) GetProduct(ctx context.Context, tenantID string, productID string) (*domain.Product, error) {
	var product domain.Product
	err := s.db.GetContext(ctx, &product, `SELECT `+productColumns+` FROM products WHERE id = $1 AND tenant_id = $2`, productID, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, tenantID string, productIDs []string) (map[string]domain.Product, error) {
	return productsByIDs(ctx, s.db, tenantID, productIDs)
}

func productsByIDs(ctx context.Context, q sqlx.QueryerContext, tenantID string, productIDs []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}
	products := make([]domain.Product, 0, len(productIDs))
	err := sqlx.SelectContext(ctx, q, &products, `
		SELECT `+productColumns+`
		FROM products
		WHERE tenant_id = $1 AND id = ANY($2)
	`, tenantID, productIDs)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}

func (s *Store) ListProducts(ctx context.Context, tenantID string, includeInactive bool) ([]domain.Product, error) {
	products := make([]domain.Product, 0, 128)
	err := s.db.SelectContext(ctx, &products, `
		SELECT `+productColumns+`
		FROM products
		WHERE tenant_id = $1 AND (active OR $2)
		ORDER BY name
	`, tenantID, includeInactive)
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error {
	if entry.ID == "" {
		entry.ID = xid.New("ph")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO product_price_history (id, tenant_id, product_id, old_price, new_price, changed_by, changed_at)
		VALUES (:id, :tenant_id, :product_id, :old_price, :new_price, :changed_by, :changed_at)
	`, entry)
	return writeErr(err)
}

func (s *Store) ListPriceHistory(ctx context.Context, tenantID string, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	if limit < 1 {
		limit = 50
	}
	history := make([]domain.ProductPriceHistory, 0, limit)
	err := s.db.SelectContext(ctx, &history, `
		SELECT id, tenant_id, product_id, old_price, new_price, changed_by, changed_at
		FROM product_price_history
		WHERE tenant_id = $1 AND product_id = $2
		ORDER BY changed_at DESC
		LIMIT $3
	`, tenantID, productID, limit)
	if err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Store) CreateTax(ctx context.Context, tax domain.Tax) (*domain.Tax, error) {
	if tax.ID == "" {
		tax.ID = xid.New("tax")
	}
	if tax.CreatedAt.IsZero() {
		tax.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO taxes (id, tenant_id, name, kind, rate, active, created_at)
		VALUES (:id, :tenant_id, :name, :kind, :rate, :active, :created_at)
	`, tax)
	if err != nil {
		return nil, writeErr(err)
	}
	return &tax, nil
}

func (s *Store) ListTaxes(ctx context.Context, tenantID string) ([]domain.Tax, error) {
	taxes := make([]domain.Tax, 0, 4)
	err := s.db.SelectContext(ctx, &taxes, `
		SELECT id, tenant_id, name, kind, rate, active, created_at
		FROM taxes
		WHERE tenant_id = $1
		ORDER BY created_at, id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	return taxes, nil
}

func (s *Store) SetTaxActive(ctx context.Context, tenantID string, taxID string, active bool) (*domain.Tax, error) {
	var tax domain.Tax
	err := s.db.GetContext(ctx, &tax, `
		UPDATE taxes SET active = $3
		WHERE id = $1 AND tenant_id = $2
		RETURNING id, tenant_id, name, kind, rate, active, created_at
	`, taxID, tenantID, active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &tax, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO suppliers (id, tenant_id, name, phone, email, created_at)
		VALUES (:id, :tenant_id, :name, :phone, :email, :created_at)
	`, supplier)
	if err != nil {
		return nil, writeErr(err)
	}
	return &supplier, nil
}

func (s *Store) GetSupplier(ctx context.Context, tenantID string, supplierID string) (*domain.Supplier, error) {
	var supplier domain.Supplier
	err := s.db.GetContext(ctx, &supplier, `
		SELECT id, tenant_id, name, phone, email, created_at
		FROM suppliers
		WHERE id = $1 AND tenant_id = $2
	`, supplierID, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(ctx context.Context, tenantID string) ([]domain.Supplier, error) {
	suppliers := make([]domain.Supplier, 0, 8)
	err := s.db.SelectContext(ctx, &suppliers, `
		SELECT id, tenant_id, name, phone, email, created_at
		FROM suppliers
		WHERE tenant_id = $1
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO customers (id, tenant_id, name, phone, email, total_spent, created_at)
		VALUES (:id, :tenant_id, :name, :phone, :email, :total_spent, :created_at)
	`, customer)
	if err != nil {
		return nil, writeErr(err)
	}
	return &customer, nil
}

func (s *Store) GetCustomer(ctx context.Context, tenantID string, customerID string) (*domain.Customer, error) {
	var customer domain.Customer
	err := s.db.GetContext(ctx, &customer, `
		SELECT id, tenant_id, name, phone, email, total_spent, created_at
		FROM customers
		WHERE id = $1 AND tenant_id = $2
	`, customerID, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context, tenantID string) ([]domain.Customer, error) {
	customers := make([]domain.Customer, 0, 16)
	err := s.db.SelectContext(ctx, &customers, `
		SELECT id, tenant_id, name, phone, email, total_spent, created_at
		FROM customers
		WHERE tenant_id = $1
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	return customers, nil
}
