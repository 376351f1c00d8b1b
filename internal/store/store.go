package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"outletpos/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
)

// InsufficientStockError names the first checkout line that could not be
// served. It matches ErrInsufficientStock with errors.Is.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("stock insufficient for %s: %d remaining, %d requested", name, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ReceiveCommand moves an ordered purchase order into stock at OutletID.
type ReceiveCommand struct {
	TenantID        string
	PurchaseOrderID string
	OutletID        string
	ReceivedBy      string
	ReceivedAt      time.Time
}

// Repository is the relational contract. Every read and write is scoped by
// tenant; multi-row writes are all-or-nothing.
type Repository interface {
	CreateTenantWithOwner(ctx context.Context, tenant domain.Tenant, outlet domain.Outlet, owner domain.Staff) error
	GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error)
	CreateOutlet(ctx context.Context, outlet domain.Outlet) (*domain.Outlet, error)
	GetOutlet(ctx context.Context, tenantID string, outletID string) (*domain.Outlet, error)
	ListOutlets(ctx context.Context, tenantID string) ([]domain.Outlet, error)

	CreateStaff(ctx context.Context, staff domain.Staff) (*domain.Staff, error)
	GetStaff(ctx context.Context, staffID string) (*domain.Staff, error)
	GetStaffByUsername(ctx context.Context, username string) (*domain.Staff, error)
	ListStaff(ctx context.Context, tenantID string) ([]domain.Staff, error)

	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	GetCategory(ctx context.Context, tenantID string, categoryID string) (*domain.Category, error)
	ListCategories(ctx context.Context, tenantID string) ([]domain.Category, error)

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, tenantID string, productID string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, tenantID string, productIDs []string) (map[string]domain.Product, error)
	ListProducts(ctx context.Context, tenantID string, includeInactive bool) ([]domain.Product, error)
	CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error
	ListPriceHistory(ctx context.Context, tenantID string, productID string, limit int) ([]domain.ProductPriceHistory, error)

	CreateTax(ctx context.Context, tax domain.Tax) (*domain.Tax, error)
	ListTaxes(ctx context.Context, tenantID string) ([]domain.Tax, error)
	SetTaxActive(ctx context.Context, tenantID string, taxID string, active bool) (*domain.Tax, error)

	GetStockMap(ctx context.Context, tenantID string, outletID string, productIDs []string) (map[string]int, error)
	ListStock(ctx context.Context, tenantID string, outletID string) ([]domain.StockRecord, error)
	ListLowStock(ctx context.Context, tenantID string, outletID string, threshold int) ([]domain.StockRecord, error)
	AdjustStock(ctx context.Context, adj domain.StockAdjustment) (*domain.StockRecord, error)
	ListStockMovements(ctx context.Context, tenantID string, outletID string, productID string, limit int) ([]domain.StockMovement, error)

	// CreateCheckout verifies stock for every line, writes the order and its
	// items, decrements stock and credits the customer in one unit. On a
	// shortfall it returns *InsufficientStockError and writes nothing.
	CreateCheckout(ctx context.Context, order domain.Order) (*domain.Order, error)
	FindOrderByIdempotency(ctx context.Context, tenantID string, key string) (*domain.Order, error)
	GetOrder(ctx context.Context, tenantID string, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, tenantID string, outletID string, limit int) ([]domain.Order, error)
	GetSalesSummary(ctx context.Context, tenantID string, outletID string, from time.Time, to time.Time) (domain.SalesSummary, error)

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	GetSupplier(ctx context.Context, tenantID string, supplierID string) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context, tenantID string) ([]domain.Supplier, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, tenantID string, customerID string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, tenantID string) ([]domain.Customer, error)

	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	GetPurchaseOrder(ctx context.Context, tenantID string, purchaseOrderID string) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, tenantID string, status string, limit int) ([]domain.PurchaseOrder, error)
	MarkPurchaseOrderOrdered(ctx context.Context, tenantID string, purchaseOrderID string) (*domain.PurchaseOrder, error)
	// ReceivePurchaseOrder adds every line to stock (any failure aborts the
	// whole receipt) and sets each product's cost price to the line's unit
	// cost (failures are reported, not fatal).
	ReceivePurchaseOrder(ctx context.Context, cmd ReceiveCommand) (*domain.PurchaseOrderReceipt, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, tenantID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}
