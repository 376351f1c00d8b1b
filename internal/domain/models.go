package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bounds on client-supplied amounts. Stock columns are 32-bit and money is
// int64 minor units, so lines stay summable without overflow.
const (
	MaxLineQuantity  = 1_000_000
	MaxStockQuantity = 2_147_483_647
	MaxMoneyAmount   = 10_000_000_000
	MaxOrderLines    = 500
)

const (
	RoleOwner   = "owner"
	RoleManager = "manager"
	RoleCashier = "cashier"
)

type Tenant struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Phone     string    `json:"phone" db:"phone"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Outlet struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	Name      string    `json:"name" db:"name"`
	Address   string    `json:"address" db:"address"`
	Phone     string    `json:"phone" db:"phone"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Staff is the stored profile behind an authenticated principal. OutletID is
// empty for staff that are not pinned to a branch.
type Staff struct {
	ID           string    `json:"id" db:"id"`
	TenantID     string    `json:"tenant_id" db:"tenant_id"`
	OutletID     string    `json:"outlet_id,omitempty" db:"outlet_id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FullName     string    `json:"full_name" db:"full_name"`
	Role         string    `json:"role" db:"role"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Principal is what a verified bearer token proves: a staff id and the role
// it was issued with. Tenant and outlet are never read from it.
type Principal struct {
	StaffID string
	Role    string
}

// Session is the server-resolved identity of a request.
type Session struct {
	StaffID  string `json:"staff_id"`
	Username string `json:"username"`
	TenantID string `json:"tenant_id"`
	OutletID string `json:"outlet_id,omitempty"`
	Role     string `json:"role"`
}

func (s Session) IsOwner() bool {
	return s.Role == RoleOwner
}

func (s Session) CanManage() bool {
	return s.Role == RoleOwner || s.Role == RoleManager
}

type Category struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Product prices are integer minor currency units.
type Product struct {
	ID         string    `json:"id" db:"id"`
	TenantID   string    `json:"tenant_id" db:"tenant_id"`
	CategoryID string    `json:"category_id,omitempty" db:"category_id"`
	SKU        string    `json:"sku" db:"sku"`
	Name       string    `json:"name" db:"name"`
	Price      int64     `json:"price" db:"price"`
	CostPrice  int64     `json:"cost_price" db:"cost_price"`
	ImageURL   string    `json:"image_url,omitempty" db:"image_url"`
	Active     bool      `json:"active" db:"active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

type ProductPriceHistory struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	ProductID string    `json:"product_id" db:"product_id"`
	OldPrice  int64     `json:"old_price" db:"old_price"`
	NewPrice  int64     `json:"new_price" db:"new_price"`
	ChangedBy string    `json:"changed_by" db:"changed_by"`
	ChangedAt time.Time `json:"changed_at" db:"changed_at"`
}

const (
	TaxKindTax           = "tax"
	TaxKindServiceCharge = "service_charge"
)

// Tax is a named rate applied to the taxable amount of a sale. Rate is a
// fraction: 0.11 means 11%.
type Tax struct {
	ID        string          `json:"id" db:"id"`
	TenantID  string          `json:"tenant_id" db:"tenant_id"`
	Name      string          `json:"name" db:"name"`
	Kind      string          `json:"kind" db:"kind"`
	Rate      decimal.Decimal `json:"rate" db:"rate"`
	Active    bool            `json:"active" db:"active"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

const (
	DiscountPercent = "percent"
	DiscountFixed   = "fixed"
)

// Discount is a single cart-wide discount. Value is a percentage for
// DiscountPercent and minor currency units for DiscountFixed.
type Discount struct {
	Type  string          `json:"type" validate:"omitempty,oneof=percent fixed"`
	Value decimal.Decimal `json:"value"`
}

// StockRecord is the on-hand quantity of one product at one outlet. There is
// at most one record per (ProductID, OutletID).
type StockRecord struct {
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	ProductID string    `json:"product_id" db:"product_id"`
	OutletID  string    `json:"outlet_id" db:"outlet_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

const (
	AdjustAdd      = "add"
	AdjustSubtract = "subtract"
	AdjustSet      = "set"
)

const (
	MovementSale           = "sale"
	MovementReceipt        = "receipt"
	MovementAdjustAdd      = "adjust_add"
	MovementAdjustSubtract = "adjust_subtract"
	MovementAdjustSet      = "adjust_set"
)

type StockAdjustment struct {
	TenantID  string
	OutletID  string
	ProductID string
	Mode      string
	Quantity  int
	StaffID   string
	Note      string
}

type StockMovement struct {
	ID             string    `json:"id" db:"id"`
	TenantID       string    `json:"tenant_id" db:"tenant_id"`
	OutletID       string    `json:"outlet_id" db:"outlet_id"`
	ProductID      string    `json:"product_id" db:"product_id"`
	Kind           string    `json:"kind" db:"kind"`
	QuantityChange int       `json:"quantity_change" db:"quantity_change"`
	QuantityBefore int       `json:"quantity_before" db:"quantity_before"`
	QuantityAfter  int       `json:"quantity_after" db:"quantity_after"`
	ReferenceType  string    `json:"reference_type,omitempty" db:"reference_type"`
	ReferenceID    string    `json:"reference_id,omitempty" db:"reference_id"`
	Note           string    `json:"note,omitempty" db:"note"`
	CreatedBy      string    `json:"created_by" db:"created_by"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

const OrderStatusCompleted = "completed"

// Order is an immutable completed sale. TotalAmount is the sum of item
// subtotals; GrandTotal is what the customer paid after discount and taxes.
type Order struct {
	ID             string      `json:"id" db:"id"`
	TenantID       string      `json:"tenant_id" db:"tenant_id"`
	OutletID       string      `json:"outlet_id" db:"outlet_id"`
	StaffID        string      `json:"staff_id" db:"staff_id"`
	CustomerID     string      `json:"customer_id,omitempty" db:"customer_id"`
	IdempotencyKey string      `json:"idempotency_key" db:"idempotency_key"`
	PaymentMethod  string      `json:"payment_method" db:"payment_method"`
	Status         string      `json:"status" db:"status"`
	TotalAmount    int64       `json:"total_amount" db:"total_amount"`
	DiscountAmount int64       `json:"discount_amount" db:"discount_amount"`
	TaxAmount      int64       `json:"tax_amount" db:"tax_amount"`
	ServiceCharge  int64       `json:"service_charge" db:"service_charge"`
	GrandTotal     int64       `json:"grand_total" db:"grand_total"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	Items          []OrderItem `json:"items" db:"-"`
}

type OrderItem struct {
	ID          string `json:"id" db:"id"`
	OrderID     string `json:"order_id" db:"order_id"`
	TenantID    string `json:"tenant_id" db:"tenant_id"`
	ProductID   string `json:"product_id" db:"product_id"`
	ProductName string `json:"product_name" db:"product_name"`
	Quantity    int    `json:"quantity" db:"quantity"`
	Price       int64  `json:"price" db:"price"`
	Subtotal    int64  `json:"subtotal" db:"subtotal"`
}

type Supplier struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	Name      string    `json:"name" db:"name"`
	Phone     string    `json:"phone" db:"phone"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

const (
	PurchaseOrderDraft    = "draft"
	PurchaseOrderOrdered  = "ordered"
	PurchaseOrderReceived = "received"
)

// PurchaseOrder totals are fixed at creation. OutletID is set on receipt.
type PurchaseOrder struct {
	ID         string              `json:"id" db:"id"`
	TenantID   string              `json:"tenant_id" db:"tenant_id"`
	SupplierID string              `json:"supplier_id" db:"supplier_id"`
	OutletID   string              `json:"outlet_id,omitempty" db:"outlet_id"`
	Status     string              `json:"status" db:"status"`
	TotalCost  int64               `json:"total_cost" db:"total_cost"`
	Notes      string              `json:"notes,omitempty" db:"notes"`
	CreatedBy  string              `json:"created_by" db:"created_by"`
	CreatedAt  time.Time           `json:"created_at" db:"created_at"`
	ReceivedBy string              `json:"received_by,omitempty" db:"received_by"`
	ReceivedAt *time.Time          `json:"received_at,omitempty" db:"received_at"`
	Items      []PurchaseOrderItem `json:"items" db:"-"`
}

type PurchaseOrderItem struct {
	ID              string `json:"id" db:"id"`
	PurchaseOrderID string `json:"purchase_order_id" db:"purchase_order_id"`
	ProductID       string `json:"product_id" db:"product_id"`
	Quantity        int    `json:"quantity" db:"quantity"`
	UnitCost        int64  `json:"unit_cost" db:"unit_cost"`
}

type Customer struct {
	ID         string    `json:"id" db:"id"`
	TenantID   string    `json:"tenant_id" db:"tenant_id"`
	Name       string    `json:"name" db:"name"`
	Phone      string    `json:"phone" db:"phone"`
	Email      string    `json:"email" db:"email"`
	TotalSpent int64     `json:"total_spent" db:"total_spent"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type AuditLog struct {
	ID         string    `json:"id" db:"id"`
	TenantID   string    `json:"tenant_id" db:"tenant_id"`
	StaffID    string    `json:"staff_id" db:"staff_id"`
	StaffRole  string    `json:"staff_role" db:"staff_role"`
	Action     string    `json:"action" db:"action"`
	EntityType string    `json:"entity_type" db:"entity_type"`
	EntityID   string    `json:"entity_id" db:"entity_id"`
	Detail     string    `json:"detail" db:"detail"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// SalesSummary is the raw aggregate a store returns for a period.
type SalesSummary struct {
	OrderCount      int              `json:"order_count"`
	GrossAmount     int64            `json:"gross_amount"`
	DiscountAmount  int64            `json:"discount_amount"`
	TaxAmount       int64            `json:"tax_amount"`
	GrandTotal      int64            `json:"grand_total"`
	ItemsSold       int              `json:"items_sold"`
	ByPaymentMethod map[string]int64 `json:"by_payment_method"`
}
