package domain

import "github.com/shopspring/decimal"

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string  `json:"access_token"`
	ExpiresAt   string  `json:"expires_at"`
	Session     Session `json:"session"`
}

// RegisterRequest creates a tenant with its first outlet and owner account.
type RegisterRequest struct {
	BusinessName  string `json:"business_name" validate:"required,max=120"`
	Email         string `json:"email" validate:"omitempty,email"`
	Phone         string `json:"phone" validate:"omitempty,max=40"`
	OutletName    string `json:"outlet_name" validate:"required,max=120"`
	OutletAddress string `json:"outlet_address" validate:"omitempty,max=240"`
	Username      string `json:"username" validate:"required,min=4,max=60"`
	Password      string `json:"password" validate:"required,min=8,max=72"`
	FullName      string `json:"full_name" validate:"omitempty,max=120"`
}

type RegisterResponse struct {
	Tenant Tenant `json:"tenant"`
	Outlet Outlet `json:"outlet"`
	Staff  Staff  `json:"staff"`
}

type OutletCreateRequest struct {
	Name    string `json:"name" validate:"required,max=120"`
	Address string `json:"address" validate:"omitempty,max=240"`
	Phone   string `json:"phone" validate:"omitempty,max=40"`
}

type StaffCreateRequest struct {
	Username string `json:"username" validate:"required,min=4,max=60"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"full_name" validate:"omitempty,max=120"`
	Role     string `json:"role" validate:"required,oneof=owner manager cashier"`
	OutletID string `json:"outlet_id"`
}

type CategoryCreateRequest struct {
	Name string `json:"name" validate:"required,max=80"`
}

type ProductCreateRequest struct {
	CategoryID string `json:"category_id"`
	SKU        string `json:"sku" validate:"omitempty,max=64"`
	Name       string `json:"name" validate:"required,max=160"`
	Price      int64  `json:"price" validate:"gte=0,lte=10000000000"`
	CostPrice  int64  `json:"cost_price" validate:"gte=0,lte=10000000000"`
	ImageURL   string `json:"image_url" validate:"omitempty,url"`
}

// ProductUpdateRequest cannot touch cost_price; that is owned by receiving.
type ProductUpdateRequest struct {
	CategoryID *string `json:"category_id,omitempty"`
	Name       *string `json:"name,omitempty" validate:"omitempty,max=160"`
	Price      *int64  `json:"price,omitempty" validate:"omitempty,gte=0,lte=10000000000"`
	ImageURL   *string `json:"image_url,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}

type TaxCreateRequest struct {
	Name string          `json:"name" validate:"required,max=60"`
	Kind string          `json:"kind" validate:"omitempty,oneof=tax service_charge"`
	Rate decimal.Decimal `json:"rate"`
}

type TaxUpdateRequest struct {
	Active bool `json:"active"`
}

type StockAdjustRequest struct {
	OutletID  string `json:"outlet_id"`
	ProductID string `json:"product_id" validate:"required"`
	Mode      string `json:"mode" validate:"required,oneof=add subtract set"`
	Quantity  int    `json:"quantity" validate:"gte=0,lte=1000000"`
	Note      string `json:"note" validate:"omitempty,max=240"`
}

type CartLineInput struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=0,lte=1000000"`
}

// CartSummaryRequest prices a cart against the catalog and the stock at the
// resolved outlet without persisting anything.
type CartSummaryRequest struct {
	OutletID string          `json:"outlet_id"`
	Lines    []CartLineInput `json:"lines" validate:"max=500,dive"`
	Discount *Discount       `json:"discount,omitempty"`
}

type CheckoutLine struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1,lte=1000000"`
	UnitPrice int64  `json:"unit_price" validate:"gte=0,lte=10000000000"`
}

// CheckoutRequest.OutletID is only honoured for staff allowed to roam.
type CheckoutRequest struct {
	OutletID       string         `json:"outlet_id"`
	CustomerID     string         `json:"customer_id"`
	PaymentMethod  string         `json:"payment_method" validate:"omitempty,oneof=cash card qris ewallet transfer"`
	TotalAmount    int64          `json:"total_amount" validate:"gte=0"`
	Discount       *Discount      `json:"discount,omitempty"`
	IdempotencyKey string         `json:"idempotency_key" validate:"omitempty,max=120"`
	Items          []CheckoutLine `json:"items" validate:"required,min=1,max=500,dive"`
}

type CheckoutResponse struct {
	Order     Order `json:"order"`
	Duplicate bool  `json:"duplicate"`
}

type SupplierCreateRequest struct {
	Name  string `json:"name" validate:"required,max=120"`
	Phone string `json:"phone" validate:"omitempty,max=40"`
	Email string `json:"email" validate:"omitempty,email"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name" validate:"required,max=120"`
	Phone string `json:"phone" validate:"omitempty,max=40"`
	Email string `json:"email" validate:"omitempty,email"`
}

type PurchaseOrderItemInput struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1,lte=1000000"`
	UnitCost  int64  `json:"unit_cost" validate:"gte=0,lte=10000000000"`
}

type PurchaseOrderCreateRequest struct {
	SupplierID string                   `json:"supplier_id"`
	Status     string                   `json:"status" validate:"omitempty,oneof=draft ordered"`
	Notes      string                   `json:"notes" validate:"omitempty,max=500"`
	Items      []PurchaseOrderItemInput `json:"items" validate:"max=500,dive"`
}

type PurchaseOrderReceiveRequest struct {
	OutletID string `json:"outlet_id"`
}

const (
	SideEffectStrict     = "strict"
	SideEffectBestEffort = "best_effort"
)

// SideEffectReport describes one declared side effect of receiving and
// whether it was applied.
type SideEffectReport struct {
	Name      string   `json:"name"`
	Policy    string   `json:"policy"`
	Applied   int      `json:"applied"`
	Failed    int      `json:"failed"`
	FailedFor []string `json:"failed_for,omitempty"`
}

// CostUpdateFailure is a best-effort cost update that did not apply.
type CostUpdateFailure struct {
	ProductID string `json:"product_id"`
	Reason    string `json:"reason"`
}

type PurchaseOrderReceipt struct {
	PurchaseOrder      PurchaseOrder       `json:"purchase_order"`
	CostUpdateFailures []CostUpdateFailure `json:"cost_update_failures,omitempty"`
}

type PurchaseOrderReceiveResponse struct {
	PurchaseOrder PurchaseOrder      `json:"purchase_order"`
	SideEffects   []SideEffectReport `json:"side_effects"`
}

type LowStockItem struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

type DashboardSummary struct {
	TenantID      string         `json:"tenant_id"`
	OutletID      string         `json:"outlet_id,omitempty"`
	Date          string         `json:"date"`
	Sales         SalesSummary   `json:"sales"`
	LowStockCount int            `json:"low_stock_count"`
	LowStock      []LowStockItem `json:"low_stock,omitempty"`
	GeneratedAt   string         `json:"generated_at"`
}

// POSCatalogItem is a sellable product with its on-hand quantity at one outlet.
type POSCatalogItem struct {
	Product   Product `json:"product"`
	Available int     `json:"available"`
}

type POSCatalog struct {
	OutletID string           `json:"outlet_id"`
	Items    []POSCatalogItem `json:"items"`
	Taxes    []Tax            `json:"taxes"`
}

// CartShortage is a cart line asking for more than the outlet holds.
type CartShortage struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}
