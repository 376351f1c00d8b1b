package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"outletpos/internal/domain"
	"outletpos/internal/store"
	"outletpos/internal/xid"
)

type stockKey struct {
	productID string
	outletID  string
}

// Store is a mutex-guarded in-process Repository. A single lock makes every
// method atomic, which gives checkout and receiving the same all-or-nothing
// behaviour as the Postgres store.
type Store struct {
	mu              sync.RWMutex
	tenants         map[string]domain.Tenant
	outlets         map[string]domain.Outlet
	staff           map[string]domain.Staff
	staffByUsername map[string]string
	categories      map[string]domain.Category
	products        map[string]domain.Product
	priceHistory    map[string][]domain.ProductPriceHistory
	taxes           map[string]domain.Tax
	stock           map[stockKey]domain.StockRecord
	movements       []domain.StockMovement
	orders          map[string]*domain.Order
	ordersByIdem    map[string]string
	suppliers       map[string]domain.Supplier
	customers       map[string]domain.Customer
	purchaseOrders  map[string]domain.PurchaseOrder
	auditLogs       []domain.AuditLog
	costUpdateFails map[string]error
}

func New() *Store {
	return &Store{
		tenants:         make(map[string]domain.Tenant),
		outlets:         make(map[string]domain.Outlet),
		staff:           make(map[string]domain.Staff),
		staffByUsername: make(map[string]string),
		categories:      make(map[string]domain.Category),
		products:        make(map[string]domain.Product),
		priceHistory:    make(map[string][]domain.ProductPriceHistory),
		taxes:           make(map[string]domain.Tax),
		stock:           make(map[stockKey]domain.StockRecord),
		movements:       make([]domain.StockMovement, 0, 128),
		orders:          make(map[string]*domain.Order),
		ordersByIdem:    make(map[string]string),
		suppliers:       make(map[string]domain.Supplier),
		customers:       make(map[string]domain.Customer),
		purchaseOrders:  make(map[string]domain.PurchaseOrder),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		costUpdateFails: make(map[string]error),
	}
}

// FailCostUpdatesFor makes the best-effort cost update of the given products
// fail during receiving. Stock updates are unaffected.
func (s *Store) FailCostUpdatesFor(reason error, productIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range productIDs {
		s.costUpdateFails[id] = reason
	}
}

func (s *Store) CreateTenantWithOwner(_ context.Context, tenant domain.Tenant, outlet domain.Outlet, owner domain.Staff) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tenant.ID == "" || outlet.ID == "" || owner.ID == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.tenants[tenant.ID]; exists {
		return store.ErrConflict
	}
	if _, exists := s.staffByUsername[strings.ToLower(owner.Username)]; exists {
		return fmt.Errorf("%w: username already exists", store.ErrConflict)
	}
	s.tenants[tenant.ID] = tenant
	s.outlets[outlet.ID] = outlet
	s.putStaff(owner)
	return nil
}

func (s *Store) GetTenant(_ context.Context, tenantID string) (*domain.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenant, ok := s.tenants[tenantID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &tenant, nil
}

func (s *Store) CreateOutlet(_ context.Context, outlet domain.Outlet) (*domain.Outlet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[outlet.TenantID]; !ok {
		return nil, store.ErrNotFound
	}
	if outlet.ID == "" {
		outlet.ID = xid.New("out")
	}
	if outlet.CreatedAt.IsZero() {
		outlet.CreatedAt = time.Now().UTC()
	}
	s.outlets[outlet.ID] = outlet
	return &outlet, nil
}

func (s *Store) GetOutlet(_ context.Context, tenantID string, outletID string) (*domain.Outlet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	outlet, ok := s.outlets[outletID]
	if !ok || outlet.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return &outlet, nil
}

func (s *Store) ListOutlets(_ context.Context, tenantID string) ([]domain.Outlet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Outlet, 0, 4)
	for _, outlet := range s.outlets {
		if outlet.TenantID == tenantID {
			result = append(result, outlet)
		}
	}
	slices.SortFunc(result, func(a, b domain.Outlet) int { return strings.Compare(a.Name, b.Name) })
	return result, nil
}

func (s *Store) CreateStaff(_ context.Context, staff domain.Staff) (*domain.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	staff.Username = strings.ToLower(strings.TrimSpace(staff.Username))
	if staff.Username == "" || staff.TenantID == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.staffByUsername[staff.Username]; exists {
		return nil, fmt.Errorf("%w: username already exists", store.ErrConflict)
	}
	if staff.OutletID != "" {
		if outlet, ok := s.outlets[staff.OutletID]; !ok || outlet.TenantID != staff.TenantID {
			return nil, store.ErrNotFound
		}
	}
	if staff.ID == "" {
		staff.ID = xid.New("stf")
	}
	if staff.CreatedAt.IsZero() {
		staff.CreatedAt = time.Now().UTC()
	}
	s.putStaff(staff)
	return &staff, nil
}

func (s *Store) putStaff(staff domain.Staff) {
	staff.Username = strings.ToLower(strings.TrimSpace(staff.Username))
	s.staff[staff.ID] = staff
	s.staffByUsername[staff.Username] = staff.ID
}

func (s *Store) GetStaff(_ context.Context, staffID string) (*domain.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	staff, ok := s.staff[staffID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &staff, nil
}

func (s *Store) GetStaffByUsername(_ context.Context, username string) (*domain.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.staffByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, store.ErrNotFound
	}
	staff := s.staff[id]
	return &staff, nil
}

func (s *Store) ListStaff(_ context.Context, tenantID string) ([]domain.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Staff, 0, 8)
	for _, staff := range s.staff {
		if staff.TenantID == tenantID {
			result = append(result, staff)
		}
	}
	slices.SortFunc(result, func(a, b domain.Staff) int { return strings.Compare(a.Username, b.Username) })
	return result, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.categories {
		if existing.TenantID == category.TenantID && strings.EqualFold(existing.Name, category.Name) {
			return nil, fmt.Errorf("%w: category already exists", store.ErrConflict)
		}
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	s.categories[category.ID] = category
	return &category, nil
}

func (s *Store) GetCategory(_ context.Context, tenantID string, categoryID string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, ok := s.categories[categoryID]
	if !ok || category.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return &category, nil
}

func (s *Store) ListCategories(_ context.Context, tenantID string) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Category, 0, 8)
	for _, category := range s.categories {
		if category.TenantID == tenantID {
			result = append(result, category)
		}
	}
	slices.SortFunc(result, func(a, b domain.Category) int { return strings.Compare(a.Name, b.Name) })
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.TenantID == "" || product.Name == "" || product.Price < 0 || product.CostPrice < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.SKU != "" {
		for _, existing := range s.products {
			if existing.TenantID == product.TenantID && existing.SKU == product.SKU {
				return nil, fmt.Errorf("%w: sku already exists", store.ErrConflict)
			}
		}
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok || existing.TenantID != product.TenantID {
		return nil, store.ErrNotFound
	}
	if product.Name == "" || product.Price < 0 {
		return nil, store.ErrInvalidInput
	}
	existing.Name = product.Name
	existing.CategoryID = product.CategoryID
	existing.Price = product.Price
	existing.ImageURL = product.ImageURL
	existing.Active = product.Active
	existing.UpdatedAt = time.Now().UTC()
	s.products[existing.ID] = existing
	return &existing, nil
}

func (s *Store) GetProduct(_ context.Context, tenantID string, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[productID]
	if !ok || product.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, tenantID string, productIDs []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(productIDs))
	for _, id := range productIDs {
		if product, ok := s.products[id]; ok && product.TenantID == tenantID {
			result[id] = product
		}
	}
	return result, nil
}

func (s *Store) ListProducts(_ context.Context, tenantID string, includeInactive bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(s.products))
	for _, product := range s.products {
		if product.TenantID != tenantID {
			continue
		}
		if !product.Active && !includeInactive {
			continue
		}
		result = append(result, product)
	}
	slices.SortFunc(result, func(a, b domain.Product) int { return strings.Compare(a.Name, b.Name) })
	return result, nil
}

func (s *Store) CreatePriceHistory(_ context.Context, entry domain.ProductPriceHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ProductID == "" {
		return store.ErrInvalidInput
	}
	if entry.ID == "" {
		entry.ID = xid.New("ph")
	}
	s.priceHistory[entry.ProductID] = append(s.priceHistory[entry.ProductID], entry)
	return nil
}

func (s *Store) ListPriceHistory(_ context.Context, tenantID string, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.priceHistory[productID]
	result := make([]domain.ProductPriceHistory, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].TenantID != tenantID {
			continue
		}
		result = append(result, history[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateTax(_ context.Context, tax domain.Tax) (*domain.Tax, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tax.TenantID == "" || tax.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if tax.ID == "" {
		tax.ID = xid.New("tax")
	}
	if tax.CreatedAt.IsZero() {
		tax.CreatedAt = time.Now().UTC()
	}
	s.taxes[tax.ID] = tax
	return &tax, nil
}

func (s *Store) ListTaxes(_ context.Context, tenantID string) ([]domain.Tax, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Tax, 0, 4)
	for _, tax := range s.taxes {
		if tax.TenantID == tenantID {
			result = append(result, tax)
		}
	}
	slices.SortFunc(result, func(a, b domain.Tax) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) SetTaxActive(_ context.Context, tenantID string, taxID string, active bool) (*domain.Tax, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tax, ok := s.taxes[taxID]
	if !ok || tax.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	tax.Active = active
	s.taxes[taxID] = tax
	return &tax, nil
}

func (s *Store) GetStockMap(_ context.Context, tenantID string, outletID string, productIDs []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]int, len(productIDs))
	for _, id := range productIDs {
		record, ok := s.stock[stockKey{productID: id, outletID: outletID}]
		if ok && record.TenantID == tenantID {
			result[id] = record.Quantity
		}
	}
	return result, nil
}

func (s *Store) ListStock(_ context.Context, tenantID string, outletID string) ([]domain.StockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockRecord, 0, 32)
	for key, record := range s.stock {
		if key.outletID == outletID && record.TenantID == tenantID {
			result = append(result, record)
		}
	}
	slices.SortFunc(result, func(a, b domain.StockRecord) int { return strings.Compare(a.ProductID, b.ProductID) })
	return result, nil
}

func (s *Store) ListLowStock(_ context.Context, tenantID string, outletID string, threshold int) ([]domain.StockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockRecord, 0, 8)
	for _, product := range s.products {
		if product.TenantID != tenantID || !product.Active {
			continue
		}
		record, ok := s.stock[stockKey{productID: product.ID, outletID: outletID}]
		if !ok {
			record = domain.StockRecord{TenantID: tenantID, ProductID: product.ID, OutletID: outletID}
		}
		if record.Quantity <= threshold {
			result = append(result, record)
		}
	}
	slices.SortFunc(result, func(a, b domain.StockRecord) int {
		if a.Quantity != b.Quantity {
			return a.Quantity - b.Quantity
		}
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return result, nil
}

func (s *Store) AdjustStock(_ context.Context, adj domain.StockAdjustment) (*domain.StockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if adj.Quantity < 0 || adj.Quantity > domain.MaxStockQuantity {
		return nil, store.ErrInvalidInput
	}
	if product, ok := s.products[adj.ProductID]; !ok || product.TenantID != adj.TenantID {
		return nil, store.ErrNotFound
	}
	if outlet, ok := s.outlets[adj.OutletID]; !ok || outlet.TenantID != adj.TenantID {
		return nil, store.ErrNotFound
	}

	key := stockKey{productID: adj.ProductID, outletID: adj.OutletID}
	record, ok := s.stock[key]
	if !ok {
		record = domain.StockRecord{TenantID: adj.TenantID, ProductID: adj.ProductID, OutletID: adj.OutletID}
	}
	before := record.Quantity

	var kind string
	switch adj.Mode {
	case domain.AdjustAdd:
		if adj.Quantity > domain.MaxStockQuantity-before {
			return nil, fmt.Errorf("%w: stock level would exceed %d", store.ErrInvalidInput, domain.MaxStockQuantity)
		}
		record.Quantity = before + adj.Quantity
		kind = domain.MovementAdjustAdd
	case domain.AdjustSubtract:
		record.Quantity = max(before-adj.Quantity, 0)
		kind = domain.MovementAdjustSubtract
	case domain.AdjustSet:
		record.Quantity = adj.Quantity
		kind = domain.MovementAdjustSet
	default:
		return nil, store.ErrInvalidInput
	}

	now := time.Now().UTC()
	record.UpdatedAt = now
	s.stock[key] = record
	if record.Quantity != before || adj.Mode == domain.AdjustSet {
		s.movements = append(s.movements, domain.StockMovement{
			ID:             xid.New("mov"),
			TenantID:       adj.TenantID,
			OutletID:       adj.OutletID,
			ProductID:      adj.ProductID,
			Kind:           kind,
			QuantityChange: record.Quantity - before,
			QuantityBefore: before,
			QuantityAfter:  record.Quantity,
			ReferenceType:  "adjustment",
			Note:           adj.Note,
			CreatedBy:      adj.StaffID,
			CreatedAt:      now,
		})
	}
	return &record, nil
}

func (s *Store) ListStockMovements(_ context.Context, tenantID string, outletID string, productID string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockMovement, 0, 32)
	for i := len(s.movements) - 1; i >= 0; i-- {
		mv := s.movements[i]
		if mv.TenantID != tenantID {
			continue
		}
		if outletID != "" && mv.OutletID != outletID {
			continue
		}
		if productID != "" && mv.ProductID != productID {
			continue
		}
		result = append(result, mv)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateCheckout(_ context.Context, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.TenantID == "" || order.OutletID == "" || len(order.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if outlet, ok := s.outlets[order.OutletID]; !ok || outlet.TenantID != order.TenantID {
		return nil, store.ErrNotFound
	}
	if order.IdempotencyKey != "" {
		if _, exists := s.ordersByIdem[idemKey(order.TenantID, order.IdempotencyKey)]; exists {
			return nil, fmt.Errorf("%w: idempotency key already used", store.ErrConflict)
		}
	}
	var customer domain.Customer
	if order.CustomerID != "" {
		found, ok := s.customers[order.CustomerID]
		if !ok || found.TenantID != order.TenantID {
			return nil, fmt.Errorf("customer %s: %w", order.CustomerID, store.ErrNotFound)
		}
		customer = found
	}

	requested := make(map[string]int, len(order.Items))
	for _, item := range order.Items {
		if item.Quantity < 1 || item.Price < 0 {
			return nil, store.ErrInvalidInput
		}
		product, ok := s.products[item.ProductID]
		if !ok || product.TenantID != order.TenantID {
			return nil, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
		}
		requested[item.ProductID] += item.Quantity
	}
	for _, item := range order.Items {
		available := s.stock[stockKey{productID: item.ProductID, outletID: order.OutletID}].Quantity
		if requested[item.ProductID] > available {
			return nil, &store.InsufficientStockError{
				ProductID:   item.ProductID,
				ProductName: s.products[item.ProductID].Name,
				Available:   available,
				Requested:   requested[item.ProductID],
			}
		}
	}

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

	items := make([]domain.OrderItem, 0, len(order.Items))
	order.TotalAmount = 0
	for _, item := range order.Items {
		item.ID = xid.New("oit")
		item.OrderID = order.ID
		item.TenantID = order.TenantID
		item.Subtotal = item.Price * int64(item.Quantity)
		if item.ProductName == "" {
			item.ProductName = s.products[item.ProductID].Name
		}
		order.TotalAmount += item.Subtotal
		items = append(items, item)
	}
	order.Items = items

	for _, item := range order.Items {
		key := stockKey{productID: item.ProductID, outletID: order.OutletID}
		record := s.stock[key]
		before := record.Quantity
		record.Quantity = before - item.Quantity
		record.UpdatedAt = now
		s.stock[key] = record
		s.movements = append(s.movements, domain.StockMovement{
			ID:             xid.New("mov"),
			TenantID:       order.TenantID,
			OutletID:       order.OutletID,
			ProductID:      item.ProductID,
			Kind:           domain.MovementSale,
			QuantityChange: -item.Quantity,
			QuantityBefore: before,
			QuantityAfter:  record.Quantity,
			ReferenceType:  "order",
			ReferenceID:    order.ID,
			CreatedBy:      order.StaffID,
			CreatedAt:      now,
		})
	}

	if order.CustomerID != "" {
		customer.TotalSpent += order.GrandTotal
		s.customers[customer.ID] = customer
	}

	saved := cloneOrder(&order)
	s.orders[order.ID] = saved
	if order.IdempotencyKey != "" {
		s.ordersByIdem[idemKey(order.TenantID, order.IdempotencyKey)] = order.ID
	}
	return cloneOrder(saved), nil
}

func (s *Store) FindOrderByIdempotency(_ context.Context, tenantID string, key string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.ordersByIdem[idemKey(tenantID, key)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrder(s.orders[id]), nil
}

func (s *Store) GetOrder(_ context.Context, tenantID string, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[orderID]
	if !ok || order.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (s *Store) ListOrders(_ context.Context, tenantID string, outletID string, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, 32)
	for _, order := range s.orders {
		if order.TenantID != tenantID {
			continue
		}
		if outletID != "" && order.OutletID != outletID {
			continue
		}
		result = append(result, *cloneOrder(order))
	}
	slices.SortFunc(result, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetSalesSummary(_ context.Context, tenantID string, outletID string, from time.Time, to time.Time) (domain.SalesSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.SalesSummary{ByPaymentMethod: make(map[string]int64)}
	for _, order := range s.orders {
		if order.TenantID != tenantID {
			continue
		}
		if outletID != "" && order.OutletID != outletID {
			continue
		}
		if order.CreatedAt.Before(from) || !order.CreatedAt.Before(to) {
			continue
		}
		summary.OrderCount++
		summary.GrossAmount += order.TotalAmount
		summary.DiscountAmount += order.DiscountAmount
		summary.TaxAmount += order.TaxAmount + order.ServiceCharge
		summary.GrandTotal += order.GrandTotal
		summary.ByPaymentMethod[order.PaymentMethod] += order.GrandTotal
		for _, item := range order.Items {
			summary.ItemsSold += item.Quantity
		}
	}
	return summary, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.TenantID == "" || supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	s.suppliers[supplier.ID] = supplier
	return &supplier, nil
}

func (s *Store) GetSupplier(_ context.Context, tenantID string, supplierID string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, ok := s.suppliers[supplierID]
	if !ok || supplier.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(_ context.Context, tenantID string) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Supplier, 0, 8)
	for _, supplier := range s.suppliers {
		if supplier.TenantID == tenantID {
			result = append(result, supplier)
		}
	}
	slices.SortFunc(result, func(a, b domain.Supplier) int { return strings.Compare(a.Name, b.Name) })
	return result, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.TenantID == "" || customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customers[customer.ID] = customer
	return &customer, nil
}

func (s *Store) GetCustomer(_ context.Context, tenantID string, customerID string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[customerID]
	if !ok || customer.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) ListCustomers(_ context.Context, tenantID string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Customer, 0, 8)
	for _, customer := range s.customers {
		if customer.TenantID == tenantID {
			result = append(result, customer)
		}
	}
	slices.SortFunc(result, func(a, b domain.Customer) int { return strings.Compare(a.Name, b.Name) })
	return result, nil
}

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if po.TenantID == "" || po.SupplierID == "" || len(po.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if supplier, ok := s.suppliers[po.SupplierID]; !ok || supplier.TenantID != po.TenantID {
		return nil, fmt.Errorf("supplier %s: %w", po.SupplierID, store.ErrNotFound)
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

	items := make([]domain.PurchaseOrderItem, 0, len(po.Items))
	total := int64(0)
	for _, item := range po.Items {
		if item.Quantity < 1 || item.Quantity > domain.MaxLineQuantity || item.UnitCost < 0 || item.UnitCost > domain.MaxMoneyAmount {
			return nil, store.ErrInvalidInput
		}
		if product, ok := s.products[item.ProductID]; !ok || product.TenantID != po.TenantID {
			return nil, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
		}
		item.ID = xid.New("poi")
		item.PurchaseOrderID = po.ID
		total += int64(item.Quantity) * item.UnitCost
		items = append(items, item)
	}
	po.Items = items
	po.TotalCost = total
	po.OutletID = ""

	s.purchaseOrders[po.ID] = clonePurchaseOrder(po)
	saved := clonePurchaseOrder(po)
	return &saved, nil
}

func (s *Store) GetPurchaseOrder(_ context.Context, tenantID string, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, ok := s.purchaseOrders[purchaseOrderID]
	if !ok || po.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	copyPO := clonePurchaseOrder(po)
	return &copyPO, nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, tenantID string, status string, limit int) ([]domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PurchaseOrder, 0, len(s.purchaseOrders))
	for _, po := range s.purchaseOrders {
		if po.TenantID != tenantID {
			continue
		}
		if status != "" && po.Status != status {
			continue
		}
		result = append(result, clonePurchaseOrder(po))
	}
	slices.SortFunc(result, func(a, b domain.PurchaseOrder) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) MarkPurchaseOrderOrdered(_ context.Context, tenantID string, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.purchaseOrders[purchaseOrderID]
	if !ok || po.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	if po.Status != domain.PurchaseOrderDraft {
		return nil, fmt.Errorf("%w: purchase order is %s", store.ErrConflict, po.Status)
	}
	po.Status = domain.PurchaseOrderOrdered
	s.purchaseOrders[po.ID] = po
	updated := clonePurchaseOrder(po)
	return &updated, nil
}

func (s *Store) ReceivePurchaseOrder(_ context.Context, cmd store.ReceiveCommand) (*domain.PurchaseOrderReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.purchaseOrders[cmd.PurchaseOrderID]
	if !ok || po.TenantID != cmd.TenantID {
		return nil, store.ErrNotFound
	}
	switch po.Status {
	case domain.PurchaseOrderReceived:
		return nil, fmt.Errorf("%w: purchase order already processed", store.ErrConflict)
	case domain.PurchaseOrderOrdered:
	default:
		return nil, fmt.Errorf("%w: purchase order must be ordered before receiving", store.ErrConflict)
	}
	if outlet, ok := s.outlets[cmd.OutletID]; !ok || outlet.TenantID != cmd.TenantID {
		return nil, fmt.Errorf("outlet %s: %w", cmd.OutletID, store.ErrNotFound)
	}
	if len(po.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	incoming := make(map[string]int, len(po.Items))
	for _, item := range po.Items {
		if product, ok := s.products[item.ProductID]; !ok || product.TenantID != cmd.TenantID {
			return nil, fmt.Errorf("receive stock for product %s: %w", item.ProductID, store.ErrNotFound)
		}
		incoming[item.ProductID] += item.Quantity
	}
	for productID, qty := range incoming {
		current := s.stock[stockKey{productID: productID, outletID: cmd.OutletID}].Quantity
		if qty > domain.MaxStockQuantity-current {
			return nil, fmt.Errorf("%w: stock level for %s would exceed %d", store.ErrInvalidInput, productID, domain.MaxStockQuantity)
		}
	}

	receivedAt := cmd.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	receipt := &domain.PurchaseOrderReceipt{}
	for _, item := range po.Items {
		key := stockKey{productID: item.ProductID, outletID: cmd.OutletID}
		record, exists := s.stock[key]
		if !exists {
			record = domain.StockRecord{TenantID: cmd.TenantID, ProductID: item.ProductID, OutletID: cmd.OutletID}
		}
		before := record.Quantity
		record.Quantity = before + item.Quantity
		record.UpdatedAt = receivedAt
		s.stock[key] = record
		s.movements = append(s.movements, domain.StockMovement{
			ID:             xid.New("mov"),
			TenantID:       cmd.TenantID,
			OutletID:       cmd.OutletID,
			ProductID:      item.ProductID,
			Kind:           domain.MovementReceipt,
			QuantityChange: item.Quantity,
			QuantityBefore: before,
			QuantityAfter:  record.Quantity,
			ReferenceType:  "purchase_order",
			ReferenceID:    po.ID,
			CreatedBy:      cmd.ReceivedBy,
			CreatedAt:      receivedAt,
		})

		if reason, failing := s.costUpdateFails[item.ProductID]; failing {
			receipt.CostUpdateFailures = append(receipt.CostUpdateFailures, domain.CostUpdateFailure{
				ProductID: item.ProductID,
				Reason:    reason.Error(),
			})
			continue
		}
		product := s.products[item.ProductID]
		product.CostPrice = item.UnitCost
		product.UpdatedAt = receivedAt
		s.products[item.ProductID] = product
	}

	po.Status = domain.PurchaseOrderReceived
	po.OutletID = cmd.OutletID
	po.ReceivedBy = cmd.ReceivedBy
	po.ReceivedAt = &receivedAt
	s.purchaseOrders[po.ID] = po
	receipt.PurchaseOrder = clonePurchaseOrder(po)
	return receipt, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, tenantID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 32)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if entry.TenantID != tenantID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func idemKey(tenantID string, key string) string {
	return tenantID + "|" + key
}

func cloneOrder(src *domain.Order) *domain.Order {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Items = slices.Clone(src.Items)
	return &dst
}

func clonePurchaseOrder(src domain.PurchaseOrder) domain.PurchaseOrder {
	dst := src
	dst.Items = slices.Clone(src.Items)
	if src.ReceivedAt != nil {
		at := *src.ReceivedAt
		dst.ReceivedAt = &at
	}
	return dst
}
