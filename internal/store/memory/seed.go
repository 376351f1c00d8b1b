package memory

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"outletpos/internal/domain"
)

const (
	DemoTenantID      = "tnt_demo"
	DemoCentralOutlet = "out_central"
	DemoNorthOutlet   = "out_north"
	DemoOwnerID       = "stf_owner"
	DemoManagerID     = "stf_manager"
	DemoCashierID     = "stf_cashier"
	DemoSupplierID    = "sup_sumber"
	DemoCustomerID    = "cus_walkin"
	demoInitialStock  = 120
	demoNorthStock    = 40
	defaultOwnerPwd   = "owner12345"
	defaultManagerPwd = "manager12345"
	defaultCashierPwd = "cashier12345"
)

// NewSeeded returns a store holding one demo tenant with two outlets, three
// staff accounts, a small catalog with stock at both outlets, an active VAT
// and one supplier.
//
// Passwords come from SEED_OWNER_PASSWORD, SEED_MANAGER_PASSWORD and
// SEED_CASHIER_PASSWORD. Unset values fall back to dev defaults with a
// warning. The Postgres store never seeds accounts.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	s.tenants[DemoTenantID] = domain.Tenant{ID: DemoTenantID, Name: "Toko Demo", Email: "owner@toko.demo", CreatedAt: now}
	s.outlets[DemoCentralOutlet] = domain.Outlet{ID: DemoCentralOutlet, TenantID: DemoTenantID, Name: "Cabang Pusat", CreatedAt: now}
	s.outlets[DemoNorthOutlet] = domain.Outlet{ID: DemoNorthOutlet, TenantID: DemoTenantID, Name: "Cabang Utara", CreatedAt: now}

	for _, u := range seedStaff(now) {
		s.putStaff(u)
	}

	categories := []domain.Category{
		{ID: "cat_grocery", TenantID: DemoTenantID, Name: "Grocery", CreatedAt: now},
		{ID: "cat_beverage", TenantID: DemoTenantID, Name: "Beverage", CreatedAt: now},
		{ID: "cat_snack", TenantID: DemoTenantID, Name: "Snack", CreatedAt: now},
	}
	for _, c := range categories {
		s.categories[c.ID] = c
	}

	products := []domain.Product{
		{ID: "prd_mie", CategoryID: "cat_grocery", SKU: "SKU-MIE-01", Name: "Mie Goreng Instan", Price: 3500, CostPrice: 2700},
		{ID: "prd_telur", CategoryID: "cat_grocery", SKU: "SKU-TELUR-01", Name: "Telur 10 Butir", Price: 26500, CostPrice: 23000},
		{ID: "prd_gula", CategoryID: "cat_grocery", SKU: "SKU-GULA-01", Name: "Gula 1kg", Price: 17400, CostPrice: 15300},
		{ID: "prd_kopi", CategoryID: "cat_beverage", SKU: "SKU-KOPI-01", Name: "Kopi Sachet", Price: 2600, CostPrice: 1700},
		{ID: "prd_teh", CategoryID: "cat_beverage", SKU: "SKU-TEH-01", Name: "Teh Celup", Price: 9800, CostPrice: 7200},
		{ID: "prd_air", CategoryID: "cat_beverage", SKU: "SKU-AIR-01", Name: "Air Mineral 600ml", Price: 3900, CostPrice: 3200},
		{ID: "prd_keripik", CategoryID: "cat_snack", SKU: "SKU-KERIPIK-01", Name: "Keripik Singkong", Price: 12800, CostPrice: 8000},
		{ID: "prd_coklat", CategoryID: "cat_snack", SKU: "SKU-COKLAT-01", Name: "Coklat Batang", Price: 8600, CostPrice: 5600},
	}
	for _, p := range products {
		p.TenantID = DemoTenantID
		p.Active = true
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
		s.stock[stockKey{productID: p.ID, outletID: DemoCentralOutlet}] = domain.StockRecord{
			TenantID: DemoTenantID, ProductID: p.ID, OutletID: DemoCentralOutlet, Quantity: demoInitialStock, UpdatedAt: now,
		}
		s.stock[stockKey{productID: p.ID, outletID: DemoNorthOutlet}] = domain.StockRecord{
			TenantID: DemoTenantID, ProductID: p.ID, OutletID: DemoNorthOutlet, Quantity: demoNorthStock, UpdatedAt: now,
		}
	}

	s.taxes["tax_ppn"] = domain.Tax{
		ID: "tax_ppn", TenantID: DemoTenantID, Name: "PPN", Kind: domain.TaxKindTax,
		Rate: decimal.RequireFromString("0.11"), Active: true, CreatedAt: now,
	}
	s.taxes["tax_service"] = domain.Tax{
		ID: "tax_service", TenantID: DemoTenantID, Name: "Service", Kind: domain.TaxKindServiceCharge,
		Rate: decimal.RequireFromString("0.05"), Active: false, CreatedAt: now.Add(time.Second),
	}
	s.suppliers[DemoSupplierID] = domain.Supplier{ID: DemoSupplierID, TenantID: DemoTenantID, Name: "CV Sumber Makmur", Phone: "021-555-0101", CreatedAt: now}
	s.customers[DemoCustomerID] = domain.Customer{ID: DemoCustomerID, TenantID: DemoTenantID, Name: "Pelanggan Setia", CreatedAt: now}
	return s
}

func seedStaff(now time.Time) []domain.Staff {
	ownerPwd := envOr("SEED_OWNER_PASSWORD", defaultOwnerPwd)
	managerPwd := envOr("SEED_MANAGER_PASSWORD", defaultManagerPwd)
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", defaultCashierPwd)
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Warn().Str("component", "memory-store").Msg("using default dev credentials; set SEED_OWNER_PASSWORD, SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	staff := make([]domain.Staff, 0, 3)
	for _, u := range []struct {
		id       string
		username string
		password string
		role     string
		outletID string
	}{
		{DemoOwnerID, "owner", ownerPwd, domain.RoleOwner, ""},
		{DemoManagerID, "manager", managerPwd, domain.RoleManager, DemoCentralOutlet},
		{DemoCashierID, "cashier", cashierPwd, domain.RoleCashier, DemoCentralOutlet},
	} {
		// MinCost keeps NewSeeded fast in tests; these accounts are dev-only.
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.username).Msg("hash seed password")
		}
		staff = append(staff, domain.Staff{
			ID:           u.id,
			TenantID:     DemoTenantID,
			OutletID:     u.outletID,
			Username:     u.username,
			PasswordHash: string(hash),
			FullName:     u.username,
			Role:         u.role,
			Active:       true,
			CreatedAt:    now,
		})
	}
	return staff
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
