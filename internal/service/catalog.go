package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"outletpos/internal/cache"
	"outletpos/internal/domain"
	"outletpos/internal/pricing"
	"outletpos/internal/store"
	"outletpos/internal/xid"
)

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	session, err := s.ResolveSession(ctx)
	if err != nil {
		return nil, err
	}
	categories, err := s.repo.ListCategories(ctx, session.TenantID)
	if err != nil {
		return nil, storeErr(err, "category not found")
	}
	return categories, nil
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	session, err := s.requireManager(ctx)
	if err != nil {
		return domain.Category{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Category{}, validation("name is required")
	}

	saved, err := s.repo.CreateCategory(ctx, domain.Category{
		ID:        xid.New("cat"),
		TenantID:  session.TenantID,
		Name:      req.Name,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return domain.Category{}, storeErr(err, "tenant not found")
	}
	s.logAudit(ctx, session, "category_create", "category", saved.ID, fmt.Sprintf("name=%s", saved.Name))
	return *saved, nil
}

func (s *Service) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	session, err := s.ResolveSession(ctx)
	if err != nil {
		return nil, err
	}
	products, err := s.repo.ListProducts(ctx, session.TenantID, includeInactive)
	if err != nil {
		return nil, storeErr(err, "product not found")
	}
	return products, nil
}

func (s *Service) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	session, err := s.ResolveSession(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	product, err := s.repo.GetProduct(ctx, session.TenantID, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, storeErr(err, "product not found")
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	session, err := s.requireManager(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.CategoryID = strings.TrimSpace(req.CategoryID)
	if req.Name == "" {
		return domain.Product{}, validation("name is required")
	}
	if req.Price < 0 || req.CostPrice < 0 {
		return domain.Product{}, validation("price and cost_price must not be negative")
	}
	if req.Price > domain.MaxMoneyAmount || req.CostPrice > domain.MaxMoneyAmount {
		return domain.Product{}, validation("price and cost_price must not exceed %d", domain.MaxMoneyAmount)
	}
	if err := s.checkCategory(ctx, session.TenantID, req.CategoryID); err != nil {
		return domain.Product{}, err
	}

	now := s.now().UTC()
	saved, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:         xid.New("prd"),
		TenantID:   session.TenantID,
		CategoryID: req.CategoryID,
		SKU:        req.SKU,
		Name:       req.Name,
		Price:      req.Price,
		CostPrice:  req.CostPrice,
		ImageURL:   strings.TrimSpace(req.ImageURL),
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return domain.Product{}, storeErr(err, "tenant not found")
	}

	s.notify(ctx, session.TenantID, cache.ViewPOS)
	s.logAudit(ctx, session, "product_create", "product", saved.ID, fmt.Sprintf("name=%s,price=%d", saved.Name, saved.Price))
	return *saved, nil
}

// UpdateProduct applies a partial update. A price change is recorded in the
// price history; cost price is owned by purchase order receiving.
func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	session, err := s.requireManager(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, session.TenantID, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, storeErr(err, "product not found")
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, validation("name must not be empty")
		}
		updated.Name = name
	}
	if req.CategoryID != nil {
		categoryID := strings.TrimSpace(*req.CategoryID)
		if err := s.checkCategory(ctx, session.TenantID, categoryID); err != nil {
			return domain.Product{}, err
		}
		updated.CategoryID = categoryID
	}
	if req.Price != nil {
		if *req.Price < 0 || *req.Price > domain.MaxMoneyAmount {
			return domain.Product{}, validation("price must be between 0 and %d", domain.MaxMoneyAmount)
		}
		updated.Price = *req.Price
	}
	if req.ImageURL != nil {
		updated.ImageURL = strings.TrimSpace(*req.ImageURL)
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, storeErr(err, "product not found")
	}

	if existing.Price != saved.Price {
		if err := s.repo.CreatePriceHistory(ctx, domain.ProductPriceHistory{
			ID:        xid.New("prh"),
			TenantID:  session.TenantID,
			ProductID: saved.ID,
			OldPrice:  existing.Price,
			NewPrice:  saved.Price,
			ChangedBy: session.StaffID,
			ChangedAt: s.now().UTC(),
		}); err != nil {
			s.log.Warn(ctx, fmt.Sprintf("price history write failed product=%s", saved.ID), err)
		}
	}

	s.notify(ctx, session.TenantID, cache.ViewPOS, cache.ViewDashboard)
	s.logAudit(ctx, session, "product_update", "product", saved.ID, fmt.Sprintf("active=%t,price=%d", saved.Active, saved.Price))
	return *saved, nil
}

func (s *Service) ListProductPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	session, err := s.ResolveSession(ctx)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 50
	}
	history, err := s.repo.ListPriceHistory(ctx, session.TenantID, strings.TrimSpace(productID), limit)
	if err != nil {
		return nil, storeErr(err, "product not found")
	}
	return history, nil
}

func (s *Service) checkCategory(ctx context.Context, tenantID string, categoryID string) error {
	if categoryID == "" {
		return nil
	}
	if _, err := s.repo.GetCategory(ctx, tenantID, categoryID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return validation("category %s does not exist", categoryID)
		}
		return storeErr(err, "category not found")
	}
	return nil
}

func (s *Service) ListTaxes(ctx context.Context) ([]domain.Tax, error) {
	session, err := s.ResolveSession(ctx)
	if err != nil {
		return nil, err
	}
	taxes, err := s.repo.ListTaxes(ctx, session.TenantID)
	if err != nil {
		return nil, storeErr(err, "tax not found")
	}
	return taxes, nil
}

func (s *Service) CreateTax(ctx context.Context, req domain.TaxCreateRequest) (domain.Tax, error) {
	session, err := s.requireOwner(ctx)
	if err != nil {
		return domain.Tax{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Tax{}, validation("name is required")
	}
	switch req.Kind {
	case "":
		req.Kind = domain.TaxKindTax
	case domain.TaxKindTax, domain.TaxKindServiceCharge:
	default:
		return domain.Tax{}, validation("unsupported tax kind %q", req.Kind)
	}
	if err := pricing.ValidateRate(req.Rate); err != nil {
		return domain.Tax{}, validation("%s", err.Error())
	}

	saved, err := s.repo.CreateTax(ctx, domain.Tax{
		ID:        xid.New("tax"),
		TenantID:  session.TenantID,
		Name:      req.Name,
		Kind:      req.Kind,
		Rate:      req.Rate,
		Active:    true,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return domain.Tax{}, storeErr(err, "tenant not found")
	}
	s.notify(ctx, session.TenantID, cache.ViewPOS)
	s.logAudit(ctx, session, "tax_create", "tax", saved.ID, fmt.Sprintf("name=%s,rate=%s", saved.Name, saved.Rate.String()))
	return *saved, nil
}

func (s *Service) SetTaxActive(ctx context.Context, taxID string, req domain.TaxUpdateRequest) (domain.Tax, error) {
	session, err := s.requireOwner(ctx)
	if err != nil {
		return domain.Tax{}, err
	}
	saved, err := s.repo.SetTaxActive(ctx, session.TenantID, strings.TrimSpace(taxID), req.Active)
	if err != nil {
		return domain.Tax{}, storeErr(err, "tax not found")
	}
	s.notify(ctx, session.TenantID, cache.ViewPOS)
	s.logAudit(ctx, session, "tax_update", "tax", saved.ID, fmt.Sprintf("active=%t", saved.Active))
	return *saved, nil
}
