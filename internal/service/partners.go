package service

import (
	"context"
	"fmt"
	"strings"

	"outletpos/internal/domain"
	"outletpos/internal/xid"
)

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	session, err := s.requireManager(ctx)
	if err != nil {
		return domain.Supplier{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Supplier{}, validation("name is required")
	}

	saved, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		ID:        xid.New("sup"),
		TenantID:  session.TenantID,
		Name:      req.Name,
		Phone:     strings.TrimSpace(req.Phone),
		Email:     strings.TrimSpace(req.Email),
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return domain.Supplier{}, storeErr(err, "tenant not found")
	}
	s.logAudit(ctx, session, "supplier_create", "supplier", saved.ID, fmt.Sprintf("name=%s", saved.Name))
	return *saved, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	session, err := s.ResolveSession(ctx)
	if err != nil {
		return nil, err
	}
	suppliers, err := s.repo.ListSuppliers(ctx, session.TenantID)
	if err != nil {
		return nil, storeErr(err, "supplier not found")
	}
	return suppliers, nil
}

// CreateCustomer is open to every role so cashiers can register a buyer at
// the counter.
func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	session, err := s.ResolveSession(ctx)
	if err != nil {
		return domain.Customer{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, validation("name is required")
	}

	saved, err := s.repo.CreateCustomer(ctx, domain.Customer{
		ID:        xid.New("cus"),
		TenantID:  session.TenantID,
		Name:      req.Name,
		Phone:     strings.TrimSpace(req.Phone),
		Email:     strings.TrimSpace(req.Email),
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return domain.Customer{}, storeErr(err, "tenant not found")
	}
	s.logAudit(ctx, session, "customer_create", "customer", saved.ID, fmt.Sprintf("name=%s", saved.Name))
	return *saved, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	session, err := s.ResolveSession(ctx)
	if err != nil {
		return nil, err
	}
	customers, err := s.repo.ListCustomers(ctx, session.TenantID)
	if err != nil {
		return nil, storeErr(err, "customer not found")
	}
	return customers, nil
}

func (s *Service) GetCustomer(ctx context.Context, customerID string) (domain.Customer, error) {
	session, err := s.ResolveSession(ctx)
	if err != nil {
		return domain.Customer{}, err
	}
	customer, err := s.repo.GetCustomer(ctx, session.TenantID, strings.TrimSpace(customerID))
	if err != nil {
		return domain.Customer{}, storeErr(err, "customer not found")
	}
	return *customer, nil
}
