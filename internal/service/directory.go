package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"outletpos/internal/apperr"
	"outletpos/internal/domain"
	"outletpos/internal/store"
	"outletpos/internal/xid"
)

var errInvalidCredentials = apperr.New(apperr.CodeUnauthorized, "invalid credentials")

// ResolveSession turns the token principal into a session by reading the
// staff profile. Tenant and outlet always come from the stored profile.
func (s *Service) ResolveSession(ctx context.Context) (domain.Session, error) {
	principal, ok := PrincipalFromContext(ctx)
	if !ok || strings.TrimSpace(principal.StaffID) == "" {
		return domain.Session{}, apperr.New(apperr.CodeUnauthorized, "authentication required")
	}

	staff, err := s.repo.GetStaff(ctx, principal.StaffID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Session{}, apperr.New(apperr.CodeUnauthorized, "unknown staff")
		}
		return domain.Session{}, storeErr(err, "staff not found")
	}
	if !staff.Active {
		return domain.Session{}, apperr.New(apperr.CodeUnauthorized, "account is inactive")
	}
	if staff.TenantID == "" {
		return domain.Session{}, apperr.New(apperr.CodeUnauthorized, "staff has no tenant")
	}

	return domain.Session{
		StaffID:  staff.ID,
		Username: staff.Username,
		TenantID: staff.TenantID,
		OutletID: staff.OutletID,
		Role:     staff.Role,
	}, nil
}

// ResolveOutlet picks the outlet a request acts on. Staff pinned to an outlet
// (other than owners) always get that outlet; everyone else must name one
// that belongs to their tenant.
func (s *Service) ResolveOutlet(ctx context.Context, session domain.Session, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if session.OutletID != "" && !session.IsOwner() {
		return session.OutletID, nil
	}
	if requested == "" {
		if session.OutletID != "" {
			return session.OutletID, nil
		}
		return "", validation("outlet required")
	}
	if _, err := s.repo.GetOutlet(ctx, session.TenantID, requested); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", forbidden("outlet does not belong to this tenant")
		}
		return "", storeErr(err, "outlet not found")
	}
	return requested, nil
}

// resolveOptionalOutlet is the reader variant: an empty selection from a
// roaming user means every outlet of the tenant.
func (s *Service) resolveOptionalOutlet(ctx context.Context, session domain.Session, requested string) (string, error) {
	if strings.TrimSpace(requested) == "" && (session.OutletID == "" || session.IsOwner()) {
		return "", nil
	}
	return s.ResolveOutlet(ctx, session, requested)
}

func (s *Service) requireManager(ctx context.Context) (domain.Session, error) {
	session, err := s.ResolveSession(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	if !session.CanManage() {
		return domain.Session{}, forbidden("owner or manager role required")
	}
	return session, nil
}

func (s *Service) requireOwner(ctx context.Context) (domain.Session, error) {
	session, err := s.ResolveSession(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	if !session.IsOwner() {
		return domain.Session{}, forbidden("owner role required")
	}
	return session, nil
}

// Authenticate checks a username and password and returns the session the
// token will be issued for. Unknown users and wrong passwords are
// indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, req domain.LoginRequest) (domain.Session, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" || req.Password == "" {
		return domain.Session{}, errInvalidCredentials
	}

	staff, err := s.repo.GetStaffByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Session{}, errInvalidCredentials
		}
		return domain.Session{}, storeErr(err, "staff not found")
	}
	if bcrypt.CompareHashAndPassword([]byte(staff.PasswordHash), []byte(req.Password)) != nil {
		return domain.Session{}, errInvalidCredentials
	}
	if !staff.Active {
		return domain.Session{}, apperr.New(apperr.CodeUnauthorized, "account is inactive")
	}

	return domain.Session{
		StaffID:  staff.ID,
		Username: staff.Username,
		TenantID: staff.TenantID,
		OutletID: staff.OutletID,
		Role:     staff.Role,
	}, nil
}

// Register creates a tenant, its first outlet and the owner account together.
func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (domain.RegisterResponse, error) {
	req.BusinessName = strings.TrimSpace(req.BusinessName)
	req.OutletName = strings.TrimSpace(req.OutletName)
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	if req.BusinessName == "" || req.OutletName == "" {
		return domain.RegisterResponse{}, validation("business and outlet names are required")
	}
	if err := validateUsername(req.Username); err != nil {
		return domain.RegisterResponse{}, err
	}
	if len(req.Password) < 8 {
		return domain.RegisterResponse{}, validation("password must be at least 8 characters")
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return domain.RegisterResponse{}, apperr.Wrap(apperr.CodeInternal, err, "failed to hash password")
	}

	now := s.now().UTC()
	tenant := domain.Tenant{
		ID:        xid.New("tnt"),
		Name:      req.BusinessName,
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		CreatedAt: now,
	}
	outlet := domain.Outlet{
		ID:        xid.New("out"),
		TenantID:  tenant.ID,
		Name:      req.OutletName,
		Address:   strings.TrimSpace(req.OutletAddress),
		CreatedAt: now,
	}
	owner := domain.Staff{
		ID:           xid.New("stf"),
		TenantID:     tenant.ID,
		Username:     req.Username,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(req.FullName),
		Role:         domain.RoleOwner,
		Active:       true,
		CreatedAt:    now,
	}

	if err := s.repo.CreateTenantWithOwner(ctx, tenant, outlet, owner); err != nil {
		return domain.RegisterResponse{}, storeErr(err, "tenant not found")
	}

	session := domain.Session{StaffID: owner.ID, Username: owner.Username, TenantID: tenant.ID, Role: owner.Role}
	s.logAudit(ctx, session, "tenant_register", "tenant", tenant.ID, fmt.Sprintf("outlet=%s", outlet.ID))
	return domain.RegisterResponse{Tenant: tenant, Outlet: outlet, Staff: owner}, nil
}

func (s *Service) Me(ctx context.Context) (domain.Session, error) {
	return s.ResolveSession(ctx)
}

func (s *Service) ListOutlets(ctx context.Context) ([]domain.Outlet, error) {
	session, err := s.ResolveSession(ctx)
	if err != nil {
		return nil, err
	}
	outlets, err := s.repo.ListOutlets(ctx, session.TenantID)
	if err != nil {
		return nil, storeErr(err, "outlet not found")
	}
	return outlets, nil
}

func (s *Service) CreateOutlet(ctx context.Context, req domain.OutletCreateRequest) (domain.Outlet, error) {
	session, err := s.requireOwner(ctx)
	if err != nil {
		return domain.Outlet{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Outlet{}, validation("name is required")
	}

	saved, err := s.repo.CreateOutlet(ctx, domain.Outlet{
		ID:        xid.New("out"),
		TenantID:  session.TenantID,
		Name:      req.Name,
		Address:   strings.TrimSpace(req.Address),
		Phone:     strings.TrimSpace(req.Phone),
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return domain.Outlet{}, storeErr(err, "tenant not found")
	}
	s.logAudit(ctx, session, "outlet_create", "outlet", saved.ID, fmt.Sprintf("name=%s", saved.Name))
	return *saved, nil
}

// CreateStaff adds an account to the caller's tenant. Managers may only add
// cashiers; only owners create other owners and managers.
func (s *Service) CreateStaff(ctx context.Context, req domain.StaffCreateRequest) (domain.Staff, error) {
	session, err := s.requireManager(ctx)
	if err != nil {
		return domain.Staff{}, err
	}

	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))
	req.OutletID = strings.TrimSpace(req.OutletID)
	if err := validateUsername(req.Username); err != nil {
		return domain.Staff{}, err
	}
	if len(req.Password) < 8 {
		return domain.Staff{}, validation("password must be at least 8 characters")
	}
	switch req.Role {
	case domain.RoleOwner, domain.RoleManager:
		if !session.IsOwner() {
			return domain.Staff{}, forbidden("only owners can create owners and managers")
		}
	case domain.RoleCashier:
	default:
		return domain.Staff{}, validation("unsupported role %q", req.Role)
	}

	if req.OutletID != "" {
		if _, err := s.repo.GetOutlet(ctx, session.TenantID, req.OutletID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Staff{}, forbidden("outlet does not belong to this tenant")
			}
			return domain.Staff{}, storeErr(err, "outlet not found")
		}
	} else if req.Role == domain.RoleCashier {
		return domain.Staff{}, validation("cashiers must be assigned to an outlet")
	}
	if !session.IsOwner() && session.OutletID != "" && req.OutletID != session.OutletID {
		return domain.Staff{}, forbidden("managers can only staff their own outlet")
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return domain.Staff{}, apperr.Wrap(apperr.CodeInternal, err, "failed to hash password")
	}

	saved, err := s.repo.CreateStaff(ctx, domain.Staff{
		ID:           xid.New("stf"),
		TenantID:     session.TenantID,
		OutletID:     req.OutletID,
		Username:     req.Username,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(req.FullName),
		Role:         req.Role,
		Active:       true,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return domain.Staff{}, storeErr(err, "tenant not found")
	}
	s.logAudit(ctx, session, "staff_create", "staff", saved.ID, fmt.Sprintf("username=%s,role=%s", saved.Username, saved.Role))
	return *saved, nil
}

func (s *Service) ListStaff(ctx context.Context) ([]domain.Staff, error) {
	session, err := s.requireManager(ctx)
	if err != nil {
		return nil, err
	}
	staff, err := s.repo.ListStaff(ctx, session.TenantID)
	if err != nil {
		return nil, storeErr(err, "staff not found")
	}
	return staff, nil
}

func validateUsername(username string) error {
	if len(username) < 4 {
		return validation("username must be at least 4 characters")
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return validation("username must not contain spaces")
	}
	return nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
