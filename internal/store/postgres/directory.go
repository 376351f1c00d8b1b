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

const staffColumns = `id, tenant_id, COALESCE(outlet_id, '') AS outlet_id, username, password_hash, full_name, role, active, created_at`

func (s *Store) CreateTenantWithOwner(ctx context.Context, tenant domain.Tenant, outlet domain.Outlet, owner domain.Staff) error {
	if tenant.ID == "" || outlet.ID == "" || owner.ID == "" {
		return store.ErrInvalidInput
	}
	now := time.Now().UTC()
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tenants (id, name, email, phone, created_at)
			VALUES ($1,$2,$3,$4,$5)
		`, tenant.ID, tenant.Name, tenant.Email, tenant.Phone, now); err != nil {
			return writeErr(err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO outlets (id, tenant_id, name, address, phone, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, outlet.ID, tenant.ID, outlet.Name, outlet.Address, outlet.Phone, now); err != nil {
			return writeErr(err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO staff (id, tenant_id, outlet_id, username, password_hash, full_name, role, active, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,true,$8)
		`, owner.ID, tenant.ID, nullIfEmpty(owner.OutletID), strings.ToLower(strings.TrimSpace(owner.Username)),
			owner.PasswordHash, owner.FullName, owner.Role, now); err != nil {
			return writeErr(err)
		}
		return nil
	})
}

func (s *Store) GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := s.db.GetContext(ctx, &tenant, `
		SELECT id, name, email, phone, created_at
		FROM tenants
		WHERE id = $1
	`, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

func (s *Store) CreateOutlet(ctx context.Context, outlet domain.Outlet) (*domain.Outlet, error) {
	if outlet.ID == "" {
		outlet.ID = xid.New("out")
	}
	if outlet.CreatedAt.IsZero() {
		outlet.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO outlets (id, tenant_id, name, address, phone, created_at)
		VALUES (:id, :tenant_id, :name, :address, :phone, :created_at)
	`, outlet)
	if err != nil {
		return nil, writeErr(err)
	}
	return &outlet, nil
}

func (s *Store) GetOutlet(ctx context.Context, tenantID string, outletID string) (*domain.Outlet, error) {
	var outlet domain.Outlet
	err := s.db.GetContext(ctx, &outlet, `
		SELECT id, tenant_id, name, address, phone, created_at
		FROM outlets
		WHERE id = $1 AND tenant_id = $2
	`, outletID, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &outlet, nil
}

func (s *Store) ListOutlets(ctx context.Context, tenantID string) ([]domain.Outlet, error) {
	outlets := make([]domain.Outlet, 0, 4)
	err := s.db.SelectContext(ctx, &outlets, `
		SELECT id, tenant_id, name, address, phone, created_at
		FROM outlets
		WHERE tenant_id = $1
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	return outlets, nil
}

func (s *Store) CreateStaff(ctx context.Context, staff domain.Staff) (*domain.Staff, error) {
	staff.Username = strings.ToLower(strings.TrimSpace(staff.Username))
	if staff.Username == "" || staff.TenantID == "" {
		return nil, store.ErrInvalidInput
	}
	if staff.ID == "" {
		staff.ID = xid.New("stf")
	}
	if staff.CreatedAt.IsZero() {
		staff.CreatedAt = time.Now().UTC()
	}

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if staff.OutletID != "" {
			var exists bool
			if err := tx.GetContext(ctx, &exists, `
				SELECT EXISTS (SELECT 1 FROM outlets WHERE id = $1 AND tenant_id = $2)
			`, staff.OutletID, staff.TenantID); err != nil {
				return err
			}
			if !exists {
				return store.ErrNotFound
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO staff (id, tenant_id, outlet_id, username, password_hash, full_name, role, active, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, staff.ID, staff.TenantID, nullIfEmpty(staff.OutletID), staff.Username, staff.PasswordHash,
			staff.FullName, staff.Role, staff.Active, staff.CreatedAt)
		return writeErr(err)
	})
	if err != nil {
		return nil, err
	}
	return &staff, nil
}

func (s *Store) GetStaff(ctx context.Context, staffID string) (*domain.Staff, error) {
	var staff domain.Staff
	err := s.db.GetContext(ctx, &staff, `SELECT `+staffColumns+` FROM staff WHERE id = $1`, staffID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &staff, nil
}

func (s *Store) GetStaffByUsername(ctx context.Context, username string) (*domain.Staff, error) {
	var staff domain.Staff
	err := s.db.GetContext(ctx, &staff, `SELECT `+staffColumns+` FROM staff WHERE username = $1`,
		strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &staff, nil
}

func (s *Store) ListStaff(ctx context.Context, tenantID string) ([]domain.Staff, error) {
	staff := make([]domain.Staff, 0, 8)
	err := s.db.SelectContext(ctx, &staff, `SELECT `+staffColumns+` FROM staff WHERE tenant_id = $1 ORDER BY username`, tenantID)
	if err != nil {
		return nil, err
	}
	return staff, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO audit_logs (id, tenant_id, staff_id, staff_role, action, entity_type, entity_id, detail, created_at)
		VALUES (:id, :tenant_id, :staff_id, :staff_role, :action, :entity_type, :entity_id, :detail, :created_at)
	`, entry)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, tenantID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	logs := make([]domain.AuditLog, 0, limit)
	err := s.db.SelectContext(ctx, &logs, `
		SELECT id, tenant_id, staff_id, staff_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, tenantID, from, to, limit)
	if err != nil {
		return nil, err
	}
	return logs, nil
}
