package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"outletpos/internal/apperr"
	"outletpos/internal/cache"
	"outletpos/internal/domain"
	"outletpos/internal/logger"
	"outletpos/internal/metrics"
	"outletpos/internal/store"
	"outletpos/internal/xid"
)

type principalContextKey struct{}

// WithPrincipal stores the verified token identity on ctx. Nothing else about
// the caller is trusted; the session is re-read from the store per request.
func WithPrincipal(ctx context.Context, principal domain.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(domain.Principal)
	return principal, ok
}

const (
	defaultLowStockThreshold = 5
	defaultViewCacheTTL      = time.Minute
	dateLayout               = "2006-01-02"
)

type Options struct {
	LowStockThreshold int
	ViewCacheTTL      time.Duration
	Now               func() time.Time
}

type Service struct {
	repo              store.Repository
	views             cache.ViewCache
	metrics           *metrics.POSMetrics
	log               *logger.Logger
	lowStockThreshold int
	viewCacheTTL      time.Duration
	now               func() time.Time
	dashboardFill     singleflight.Group
}

func New(repo store.Repository, views cache.ViewCache, posMetrics *metrics.POSMetrics, log *logger.Logger, opts Options) *Service {
	if views == nil {
		views = cache.NoopViewCache{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if opts.LowStockThreshold < 1 {
		opts.LowStockThreshold = defaultLowStockThreshold
	}
	if opts.ViewCacheTTL <= 0 {
		opts.ViewCacheTTL = defaultViewCacheTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:              repo,
		views:             views,
		metrics:           posMetrics,
		log:               log,
		lowStockThreshold: opts.LowStockThreshold,
		viewCacheTTL:      opts.ViewCacheTTL,
		now:               opts.Now,
	}
}

// storeErr translates repository failures into the caller-facing taxonomy.
// Errors that are already typed pass through unchanged.
func storeErr(err error, notFound string) error {
	if err == nil {
		return nil
	}
	if typed := apperr.As(err); typed != nil {
		return typed
	}

	var shortfall *store.InsufficientStockError
	switch {
	case errors.As(err, &shortfall):
		return apperr.Wrap(apperr.CodeInsufficientStock, err, shortfall.Error()).WithDetails(map[string]any{
			"product_id":   shortfall.ProductID,
			"product_name": shortfall.ProductName,
			"available":    shortfall.Available,
			"requested":    shortfall.Requested,
		})
	case errors.Is(err, store.ErrNotFound):
		return apperr.Wrap(apperr.CodeNotFound, err, notFound)
	case errors.Is(err, store.ErrConflict):
		return apperr.Wrap(apperr.CodeConflict, err, conflictMessage(err))
	case errors.Is(err, store.ErrInvalidInput):
		return apperr.Wrap(apperr.CodeValidation, err, "invalid input")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.CodeInternal, err, "request cancelled")
	default:
		return apperr.Wrap(apperr.CodeInternal, err, "storage failure")
	}
}

// conflictMessage keeps the store's explanation ("conflict: purchase order
// already processed") without the sentinel prefix.
func conflictMessage(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, store.ErrConflict.Error()+": "); idx >= 0 {
		return msg[idx+len(store.ErrConflict.Error())+2:]
	}
	return "conflict detected"
}

func validation(format string, args ...any) error {
	return apperr.Newf(apperr.CodeValidation, format, args...)
}

func forbidden(message string) error {
	return apperr.New(apperr.CodeForbidden, message)
}

// notify marks views stale for the tenant. A failed invalidation never fails
// the write that triggered it.
func (s *Service) notify(ctx context.Context, tenantID string, views ...string) {
	if err := s.views.Invalidate(ctx, tenantID, views...); err != nil {
		s.log.Event(ctx, zerolog.WarnLevel).Err(err).
			Strs("views", views).
			Msg("view invalidation failed")
	}
}

func (s *Service) logAudit(ctx context.Context, session domain.Session, action string, entityType string, entityID string, detail string) {
	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("aud"),
		TenantID:   session.TenantID,
		StaffID:    session.StaffID,
		StaffRole:  session.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  s.now().UTC(),
	}); err != nil {
		s.log.Warn(ctx, fmt.Sprintf("audit log write failed action=%s entity=%s/%s", action, entityType, entityID), err)
	}
}

// dayWindow parses an optional YYYY-MM-DD date into a [from, to) UTC window.
// An empty date means today.
func (s *Service) dayWindow(date string) (time.Time, time.Time, error) {
	var day time.Time
	if strings.TrimSpace(date) == "" {
		now := s.now().UTC()
		day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		parsed, err := time.Parse(dateLayout, strings.TrimSpace(date))
		if err != nil {
			return time.Time{}, time.Time{}, validation("date must be YYYY-MM-DD")
		}
		day = parsed.UTC()
	}
	return day, day.Add(24 * time.Hour), nil
}
