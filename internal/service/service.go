package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"freshmart/backend/internal/cache"
	"freshmart/backend/internal/domain"
	"freshmart/backend/internal/finance"
	"freshmart/backend/internal/rbac"
	"freshmart/backend/internal/store"
	"freshmart/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

var systemActor = domain.Actor{Username: "system"}

const lowStockThreshold = 10

type Service struct {
	repo         store.Repository
	metricsCache cache.MetricsCache
	metricsTTL   time.Duration
	defaultDays  int
	validate     *validator.Validate
	now          func() time.Time
}

type Option func(*Service)

// WithMetricsCache caches unredacted aggregates for ttl.
func WithMetricsCache(c cache.MetricsCache, ttl time.Duration) Option {
	return func(s *Service) {
		if c != nil {
			s.metricsCache = c
		}
		if ttl > 0 {
			s.metricsTTL = ttl
		}
	}
}

func WithDefaultMetricsDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.defaultDays = days
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(repo store.Repository, opts ...Option) *Service {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Service{
		repo:         repo,
		metricsCache: cache.NoopMetricsCache{},
		metricsTTL:   30 * time.Second,
		defaultDays:  finance.DefaultDays,
		validate:     v,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// authorize returns the request actor when it holds perm.
func (s *Service) authorize(ctx context.Context, perm rbac.Permission) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, rbac.ErrInsufficientPermissions
	}
	if err := rbac.Require(actor.Role, perm); err != nil {
		return actor, err
	}
	return actor, nil
}

func (s *Service) validateRequest(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", store.ErrInvalidInput, strings.Join(parts, "; "))
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := s.authorize(ctx, rbac.PermAuditRead); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	// Without a date the window is the last 24 hours up to and including now.
	now := s.now()
	from, to := now.Add(-24*time.Hour), now.Add(time.Nanosecond)
	if strings.TrimSpace(date) != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidInput)
		}
		from = parsed.UTC()
		to = from.Add(24 * time.Hour)
	}

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = systemActor
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role.String(),
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		log.Warn().Err(err).
			Str("action", action).
			Str("entity", entityType+"/"+entityID).
			Msg("failed to write audit log")
	}
}

func (s *Service) invalidateMetrics(ctx context.Context) {
	if err := s.metricsCache.Invalidate(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to invalidate metrics cache")
	}
}
