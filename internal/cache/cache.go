package cache

import (
	"context"
	"fmt"
	"time"

	"freshmart/backend/internal/domain"
)

// MetricsCache stores unredacted financial aggregates. Callers must redact
// after every Get.
type MetricsCache interface {
	Get(ctx context.Context, key string) (*domain.FinancialMetrics, bool, error)
	Set(ctx context.Context, key string, value *domain.FinancialMetrics, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

func MetricsKey(days int) string {
	return fmt.Sprintf("%s:days=%d", metricsKeyPrefix, days)
}

type NoopMetricsCache struct{}

func (NoopMetricsCache) Get(_ context.Context, _ string) (*domain.FinancialMetrics, bool, error) {
	return nil, false, nil
}

func (NoopMetricsCache) Set(_ context.Context, _ string, _ *domain.FinancialMetrics, _ time.Duration) error {
	return nil
}

func (NoopMetricsCache) Invalidate(_ context.Context) error {
	return nil
}
