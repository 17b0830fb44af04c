// Package worker runs background jobs next to the HTTP server.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"freshmart/backend/internal/domain"
)

type RecurringProcessor interface {
	ProcessDueRecurringPayments(ctx context.Context, now time.Time) (domain.RecurringRunResult, error)
}

// RecurringRunner bills due recurring payments on a fixed interval.
type RecurringRunner struct {
	processor RecurringProcessor
	interval  time.Duration
	now       func() time.Time
	charges   *prometheus.CounterVec

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRecurringRunner(processor RecurringProcessor, interval time.Duration, registerer prometheus.Registerer) *RecurringRunner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	charges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "freshmart_recurring_charges_total",
		Help: "Recurring payment charges by outcome.",
	}, []string{"outcome"})
	if registerer != nil {
		registerer.MustRegister(charges)
	}
	return &RecurringRunner{
		processor: processor,
		interval:  interval,
		now:       func() time.Time { return time.Now().UTC() },
		charges:   charges,
	}
}

func (r *RecurringRunner) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.loop(ctx)
	log.Info().Dur("interval", r.interval).Msg("recurring payment runner started")
}

// Stop cancels the loop and waits for an in-flight cycle, bounded by ctx.
func (r *RecurringRunner) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("recurring payment runner stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *RecurringRunner) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce processes every schedule due now.
func (r *RecurringRunner) RunOnce(ctx context.Context) domain.RecurringRunResult {
	result, err := r.processor.ProcessDueRecurringPayments(ctx, r.now())
	r.charges.WithLabelValues("succeeded").Add(float64(result.Succeeded))
	r.charges.WithLabelValues("failed").Add(float64(result.Failed))
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Int("processed", result.Processed).Msg("recurring payment cycle aborted")
		}
		return result
	}
	if result.Processed > 0 {
		log.Info().
			Int("processed", result.Processed).
			Int("succeeded", result.Succeeded).
			Int("failed", result.Failed).
			Strs("failedIds", result.FailedIDs).
			Msg("recurring payment cycle finished")
	}
	return result
}
