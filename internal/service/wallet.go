package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"freshmart/backend/internal/domain"
	"freshmart/backend/internal/rbac"
	"freshmart/backend/internal/store"
)

const (
	walletHistoryLimit   = 20
	maxRecurringFailures = 3
	recurringRetryDelay  = 24 * time.Hour
	recurringClaimLease  = 15 * time.Minute
)

func (s *Service) Wallet(ctx context.Context) (domain.WalletResponse, error) {
	actor, err := s.authorize(ctx, rbac.PermWalletUse)
	if err != nil {
		return domain.WalletResponse{}, err
	}

	balance, err := s.repo.WalletBalance(ctx, actor.Username)
	if err != nil {
		return domain.WalletResponse{}, err
	}
	history, err := s.repo.ListWalletTransactions(ctx, actor.Username, walletHistoryLimit)
	if err != nil {
		return domain.WalletResponse{}, err
	}
	if history == nil {
		history = []domain.WalletTransaction{}
	}
	return domain.WalletResponse{Username: actor.Username, Balance: balance, Transactions: history}, nil
}

func (s *Service) Deposit(ctx context.Context, req domain.WalletAmountRequest) (domain.WalletTransaction, error) {
	return s.moveWalletFunds(ctx, domain.WalletDeposit, req)
}

func (s *Service) Withdraw(ctx context.Context, req domain.WalletAmountRequest) (domain.WalletTransaction, error) {
	return s.moveWalletFunds(ctx, domain.WalletWithdrawal, req)
}

func (s *Service) moveWalletFunds(ctx context.Context, txType string, req domain.WalletAmountRequest) (domain.WalletTransaction, error) {
	actor, err := s.authorize(ctx, rbac.PermWalletUse)
	if err != nil {
		return domain.WalletTransaction{}, err
	}
	if err := s.validateRequest(req); err != nil {
		return domain.WalletTransaction{}, err
	}

	tx, err := s.repo.ApplyWalletTransaction(ctx, domain.WalletTransaction{
		Username:  actor.Username,
		Type:      txType,
		Amount:    req.Amount,
		Reference: strings.TrimSpace(req.Reference),
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.WalletTransaction{}, err
	}

	s.logAudit(ctx, "wallet_"+txType, "wallet", actor.Username, fmt.Sprintf("amount=%.2f,balance=%.2f", tx.Amount, tx.BalanceAfter))
	return *tx, nil
}

func (s *Service) CreateRecurringPayment(ctx context.Context, req domain.RecurringPaymentCreateRequest) (domain.RecurringPayment, error) {
	actor, err := s.authorize(ctx, rbac.PermWalletUse)
	if err != nil {
		return domain.RecurringPayment{}, err
	}
	req.Interval = strings.ToLower(strings.TrimSpace(req.Interval))
	req.Description = strings.TrimSpace(req.Description)
	if err := s.validateRequest(req); err != nil {
		return domain.RecurringPayment{}, err
	}

	now := s.now()
	nextRun := now
	if req.StartAt != nil && req.StartAt.After(now) {
		nextRun = req.StartAt.UTC()
	}
	created, err := s.repo.CreateRecurringPayment(ctx, domain.RecurringPayment{
		Username:    actor.Username,
		Description: req.Description,
		Amount:      req.Amount,
		Interval:    req.Interval,
		NextRunAt:   nextRun,
		Active:      true,
		CreatedAt:   now,
	})
	if err != nil {
		return domain.RecurringPayment{}, err
	}

	s.logAudit(ctx, "recurring_create", "recurring_payment", created.ID, fmt.Sprintf("amount=%.2f,interval=%s", created.Amount, created.Interval))
	return *created, nil
}

// ListRecurringPayments returns the caller's schedules, or every schedule for
// roles that run the billing cycle.
func (s *Service) ListRecurringPayments(ctx context.Context) ([]domain.RecurringPayment, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, rbac.ErrInsufficientPermissions
	}
	var username string
	switch {
	case rbac.HasPermission(actor.Role, rbac.PermRecurringRun):
	case rbac.HasPermission(actor.Role, rbac.PermWalletUse):
		username = actor.Username
	default:
		return nil, rbac.ErrInsufficientPermissions
	}

	items, err := s.repo.ListRecurringPayments(ctx, username)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.RecurringPayment{}
	}
	return items, nil
}

func (s *Service) CancelRecurringPayment(ctx context.Context, id string) (domain.RecurringPayment, error) {
	actor, err := s.authorize(ctx, rbac.PermWalletUse)
	if err != nil {
		return domain.RecurringPayment{}, err
	}

	payment, err := s.repo.GetRecurringPayment(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.RecurringPayment{}, err
	}
	if payment.Username != actor.Username && !rbac.HasPermission(actor.Role, rbac.PermRecurringRun) {
		return domain.RecurringPayment{}, store.NotFound("recurring payment")
	}
	if !payment.Active {
		return *payment, nil
	}

	payment.Active = false
	updated, err := s.repo.UpdateRecurringPayment(ctx, *payment)
	if err != nil {
		return domain.RecurringPayment{}, err
	}
	s.logAudit(ctx, "recurring_cancel", "recurring_payment", updated.ID, "")
	return *updated, nil
}

// RunRecurringPayments triggers one billing cycle on behalf of the caller.
func (s *Service) RunRecurringPayments(ctx context.Context) (domain.RecurringRunResult, error) {
	if _, err := s.authorize(ctx, rbac.PermRecurringRun); err != nil {
		return domain.RecurringRunResult{}, err
	}
	return s.ProcessDueRecurringPayments(ctx, s.now())
}

// ProcessDueRecurringPayments debits every active schedule due at now from
// its owner's wallet. Due schedules are claimed first so overlapping runs
// charge each one once. A claim that is never recorded expires after
// recurringClaimLease. Successful runs advance nextRunAt by the interval;
// failed runs are retried a day later and the schedule is deactivated after
// repeated failures.
func (s *Service) ProcessDueRecurringPayments(ctx context.Context, now time.Time) (domain.RecurringRunResult, error) {
	due, err := s.repo.ClaimDueRecurringPayments(ctx, now, now.Add(recurringClaimLease))
	if err != nil {
		return domain.RecurringRunResult{}, err
	}

	result := domain.RecurringRunResult{}
	for _, payment := range due {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Processed++

		_, chargeErr := s.repo.ApplyWalletTransaction(ctx, domain.WalletTransaction{
			Username:  payment.Username,
			Type:      domain.WalletPayment,
			Amount:    payment.Amount,
			Reference: "recurring:" + payment.ID,
			CreatedAt: now,
		})

		var run store.RecurringRun
		if chargeErr != nil {
			if !errors.Is(chargeErr, store.ErrInsufficientFunds) && !errors.Is(chargeErr, store.ErrInvalidInput) {
				return result, chargeErr
			}
			result.Failed++
			result.FailedIDs = append(result.FailedIDs, payment.ID)
			run = store.RecurringRun{
				NextRunAt:    now.Add(recurringRetryDelay),
				FailureCount: payment.FailureCount + 1,
				LastError:    chargeErr.Error(),
			}
			run.Deactivate = run.FailureCount >= maxRecurringFailures
		} else {
			result.Succeeded++
			run = store.RecurringRun{NextRunAt: nextRecurringRun(payment.NextRunAt, payment.Interval, now)}
		}

		if err := s.repo.RecordRecurringRun(ctx, payment.ID, run); err != nil {
			return result, err
		}
		s.logAudit(ctx, "recurring_charge", "recurring_payment", payment.ID, fmt.Sprintf("ok=%t,amount=%.2f,next=%s", chargeErr == nil, payment.Amount, run.NextRunAt.Format(time.RFC3339)))
	}
	return result, nil
}

// nextRecurringRun steps from by interval until the result lies after now.
func nextRecurringRun(from time.Time, interval string, now time.Time) time.Time {
	next := from
	for !next.After(now) {
		switch interval {
		case domain.IntervalWeekly:
			next = next.AddDate(0, 0, 7)
		default:
			next = next.AddDate(0, 1, 0)
		}
	}
	return next
}
