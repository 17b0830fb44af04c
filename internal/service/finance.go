package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"freshmart/backend/internal/cache"
	"freshmart/backend/internal/domain"
	"freshmart/backend/internal/finance"
	"freshmart/backend/internal/rbac"
	"freshmart/backend/internal/store"
)

// FinancialMetrics aggregates revenue, cost, profit, margin and ROI over the
// trailing days window. The full aggregate is computed (or read from cache)
// for every caller; the five sensitive figures are nulled on the way out for
// roles without financial access.
func (s *Service) FinancialMetrics(ctx context.Context, days int, role domain.Role) (*domain.FinancialMetrics, error) {
	metrics, err := s.rawMetrics(ctx, days)
	if err != nil {
		return nil, err
	}
	return rbac.FilterFinancialData(metrics, role), nil
}

// window resolves a trailing day count against the configured default.
func (s *Service) window(days int) (int, time.Time, time.Time) {
	if days < 1 {
		days = s.defaultDays
	}
	return finance.Window(days, s.now())
}

func (s *Service) rawMetrics(ctx context.Context, days int) (*domain.FinancialMetrics, error) {
	days, from, to := s.window(days)
	key := cache.MetricsKey(days)

	if cached, ok, err := s.metricsCache.Get(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("metrics cache read failed")
	} else if ok {
		return cached, nil
	}

	var (
		orders   []domain.Order
		products []domain.Product
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orders, err = s.repo.ListOrders(gctx, store.OrderFilter{From: from, To: to})
		return err
	})
	g.Go(func() error {
		var err error
		products, err = s.repo.ListProducts(gctx, store.ProductFilter{IncludeInactive: true})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	metrics := finance.Aggregate(orders, products, from, to)
	metrics.Days = days
	metrics.GeneratedAt = s.now()

	if err := s.metricsCache.Set(ctx, key, &metrics, s.metricsTTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("metrics cache write failed")
	}
	return &metrics, nil
}

// ExportFinancialMetricsCSV renders the caller's view of the metrics as CSV.
func (s *Service) ExportFinancialMetricsCSV(ctx context.Context, days int) ([]byte, error) {
	actor, err := s.authorize(ctx, rbac.PermFinanceRead)
	if err != nil {
		return nil, err
	}
	metrics, err := s.FinancialMetrics(ctx, days, actor.Role)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "metrics_export", "financial_metrics", fmt.Sprintf("days=%d", metrics.Days), "")
	return finance.MetricsToCSV(*metrics)
}

// Expenses lists expenses incurred in the trailing days window.
func (s *Service) Expenses(ctx context.Context, days int, role domain.Role) ([]domain.Expense, error) {
	if err := rbac.Require(role, rbac.PermExpensesRead); err != nil {
		return nil, err
	}
	_, from, to := s.window(days)
	expenses, err := s.repo.ListExpenses(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if expenses == nil {
		expenses = []domain.Expense{}
	}
	return expenses, nil
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	actor, err := s.authorize(ctx, rbac.PermExpensesWrite)
	if err != nil {
		return domain.Expense{}, err
	}
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))
	if err := s.validateRequest(req); err != nil {
		return domain.Expense{}, err
	}

	incurredAt := s.now()
	if req.IncurredAt != nil {
		incurredAt = req.IncurredAt.UTC()
	}
	created, err := s.repo.CreateExpense(ctx, domain.Expense{
		Category:    req.Category,
		Description: strings.TrimSpace(req.Description),
		Amount:      req.Amount,
		IncurredAt:  incurredAt,
		RecordedBy:  actor.Username,
	})
	if err != nil {
		return domain.Expense{}, err
	}

	s.logAudit(ctx, "expense_create", "expense", created.ID, fmt.Sprintf("category=%s,amount=%.2f", created.Category, created.Amount))
	return *created, nil
}

func (s *Service) VendorBills(ctx context.Context, status string) ([]domain.VendorBill, error) {
	if _, err := s.authorize(ctx, rbac.PermExpensesRead); err != nil {
		return nil, err
	}
	status = strings.ToLower(strings.TrimSpace(status))
	if status != "" && status != domain.VendorBillPaid && status != domain.VendorBillUnpaid {
		return nil, fmt.Errorf("%w: status must be paid or unpaid", store.ErrInvalidInput)
	}
	bills, err := s.repo.ListVendorBills(ctx, status)
	if err != nil {
		return nil, err
	}
	if bills == nil {
		bills = []domain.VendorBill{}
	}
	return bills, nil
}

func (s *Service) CreateVendorBill(ctx context.Context, req domain.VendorBillCreateRequest) (domain.VendorBill, error) {
	actor, err := s.authorize(ctx, rbac.PermVendorBillsWrite)
	if err != nil {
		return domain.VendorBill{}, err
	}
	req.VendorName = strings.TrimSpace(req.VendorName)
	if err := s.validateRequest(req); err != nil {
		return domain.VendorBill{}, err
	}
	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		return domain.VendorBill{}, fmt.Errorf("%w: dueDate must be YYYY-MM-DD", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateVendorBill(ctx, domain.VendorBill{
		VendorName:  req.VendorName,
		Description: strings.TrimSpace(req.Description),
		Amount:      req.Amount,
		DueDate:     dueDate.UTC(),
		Status:      domain.VendorBillUnpaid,
		CreatedBy:   actor.Username,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return domain.VendorBill{}, err
	}

	s.logAudit(ctx, "vendor_bill_create", "vendor_bill", created.ID, fmt.Sprintf("vendor=%s,amount=%.2f,due=%s", created.VendorName, created.Amount, req.DueDate))
	return *created, nil
}

// PayVendorBill marks the bill paid and books the payment as an expense.
func (s *Service) PayVendorBill(ctx context.Context, id string) (domain.VendorBill, error) {
	actor, err := s.authorize(ctx, rbac.PermVendorBillsWrite)
	if err != nil {
		return domain.VendorBill{}, err
	}

	paidAt := s.now()
	bill, err := s.repo.MarkVendorBillPaid(ctx, strings.TrimSpace(id), paidAt)
	if err != nil {
		return domain.VendorBill{}, err
	}

	if _, err := s.repo.CreateExpense(ctx, domain.Expense{
		Category:    "vendor_bill",
		Description: fmt.Sprintf("%s (%s)", bill.VendorName, bill.ID),
		Amount:      bill.Amount,
		IncurredAt:  paidAt,
		RecordedBy:  actor.Username,
	}); err != nil {
		return domain.VendorBill{}, err
	}

	s.logAudit(ctx, "vendor_bill_pay", "vendor_bill", bill.ID, fmt.Sprintf("amount=%.2f", bill.Amount))
	return *bill, nil
}

// DashboardOverview summarizes operational counts for the back office plus
// the headline financial figures, redacted per role.
func (s *Service) DashboardOverview(ctx context.Context) (domain.DashboardOverview, error) {
	actor, err := s.authorize(ctx, rbac.PermDashboardRead)
	if err != nil {
		return domain.DashboardOverview{}, err
	}

	_, from, to := finance.Window(s.defaultDays, s.now())
	var (
		overview domain.DashboardOverview
		metrics  *domain.FinancialMetrics
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		orders, err := s.repo.ListOrders(gctx, store.OrderFilter{From: from, To: to})
		if err != nil {
			return err
		}
		overview.TotalOrders = len(orders)
		for _, order := range orders {
			if order.Status == domain.OrderStatusPlaced || order.Status == domain.OrderStatusProcessing {
				overview.PendingOrders++
			}
			switch order.DeliveryStatus {
			case domain.DeliveryPending, domain.DeliveryPacked, domain.DeliveryOutForDelivery:
				overview.PendingDeliveries++
			}
			if order.PaymentStatus == domain.PaymentStatusPending && order.Status != domain.OrderStatusCancelled {
				overview.PendingPayments++
			}
		}
		return nil
	})
	g.Go(func() error {
		products, err := s.repo.ListProducts(gctx, store.ProductFilter{})
		if err != nil {
			return err
		}
		overview.ActiveProducts = len(products)
		for _, p := range products {
			if p.Stock <= lowStockThreshold {
				overview.LowStockProducts++
			}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		metrics, err = s.rawMetrics(gctx, s.defaultDays)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.DashboardOverview{}, err
	}

	if sum := metrics.Summary; sum != nil {
		overview.TotalRevenue = sum.TotalRevenue
		overview.TotalCost = sum.TotalCost
		overview.TotalProfit = sum.TotalProfit
		overview.ProfitMargin = sum.ProfitMargin
		overview.ROI = sum.ROI
	}
	return rbac.FilterFinancialData(overview, actor.Role), nil
}
