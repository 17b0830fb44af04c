package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"freshmart/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
	ErrConflict          = errors.New("conflict")
)

// NotFoundError names the missing entity, e.g. "order not found".
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Entity)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func NotFound(entity string) error {
	return &NotFoundError{Entity: entity}
}

type ProductFilter struct {
	Category        string
	IncludeInactive bool
}

type OrderFilter struct {
	CustomerUsername string
	Status           string
	From             time.Time
	To               time.Time
	Limit            int
}

// OrderState is the part of an order that status transitions check.
type OrderState struct {
	Status         string
	DeliveryStatus string
	PaymentStatus  string
}

func StateOf(order domain.Order) OrderState {
	return OrderState{Status: order.Status, DeliveryStatus: order.DeliveryStatus, PaymentStatus: order.PaymentStatus}
}

// ErrStaleOrder reports a lost compare-and-set on an order.
var ErrStaleOrder = fmt.Errorf("%w: order was changed by another request", ErrConflict)

// RecurringRun is the outcome of one billing attempt.
type RecurringRun struct {
	NextRunAt    time.Time
	FailureCount int
	LastError    string
	Deactivate   bool
}

type Repository interface {
	ListProducts(ctx context.Context, filter ProductFilter) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error)

	// CreateOrder persists the order and decrements stock for every line in
	// one step. It fails with ErrInsufficientStock without side effects.
	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]domain.Order, error)
	// UpdateOrder writes the order only while its stored state still equals
	// expected, and fails with ErrConflict otherwise.
	UpdateOrder(ctx context.Context, order domain.Order, expected OrderState) (*domain.Order, error)
	DeleteOrder(ctx context.Context, id string) error

	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	ListExpenses(ctx context.Context, from time.Time, to time.Time) ([]domain.Expense, error)

	CreateVendorBill(ctx context.Context, bill domain.VendorBill) (*domain.VendorBill, error)
	GetVendorBill(ctx context.Context, id string) (*domain.VendorBill, error)
	ListVendorBills(ctx context.Context, status string) ([]domain.VendorBill, error)
	// MarkVendorBillPaid fails with ErrConflict when the bill is already paid.
	MarkVendorBillPaid(ctx context.Context, id string, paidAt time.Time) (*domain.VendorBill, error)

	WalletBalance(ctx context.Context, username string) (float64, error)
	// ApplyWalletTransaction credits deposits and refunds and debits
	// withdrawals and payments against the current balance atomically.
	// Debits larger than the balance fail with ErrInsufficientFunds.
	ApplyWalletTransaction(ctx context.Context, tx domain.WalletTransaction) (*domain.WalletTransaction, error)
	ListWalletTransactions(ctx context.Context, username string, limit int) ([]domain.WalletTransaction, error)

	CreateRecurringPayment(ctx context.Context, payment domain.RecurringPayment) (*domain.RecurringPayment, error)
	GetRecurringPayment(ctx context.Context, id string) (*domain.RecurringPayment, error)
	ListRecurringPayments(ctx context.Context, username string) ([]domain.RecurringPayment, error)
	// ClaimDueRecurringPayments returns active schedules due at now and, in
	// the same step, pushes their stored nextRunAt to leaseUntil so a
	// concurrent run cannot claim them again. Returned rows carry the
	// nextRunAt they were due at.
	ClaimDueRecurringPayments(ctx context.Context, now time.Time, leaseUntil time.Time) ([]domain.RecurringPayment, error)
	// RecordRecurringRun stores the outcome of one billing attempt. Schedules
	// cancelled in the meantime are left untouched.
	RecordRecurringRun(ctx context.Context, id string, run RecurringRun) error
	UpdateRecurringPayment(ctx context.Context, payment domain.RecurringPayment) (*domain.RecurringPayment, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// IsDebit reports whether a wallet transaction type reduces the balance.
func IsDebit(txType string) bool {
	return txType == domain.WalletWithdrawal || txType == domain.WalletPayment
}
