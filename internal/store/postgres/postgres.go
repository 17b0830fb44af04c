package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"freshmart/backend/internal/domain"
	"freshmart/backend/internal/money"
	"freshmart/backend/internal/store"
	"freshmart/backend/internal/xid"
)

const (
	productColumns = `id, name, category, description, unit, price, purchase_price, stock, is_active, created_at, updated_at`
	orderColumns   = `id, customer_username, channel, total, payment_method, payment_reference, payment_status,
		delivery_status, status, delivery_address, created_at, updated_at`
	expenseColumns    = `id, category, description, amount, incurred_at, recorded_by`
	vendorBillColumns = `id, vendor_name, description, amount, due_date, status, created_by, created_at, paid_at`
	walletTxColumns   = `id, username, type, amount, balance_after, reference, created_at`
	recurringColumns  = `id, username, description, amount, billing_interval AS "interval", next_run_at, active,
		failure_count, last_error, created_at`
	auditColumns = `id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at`
	userColumns  = `username, password_hash, role, active, created_at`
)

type Store struct {
	db *sqlx.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle. The driver name must bind with $N
// placeholders, e.g. sqlx.NewDb(conn, "pgx").
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) ListProducts(ctx context.Context, filter store.ProductFilter) ([]domain.Product, error) {
	products := make([]domain.Product, 0, 64)
	err := s.db.SelectContext(ctx, &products, `
		SELECT `+productColumns+`
		FROM products
		WHERE ($1 OR is_active) AND ($2 = '' OR lower(category) = lower($2))
		ORDER BY category, name
	`, filter.IncludeInactive, filter.Category)
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	err := s.db.GetContext(ctx, &product, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("product")
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Category == "" || product.Price <= 0 || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (:id, :name, :category, :description, :unit, :price, :purchase_price, :stock, :is_active, :created_at, :updated_at)
	`, product)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &product, nil
}

// UpdateProduct rewrites the descriptive fields. Stock only moves through
// AdjustStock and CreateOrder.
func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	var updated domain.Product
	err := s.db.GetContext(ctx, &updated, `
		UPDATE products
		SET name = $2, category = $3, description = $4, unit = $5, price = $6,
			purchase_price = $7, is_active = $8, updated_at = $9
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.Name, product.Category, product.Description, product.Unit, product.Price,
		product.PurchasePrice, product.IsActive, time.Now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("product")
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var stock int
	if err := tx.GetContext(ctx, &stock, `SELECT stock FROM products WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("product")
		}
		return nil, err
	}
	if stock+delta < 0 {
		return nil, store.ErrInsufficientStock
	}

	var updated domain.Product
	if err := tx.GetContext(ctx, &updated, `
		UPDATE products SET stock = stock + $2, updated_at = $3
		WHERE id = $1
		RETURNING `+productColumns,
		id, delta, time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &updated, nil
}

// CreateOrder locks every product row in id order, checks stock, decrements
// it and writes the order with its lines in one transaction.
func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if len(order.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	required := make(map[string]int, len(order.Items))
	for _, item := range order.Items {
		if item.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
		required[item.ProductID] += item.Quantity
	}
	productIDs := make([]string, 0, len(required))
	for id := range required {
		productIDs = append(productIDs, id)
	}
	sort.Strings(productIDs)

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, productID := range productIDs {
		var row struct {
			Stock    int  `db:"stock"`
			IsActive bool `db:"is_active"`
		}
		if err := tx.GetContext(ctx, &row, `SELECT stock, is_active FROM products WHERE id = $1 FOR UPDATE`, productID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.NotFound("product")
			}
			return nil, err
		}
		if !row.IsActive {
			return nil, store.NotFound("product")
		}
		if row.Stock < required[productID] {
			return nil, store.ErrInsufficientStock
		}
		if _, err := tx.ExecContext(ctx, `UPDATE products SET stock = stock - $2, updated_at = $3 WHERE id = $1`,
			productID, required[productID], now); err != nil {
			return nil, err
		}
	}

	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = order.CreatedAt

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (:id, :customer_username, :channel, :total, :payment_method, :payment_reference, :payment_status,
			:delivery_status, :status, :delivery_address, :created_at, :updated_at)
	`, order); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	for i, item := range order.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, line_no, product_id, name, quantity, price)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, order.ID, i+1, item.ProductID, item.Name, item.Quantity, item.Price); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := order
	created.Items = append([]domain.OrderItem(nil), order.Items...)
	return &created, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	var order domain.Order
	if err := s.db.GetContext(ctx, &order, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("order")
		}
		return nil, err
	}
	orders := []domain.Order{order}
	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (s *Store) ListOrders(ctx context.Context, filter store.OrderFilter) ([]domain.Order, error) {
	where := make([]string, 0, 4)
	args := make([]any, 0, 5)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.CustomerUsername != "" {
		add("customer_username = $%d", filter.CustomerUsername)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= $%d", filter.To)
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	orders := make([]domain.Order, 0, 64)
	if err := s.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) attachItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		orders[i].Items = make([]domain.OrderItem, 0, 4)
	}

	query, args, err := sqlx.In(`
		SELECT order_id, product_id, name, quantity, price
		FROM order_items
		WHERE order_id IN (?)
		ORDER BY order_id, line_no
	`, ids)
	if err != nil {
		return err
	}
	var rows []struct {
		OrderID string `db:"order_id"`
		domain.OrderItem
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return err
	}

	index := make(map[string]int, len(orders))
	for i := range orders {
		index[orders[i].ID] = i
	}
	for _, row := range rows {
		if i, ok := index[row.OrderID]; ok {
			orders[i].Items = append(orders[i].Items, row.OrderItem)
		}
	}
	return nil
}

// UpdateOrder persists status, payment and delivery fields. Lines and
// totals are immutable once an order is placed. The write only lands while
// the stored state still matches expected.
func (s *Store) UpdateOrder(ctx context.Context, order domain.Order, expected store.OrderState) (*domain.Order, error) {
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET customer_username = $2, total = $3, payment_method = $4,
			payment_reference = $5, payment_status = $6,
			delivery_status = $7, status = $8, delivery_address = $9,
			updated_at = $10
		WHERE id = $1 AND status = $11 AND delivery_status = $12 AND payment_status = $13
	`, order.ID, order.CustomerUsername, order.Total, order.PaymentMethod,
		order.PaymentReference, order.PaymentStatus,
		order.DeliveryStatus, order.Status, order.DeliveryAddress,
		order.UpdatedAt, expected.Status, expected.DeliveryStatus, expected.PaymentStatus)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, err := s.GetOrder(ctx, order.ID); err != nil {
			return nil, err
		}
		return nil, store.ErrStaleOrder
	}
	return s.GetOrder(ctx, order.ID)
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.NotFound("order")
	}
	return nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.Amount <= 0 || expense.Category == "" {
		return nil, store.ErrInvalidInput
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.IncurredAt.IsZero() {
		expense.IncurredAt = time.Now().UTC()
	}
	if _, err := s.db.NamedExecContext(ctx, `
		INSERT INTO expenses (`+expenseColumns+`)
		VALUES (:id, :category, :description, :amount, :incurred_at, :recorded_by)
	`, expense); err != nil {
		return nil, err
	}
	return &expense, nil
}

func (s *Store) ListExpenses(ctx context.Context, from time.Time, to time.Time) ([]domain.Expense, error) {
	expenses := make([]domain.Expense, 0, 32)
	err := s.db.SelectContext(ctx, &expenses, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE incurred_at >= $1 AND incurred_at <= $2
		ORDER BY incurred_at DESC
	`, from, to)
	if err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) CreateVendorBill(ctx context.Context, bill domain.VendorBill) (*domain.VendorBill, error) {
	if bill.VendorName == "" || bill.Amount <= 0 {
		return nil, store.ErrInvalidInput
	}
	if bill.ID == "" {
		bill.ID = xid.New("bill")
	}
	if bill.Status == "" {
		bill.Status = domain.VendorBillUnpaid
	}
	if bill.CreatedAt.IsZero() {
		bill.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.NamedExecContext(ctx, `
		INSERT INTO vendor_bills (`+vendorBillColumns+`)
		VALUES (:id, :vendor_name, :description, :amount, :due_date, :status, :created_by, :created_at, :paid_at)
	`, bill); err != nil {
		return nil, err
	}
	return &bill, nil
}

func (s *Store) GetVendorBill(ctx context.Context, id string) (*domain.VendorBill, error) {
	var bill domain.VendorBill
	if err := s.db.GetContext(ctx, &bill, `SELECT `+vendorBillColumns+` FROM vendor_bills WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("vendor bill")
		}
		return nil, err
	}
	return &bill, nil
}

func (s *Store) ListVendorBills(ctx context.Context, status string) ([]domain.VendorBill, error) {
	bills := make([]domain.VendorBill, 0, 16)
	err := s.db.SelectContext(ctx, &bills, `
		SELECT `+vendorBillColumns+`
		FROM vendor_bills
		WHERE ($1 = '' OR status = $1)
		ORDER BY due_date, id
	`, status)
	if err != nil {
		return nil, err
	}
	return bills, nil
}

func (s *Store) MarkVendorBillPaid(ctx context.Context, id string, paidAt time.Time) (*domain.VendorBill, error) {
	var bill domain.VendorBill
	err := s.db.GetContext(ctx, &bill, `
		UPDATE vendor_bills SET status = $2, paid_at = $3
		WHERE id = $1 AND status <> $2
		RETURNING `+vendorBillColumns,
		id, domain.VendorBillPaid, paidAt)
	if err == nil {
		return &bill, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if _, err := s.GetVendorBill(ctx, id); err != nil {
		return nil, err
	}
	return nil, store.ErrConflict
}

func (s *Store) WalletBalance(ctx context.Context, username string) (float64, error) {
	var balance float64
	err := s.db.GetContext(ctx, &balance, `SELECT balance FROM wallets WHERE username = $1`, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return balance, nil
}

func (s *Store) ApplyWalletTransaction(ctx context.Context, wtx domain.WalletTransaction) (*domain.WalletTransaction, error) {
	if wtx.Username == "" || wtx.Amount <= 0 {
		return nil, store.ErrInvalidInput
	}
	if wtx.ID == "" {
		wtx.ID = xid.New("wtx")
	}
	if wtx.CreatedAt.IsZero() {
		wtx.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (username, balance, updated_at) VALUES ($1, 0, $2)
		ON CONFLICT (username) DO NOTHING
	`, wtx.Username, wtx.CreatedAt); err != nil {
		return nil, err
	}
	var balance float64
	if err := tx.GetContext(ctx, &balance, `SELECT balance FROM wallets WHERE username = $1 FOR UPDATE`, wtx.Username); err != nil {
		return nil, err
	}

	if store.IsDebit(wtx.Type) {
		if money.D(balance).LessThan(money.D(wtx.Amount)) {
			return nil, store.ErrInsufficientFunds
		}
		balance = money.Sub(balance, wtx.Amount)
	} else {
		balance = money.Add(balance, wtx.Amount)
	}
	wtx.BalanceAfter = balance

	if _, err := tx.ExecContext(ctx, `UPDATE wallets SET balance = $2, updated_at = $3 WHERE username = $1`,
		wtx.Username, balance, wtx.CreatedAt); err != nil {
		return nil, err
	}
	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO wallet_transactions (`+walletTxColumns+`)
		VALUES (:id, :username, :type, :amount, :balance_after, :reference, :created_at)
	`, wtx); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &wtx, nil
}

func (s *Store) ListWalletTransactions(ctx context.Context, username string, limit int) ([]domain.WalletTransaction, error) {
	query := `SELECT ` + walletTxColumns + ` FROM wallet_transactions WHERE username = $1 ORDER BY created_at DESC, id DESC`
	args := []any{username}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	history := make([]domain.WalletTransaction, 0, 16)
	if err := s.db.SelectContext(ctx, &history, query, args...); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Store) CreateRecurringPayment(ctx context.Context, payment domain.RecurringPayment) (*domain.RecurringPayment, error) {
	if payment.Username == "" || payment.Amount <= 0 {
		return nil, store.ErrInvalidInput
	}
	if payment.ID == "" {
		payment.ID = xid.New("rec")
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO recurring_payments (id, username, description, amount, billing_interval, next_run_at, active,
			failure_count, last_error, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, payment.ID, payment.Username, payment.Description, payment.Amount, payment.Interval, payment.NextRunAt,
		payment.Active, payment.FailureCount, payment.LastError, payment.CreatedAt); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *Store) GetRecurringPayment(ctx context.Context, id string) (*domain.RecurringPayment, error) {
	var payment domain.RecurringPayment
	if err := s.db.GetContext(ctx, &payment, `SELECT `+recurringColumns+` FROM recurring_payments WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("recurring payment")
		}
		return nil, err
	}
	return &payment, nil
}

func (s *Store) ListRecurringPayments(ctx context.Context, username string) ([]domain.RecurringPayment, error) {
	payments := make([]domain.RecurringPayment, 0, 16)
	err := s.db.SelectContext(ctx, &payments, `
		SELECT `+recurringColumns+`
		FROM recurring_payments
		WHERE ($1 = '' OR username = $1)
		ORDER BY next_run_at, id
	`, username)
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// ClaimDueRecurringPayments pushes the next run of every due schedule out to
// leaseUntil and returns the claimed rows with their original next run.
// Rows locked by a concurrent claim are skipped.
func (s *Store) ClaimDueRecurringPayments(ctx context.Context, now time.Time, leaseUntil time.Time) ([]domain.RecurringPayment, error) {
	payments := make([]domain.RecurringPayment, 0, 16)
	err := s.db.SelectContext(ctx, &payments, `
		WITH due AS (
			SELECT id, next_run_at
			FROM recurring_payments
			WHERE active AND next_run_at <= $1
			ORDER BY next_run_at, id
			FOR UPDATE SKIP LOCKED
		)
		UPDATE recurring_payments r
		SET next_run_at = $2
		FROM due
		WHERE r.id = due.id
		RETURNING r.id, r.username, r.description, r.amount, r.billing_interval AS "interval",
			due.next_run_at AS next_run_at, r.active, r.failure_count, r.last_error, r.created_at
	`, now, leaseUntil)
	if err != nil {
		return nil, err
	}
	sort.Slice(payments, func(i, j int) bool {
		if payments[i].NextRunAt.Equal(payments[j].NextRunAt) {
			return payments[i].ID < payments[j].ID
		}
		return payments[i].NextRunAt.Before(payments[j].NextRunAt)
	})
	return payments, nil
}

// RecordRecurringRun stores the outcome of a billing attempt. A schedule
// cancelled while the charge was in flight stays cancelled.
func (s *Store) RecordRecurringRun(ctx context.Context, id string, run store.RecurringRun) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE recurring_payments
		SET next_run_at = $2, failure_count = $3, last_error = $4, active = active AND NOT $5
		WHERE id = $1 AND active
	`, id, run.NextRunAt, run.FailureCount, run.LastError, run.Deactivate)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		_, err := s.GetRecurringPayment(ctx, id)
		return err
	}
	return nil
}

func (s *Store) UpdateRecurringPayment(ctx context.Context, payment domain.RecurringPayment) (*domain.RecurringPayment, error) {
	var updated domain.RecurringPayment
	err := s.db.GetContext(ctx, &updated, `
		UPDATE recurring_payments
		SET description = $2, amount = $3, billing_interval = $4, next_run_at = $5, active = $6,
			failure_count = $7, last_error = $8
		WHERE id = $1
		RETURNING `+recurringColumns,
		payment.ID, payment.Description, payment.Amount, payment.Interval, payment.NextRunAt, payment.Active,
		payment.FailureCount, payment.LastError)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("recurring payment")
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO audit_logs (`+auditColumns+`)
		VALUES (:id, :actor_username, :actor_role, :action, :entity_type, :entity_id, :detail, :created_at)
	`, entry)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 200
	}
	logs := make([]domain.AuditLog, 0, limit)
	err := s.db.SelectContext(ctx, &logs, `
		SELECT `+auditColumns+`
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" || !user.Role.Valid() {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (:username, :password_hash, :role, :active, :created_at)
	`, user)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE username = $1`,
		strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("user")
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	users := make([]domain.UserAccount, 0, 16)
	if err := s.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY username`); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $2 WHERE username = $1`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.NotFound("user")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
