package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"freshmart/backend/internal/domain"
	"freshmart/backend/internal/money"
	"freshmart/backend/internal/store"
	"freshmart/backend/internal/xid"
)

// Store keeps every aggregate behind one RWMutex. Multi-entity writes such as
// order placement and wallet debits happen under the write lock.
type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	orders          map[string]domain.Order
	expenses        []domain.Expense
	vendorBills     map[string]domain.VendorBill
	walletBalances  map[string]float64
	walletTxs       map[string][]domain.WalletTransaction
	recurringByID   map[string]domain.RecurringPayment
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		orders:          make(map[string]domain.Order),
		expenses:        make([]domain.Expense, 0, 32),
		vendorBills:     make(map[string]domain.VendorBill),
		walletBalances:  make(map[string]float64),
		walletTxs:       make(map[string][]domain.WalletTransaction),
		recurringByID:   make(map[string]domain.RecurringPayment),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with the demo catalog and one account per role.
// It backs dev mode when no DATABASE_URL is configured.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	for _, p := range store.DemoProducts(now) {
		s.products[p.ID] = p
	}

	users, err := store.DemoUsers(now)
	if err != nil {
		log.Fatal().Err(err).Msg("memory store: seed users")
	}
	for _, u := range users {
		s.usersByUsername[u.Username] = u
	}
	s.walletBalances["customer"] = 50
	s.walletTxs["customer"] = []domain.WalletTransaction{{
		ID:           xid.New("wtx"),
		Username:     "customer",
		Type:         domain.WalletDeposit,
		Amount:       50,
		BalanceAfter: 50,
		Reference:    "welcome credit",
		CreatedAt:    now,
	}}
	return s
}

func (s *Store) ListProducts(_ context.Context, filter store.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.IsActive && !filter.IncludeInactive {
			continue
		}
		if filter.Category != "" && !strings.EqualFold(p.Category, filter.Category) {
			continue
		}
		products = append(products, cloneProduct(p))
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.NotFound("product")
	}
	dup := cloneProduct(product)
	return &dup, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Category == "" || product.Price <= 0 || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	s.products[product.ID] = cloneProduct(product)
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.NotFound("product")
	}
	product.CreatedAt = existing.CreatedAt
	product.Stock = existing.Stock
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = cloneProduct(product)
	updated := cloneProduct(product)
	return &updated, nil
}

func (s *Store) AdjustStock(_ context.Context, id string, delta int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.NotFound("product")
	}
	if product.Stock+delta < 0 {
		return nil, store.ErrInsufficientStock
	}
	product.Stock += delta
	product.UpdatedAt = time.Now().UTC()
	s.products[id] = product
	updated := cloneProduct(product)
	return &updated, nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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
	for productID, qty := range required {
		product, exists := s.products[productID]
		if !exists || !product.IsActive {
			return nil, store.NotFound("product")
		}
		if product.Stock < qty {
			return nil, store.ErrInsufficientStock
		}
	}

	now := time.Now().UTC()
	for productID, qty := range required {
		product := s.products[productID]
		product.Stock -= qty
		product.UpdatedAt = now
		s.products[productID] = product
	}

	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = order.CreatedAt
	s.orders[order.ID] = cloneOrder(order)
	created := cloneOrder(order)
	return &created, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.orders[id]
	if !exists {
		return nil, store.NotFound("order")
	}
	dup := cloneOrder(order)
	return &dup, nil
}

func (s *Store) ListOrders(_ context.Context, filter store.OrderFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		if filter.CustomerUsername != "" && order.CustomerUsername != filter.CustomerUsername {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && order.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && order.CreatedAt.After(filter.To) {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	slices.SortFunc(result, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) UpdateOrder(_ context.Context, order domain.Order, expected store.OrderState) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.orders[order.ID]
	if !exists {
		return nil, store.NotFound("order")
	}
	if store.StateOf(existing) != expected {
		return nil, store.ErrStaleOrder
	}
	order.CreatedAt = existing.CreatedAt
	order.Items = existing.Items
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = time.Now().UTC()
	}
	s.orders[order.ID] = cloneOrder(order)
	updated := cloneOrder(order)
	return &updated, nil
}

func (s *Store) DeleteOrder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[id]; !exists {
		return store.NotFound("order")
	}
	delete(s.orders, id)
	return nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.Amount <= 0 || expense.Category == "" {
		return nil, store.ErrInvalidInput
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.IncurredAt.IsZero() {
		expense.IncurredAt = time.Now().UTC()
	}
	s.expenses = append(s.expenses, expense)
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(_ context.Context, from time.Time, to time.Time) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Expense, 0, len(s.expenses))
	for _, expense := range s.expenses {
		if expense.IncurredAt.Before(from) || expense.IncurredAt.After(to) {
			continue
		}
		result = append(result, expense)
	}
	slices.SortFunc(result, func(a, b domain.Expense) int {
		return b.IncurredAt.Compare(a.IncurredAt)
	})
	return result, nil
}

func (s *Store) CreateVendorBill(_ context.Context, bill domain.VendorBill) (*domain.VendorBill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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
	s.vendorBills[bill.ID] = bill
	created := bill
	return &created, nil
}

func (s *Store) GetVendorBill(_ context.Context, id string) (*domain.VendorBill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bill, exists := s.vendorBills[id]
	if !exists {
		return nil, store.NotFound("vendor bill")
	}
	return &bill, nil
}

func (s *Store) ListVendorBills(_ context.Context, status string) ([]domain.VendorBill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.VendorBill, 0, len(s.vendorBills))
	for _, bill := range s.vendorBills {
		if status != "" && bill.Status != status {
			continue
		}
		result = append(result, bill)
	}
	slices.SortFunc(result, func(a, b domain.VendorBill) int {
		if c := a.DueDate.Compare(b.DueDate); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) MarkVendorBillPaid(_ context.Context, id string, paidAt time.Time) (*domain.VendorBill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bill, exists := s.vendorBills[id]
	if !exists {
		return nil, store.NotFound("vendor bill")
	}
	if bill.Status == domain.VendorBillPaid {
		return nil, store.ErrConflict
	}
	bill.Status = domain.VendorBillPaid
	bill.PaidAt = &paidAt
	s.vendorBills[id] = bill
	return &bill, nil
}

func (s *Store) WalletBalance(_ context.Context, username string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.walletBalances[username], nil
}

func (s *Store) ApplyWalletTransaction(_ context.Context, tx domain.WalletTransaction) (*domain.WalletTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.Username == "" || tx.Amount <= 0 {
		return nil, store.ErrInvalidInput
	}

	balance := s.walletBalances[tx.Username]
	if store.IsDebit(tx.Type) {
		if money.D(balance).LessThan(money.D(tx.Amount)) {
			return nil, store.ErrInsufficientFunds
		}
		balance = money.Sub(balance, tx.Amount)
	} else {
		balance = money.Add(balance, tx.Amount)
	}

	if tx.ID == "" {
		tx.ID = xid.New("wtx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.BalanceAfter = balance
	s.walletBalances[tx.Username] = balance
	s.walletTxs[tx.Username] = append(s.walletTxs[tx.Username], tx)
	created := tx
	return &created, nil
}

func (s *Store) ListWalletTransactions(_ context.Context, username string, limit int) ([]domain.WalletTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.walletTxs[username]
	result := make([]domain.WalletTransaction, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		result = append(result, history[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateRecurringPayment(_ context.Context, payment domain.RecurringPayment) (*domain.RecurringPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if payment.Username == "" || payment.Amount <= 0 {
		return nil, store.ErrInvalidInput
	}
	if payment.ID == "" {
		payment.ID = xid.New("rec")
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	s.recurringByID[payment.ID] = payment
	created := payment
	return &created, nil
}

func (s *Store) GetRecurringPayment(_ context.Context, id string) (*domain.RecurringPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payment, exists := s.recurringByID[id]
	if !exists {
		return nil, store.NotFound("recurring payment")
	}
	return &payment, nil
}

func (s *Store) ListRecurringPayments(_ context.Context, username string) ([]domain.RecurringPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.RecurringPayment, 0, len(s.recurringByID))
	for _, payment := range s.recurringByID {
		if username != "" && payment.Username != username {
			continue
		}
		result = append(result, payment)
	}
	sortRecurring(result)
	return result, nil
}

func (s *Store) ClaimDueRecurringPayments(_ context.Context, now time.Time, leaseUntil time.Time) ([]domain.RecurringPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]domain.RecurringPayment, 0)
	for id, payment := range s.recurringByID {
		if !payment.Active || payment.NextRunAt.After(now) {
			continue
		}
		result = append(result, payment)
		payment.NextRunAt = leaseUntil
		s.recurringByID[id] = payment
	}
	sortRecurring(result)
	return result, nil
}

func (s *Store) RecordRecurringRun(_ context.Context, id string, run store.RecurringRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, exists := s.recurringByID[id]
	if !exists {
		return store.NotFound("recurring payment")
	}
	if !payment.Active {
		return nil
	}
	payment.NextRunAt = run.NextRunAt
	payment.FailureCount = run.FailureCount
	payment.LastError = run.LastError
	if run.Deactivate {
		payment.Active = false
	}
	s.recurringByID[id] = payment
	return nil
}

func (s *Store) UpdateRecurringPayment(_ context.Context, payment domain.RecurringPayment) (*domain.RecurringPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.recurringByID[payment.ID]
	if !exists {
		return nil, store.NotFound("recurring payment")
	}
	payment.CreatedAt = existing.CreatedAt
	payment.Username = existing.Username
	s.recurringByID[payment.ID] = payment
	updated := payment
	return &updated, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" || !user.Role.Valid() {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !exists {
		return nil, store.NotFound("user")
	}
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.NotFound("user")
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func sortRecurring(items []domain.RecurringPayment) {
	slices.SortFunc(items, func(a, b domain.RecurringPayment) int {
		if c := a.NextRunAt.Compare(b.NextRunAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func cloneProduct(src domain.Product) domain.Product {
	dup := src
	if src.PurchasePrice != nil {
		cost := *src.PurchasePrice
		dup.PurchasePrice = &cost
	}
	return dup
}

func cloneOrder(src domain.Order) domain.Order {
	dup := src
	dup.Items = make([]domain.OrderItem, len(src.Items))
	copy(dup.Items, src.Items)
	return dup
}
