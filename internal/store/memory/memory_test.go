package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freshmart/backend/internal/domain"
	"freshmart/backend/internal/store"
)

func seedProduct(t *testing.T, s *Store, stock int) *domain.Product {
	t.Helper()
	cost := 60.0
	product, err := s.CreateProduct(context.Background(), domain.Product{
		Name: "Olive Oil", Category: "pantry", Price: 100, PurchasePrice: &cost, Stock: stock, IsActive: true,
	})
	require.NoError(t, err)
	return product
}

func TestCreateOrderDecrementsStock(t *testing.T) {
	ctx := context.Background()
	s := New()
	product := seedProduct(t, s, 5)

	order, err := s.CreateOrder(ctx, domain.Order{
		Items: []domain.OrderItem{{ProductID: product.ID, Quantity: 2, Price: 100}},
		Total: 200,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)

	after, err := s.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, after.Stock)
}

func TestCreateOrderRejectsOversellWithoutSideEffects(t *testing.T) {
	ctx := context.Background()
	s := New()
	plenty := seedProduct(t, s, 10)
	scarce := seedProduct(t, s, 1)

	_, err := s.CreateOrder(ctx, domain.Order{Items: []domain.OrderItem{
		{ProductID: plenty.ID, Quantity: 3},
		{ProductID: scarce.ID, Quantity: 2},
	}})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	after, err := s.GetProduct(ctx, plenty.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, after.Stock)

	orders, err := s.ListOrders(ctx, store.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestGetOrderNotFoundNamesEntity(t *testing.T) {
	_, err := New().GetOrder(context.Background(), "ord-missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.EqualError(t, err, "order not found")
}

func TestReturnedProductsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	product := seedProduct(t, s, 1)

	*product.PurchasePrice = 1
	stored, err := s.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 60.0, *stored.PurchasePrice)
}

func TestListProductsHidesInactiveByDefault(t *testing.T) {
	ctx := context.Background()
	s := New()
	product := seedProduct(t, s, 1)
	product.IsActive = false
	_, err := s.UpdateProduct(ctx, *product)
	require.NoError(t, err)

	active, err := s.ListProducts(ctx, store.ProductFilter{})
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := s.ListProducts(ctx, store.ProductFilter{IncludeInactive: true})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestWalletDebitFailsOnInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.ApplyWalletTransaction(ctx, domain.WalletTransaction{Username: "ana", Type: domain.WalletDeposit, Amount: 10})
	require.NoError(t, err)

	_, err = s.ApplyWalletTransaction(ctx, domain.WalletTransaction{Username: "ana", Type: domain.WalletWithdrawal, Amount: 10.01})
	require.ErrorIs(t, err, store.ErrInsufficientFunds)

	tx, err := s.ApplyWalletTransaction(ctx, domain.WalletTransaction{Username: "ana", Type: domain.WalletPayment, Amount: 9.9})
	require.NoError(t, err)
	assert.Equal(t, 0.1, tx.BalanceAfter)
}

func TestConcurrentWalletDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.ApplyWalletTransaction(ctx, domain.WalletTransaction{Username: "ana", Type: domain.WalletDeposit, Amount: 100})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ApplyWalletTransaction(ctx, domain.WalletTransaction{Username: "ana", Type: domain.WalletWithdrawal, Amount: 10}); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	balance, err := s.WalletBalance(ctx, "ana")
	require.NoError(t, err)
	assert.Zero(t, balance)

	history, err := s.ListWalletTransactions(ctx, "ana", 5)
	require.NoError(t, err)
	assert.Len(t, history, 5)
	assert.Equal(t, domain.WalletWithdrawal, history[0].Type)
}

func TestMarkVendorBillPaidTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	s := New()
	bill, err := s.CreateVendorBill(ctx, domain.VendorBill{VendorName: "Valley Farms", Amount: 300})
	require.NoError(t, err)
	assert.Equal(t, domain.VendorBillUnpaid, bill.Status)

	paid, err := s.MarkVendorBillPaid(ctx, bill.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, domain.VendorBillPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	_, err = s.MarkVendorBillPaid(ctx, bill.ID, time.Now().UTC())
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestClaimDueRecurringPaymentsLeasesClaimedRows(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now().UTC()
	lease := now.Add(15 * time.Minute)

	due, err := s.CreateRecurringPayment(ctx, domain.RecurringPayment{Username: "ana", Amount: 5, Active: true, NextRunAt: now.Add(-time.Minute)})
	require.NoError(t, err)
	_, err = s.CreateRecurringPayment(ctx, domain.RecurringPayment{Username: "ana", Amount: 5, Active: true, NextRunAt: now.Add(time.Hour)})
	require.NoError(t, err)
	_, err = s.CreateRecurringPayment(ctx, domain.RecurringPayment{Username: "ana", Amount: 5, Active: false, NextRunAt: now.Add(-time.Hour)})
	require.NoError(t, err)

	items, err := s.ClaimDueRecurringPayments(ctx, now, lease)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, due.ID, items[0].ID)
	assert.True(t, items[0].NextRunAt.Equal(due.NextRunAt))

	again, err := s.ClaimDueRecurringPayments(ctx, now, lease)
	require.NoError(t, err)
	assert.Empty(t, again)

	stored, err := s.GetRecurringPayment(ctx, due.ID)
	require.NoError(t, err)
	assert.True(t, stored.NextRunAt.Equal(lease))
}

func TestRecordRecurringRunSkipsCancelledSchedules(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now().UTC()

	payment, err := s.CreateRecurringPayment(ctx, domain.RecurringPayment{Username: "ana", Amount: 5, Active: true, NextRunAt: now})
	require.NoError(t, err)

	payment.Active = false
	_, err = s.UpdateRecurringPayment(ctx, *payment)
	require.NoError(t, err)

	err = s.RecordRecurringRun(ctx, payment.ID, store.RecurringRun{NextRunAt: now.Add(time.Hour), FailureCount: 1, LastError: "boom"})
	require.NoError(t, err)

	stored, err := s.GetRecurringPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
	assert.Zero(t, stored.FailureCount)

	err = s.RecordRecurringRun(ctx, "missing", store.RecurringRun{})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateOrderRejectsStaleState(t *testing.T) {
	ctx := context.Background()
	s := New()
	product, err := s.CreateProduct(ctx, domain.Product{Name: "Kiwi", Category: "produce", Price: 1, Stock: 5, IsActive: true})
	require.NoError(t, err)

	order, err := s.CreateOrder(ctx, domain.Order{
		Channel: domain.ChannelStorefront, Total: 1, PaymentMethod: domain.PaymentWallet,
		PaymentStatus: domain.PaymentStatusPaid, DeliveryStatus: domain.DeliveryPending, Status: domain.OrderStatusPlaced,
		Items: []domain.OrderItem{{ProductID: product.ID, Name: product.Name, Quantity: 1, Price: 1}},
	})
	require.NoError(t, err)
	expected := store.StateOf(*order)

	first := *order
	first.Status = domain.OrderStatusCancelled
	_, err = s.UpdateOrder(ctx, first, expected)
	require.NoError(t, err)

	second := *order
	second.Status = domain.OrderStatusCancelled
	_, err = s.UpdateOrder(ctx, second, expected)
	require.ErrorIs(t, err, store.ErrStaleOrder)
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestNewSeededHasOneAccountPerRole(t *testing.T) {
	s := NewSeeded()
	users, err := s.ListUsers(context.Background())
	require.NoError(t, err)

	roles := map[domain.Role]bool{}
	for _, u := range users {
		roles[u.Role] = true
		assert.NotEqual(t, "", u.Password)
	}
	for _, role := range domain.Roles {
		assert.True(t, roles[role], "missing seeded %s", role)
	}

	products, err := s.ListProducts(context.Background(), store.ProductFilter{})
	require.NoError(t, err)
	assert.NotEmpty(t, products)
}

func TestCreateUserRejectsDuplicatesAndUnknownRoles(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateUser(ctx, domain.UserAccount{Username: "Lena", Password: "hash", Role: domain.RoleEmployee}))
	require.ErrorIs(t, s.CreateUser(ctx, domain.UserAccount{Username: "lena", Password: "hash", Role: domain.RoleEmployee}), store.ErrConflict)
	require.ErrorIs(t, s.CreateUser(ctx, domain.UserAccount{Username: "max", Password: "hash", Role: domain.Role("owner")}), store.ErrInvalidInput)

	user, err := s.GetUser(ctx, "LENA")
	require.NoError(t, err)
	assert.Equal(t, "lena", user.Username)
}
