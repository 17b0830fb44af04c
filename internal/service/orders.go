package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"freshmart/backend/internal/domain"
	"freshmart/backend/internal/money"
	"freshmart/backend/internal/rbac"
	"freshmart/backend/internal/store"
	"freshmart/backend/internal/xid"
)

var deliveryRank = map[string]int{
	domain.DeliveryPending:        1,
	domain.DeliveryPacked:         2,
	domain.DeliveryOutForDelivery: 3,
	domain.DeliveryDelivered:      4,
}

// CreateOrder places a storefront or POS order. Lines are priced from the
// catalog, stock is reserved atomically and payment is applied by method:
// cash is settled at the counter, wallet is debited immediately, card and
// cash on delivery stay pending until verified.
func (s *Service) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	actor, err := s.authorize(ctx, rbac.PermOrdersCreate)
	if err != nil {
		return domain.Order{}, err
	}
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	req.Channel = strings.ToLower(strings.TrimSpace(req.Channel))
	if err := s.validateRequest(req); err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		ID:               xid.New("ord"),
		Channel:          req.Channel,
		CustomerUsername: strings.ToLower(strings.TrimSpace(req.CustomerUsername)),
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: strings.TrimSpace(req.PaymentReference),
		DeliveryAddress:  strings.TrimSpace(req.DeliveryAddress),
		CreatedAt:        s.now(),
	}
	if actor.Role == domain.RoleCustomer {
		order.Channel = domain.ChannelStorefront
		order.CustomerUsername = actor.Username
	} else if order.Channel == "" {
		order.Channel = domain.ChannelPOS
	}

	if err := applyChannelRules(&order); err != nil {
		return domain.Order{}, err
	}

	items, total, err := s.priceItems(ctx, req.Items)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	order.Total = money.Float(total)

	var walletTx *domain.WalletTransaction
	if order.PaymentMethod == domain.PaymentWallet {
		walletTx, err = s.repo.ApplyWalletTransaction(ctx, domain.WalletTransaction{
			Username:  order.CustomerUsername,
			Type:      domain.WalletPayment,
			Amount:    order.Total,
			Reference: order.ID,
			CreatedAt: order.CreatedAt,
		})
		if err != nil {
			return domain.Order{}, err
		}
		order.PaymentReference = walletTx.ID
	}

	created, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		if walletTx != nil {
			s.refundWallet(ctx, order.CustomerUsername, order.Total, order.ID)
		}
		return domain.Order{}, err
	}

	s.logAudit(ctx, "order_create", "order", created.ID, fmt.Sprintf("channel=%s,total=%.2f,payment=%s,items=%d", created.Channel, created.Total, created.PaymentMethod, len(created.Items)))
	s.invalidateMetrics(ctx)
	return *created, nil
}

func applyChannelRules(order *domain.Order) error {
	switch order.Channel {
	case domain.ChannelPOS:
		order.DeliveryStatus = domain.DeliveryNotRequired
		order.Status = domain.OrderStatusCompleted
		if order.PaymentMethod == domain.PaymentCOD {
			return fmt.Errorf("%w: cash on delivery is not available at the POS", store.ErrInvalidInput)
		}
	case domain.ChannelStorefront:
		order.DeliveryStatus = domain.DeliveryPending
		order.Status = domain.OrderStatusPlaced
		if order.PaymentMethod == domain.PaymentCash {
			return fmt.Errorf("%w: storefront orders pay by card, wallet or cash on delivery", store.ErrInvalidInput)
		}
		if order.DeliveryAddress == "" {
			return fmt.Errorf("%w: deliveryAddress is required for storefront orders", store.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown channel %q", store.ErrInvalidInput, order.Channel)
	}

	switch order.PaymentMethod {
	case domain.PaymentCash:
		order.PaymentStatus = domain.PaymentStatusPaid
	case domain.PaymentWallet:
		if order.CustomerUsername == "" {
			return fmt.Errorf("%w: wallet payments need a customer", store.ErrInvalidInput)
		}
		order.PaymentStatus = domain.PaymentStatusPaid
	case domain.PaymentCard:
		if order.PaymentReference == "" {
			return fmt.Errorf("%w: card payments need a paymentReference", store.ErrInvalidInput)
		}
		order.PaymentStatus = domain.PaymentStatusPending
	case domain.PaymentCOD:
		order.PaymentStatus = domain.PaymentStatusPending
	}
	if order.PaymentStatus == domain.PaymentStatusPending && order.Status == domain.OrderStatusCompleted {
		order.Status = domain.OrderStatusProcessing
	}
	return nil
}

// priceItems merges duplicate lines and prices them from the active catalog.
func (s *Service) priceItems(ctx context.Context, cart []domain.CartItem) ([]domain.OrderItem, decimal.Decimal, error) {
	quantities := make(map[string]int, len(cart))
	ids := make([]string, 0, len(cart))
	for _, item := range cart {
		id := strings.TrimSpace(item.ProductID)
		if _, seen := quantities[id]; !seen {
			ids = append(ids, id)
		}
		quantities[id] += item.Quantity
	}

	total := decimal.Zero
	items := make([]domain.OrderItem, 0, len(ids))
	for _, id := range ids {
		product, err := s.repo.GetProduct(ctx, id)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if !product.IsActive {
			return nil, decimal.Zero, store.NotFound("product")
		}
		if product.Stock < quantities[id] {
			return nil, decimal.Zero, fmt.Errorf("%w: %s", store.ErrInsufficientStock, product.Name)
		}
		items = append(items, domain.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  quantities[id],
			Price:     product.Price,
		})
		total = total.Add(money.Line(product.Price, quantities[id]))
	}
	return items, total, nil
}

// GetOrder returns one order. Customers only see their own orders; anything
// else reads as not found.
func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Order{}, rbac.ErrInsufficientPermissions
	}

	order, err := s.repo.GetOrder(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Order{}, err
	}
	if !rbac.HasPermission(actor.Role, rbac.PermOrdersReadAll) && order.CustomerUsername != actor.Username {
		return domain.Order{}, store.NotFound("order")
	}
	return *order, nil
}

func (s *Service) ListOrders(ctx context.Context, filter store.OrderFilter) ([]domain.Order, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, rbac.ErrInsufficientPermissions
	}
	switch {
	case rbac.HasPermission(actor.Role, rbac.PermOrdersReadAll):
	case rbac.HasPermission(actor.Role, rbac.PermOrdersCreate):
		filter.CustomerUsername = actor.Username
	default:
		return nil, rbac.ErrInsufficientPermissions
	}
	if filter.Limit < 1 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.ListOrders(ctx, filter)
}

func (s *Service) UpdateOrderStatus(ctx context.Context, id string, req domain.OrderStatusRequest) (domain.Order, error) {
	if _, err := s.authorize(ctx, rbac.PermOrdersUpdate); err != nil {
		return domain.Order{}, err
	}
	if err := s.validateRequest(req); err != nil {
		return domain.Order{}, err
	}

	order, err := s.repo.GetOrder(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status == domain.OrderStatusCancelled || order.Status == domain.OrderStatusCompleted {
		return domain.Order{}, fmt.Errorf("%w: order is already %s", store.ErrConflict, order.Status)
	}
	original := *order

	if req.Status == domain.OrderStatusCancelled {
		if err := checkCancellable(order); err != nil {
			return domain.Order{}, err
		}
		cancelOrder(order)
	}
	order.Status = req.Status
	order.UpdatedAt = s.now()

	saved, err := s.repo.UpdateOrder(ctx, *order, store.StateOf(original))
	if err != nil {
		return domain.Order{}, err
	}
	if saved.Status == domain.OrderStatusCancelled {
		s.releaseOrder(ctx, original, *saved)
	}

	s.logAudit(ctx, "order_status", "order", saved.ID, fmt.Sprintf("status=%s->%s", original.Status, saved.Status))
	s.invalidateMetrics(ctx)
	return *saved, nil
}

func checkCancellable(order *domain.Order) error {
	if order.DeliveryStatus == domain.DeliveryDelivered {
		return fmt.Errorf("%w: order was already delivered", store.ErrConflict)
	}
	if order.Status == domain.OrderStatusCompleted || order.Status == domain.OrderStatusCancelled {
		return fmt.Errorf("%w: order is already %s", store.ErrConflict, order.Status)
	}
	return nil
}

// cancelOrder moves an order into its cancelled state. Stock and money are
// only released once that state is stored, see releaseOrder.
func cancelOrder(order *domain.Order) {
	order.Status = domain.OrderStatusCancelled
	switch {
	case order.PaymentMethod == domain.PaymentWallet && order.PaymentStatus == domain.PaymentStatusPaid:
		order.PaymentStatus = domain.PaymentStatusRefunded
	case order.PaymentStatus == domain.PaymentStatusPending:
		order.PaymentStatus = domain.PaymentStatusFailed
	}
	if order.DeliveryStatus != domain.DeliveryNotRequired {
		order.DeliveryStatus = domain.DeliveryCancelled
	}
}

// releaseOrder returns reserved stock and refunds a settled wallet payment
// after the cancellation has been stored.
func (s *Service) releaseOrder(ctx context.Context, before, after domain.Order) {
	for _, item := range before.Items {
		if _, err := s.repo.AdjustStock(ctx, item.ProductID, item.Quantity); err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Error().Err(err).
				Str("order_id", before.ID).
				Str("product_id", item.ProductID).
				Int("quantity", item.Quantity).
				Msg("failed to restock cancelled order")
		}
	}
	if before.PaymentStatus == domain.PaymentStatusPaid && after.PaymentStatus == domain.PaymentStatusRefunded {
		s.refundWallet(ctx, before.CustomerUsername, before.Total, before.ID)
	}
}

func (s *Service) UpdateDeliveryStatus(ctx context.Context, id string, req domain.DeliveryStatusRequest) (domain.Order, error) {
	if _, err := s.authorize(ctx, rbac.PermDeliveryUpdate); err != nil {
		return domain.Order{}, err
	}
	if err := s.validateRequest(req); err != nil {
		return domain.Order{}, err
	}

	order, err := s.repo.GetOrder(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Order{}, err
	}
	if order.DeliveryStatus == domain.DeliveryNotRequired {
		return domain.Order{}, fmt.Errorf("%w: order has no delivery", store.ErrConflict)
	}
	if order.Status == domain.OrderStatusCancelled || order.DeliveryStatus == domain.DeliveryCancelled {
		return domain.Order{}, fmt.Errorf("%w: order is cancelled", store.ErrConflict)
	}
	original := *order

	if req.DeliveryStatus == domain.DeliveryCancelled {
		if err := checkCancellable(order); err != nil {
			return domain.Order{}, err
		}
		cancelOrder(order)
	} else {
		if deliveryRank[req.DeliveryStatus] <= deliveryRank[order.DeliveryStatus] {
			return domain.Order{}, fmt.Errorf("%w: delivery cannot move from %s to %s", store.ErrConflict, order.DeliveryStatus, req.DeliveryStatus)
		}
		order.DeliveryStatus = req.DeliveryStatus
		switch {
		case req.DeliveryStatus == domain.DeliveryDelivered && order.PaymentStatus == domain.PaymentStatusPaid:
			order.Status = domain.OrderStatusCompleted
		case order.Status == domain.OrderStatusPlaced:
			order.Status = domain.OrderStatusProcessing
		}
	}
	order.UpdatedAt = s.now()

	saved, err := s.repo.UpdateOrder(ctx, *order, store.StateOf(original))
	if err != nil {
		return domain.Order{}, err
	}

	s.logAudit(ctx, "delivery_status", "order", saved.ID, fmt.Sprintf("delivery=%s->%s", original.DeliveryStatus, saved.DeliveryStatus))
	if saved.Status == domain.OrderStatusCancelled {
		s.releaseOrder(ctx, original, *saved)
		s.invalidateMetrics(ctx)
	}
	return *saved, nil
}

// VerifyPayment settles or rejects a pending card or cash-on-delivery payment.
func (s *Service) VerifyPayment(ctx context.Context, id string, req domain.VerifyPaymentRequest) (domain.Order, error) {
	if _, err := s.authorize(ctx, rbac.PermPaymentsVerify); err != nil {
		return domain.Order{}, err
	}
	if err := s.validateRequest(req); err != nil {
		return domain.Order{}, err
	}

	order, err := s.repo.GetOrder(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Order{}, err
	}
	if order.PaymentStatus != domain.PaymentStatusPending {
		return domain.Order{}, fmt.Errorf("%w: payment is %s", store.ErrConflict, order.PaymentStatus)
	}
	if order.Status == domain.OrderStatusCancelled {
		return domain.Order{}, fmt.Errorf("%w: order is cancelled", store.ErrConflict)
	}

	if ref := strings.TrimSpace(req.Reference); ref != "" {
		order.PaymentReference = ref
	}
	expected := store.StateOf(*order)
	if req.Approved {
		order.PaymentStatus = domain.PaymentStatusPaid
		if order.DeliveryStatus == domain.DeliveryNotRequired || order.DeliveryStatus == domain.DeliveryDelivered {
			order.Status = domain.OrderStatusCompleted
		}
	} else {
		order.PaymentStatus = domain.PaymentStatusFailed
	}
	order.UpdatedAt = s.now()

	saved, err := s.repo.UpdateOrder(ctx, *order, expected)
	if err != nil {
		return domain.Order{}, err
	}

	s.logAudit(ctx, "payment_verify", "order", saved.ID, fmt.Sprintf("approved=%t,method=%s,reference=%s", req.Approved, saved.PaymentMethod, saved.PaymentReference))
	s.invalidateMetrics(ctx)
	return *saved, nil
}

func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	if _, err := s.authorize(ctx, rbac.PermOrdersDelete); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if err := s.repo.DeleteOrder(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "order_delete", "order", id, "")
	s.invalidateMetrics(ctx)
	return nil
}

func (s *Service) refundWallet(ctx context.Context, username string, amount float64, reference string) {
	if _, err := s.repo.ApplyWalletTransaction(ctx, domain.WalletTransaction{
		Username:  username,
		Type:      domain.WalletRefund,
		Amount:    amount,
		Reference: reference,
		CreatedAt: s.now(),
	}); err != nil {
		log.Error().Err(err).
			Str("username", username).
			Str("reference", reference).
			Float64("amount", amount).
			Msg("failed to refund wallet")
	}
}
