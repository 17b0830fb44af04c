package domain

import "time"

type Product struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Category      string    `json:"category" db:"category"`
	Description   string    `json:"description" db:"description"`
	Unit          string    `json:"unit" db:"unit"`
	Price         float64   `json:"price" db:"price"`
	PurchasePrice *float64  `json:"purchasePrice" db:"purchase_price"`
	Stock         int       `json:"stock" db:"stock"`
	IsActive      bool      `json:"isActive" db:"is_active"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// UnitCost returns the purchase price, or zero when it is unknown.
func (p Product) UnitCost() float64 {
	if p.PurchasePrice == nil {
		return 0
	}
	return *p.PurchasePrice
}

type ProductCreateRequest struct {
	Name          string  `json:"name" validate:"required,max=120"`
	Category      string  `json:"category" validate:"required,max=60"`
	Description   string  `json:"description" validate:"max=1000"`
	Unit          string  `json:"unit" validate:"max=20"`
	Price         float64 `json:"price" validate:"gt=0"`
	PurchasePrice float64 `json:"purchasePrice" validate:"gte=0"`
	InitialStock  int     `json:"initialStock" validate:"gte=0"`
}

type ProductUpdateRequest struct {
	Name          *string  `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Category      *string  `json:"category,omitempty" validate:"omitempty,min=1,max=60"`
	Description   *string  `json:"description,omitempty" validate:"omitempty,max=1000"`
	Unit          *string  `json:"unit,omitempty" validate:"omitempty,max=20"`
	Price         *float64 `json:"price,omitempty" validate:"omitempty,gt=0"`
	PurchasePrice *float64 `json:"purchasePrice,omitempty" validate:"omitempty,gte=0"`
	IsActive      *bool    `json:"isActive,omitempty"`
}

type StockAdjustRequest struct {
	Delta  int    `json:"delta" validate:"ne=0"`
	Reason string `json:"reason" validate:"max=200"`
}

type OrderItem struct {
	ProductID string  `json:"productId" db:"product_id"`
	Name      string  `json:"name" db:"name"`
	Quantity  int     `json:"quantity" db:"quantity"`
	Price     float64 `json:"price" db:"price"`
}

type Order struct {
	ID               string      `json:"id" db:"id"`
	CustomerUsername string      `json:"customerUsername" db:"customer_username"`
	Channel          string      `json:"channel" db:"channel"`
	Items            []OrderItem `json:"items" db:"-"`
	Total            float64     `json:"total" db:"total"`
	PaymentMethod    string      `json:"paymentMethod" db:"payment_method"`
	PaymentReference string      `json:"paymentReference,omitempty" db:"payment_reference"`
	PaymentStatus    string      `json:"paymentStatus" db:"payment_status"`
	DeliveryStatus   string      `json:"deliveryStatus" db:"delivery_status"`
	Status           string      `json:"status" db:"status"`
	DeliveryAddress  string      `json:"deliveryAddress,omitempty" db:"delivery_address"`
	CreatedAt        time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time   `json:"updatedAt" db:"updated_at"`
}

type CartItem struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type CreateOrderRequest struct {
	Channel          string     `json:"channel" validate:"omitempty,oneof=storefront pos"`
	CustomerUsername string     `json:"customerUsername,omitempty" validate:"max=64"`
	PaymentMethod    string     `json:"paymentMethod" validate:"required,oneof=cash card wallet cod"`
	PaymentReference string     `json:"paymentReference,omitempty" validate:"max=120"`
	DeliveryAddress  string     `json:"deliveryAddress,omitempty" validate:"max=300"`
	Items            []CartItem `json:"items" validate:"required,min=1,dive"`
}

type OrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=placed processing completed cancelled"`
}

type DeliveryStatusRequest struct {
	DeliveryStatus string `json:"deliveryStatus" validate:"required,oneof=pending packed out_for_delivery delivered cancelled"`
}

type VerifyPaymentRequest struct {
	Reference string `json:"reference" validate:"max=120"`
	Approved  bool   `json:"approved"`
}

type FinancialSummary struct {
	TotalRevenue      *float64 `json:"totalRevenue"`
	TotalCost         *float64 `json:"totalCost"`
	TotalProfit       *float64 `json:"totalProfit"`
	ProfitMargin      *float64 `json:"profitMargin"`
	ROI               *float64 `json:"roi"`
	AverageOrderValue float64  `json:"averageOrderValue"`
	TotalOrders       int      `json:"totalOrders"`
	TotalItems        int      `json:"totalItems"`
}

type ProductMetrics struct {
	ProductID    string   `json:"productId"`
	Name         string   `json:"name"`
	Category     string   `json:"category"`
	UnitsSold    int      `json:"unitsSold"`
	TotalRevenue *float64 `json:"totalRevenue"`
	TotalCost    *float64 `json:"totalCost"`
	TotalProfit  *float64 `json:"totalProfit"`
	ProfitMargin *float64 `json:"profitMargin"`
	ROI          *float64 `json:"roi"`
}

type CategoryMetrics struct {
	Category     string   `json:"category"`
	UnitsSold    int      `json:"unitsSold"`
	TotalRevenue *float64 `json:"totalRevenue"`
	TotalCost    *float64 `json:"totalCost"`
	TotalProfit  *float64 `json:"totalProfit"`
	ProfitMargin *float64 `json:"profitMargin"`
	ROI          *float64 `json:"roi"`
}

type FinancialMetrics struct {
	Days        int               `json:"days"`
	From        time.Time         `json:"from"`
	To          time.Time         `json:"to"`
	GeneratedAt time.Time         `json:"generatedAt"`
	Summary     *FinancialSummary `json:"summary"`
	Products    []ProductMetrics  `json:"products"`
	Categories  []CategoryMetrics `json:"categories"`
}

type DashboardOverview struct {
	TotalOrders       int      `json:"totalOrders"`
	PendingOrders     int      `json:"pendingOrders"`
	PendingDeliveries int      `json:"pendingDeliveries"`
	PendingPayments   int      `json:"pendingPayments"`
	ActiveProducts    int      `json:"activeProducts"`
	LowStockProducts  int      `json:"lowStockProducts"`
	TotalRevenue      *float64 `json:"totalRevenue"`
	TotalCost         *float64 `json:"totalCost"`
	TotalProfit       *float64 `json:"totalProfit"`
	ProfitMargin      *float64 `json:"profitMargin"`
	ROI               *float64 `json:"roi"`
}

type Expense struct {
	ID          string    `json:"id" db:"id"`
	Category    string    `json:"category" db:"category"`
	Description string    `json:"description" db:"description"`
	Amount      float64   `json:"amount" db:"amount"`
	IncurredAt  time.Time `json:"incurredAt" db:"incurred_at"`
	RecordedBy  string    `json:"recordedBy" db:"recorded_by"`
}

type ExpenseCreateRequest struct {
	Category    string     `json:"category" validate:"required,max=60"`
	Description string     `json:"description" validate:"max=300"`
	Amount      float64    `json:"amount" validate:"gt=0"`
	IncurredAt  *time.Time `json:"incurredAt,omitempty"`
}

type VendorBill struct {
	ID          string     `json:"id" db:"id"`
	VendorName  string     `json:"vendorName" db:"vendor_name"`
	Description string     `json:"description" db:"description"`
	Amount      float64    `json:"amount" db:"amount"`
	DueDate     time.Time  `json:"dueDate" db:"due_date"`
	Status      string     `json:"status" db:"status"`
	CreatedBy   string     `json:"createdBy" db:"created_by"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	PaidAt      *time.Time `json:"paidAt,omitempty" db:"paid_at"`
}

type VendorBillCreateRequest struct {
	VendorName  string  `json:"vendorName" validate:"required,max=120"`
	Description string  `json:"description" validate:"max=300"`
	Amount      float64 `json:"amount" validate:"gt=0"`
	DueDate     string  `json:"dueDate" validate:"required,datetime=2006-01-02"`
}

type WalletTransaction struct {
	ID           string    `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Type         string    `json:"type" db:"type"`
	Amount       float64   `json:"amount" db:"amount"`
	BalanceAfter float64   `json:"balanceAfter" db:"balance_after"`
	Reference    string    `json:"reference,omitempty" db:"reference"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

type WalletResponse struct {
	Username     string              `json:"username"`
	Balance      float64             `json:"balance"`
	Transactions []WalletTransaction `json:"transactions"`
}

type WalletAmountRequest struct {
	Amount    float64 `json:"amount" validate:"gt=0"`
	Reference string  `json:"reference" validate:"max=120"`
}

type RecurringPayment struct {
	ID           string    `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Description  string    `json:"description" db:"description"`
	Amount       float64   `json:"amount" db:"amount"`
	Interval     string    `json:"interval" db:"interval"`
	NextRunAt    time.Time `json:"nextRunAt" db:"next_run_at"`
	Active       bool      `json:"active" db:"active"`
	FailureCount int       `json:"failureCount" db:"failure_count"`
	LastError    string    `json:"lastError,omitempty" db:"last_error"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

type RecurringPaymentCreateRequest struct {
	Description string     `json:"description" validate:"required,max=200"`
	Amount      float64    `json:"amount" validate:"gt=0"`
	Interval    string     `json:"interval" validate:"required,oneof=weekly monthly"`
	StartAt     *time.Time `json:"startAt,omitempty"`
}

type RecurringRunResult struct {
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	FailedIDs []string `json:"failedIds,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	Role        Role   `json:"role"`
	ExpiresAt   string `json:"expiresAt"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type User struct {
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string    `db:"username"`
	Password  string    `db:"password_hash"`
	Role      Role      `db:"role"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
}

type Actor struct {
	Username string
	Role     Role
}

// Capabilities is what a client needs to decide which screens to render.
type Capabilities struct {
	Username               string   `json:"username"`
	Role                   Role     `json:"role"`
	CanAccessFinancialData bool     `json:"canAccessFinancialData"`
	Permissions            []string `json:"permissions"`
}

type AuditLog struct {
	ID            string    `json:"id" db:"id"`
	ActorUsername string    `json:"actorUsername" db:"actor_username"`
	ActorRole     string    `json:"actorRole" db:"actor_role"`
	Action        string    `json:"action" db:"action"`
	EntityType    string    `json:"entityType" db:"entity_type"`
	EntityID      string    `json:"entityId" db:"entity_id"`
	Detail        string    `json:"detail" db:"detail"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}

const (
	ChannelStorefront = "storefront"
	ChannelPOS        = "pos"
)

const (
	PaymentCash   = "cash"
	PaymentCard   = "card"
	PaymentWallet = "wallet"
	PaymentCOD    = "cod"
)

const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

const (
	DeliveryNotRequired    = "not_required"
	DeliveryPending        = "pending"
	DeliveryPacked         = "packed"
	DeliveryOutForDelivery = "out_for_delivery"
	DeliveryDelivered      = "delivered"
	DeliveryCancelled      = "cancelled"
)

const (
	OrderStatusPlaced     = "placed"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
)

const (
	VendorBillUnpaid = "unpaid"
	VendorBillPaid   = "paid"
)

const (
	WalletDeposit    = "deposit"
	WalletWithdrawal = "withdrawal"
	WalletPayment    = "payment"
	WalletRefund     = "refund"
)

const (
	IntervalWeekly  = "weekly"
	IntervalMonthly = "monthly"
)
