package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable inventory item. Quantity is only ever changed through
// stock movements so the movement ledger stays a complete audit trail.
type Product struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Category         string          `json:"category"`
	Quantity         int             `json:"quantity"`
	Unit             string          `json:"unit"`
	CostPrice        decimal.Decimal `json:"cost_price"`
	SellingPrice     decimal.Decimal `json:"selling_price"`
	CommissionMode   string          `json:"commission_mode"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	ReorderThreshold int             `json:"reorder_threshold"`
	Supplier         string          `json:"supplier,omitempty"`
	ExpiryDate       *time.Time      `json:"expiry_date,omitempty"`
	Active           bool            `json:"active"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name             string          `json:"name"`
	Category         string          `json:"category"`
	InitialQuantity  int             `json:"initial_quantity"`
	Unit             string          `json:"unit"`
	CostPrice        decimal.Decimal `json:"cost_price"`
	SellingPrice     decimal.Decimal `json:"selling_price"`
	CommissionMode   string          `json:"commission_mode"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	ReorderThreshold int             `json:"reorder_threshold"`
	Supplier         string          `json:"supplier"`
	ExpiryDate       string          `json:"expiry_date"`
}

type ProductUpdateRequest struct {
	Name             *string          `json:"name,omitempty"`
	Category         *string          `json:"category,omitempty"`
	Unit             *string          `json:"unit,omitempty"`
	CostPrice        *decimal.Decimal `json:"cost_price,omitempty"`
	SellingPrice     *decimal.Decimal `json:"selling_price,omitempty"`
	CommissionMode   *string          `json:"commission_mode,omitempty"`
	CommissionRate   *decimal.Decimal `json:"commission_rate,omitempty"`
	CommissionAmount *decimal.Decimal `json:"commission_amount,omitempty"`
	ReorderThreshold *int             `json:"reorder_threshold,omitempty"`
	Supplier         *string          `json:"supplier,omitempty"`
	Active           *bool            `json:"active,omitempty"`
}

// ProductView is a Product plus the low-stock flag computed against the
// configured alert threshold.
type ProductView struct {
	Product
	LowStock bool `json:"low_stock"`
}

// StockMovement is an append-only audit entry for a quantity change.
// Quantity is always the positive magnitude of the change; Kind carries the
// direction. Rows are never updated; they are removed only when their product
// is deleted.
type StockMovement struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Kind      string    `json:"kind"`
	Quantity  int       `json:"quantity"`
	Reason    string    `json:"reason"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

type StockAdjustRequest struct {
	ProductID string `json:"product_id"`
	Kind      string `json:"kind"`
	// Quantity is the positive delta for in/out/disposal, or the new
	// absolute quantity for kind=adjustment.
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason"`
}

type StockAdjustResponse struct {
	Product  Product        `json:"product"`
	Movement StockMovement  `json:"movement"`
	Warning  *LowStockAlert `json:"warning,omitempty"`
}

// CartLine is one staged checkout entry. Name and UnitPrice are snapshots
// taken when the line was added; the checkout re-reads live product state.
type CartLine struct {
	ProductID     string          `json:"product_id"`
	Name          string          `json:"name"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Quantity      int             `json:"quantity"`
	AssignedStaff string          `json:"assigned_staff"`
}

// Cart is the per-login-session staging area for a checkout. It survives
// across requests and is cleared on successful checkout.
type Cart struct {
	SessionID string     `json:"session_id"`
	Lines     []CartLine `json:"lines"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type CartLineRequest struct {
	ProductID     string `json:"product_id"`
	Quantity      int    `json:"quantity"`
	AssignedStaff string `json:"assigned_staff"`
}

// Sale is a completed checkout. Immutable once created.
type Sale struct {
	ID              string          `json:"id"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	TaxRate         decimal.Decimal `json:"tax_rate"`
	Tax             decimal.Decimal `json:"tax"`
	Total           decimal.Decimal `json:"total"`
	CashReceived    decimal.Decimal `json:"cash_received"`
	Change          decimal.Decimal `json:"change"`
	StaffOfRecord   string          `json:"staff_of_record"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	CreatedAt       time.Time       `json:"created_at"`
	Items           []SaleItem      `json:"items"`
}

// SaleItem snapshots the product's name, price and commission configuration
// as of sale time, so later product edits never rewrite history.
type SaleItem struct {
	ID               string          `json:"id"`
	SaleID           string          `json:"sale_id"`
	ProductID        string          `json:"product_id"`
	ProductName      string          `json:"product_name"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	Quantity         int             `json:"quantity"`
	CommissionMode   string          `json:"commission_mode"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	AssignedStaff    string          `json:"assigned_staff"`
	LineSubtotal     decimal.Decimal `json:"line_subtotal"`
	Commission       decimal.Decimal `json:"commission"`
}

type CheckoutRequest struct {
	CashReceived decimal.Decimal `json:"cash_received"`
}

type LowStockAlert struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Remaining int    `json:"remaining"`
	Threshold int    `json:"threshold"`
}

type Receipt struct {
	Sale     Sale            `json:"sale"`
	Warnings []LowStockAlert `json:"warnings,omitempty"`
}

// Settlement is the per-calendar-day cash reconciliation row. Date is a
// "2006-01-02" string and unique. Actual and Discrepancy stay nil until the
// day is settled.
type Settlement struct {
	Date        string           `json:"date"`
	CashFloat   decimal.Decimal  `json:"cash_float"`
	CashSales   decimal.Decimal  `json:"cash_sales"`
	Expected    decimal.Decimal  `json:"expected"`
	Actual      *decimal.Decimal `json:"actual,omitempty"`
	Discrepancy *decimal.Decimal `json:"discrepancy,omitempty"`
	Status      string           `json:"status"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type SetCashFloatRequest struct {
	Date      string          `json:"date"`
	CashFloat decimal.Decimal `json:"cash_float"`
}

type SettleUpRequest struct {
	Date       string          `json:"date"`
	ActualCash decimal.Decimal `json:"actual_cash"`
}

type SettlementResponse struct {
	Settlement Settlement `json:"settlement"`
	Warning    string     `json:"warning,omitempty"`
}

// Setting is one key/value configuration entry (tax rate, low-stock
// threshold). Missing keys read as their defaults.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type SalesSummary struct {
	From            string          `json:"from"`
	To              string          `json:"to"`
	TotalSales      decimal.Decimal `json:"total_sales"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	Transactions    int64           `json:"transactions"`
}

type ProductSales struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	Amount    decimal.Decimal `json:"amount"`
}

type StaffSales struct {
	Staff           string          `json:"staff"`
	TotalSales      decimal.Decimal `json:"total_sales"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	Transactions    int64           `json:"transactions"`
}

// StaffProductSales breaks sales down per assigned staff member and product.
// Commission is recomputed from each line's own snapshot, never from the
// current product configuration.
type StaffProductSales struct {
	Staff      string          `json:"staff"`
	ProductID  string          `json:"product_id"`
	Name       string          `json:"name"`
	Quantity   int64           `json:"quantity"`
	Amount     decimal.Decimal `json:"amount"`
	Commission decimal.Decimal `json:"commission"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor identifies the authenticated caller. SessionID scopes the cart: each
// login gets a fresh session and therefore a fresh cart.
type Actor struct {
	Username  string
	Role      string
	SessionID string
}

// UserAccount is the persistence model for a staff member. CommissionRate is
// stored and editable but intentionally not consulted by checkout math; line
// commissions come from the per-product snapshot only.
type UserAccount struct {
	Username       string          `json:"username"`
	Password       string          `json:"-"`
	Role           string          `json:"role"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
	Detail         *StaffDetail    `json:"detail,omitempty"`
}

type StaffDetail struct {
	EmployeeID string `json:"employee_id"`
	HireDate   string `json:"hire_date"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
}

type StaffCreateRequest struct {
	Username string       `json:"username"`
	Password string       `json:"password"`
	Role     string       `json:"role"`
	Detail   *StaffDetail `json:"detail,omitempty"`
}

type StaffCommissionUpdateRequest struct {
	CommissionRate decimal.Decimal `json:"commission_rate"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	Actor      string    `json:"actor"`
	ActorRole  string    `json:"actor_role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	CommissionModePercentage = "percentage"
	CommissionModeFixed      = "fixed_amount"
)

const (
	MovementIn         = "in"
	MovementOut        = "out"
	MovementDisposal   = "disposal"
	MovementAdjustment = "adjustment"
)

const (
	SettlementFloatSet = "float-set"
	SettlementSettled  = "settled"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

const (
	SettingTaxRate           = "tax_rate"
	SettingLowStockThreshold = "low_stock_threshold"

	DefaultTaxRate           = "10"
	DefaultLowStockThreshold = "5"
)

// DateFormat is the calendar-day key used by settlements and reports.
const DateFormat = "2006-01-02"
