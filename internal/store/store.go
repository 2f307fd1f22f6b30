package store

import (
	"context"
	"errors"

	"kopipos/backend/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound                 = errors.New("not found")
	ErrInvalidInput             = errors.New("invalid input")
	ErrInsufficientStock        = errors.New("insufficient stock")
	ErrDuplicateName            = errors.New("duplicate name")
	ErrProductInUse             = errors.New("product referenced by sales")
	ErrSettlementNotInitialized = errors.New("cash float not set")
)

type Repository interface {
	ListProducts(ctx context.Context, category string) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	// AdjustStock applies the signed delta to the product quantity and appends
	// the movement in one transaction. The movement's Quantity must already be
	// the positive magnitude of delta.
	AdjustStock(ctx context.Context, productID string, delta int, movement domain.StockMovement) (*domain.Product, error)
	ListMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error)

	// CreateSale verifies stock for every line under a row lock, decrements,
	// appends one out-movement per line and inserts the sale with its items.
	// Any failure leaves no partial writes.
	CreateSale(ctx context.Context, sale domain.Sale, movements []domain.StockMovement) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, from, to string, limit int) ([]domain.Sale, error)

	GetSettlement(ctx context.Context, date string) (*domain.Settlement, error)
	// UpsertCashFloat creates or overwrites the day's settlement row with the
	// given float and the recomputed cash-sales total.
	UpsertCashFloat(ctx context.Context, date string, cashFloat decimal.Decimal) (*domain.Settlement, error)
	// SettleUp records the counted cash against an existing float-set row.
	// Returns ErrSettlementNotInitialized when no float was set for the date.
	SettleUp(ctx context.Context, date string, actual decimal.Decimal) (*domain.Settlement, error)
	ListSettlements(ctx context.Context, from, to string) ([]domain.Settlement, error)

	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	UpdateUserCommission(ctx context.Context, username string, rate decimal.Decimal) (*domain.UserAccount, error)
	// DeleteUser removes the account and its detail row; historical sale
	// attribution keeps the username string.
	DeleteUser(ctx context.Context, username string) error

	SalesSummary(ctx context.Context, from, to string) (*domain.SalesSummary, error)
	TopProducts(ctx context.Context, from, to string, limit int) ([]domain.ProductSales, error)
	SalesByStaff(ctx context.Context, from, to string) ([]domain.StaffSales, error)
	SalesByStaffProduct(ctx context.Context, from, to string) ([]domain.StaffProductSales, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)

	// ResetOperationalData purges sales, movements, settlements and audit logs
	// while keeping products, users and settings.
	ResetOperationalData(ctx context.Context) error
}
