package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kopipos/backend/internal/cart"
	"kopipos/backend/internal/domain"
	"kopipos/backend/internal/store"
	"kopipos/backend/internal/xid"
)

var (
	ErrUnauthorized        = errors.New("admin role required")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrStaffUnassigned     = errors.New("cart line has no assigned staff")
	ErrInsufficientPayment = errors.New("cash received below total")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// RequireAdmin is the single role gate for admin-scoped operations.
func RequireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Actor{}, ErrUnauthorized
	}
	return actor, nil
}

type Service struct {
	repo  store.Repository
	carts cart.Store
}

func New(repo store.Repository, carts cart.Store) *Service {
	if carts == nil {
		carts = cart.NewMemoryStore()
	}
	return &Service{repo: repo, carts: carts}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		Actor:      actor.Username,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if _, err := RequireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

// settingOrDefault reads a setting, falling back to its default when the key
// has never been written.
func (s *Service) settingOrDefault(ctx context.Context, key, fallback string) string {
	value, err := s.repo.GetSetting(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("[service] WARN: failed to read setting %s: %v", key, err)
		}
		return fallback
	}
	return value
}

func (s *Service) taxRate(ctx context.Context) decimal.Decimal {
	raw := s.settingOrDefault(ctx, domain.SettingTaxRate, domain.DefaultTaxRate)
	rate, err := decimal.NewFromString(raw)
	if err != nil || rate.IsNegative() {
		rate, _ = decimal.NewFromString(domain.DefaultTaxRate)
	}
	return rate
}

func (s *Service) lowStockThreshold(ctx context.Context) int {
	raw := s.settingOrDefault(ctx, domain.SettingLowStockThreshold, domain.DefaultLowStockThreshold)
	threshold, err := strconv.Atoi(raw)
	if err != nil || threshold < 0 {
		threshold, _ = strconv.Atoi(domain.DefaultLowStockThreshold)
	}
	return threshold
}

// effectiveThreshold prefers the product's own reorder threshold and falls
// back to the global setting for products that never set one.
func effectiveThreshold(p domain.Product, global int) int {
	if p.ReorderThreshold > 0 {
		return p.ReorderThreshold
	}
	return global
}

func (s *Service) GetSettings(ctx context.Context) (map[string]string, error) {
	return map[string]string{
		domain.SettingTaxRate:           s.settingOrDefault(ctx, domain.SettingTaxRate, domain.DefaultTaxRate),
		domain.SettingLowStockThreshold: s.settingOrDefault(ctx, domain.SettingLowStockThreshold, domain.DefaultLowStockThreshold),
	}, nil
}

func (s *Service) UpdateSetting(ctx context.Context, key, value string) error {
	if _, err := RequireAdmin(ctx); err != nil {
		return err
	}

	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	switch key {
	case domain.SettingTaxRate:
		rate, err := decimal.NewFromString(value)
		if err != nil || rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
			return store.ErrInvalidInput
		}
	case domain.SettingLowStockThreshold:
		threshold, err := strconv.Atoi(value)
		if err != nil || threshold < 0 {
			return store.ErrInvalidInput
		}
	default:
		return store.ErrInvalidInput
	}

	if err := s.repo.SetSetting(ctx, key, value); err != nil {
		return err
	}
	s.logAudit(ctx, "setting_update", "setting", key, value)
	return nil
}

func validCommissionConfig(mode string, rate, amount decimal.Decimal) bool {
	switch mode {
	case domain.CommissionModePercentage:
		return !rate.IsNegative() && !rate.GreaterThan(decimal.NewFromInt(100))
	case domain.CommissionModeFixed:
		return !amount.IsNegative()
	default:
		return false
	}
}

func parseExpiry(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(domain.DateFormat, raw)
	if err != nil {
		return nil, store.ErrInvalidInput
	}
	return &t, nil
}

func (s *Service) ListProducts(ctx context.Context, category string) ([]domain.ProductView, error) {
	products, err := s.repo.ListProducts(ctx, strings.TrimSpace(category))
	if err != nil {
		return nil, err
	}

	global := s.lowStockThreshold(ctx)
	views := make([]domain.ProductView, 0, len(products))
	for _, p := range products {
		views = append(views, domain.ProductView{
			Product:  p,
			LowStock: p.Quantity <= effectiveThreshold(p, global),
		})
	}
	return views, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := RequireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.Unit = strings.TrimSpace(req.Unit)
	if req.Name == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.Unit == "" {
		req.Unit = "pcs"
	}
	if req.InitialQuantity < 0 || req.ReorderThreshold < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.CostPrice.IsNegative() || req.SellingPrice.IsNegative() {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.CommissionMode == "" {
		req.CommissionMode = domain.CommissionModePercentage
	}
	if !validCommissionConfig(req.CommissionMode, req.CommissionRate, req.CommissionAmount) {
		return domain.Product{}, store.ErrInvalidInput
	}
	expiry, err := parseExpiry(req.ExpiryDate)
	if err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		Name:             req.Name,
		Category:         req.Category,
		Unit:             req.Unit,
		CostPrice:        req.CostPrice,
		SellingPrice:     req.SellingPrice,
		CommissionMode:   req.CommissionMode,
		CommissionRate:   req.CommissionRate,
		CommissionAmount: req.CommissionAmount,
		ReorderThreshold: req.ReorderThreshold,
		Supplier:         strings.TrimSpace(req.Supplier),
		ExpiryDate:       expiry,
		Active:           true,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	// Opening stock arrives through the ledger like any other receipt.
	if req.InitialQuantity > 0 {
		actor, _ := ActorFromContext(ctx)
		created, err = s.repo.AdjustStock(ctx, created.ID, req.InitialQuantity, domain.StockMovement{
			ProductID: created.ID,
			Kind:      domain.MovementIn,
			Quantity:  req.InitialQuantity,
			Reason:    "initial stock",
			Actor:     actor.Username,
		})
		if err != nil {
			return domain.Product{}, err
		}
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%s,qty=%d", created.Name, created.SellingPrice, created.Quantity))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := RequireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.Unit != nil {
		unit := strings.TrimSpace(*req.Unit)
		if unit == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Unit = unit
	}
	if req.CostPrice != nil {
		if req.CostPrice.IsNegative() {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.CostPrice = *req.CostPrice
	}
	if req.SellingPrice != nil {
		if req.SellingPrice.IsNegative() {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.SellingPrice = *req.SellingPrice
	}
	if req.CommissionMode != nil {
		updated.CommissionMode = *req.CommissionMode
	}
	if req.CommissionRate != nil {
		updated.CommissionRate = *req.CommissionRate
	}
	if req.CommissionAmount != nil {
		updated.CommissionAmount = *req.CommissionAmount
	}
	if !validCommissionConfig(updated.CommissionMode, updated.CommissionRate, updated.CommissionAmount) {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.ReorderThreshold != nil {
		if *req.ReorderThreshold < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.ReorderThreshold = *req.ReorderThreshold
	}
	if req.Supplier != nil {
		updated.Supplier = strings.TrimSpace(*req.Supplier)
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("name=%s,price=%s,active=%t", saved.Name, saved.SellingPrice, saved.Active))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if _, err := RequireAdmin(ctx); err != nil {
		return err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrInvalidInput
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}

	s.logAudit(ctx, "product_delete", "product", id, "")
	return nil
}

// AdjustStock applies a manual stock change and appends the matching ledger
// entry. For kind=adjustment the request carries the new absolute quantity;
// the recorded movement holds the magnitude of the correction under the
// direction it actually moved, in or out.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) (domain.StockAdjustResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.StockAdjustResponse{}, ErrUnauthorized
	}

	req.ProductID = strings.TrimSpace(req.ProductID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.ProductID == "" {
		return domain.StockAdjustResponse{}, store.ErrInvalidInput
	}

	var delta int
	switch req.Kind {
	case domain.MovementIn:
		if req.Quantity < 1 {
			return domain.StockAdjustResponse{}, store.ErrInvalidInput
		}
		delta = req.Quantity
	case domain.MovementOut, domain.MovementDisposal:
		if req.Quantity < 1 {
			return domain.StockAdjustResponse{}, store.ErrInvalidInput
		}
		delta = -req.Quantity
	case domain.MovementAdjustment:
		if req.Quantity < 0 {
			return domain.StockAdjustResponse{}, store.ErrInvalidInput
		}
		existing, err := s.repo.GetProduct(ctx, req.ProductID)
		if err != nil {
			return domain.StockAdjustResponse{}, err
		}
		delta = req.Quantity - existing.Quantity
		if delta == 0 {
			return domain.StockAdjustResponse{}, store.ErrInvalidInput
		}
	default:
		return domain.StockAdjustResponse{}, store.ErrInvalidInput
	}

	magnitude := delta
	if magnitude < 0 {
		magnitude = -magnitude
	}
	movementKind := req.Kind
	if req.Kind == domain.MovementAdjustment {
		if delta > 0 {
			movementKind = domain.MovementIn
		} else {
			movementKind = domain.MovementOut
		}
	}
	movement := domain.StockMovement{
		ID:        xid.New("mv"),
		ProductID: req.ProductID,
		Kind:      movementKind,
		Quantity:  magnitude,
		Reason:    req.Reason,
		Actor:     actor.Username,
		CreatedAt: time.Now().UTC(),
	}

	updated, err := s.repo.AdjustStock(ctx, req.ProductID, delta, movement)
	if err != nil {
		return domain.StockAdjustResponse{}, err
	}

	resp := domain.StockAdjustResponse{Product: *updated, Movement: movement}
	if threshold := effectiveThreshold(*updated, s.lowStockThreshold(ctx)); updated.Quantity <= threshold {
		resp.Warning = &domain.LowStockAlert{
			ProductID: updated.ID,
			Name:      updated.Name,
			Remaining: updated.Quantity,
			Threshold: threshold,
		}
	}

	s.logAudit(ctx, "stock_adjust", "product", req.ProductID, fmt.Sprintf("kind=%s,qty=%d,reason=%s", req.Kind, req.Quantity, req.Reason))
	return resp, nil
}

func (s *Service) ListMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	return s.repo.ListMovements(ctx, strings.TrimSpace(productID), limit)
}
