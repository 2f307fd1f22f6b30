package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kopipos/backend/internal/domain"
	"kopipos/backend/internal/store"
	"kopipos/backend/internal/xid"
)

func (s *Service) sessionCart(ctx context.Context) (domain.Actor, *domain.Cart, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.SessionID == "" {
		return domain.Actor{}, nil, ErrUnauthorized
	}
	c, err := s.carts.Get(ctx, actor.SessionID)
	if err != nil {
		return domain.Actor{}, nil, err
	}
	return actor, c, nil
}

func (s *Service) GetCart(ctx context.Context) (domain.Cart, error) {
	_, c, err := s.sessionCart(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	return *c, nil
}

// SetCartLine adds or replaces the line for the product. Quantity 0 removes
// the line. Name and price are snapshotted for display; checkout re-reads
// live product state.
func (s *Service) SetCartLine(ctx context.Context, req domain.CartLineRequest) (domain.Cart, error) {
	actor, c, err := s.sessionCart(ctx)
	if err != nil {
		return domain.Cart{}, err
	}

	req.ProductID = strings.TrimSpace(req.ProductID)
	req.AssignedStaff = strings.TrimSpace(req.AssignedStaff)
	if req.ProductID == "" || req.Quantity < 0 {
		return domain.Cart{}, store.ErrInvalidInput
	}

	if req.Quantity == 0 {
		return s.RemoveCartLine(ctx, req.ProductID)
	}

	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return domain.Cart{}, err
	}
	if !product.Active {
		return domain.Cart{}, store.ErrInvalidInput
	}
	if req.AssignedStaff == "" {
		req.AssignedStaff = actor.Username
	}

	line := domain.CartLine{
		ProductID:     product.ID,
		Name:          product.Name,
		UnitPrice:     product.SellingPrice,
		Quantity:      req.Quantity,
		AssignedStaff: req.AssignedStaff,
	}

	replaced := false
	for i := range c.Lines {
		if c.Lines[i].ProductID == line.ProductID {
			c.Lines[i] = line
			replaced = true
			break
		}
	}
	if !replaced {
		c.Lines = append(c.Lines, line)
	}

	if err := s.carts.Save(ctx, c); err != nil {
		return domain.Cart{}, err
	}
	return *c, nil
}

func (s *Service) RemoveCartLine(ctx context.Context, productID string) (domain.Cart, error) {
	_, c, err := s.sessionCart(ctx)
	if err != nil {
		return domain.Cart{}, err
	}

	productID = strings.TrimSpace(productID)
	kept := c.Lines[:0]
	for _, line := range c.Lines {
		if line.ProductID != productID {
			kept = append(kept, line)
		}
	}
	c.Lines = kept

	if err := s.carts.Save(ctx, c); err != nil {
		return domain.Cart{}, err
	}
	return *c, nil
}

func (s *Service) ClearCart(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.SessionID == "" {
		return ErrUnauthorized
	}
	return s.carts.Clear(ctx, actor.SessionID)
}

// lineCommission computes one line's commission from its snapshot fields.
// Percentage mode takes its cut of the line subtotal; fixed mode pays the
// configured amount per unit. Rounded per line so re-summing stored lines
// reproduces the stored transaction total exactly.
func lineCommission(mode string, rate, amount decimal.Decimal, lineSubtotal decimal.Decimal, qty int) decimal.Decimal {
	switch mode {
	case domain.CommissionModePercentage:
		return lineSubtotal.Mul(rate).Div(decimal.NewFromInt(100)).Round(2)
	case domain.CommissionModeFixed:
		return amount.Mul(decimal.NewFromInt(int64(qty))).Round(2)
	default:
		return decimal.Zero
	}
}

// Checkout turns the session cart into an immutable sale. Pricing and
// commission come from live product state, not the cart snapshot; the stock
// decrement, ledger entries and sale insert commit atomically in the store.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.Receipt, error) {
	actor, c, err := s.sessionCart(ctx)
	if err != nil {
		return domain.Receipt{}, err
	}
	if len(c.Lines) == 0 {
		return domain.Receipt{}, ErrEmptyCart
	}

	ids := make([]string, 0, len(c.Lines))
	for _, line := range c.Lines {
		if line.AssignedStaff == "" {
			return domain.Receipt{}, ErrStaffUnassigned
		}
		if line.Quantity < 1 {
			return domain.Receipt{}, store.ErrInvalidInput
		}
		ids = append(ids, line.ProductID)
	}

	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.Receipt{}, err
	}

	subtotal := decimal.Zero
	totalCommission := decimal.Zero
	items := make([]domain.SaleItem, 0, len(c.Lines))
	movements := make([]domain.StockMovement, 0, len(c.Lines))
	now := time.Now().UTC()

	for _, line := range c.Lines {
		product, exists := products[line.ProductID]
		if !exists {
			return domain.Receipt{}, store.ErrNotFound
		}
		if !product.Active {
			return domain.Receipt{}, store.ErrInvalidInput
		}

		lineSubtotal := product.SellingPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		commission := lineCommission(product.CommissionMode, product.CommissionRate, product.CommissionAmount, lineSubtotal, line.Quantity)

		items = append(items, domain.SaleItem{
			ID:               xid.New("li"),
			ProductID:        product.ID,
			ProductName:      product.Name,
			UnitPrice:        product.SellingPrice,
			Quantity:         line.Quantity,
			CommissionMode:   product.CommissionMode,
			CommissionRate:   product.CommissionRate,
			CommissionAmount: product.CommissionAmount,
			AssignedStaff:    line.AssignedStaff,
			LineSubtotal:     lineSubtotal,
			Commission:       commission,
		})
		movements = append(movements, domain.StockMovement{
			ID:        xid.New("mv"),
			ProductID: product.ID,
			Kind:      domain.MovementOut,
			Quantity:  line.Quantity,
			Reason:    "sale",
			Actor:     actor.Username,
			CreatedAt: now,
		})

		subtotal = subtotal.Add(lineSubtotal)
		totalCommission = totalCommission.Add(commission)
	}

	taxRate := s.taxRate(ctx)
	tax := subtotal.Mul(taxRate).Div(decimal.NewFromInt(100)).Round(2)
	total := subtotal.Add(tax)

	if req.CashReceived.LessThan(total) {
		return domain.Receipt{}, ErrInsufficientPayment
	}
	change := req.CashReceived.Sub(total)

	sale := domain.Sale{
		ID:              xid.New("sale"),
		Subtotal:        subtotal,
		TaxRate:         taxRate,
		Tax:             tax,
		Total:           total,
		CashReceived:    req.CashReceived,
		Change:          change,
		StaffOfRecord:   actor.Username,
		TotalCommission: totalCommission,
		CreatedAt:       now,
		Items:           items,
	}

	created, err := s.repo.CreateSale(ctx, sale, movements)
	if err != nil {
		return domain.Receipt{}, err
	}

	receipt := domain.Receipt{Sale: *created}

	// Warnings and cart cleanup happen after the commit; the sale stands
	// regardless of what happens here.
	global := s.lowStockThreshold(ctx)
	after, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		log.Printf("[service] WARN: failed to re-read stock after sale %s: %v", created.ID, err)
	} else {
		seen := make(map[string]bool, len(after))
		for _, line := range c.Lines {
			product, exists := after[line.ProductID]
			if !exists || seen[line.ProductID] {
				continue
			}
			seen[line.ProductID] = true
			if threshold := effectiveThreshold(product, global); product.Quantity <= threshold {
				receipt.Warnings = append(receipt.Warnings, domain.LowStockAlert{
					ProductID: product.ID,
					Name:      product.Name,
					Remaining: product.Quantity,
					Threshold: threshold,
				})
			}
		}
	}

	if err := s.carts.Clear(ctx, actor.SessionID); err != nil {
		log.Printf("[service] WARN: failed to clear cart for session %s: %v", actor.SessionID, err)
	}

	s.logAudit(ctx, "checkout", "sale", created.ID, fmt.Sprintf("total=%s,items=%d,commission=%s", created.Total, len(created.Items), created.TotalCommission))
	return receipt, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, from, to string, limit int) ([]domain.Sale, error) {
	from, to, err := normalizeRange(from, to)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, from, to, limit)
}
