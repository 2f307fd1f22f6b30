package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"kopipos/backend/internal/cart"
	"kopipos/backend/internal/domain"
	"kopipos/backend/internal/store"
	"kopipos/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), cart.NewMemoryStore())
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		Username:  "admin",
		Role:      domain.RoleAdmin,
		SessionID: "sess-admin",
	})
}

func staffCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		Username:  "sari",
		Role:      domain.RoleStaff,
		SessionID: "sess-sari",
	})
}

func mustDecimal(t *testing.T, raw string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(raw)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", raw, err)
	}
	return d
}

func addLine(t *testing.T, svc *Service, ctx context.Context, productID string, qty int, staff string) {
	t.Helper()
	_, err := svc.SetCartLine(ctx, domain.CartLineRequest{
		ProductID:     productID,
		Quantity:      qty,
		AssignedStaff: staff,
	})
	if err != nil {
		t.Fatalf("set cart line failed: %v", err)
	}
}

func TestCheckoutComputesTotalsAndCommission(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	// 2 x 300 coffee at 10% tax and 2.5% commission.
	addLine(t, svc, ctx, "prod-kopi-tubruk", 2, "sari")

	receipt, err := svc.Checkout(ctx, domain.CheckoutRequest{CashReceived: decimal.NewFromInt(1000)})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	sale := receipt.Sale
	if !sale.Subtotal.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("expected subtotal 600, got %s", sale.Subtotal)
	}
	if !sale.Tax.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("expected tax 60, got %s", sale.Tax)
	}
	if !sale.Total.Equal(decimal.NewFromInt(660)) {
		t.Fatalf("expected total 660, got %s", sale.Total)
	}
	if !sale.Change.Equal(decimal.NewFromInt(340)) {
		t.Fatalf("expected change 340, got %s", sale.Change)
	}
	if !sale.TotalCommission.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("expected commission 15, got %s", sale.TotalCommission)
	}
	if sale.StaffOfRecord != "sari" {
		t.Fatalf("expected staff of record sari, got %s", sale.StaffOfRecord)
	}
	if len(sale.Items) != 1 {
		t.Fatalf("expected 1 sale item, got %d", len(sale.Items))
	}
	item := sale.Items[0]
	if item.ProductName != "Kopi Tubruk" || item.AssignedStaff != "sari" {
		t.Fatalf("unexpected item snapshot: %+v", item)
	}
	if !item.Commission.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("expected line commission 15, got %s", item.Commission)
	}

	product, err := svc.GetProduct(ctx, "prod-kopi-tubruk")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.Quantity != 48 {
		t.Fatalf("expected stock 48 after sale, got %d", product.Quantity)
	}

	movements, err := svc.ListMovements(ctx, "prod-kopi-tubruk", 10)
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	if len(movements) != 1 {
		t.Fatalf("expected exactly 1 movement, got %d", len(movements))
	}
	if movements[0].Kind != domain.MovementOut || movements[0].Quantity != 2 || movements[0].Reason != "sale" {
		t.Fatalf("unexpected sale movement: %+v", movements[0])
	}

	c, err := svc.GetCart(ctx)
	if err != nil {
		t.Fatalf("get cart failed: %v", err)
	}
	if len(c.Lines) != 0 {
		t.Fatalf("expected cart cleared after checkout, got %d lines", len(c.Lines))
	}
}

func TestCheckoutFixedCommissionPerUnit(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	// Teh Tarik pays a fixed 10 per unit.
	addLine(t, svc, ctx, "prod-teh-tarik", 3, "sari")

	receipt, err := svc.Checkout(ctx, domain.CheckoutRequest{CashReceived: decimal.NewFromInt(2000)})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if !receipt.Sale.TotalCommission.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected commission 30, got %s", receipt.Sale.TotalCommission)
	}
}

func TestCheckoutInsufficientPaymentWritesNothing(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	addLine(t, svc, ctx, "prod-kopi-tubruk", 2, "sari")

	_, err := svc.Checkout(ctx, domain.CheckoutRequest{CashReceived: decimal.NewFromInt(100)})
	if !errors.Is(err, ErrInsufficientPayment) {
		t.Fatalf("expected ErrInsufficientPayment, got %v", err)
	}

	product, err := svc.GetProduct(ctx, "prod-kopi-tubruk")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.Quantity != 50 {
		t.Fatalf("expected stock unchanged at 50, got %d", product.Quantity)
	}

	c, err := svc.GetCart(ctx)
	if err != nil {
		t.Fatalf("get cart failed: %v", err)
	}
	if len(c.Lines) != 1 {
		t.Fatalf("expected cart intact after failed checkout, got %d lines", len(c.Lines))
	}
}

func TestCheckoutInsufficientStockWritesNothing(t *testing.T) {
	svc := newTestService()
	admin := adminCtx()

	// Correct stock down to 3 so a 5-cup order cannot be filled.
	if _, err := svc.AdjustStock(admin, domain.StockAdjustRequest{
		ProductID: "prod-kopi-tubruk",
		Kind:      domain.MovementAdjustment,
		Quantity:  3,
		Reason:    "count",
	}); err != nil {
		t.Fatalf("adjust stock failed: %v", err)
	}

	ctx := staffCtx()
	addLine(t, svc, ctx, "prod-kopi-tubruk", 5, "sari")

	_, err := svc.Checkout(ctx, domain.CheckoutRequest{CashReceived: decimal.NewFromInt(10000)})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if !strings.Contains(err.Error(), "Kopi Tubruk") {
		t.Fatalf("expected error to name the blocking product, got %q", err)
	}

	product, err := svc.GetProduct(ctx, "prod-kopi-tubruk")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.Quantity != 3 {
		t.Fatalf("expected stock unchanged at 3, got %d", product.Quantity)
	}

	sales, err := svc.ListSales(ctx, "", "", 10)
	if err != nil {
		t.Fatalf("list sales failed: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("expected no sales recorded, got %d", len(sales))
	}
}

func TestConcurrentCheckoutsDoNotOversell(t *testing.T) {
	svc := newTestService()

	// Only 3 in stock; two sessions each want 2.
	if _, err := svc.AdjustStock(adminCtx(), domain.StockAdjustRequest{
		ProductID: "prod-kopi-tubruk",
		Kind:      domain.MovementAdjustment,
		Quantity:  3,
		Reason:    "count",
	}); err != nil {
		t.Fatalf("adjust stock failed: %v", err)
	}

	ctxA := WithActor(context.Background(), domain.Actor{Username: "sari", Role: domain.RoleStaff, SessionID: "sess-a"})
	ctxB := WithActor(context.Background(), domain.Actor{Username: "sari", Role: domain.RoleStaff, SessionID: "sess-b"})
	addLine(t, svc, ctxA, "prod-kopi-tubruk", 2, "sari")
	addLine(t, svc, ctxB, "prod-kopi-tubruk", 2, "sari")

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, ctx := range []context.Context{ctxA, ctxB} {
		wg.Add(1)
		go func(i int, ctx context.Context) {
			defer wg.Done()
			_, results[i] = svc.Checkout(ctx, domain.CheckoutRequest{CashReceived: decimal.NewFromInt(10000)})
		}(i, ctx)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrInsufficientStock):
			rejected++
		default:
			t.Fatalf("unexpected checkout error: %v", err)
		}
	}
	if succeeded != 1 || rejected != 1 {
		t.Fatalf("expected exactly one sale, got %d sales and %d rejections", succeeded, rejected)
	}

	product, err := svc.GetProduct(ctxA, "prod-kopi-tubruk")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.Quantity != 1 {
		t.Fatalf("expected 1 left in stock, got %d", product.Quantity)
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	svc := newTestService()

	_, err := svc.Checkout(staffCtx(), domain.CheckoutRequest{CashReceived: decimal.NewFromInt(1000)})
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestCheckoutLowStockWarning(t *testing.T) {
	svc := newTestService()
	admin := adminCtx()

	if _, err := svc.AdjustStock(admin, domain.StockAdjustRequest{
		ProductID: "prod-kopi-tubruk",
		Kind:      domain.MovementAdjustment,
		Quantity:  6,
		Reason:    "count",
	}); err != nil {
		t.Fatalf("adjust stock failed: %v", err)
	}

	ctx := staffCtx()
	addLine(t, svc, ctx, "prod-kopi-tubruk", 2, "sari")

	receipt, err := svc.Checkout(ctx, domain.CheckoutRequest{CashReceived: decimal.NewFromInt(1000)})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if len(receipt.Warnings) != 1 {
		t.Fatalf("expected 1 low-stock warning, got %d", len(receipt.Warnings))
	}
	if receipt.Warnings[0].Remaining != 4 || receipt.Warnings[0].Threshold != 5 {
		t.Fatalf("unexpected warning: %+v", receipt.Warnings[0])
	}
}

func TestCartsAreSessionScoped(t *testing.T) {
	svc := newTestService()

	addLine(t, svc, staffCtx(), "prod-kopi-tubruk", 1, "sari")

	other := WithActor(context.Background(), domain.Actor{
		Username:  "sari",
		Role:      domain.RoleStaff,
		SessionID: "sess-other",
	})
	c, err := svc.GetCart(other)
	if err != nil {
		t.Fatalf("get cart failed: %v", err)
	}
	if len(c.Lines) != 0 {
		t.Fatalf("expected empty cart for fresh session, got %d lines", len(c.Lines))
	}
}

func TestAdjustStockLedger(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	resp, err := svc.AdjustStock(ctx, domain.StockAdjustRequest{
		ProductID: "prod-kopi-tubruk",
		Kind:      domain.MovementIn,
		Quantity:  10,
		Reason:    "delivery",
	})
	if err != nil {
		t.Fatalf("stock in failed: %v", err)
	}
	if resp.Product.Quantity != 60 {
		t.Fatalf("expected quantity 60, got %d", resp.Product.Quantity)
	}
	if resp.Movement.Kind != domain.MovementIn || resp.Movement.Quantity != 10 {
		t.Fatalf("unexpected movement: %+v", resp.Movement)
	}

	// Adjustment carries the new absolute quantity; the ledger records the
	// magnitude of the correction under the direction it moved.
	resp, err = svc.AdjustStock(ctx, domain.StockAdjustRequest{
		ProductID: "prod-kopi-tubruk",
		Kind:      domain.MovementAdjustment,
		Quantity:  5,
		Reason:    "stocktake",
	})
	if err != nil {
		t.Fatalf("adjustment failed: %v", err)
	}
	if resp.Product.Quantity != 5 {
		t.Fatalf("expected quantity 5, got %d", resp.Product.Quantity)
	}
	if resp.Movement.Kind != domain.MovementOut || resp.Movement.Quantity != 55 {
		t.Fatalf("expected out movement of 55, got %+v", resp.Movement)
	}
	if resp.Warning == nil {
		t.Fatalf("expected low-stock warning at quantity 5")
	}

	movements, err := svc.ListMovements(ctx, "prod-kopi-tubruk", 10)
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	if len(movements) != 2 {
		t.Fatalf("expected 2 movements, got %d", len(movements))
	}
}

func TestAdjustmentRecordsDirectionalKind(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	// Seeded at 50; counting down to 45 is stock leaving.
	resp, err := svc.AdjustStock(ctx, domain.StockAdjustRequest{
		ProductID: "prod-kopi-tubruk",
		Kind:      domain.MovementAdjustment,
		Quantity:  45,
		Reason:    "stocktake",
	})
	if err != nil {
		t.Fatalf("downward adjustment failed: %v", err)
	}
	if resp.Movement.Kind != domain.MovementOut || resp.Movement.Quantity != 5 {
		t.Fatalf("expected out movement of 5, got %+v", resp.Movement)
	}

	// Counting back up to 52 is stock arriving.
	resp, err = svc.AdjustStock(ctx, domain.StockAdjustRequest{
		ProductID: "prod-kopi-tubruk",
		Kind:      domain.MovementAdjustment,
		Quantity:  52,
		Reason:    "stocktake",
	})
	if err != nil {
		t.Fatalf("upward adjustment failed: %v", err)
	}
	if resp.Movement.Kind != domain.MovementIn || resp.Movement.Quantity != 7 {
		t.Fatalf("expected in movement of 7, got %+v", resp.Movement)
	}
}

func TestAdjustStockCannotGoNegative(t *testing.T) {
	svc := newTestService()

	_, err := svc.AdjustStock(adminCtx(), domain.StockAdjustRequest{
		ProductID: "prod-kopi-tubruk",
		Kind:      domain.MovementOut,
		Quantity:  1000,
		Reason:    "spill",
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestProductCreateRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(staffCtx(), domain.ProductCreateRequest{
		Name:         "Kopi Hitam",
		SellingPrice: decimal.NewFromInt(250),
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestProductDuplicateName(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name:         "Kopi Tubruk",
		SellingPrice: decimal.NewFromInt(250),
	})
	if !errors.Is(err, store.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestProductDeleteBlockedAfterSale(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	addLine(t, svc, ctx, "prod-kopi-tubruk", 1, "sari")
	if _, err := svc.Checkout(ctx, domain.CheckoutRequest{CashReceived: decimal.NewFromInt(1000)}); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	err := svc.DeleteProduct(adminCtx(), "prod-kopi-tubruk")
	if !errors.Is(err, store.ErrProductInUse) {
		t.Fatalf("expected ErrProductInUse, got %v", err)
	}
}

func TestProductDeleteRemovesMovements(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	if _, err := svc.AdjustStock(ctx, domain.StockAdjustRequest{
		ProductID: "prod-roti-bakar",
		Kind:      domain.MovementIn,
		Quantity:  5,
		Reason:    "delivery",
	}); err != nil {
		t.Fatalf("adjust stock failed: %v", err)
	}

	if err := svc.DeleteProduct(ctx, "prod-roti-bakar"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	movements, err := svc.ListMovements(ctx, "prod-roti-bakar", 10)
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	if len(movements) != 0 {
		t.Fatalf("expected movements removed with product, got %d", len(movements))
	}
}

func TestSettlementLifecycle(t *testing.T) {
	svc := newTestService()
	admin := adminCtx()

	// Zero the tax so totals land on round numbers.
	if err := svc.UpdateSetting(admin, domain.SettingTaxRate, "0"); err != nil {
		t.Fatalf("update setting failed: %v", err)
	}
	created, err := svc.CreateProduct(admin, domain.ProductCreateRequest{
		Name:            "Nasi Goreng",
		Category:        "food",
		InitialQuantity: 10,
		SellingPrice:    decimal.NewFromInt(12500),
		CommissionMode:  domain.CommissionModePercentage,
	})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}

	ctx := staffCtx()
	addLine(t, svc, ctx, created.ID, 2, "sari")
	if _, err := svc.Checkout(ctx, domain.CheckoutRequest{CashReceived: decimal.NewFromInt(25000)}); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	settlement, err := svc.SetCashFloat(admin, domain.SetCashFloatRequest{CashFloat: decimal.NewFromInt(10000)})
	if err != nil {
		t.Fatalf("set cash float failed: %v", err)
	}
	if !settlement.CashSales.Equal(decimal.NewFromInt(25000)) {
		t.Fatalf("expected cash sales 25000, got %s", settlement.CashSales)
	}
	if !settlement.Expected.Equal(decimal.NewFromInt(35000)) {
		t.Fatalf("expected drawer total 35000, got %s", settlement.Expected)
	}
	if settlement.Status != domain.SettlementFloatSet {
		t.Fatalf("expected status float-set, got %s", settlement.Status)
	}

	resp, err := svc.SettleUp(admin, domain.SettleUpRequest{ActualCash: decimal.NewFromInt(34500)})
	if err != nil {
		t.Fatalf("settle up failed: %v", err)
	}
	if resp.Settlement.Discrepancy == nil || !resp.Settlement.Discrepancy.Equal(mustDecimal(t, "-500")) {
		t.Fatalf("expected discrepancy -500, got %v", resp.Settlement.Discrepancy)
	}
	if resp.Settlement.Status != domain.SettlementSettled {
		t.Fatalf("expected status settled, got %s", resp.Settlement.Status)
	}
	if resp.Warning == "" {
		t.Fatalf("expected discrepancy warning")
	}

	// Settling again with the matching count is an idempotent overwrite.
	resp, err = svc.SettleUp(admin, domain.SettleUpRequest{ActualCash: decimal.NewFromInt(35000)})
	if err != nil {
		t.Fatalf("second settle up failed: %v", err)
	}
	if resp.Settlement.Discrepancy == nil || !resp.Settlement.Discrepancy.IsZero() {
		t.Fatalf("expected zero discrepancy, got %v", resp.Settlement.Discrepancy)
	}
	if resp.Warning != "" {
		t.Fatalf("expected no warning on exact count, got %q", resp.Warning)
	}
}

func TestSettleUpRequiresFloat(t *testing.T) {
	svc := newTestService()

	_, err := svc.SettleUp(adminCtx(), domain.SettleUpRequest{ActualCash: decimal.NewFromInt(100)})
	if !errors.Is(err, store.ErrSettlementNotInitialized) {
		t.Fatalf("expected ErrSettlementNotInitialized, got %v", err)
	}
}

func TestSetCashFloatReentrant(t *testing.T) {
	svc := newTestService()
	admin := adminCtx()

	first, err := svc.SetCashFloat(admin, domain.SetCashFloatRequest{CashFloat: decimal.NewFromInt(5000)})
	if err != nil {
		t.Fatalf("set cash float failed: %v", err)
	}
	if !first.Expected.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("expected 5000, got %s", first.Expected)
	}

	second, err := svc.SetCashFloat(admin, domain.SetCashFloatRequest{CashFloat: decimal.NewFromInt(8000)})
	if err != nil {
		t.Fatalf("second set cash float failed: %v", err)
	}
	if !second.CashFloat.Equal(decimal.NewFromInt(8000)) {
		t.Fatalf("expected float overwritten to 8000, got %s", second.CashFloat)
	}
}

func TestReportsSplitByAssignedStaff(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	// One transaction, two lines assigned to different staff members.
	addLine(t, svc, ctx, "prod-kopi-tubruk", 2, "sari")
	addLine(t, svc, ctx, "prod-teh-tarik", 1, "budi")
	if _, err := svc.Checkout(ctx, domain.CheckoutRequest{CashReceived: decimal.NewFromInt(5000)}); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	summary, err := svc.SalesSummary(ctx, "", "")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if summary.Transactions != 1 {
		t.Fatalf("expected 1 transaction, got %d", summary.Transactions)
	}
	// subtotal 850, tax 85, commission 15 + 10
	if !summary.TotalSales.Equal(decimal.NewFromInt(935)) {
		t.Fatalf("expected total sales 935, got %s", summary.TotalSales)
	}
	if !summary.TotalCommission.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("expected total commission 25, got %s", summary.TotalCommission)
	}

	byStaff, err := svc.SalesByStaff(ctx, "", "")
	if err != nil {
		t.Fatalf("sales by staff failed: %v", err)
	}
	if len(byStaff) != 1 || byStaff[0].Staff != "sari" {
		t.Fatalf("expected one staff-of-record row for sari, got %+v", byStaff)
	}

	rows, err := svc.SalesByStaffProduct(ctx, "", "")
	if err != nil {
		t.Fatalf("sales by staff/product failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 staff/product rows, got %d", len(rows))
	}
	// Sorted by staff: budi first.
	if rows[0].Staff != "budi" || !rows[0].Commission.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected budi row: %+v", rows[0])
	}
	if rows[1].Staff != "sari" || !rows[1].Commission.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("unexpected sari row: %+v", rows[1])
	}

	top, err := svc.TopProducts(ctx, "", "")
	if err != nil {
		t.Fatalf("top products failed: %v", err)
	}
	if len(top) != 2 || top[0].Name != "Kopi Tubruk" {
		t.Fatalf("expected Kopi Tubruk on top, got %+v", top)
	}
}

func TestReportsEmptyRange(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	summary, err := svc.SalesSummary(ctx, "2020-01-01", "2020-01-31")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if summary.Transactions != 0 || !summary.TotalSales.IsZero() {
		t.Fatalf("expected zero summary, got %+v", summary)
	}

	top, err := svc.TopProducts(ctx, "2020-01-01", "2020-01-31")
	if err != nil {
		t.Fatalf("top products failed: %v", err)
	}
	if len(top) != 0 {
		t.Fatalf("expected no products, got %d", len(top))
	}
}

func TestSettingsDefaultsAndValidation(t *testing.T) {
	svc := newTestService()
	admin := adminCtx()

	settings, err := svc.GetSettings(admin)
	if err != nil {
		t.Fatalf("get settings failed: %v", err)
	}
	if settings[domain.SettingTaxRate] != "10" {
		t.Fatalf("expected default tax rate 10, got %s", settings[domain.SettingTaxRate])
	}
	if settings[domain.SettingLowStockThreshold] != "5" {
		t.Fatalf("expected default threshold 5, got %s", settings[domain.SettingLowStockThreshold])
	}

	if err := svc.UpdateSetting(admin, domain.SettingTaxRate, "120"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for tax rate 120, got %v", err)
	}
	if err := svc.UpdateSetting(admin, "unknown_key", "1"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown key, got %v", err)
	}
	if err := svc.UpdateSetting(staffCtx(), domain.SettingTaxRate, "11"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for staff, got %v", err)
	}

	if err := svc.UpdateSetting(admin, domain.SettingTaxRate, "11"); err != nil {
		t.Fatalf("update setting failed: %v", err)
	}
	settings, _ = svc.GetSettings(admin)
	if settings[domain.SettingTaxRate] != "11" {
		t.Fatalf("expected tax rate 11, got %s", settings[domain.SettingTaxRate])
	}
}

func TestStaffAdministration(t *testing.T) {
	svc := newTestService()
	admin := adminCtx()

	created, err := svc.CreateStaff(admin, domain.StaffCreateRequest{
		Username: "Budi",
		Password: "rahasia1",
		Detail:   &domain.StaffDetail{EmployeeID: "EMP-003", Phone: "0812"},
	})
	if err != nil {
		t.Fatalf("create staff failed: %v", err)
	}
	if created.Username != "budi" || created.Role != domain.RoleStaff {
		t.Fatalf("unexpected staff: %+v", created)
	}
	if created.Password != "" {
		t.Fatalf("password must not leak in responses")
	}
	if created.Detail == nil || created.Detail.EmployeeID != "EMP-003" {
		t.Fatalf("expected staff detail persisted, got %+v", created.Detail)
	}

	updated, err := svc.UpdateStaffCommission(admin, "budi", domain.StaffCommissionUpdateRequest{
		CommissionRate: mustDecimal(t, "3.5"),
	})
	if err != nil {
		t.Fatalf("update commission failed: %v", err)
	}
	if !updated.CommissionRate.Equal(mustDecimal(t, "3.5")) {
		t.Fatalf("expected commission rate 3.5, got %s", updated.CommissionRate)
	}

	if _, err := svc.ListStaff(staffCtx()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for staff listing, got %v", err)
	}

	if err := svc.DeleteStaff(admin, "admin"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected self-delete to be rejected, got %v", err)
	}
	if err := svc.DeleteStaff(admin, "budi"); err != nil {
		t.Fatalf("delete staff failed: %v", err)
	}
}

func TestStaffDeletionKeepsSaleAttribution(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	addLine(t, svc, ctx, "prod-kopi-tubruk", 1, "sari")
	if _, err := svc.Checkout(ctx, domain.CheckoutRequest{CashReceived: decimal.NewFromInt(1000)}); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	if err := svc.DeleteStaff(adminCtx(), "sari"); err != nil {
		t.Fatalf("delete staff failed: %v", err)
	}

	byStaff, err := svc.SalesByStaff(ctx, "", "")
	if err != nil {
		t.Fatalf("sales by staff failed: %v", err)
	}
	if len(byStaff) != 1 || byStaff[0].Staff != "sari" {
		t.Fatalf("expected historical attribution to survive, got %+v", byStaff)
	}
}

func TestResetOperationalData(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()

	addLine(t, svc, ctx, "prod-kopi-tubruk", 1, "sari")
	if _, err := svc.Checkout(ctx, domain.CheckoutRequest{CashReceived: decimal.NewFromInt(1000)}); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	if err := svc.ResetOperationalData(staffCtx()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := svc.ResetOperationalData(adminCtx()); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	sales, err := svc.ListSales(ctx, "", "", 10)
	if err != nil {
		t.Fatalf("list sales failed: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("expected sales purged, got %d", len(sales))
	}

	// Catalog and accounts survive the reset.
	products, err := svc.ListProducts(ctx, "")
	if err != nil {
		t.Fatalf("list products failed: %v", err)
	}
	if len(products) == 0 {
		t.Fatalf("expected products to survive reset")
	}
}
