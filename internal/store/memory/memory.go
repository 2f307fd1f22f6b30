package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"kopipos/backend/internal/domain"
	"kopipos/backend/internal/store"
	"kopipos/backend/internal/xid"
)

// Store is the in-memory Repository used by unit tests and DB-less dev runs.
// It enforces the same invariants as the postgres implementation.
type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	movements       []domain.StockMovement
	salesByID       map[string]*domain.Sale
	saleOrder       []string
	settlements     map[string]domain.Settlement
	settings        map[string]string
	usersByUsername map[string]domain.UserAccount
	auditLogs       []domain.AuditLog
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		movements:       make([]domain.StockMovement, 0, 128),
		salesByID:       make(map[string]*domain.Sale),
		saleOrder:       make([]string, 0, 128),
		settlements:     make(map[string]domain.Settlement),
		settings:        make(map[string]string),
		usersByUsername: make(map[string]domain.UserAccount),
		auditLogs:       make([]domain.AuditLog, 0, 128),
	}
}

// seedUsers builds the initial user accounts for dev/demo mode. Credentials
// come from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; hardcoded dev
// defaults are used with a warning when unset. Never used in production (the
// backend runs on PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"sari", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	products := []domain.Product{
		{ID: "prod-kopi-tubruk", Name: "Kopi Tubruk", Category: "coffee", Quantity: 50, Unit: "cup",
			CostPrice: decimal.NewFromInt(120), SellingPrice: decimal.NewFromInt(300),
			CommissionMode: domain.CommissionModePercentage, CommissionRate: decimal.NewFromFloat(2.5),
			ReorderThreshold: 5, Active: true},
		{ID: "prod-es-kopi-susu", Name: "Es Kopi Susu", Category: "coffee", Quantity: 40, Unit: "cup",
			CostPrice: decimal.NewFromInt(180), SellingPrice: decimal.NewFromInt(450),
			CommissionMode: domain.CommissionModePercentage, CommissionRate: decimal.NewFromInt(3),
			ReorderThreshold: 5, Active: true},
		{ID: "prod-teh-tarik", Name: "Teh Tarik", Category: "tea", Quantity: 35, Unit: "cup",
			CostPrice: decimal.NewFromInt(100), SellingPrice: decimal.NewFromInt(250),
			CommissionMode: domain.CommissionModeFixed, CommissionAmount: decimal.NewFromInt(10),
			ReorderThreshold: 5, Active: true},
		{ID: "prod-roti-bakar", Name: "Roti Bakar", Category: "snack", Quantity: 20, Unit: "plate",
			CostPrice: decimal.NewFromInt(150), SellingPrice: decimal.NewFromInt(350),
			CommissionMode: domain.CommissionModeFixed, CommissionAmount: decimal.NewFromInt(15),
			ReorderThreshold: 4, Active: true},
		{ID: "prod-pisang-goreng", Name: "Pisang Goreng", Category: "snack", Quantity: 25, Unit: "plate",
			CostPrice: decimal.NewFromInt(90), SellingPrice: decimal.NewFromInt(200),
			CommissionMode: domain.CommissionModePercentage, CommissionRate: decimal.NewFromInt(2),
			ReorderThreshold: 5, Active: true},
	}
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}
	s.usersByUsername = seedUsers()
	return s
}

func cloneProduct(p domain.Product) domain.Product {
	if p.ExpiryDate != nil {
		e := *p.ExpiryDate
		p.ExpiryDate = &e
	}
	return p
}

func cloneSale(sale *domain.Sale) *domain.Sale {
	copySale := *sale
	copySale.Items = slices.Clone(sale.Items)
	return &copySale
}

func cloneSettlement(st domain.Settlement) domain.Settlement {
	if st.Actual != nil {
		a := *st.Actual
		st.Actual = &a
	}
	if st.Discrepancy != nil {
		d := *st.Discrepancy
		st.Discrepancy = &d
	}
	return st
}

func cloneUser(u domain.UserAccount) domain.UserAccount {
	if u.Detail != nil {
		d := *u.Detail
		u.Detail = &d
	}
	return u
}

func (s *Store) ListProducts(_ context.Context, category string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if category != "" && p.Category != category {
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

	p, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := cloneProduct(p)
	return &copyProduct, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, exists := s.products[id]; exists {
			result[id] = cloneProduct(p)
		}
	}
	return result, nil
}

func (s *Store) findByName(name string) (string, bool) {
	for id, p := range s.products {
		if strings.EqualFold(p.Name, name) {
			return id, true
		}
	}
	return "", false
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.findByName(product.Name); exists {
		return nil, store.ErrDuplicateName
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	s.products[product.ID] = product
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if otherID, taken := s.findByName(product.Name); taken && otherID != product.ID {
		return nil, store.ErrDuplicateName
	}

	product.Quantity = existing.Quantity
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	updated := cloneProduct(product)
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	for _, sale := range s.salesByID {
		for _, item := range sale.Items {
			if item.ProductID == id {
				return store.ErrProductInUse
			}
		}
	}

	delete(s.products, id)
	kept := s.movements[:0]
	for _, m := range s.movements {
		if m.ProductID != id {
			kept = append(kept, m)
		}
	}
	s.movements = kept
	return nil
}

func (s *Store) AdjustStock(_ context.Context, productID string, delta int, movement domain.StockMovement) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.products[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if p.Quantity+delta < 0 {
		return nil, store.ErrInsufficientStock
	}

	p.Quantity += delta
	p.UpdatedAt = time.Now().UTC()
	s.products[productID] = p

	if movement.ID == "" {
		movement.ID = xid.New("mv")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	movement.ProductID = productID
	s.movements = append(s.movements, movement)

	updated := cloneProduct(p)
	return &updated, nil
}

func (s *Store) ListMovements(_ context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	movements := make([]domain.StockMovement, 0, limit)
	for i := len(s.movements) - 1; i >= 0 && len(movements) < limit; i-- {
		m := s.movements[i]
		if productID != "" && m.ProductID != productID {
			continue
		}
		movements = append(movements, m)
	}
	return movements, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale, movements []domain.StockMovement) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	needed := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		if item.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
		needed[item.ProductID] += item.Quantity
	}
	for id, qty := range needed {
		p, exists := s.products[id]
		if !exists {
			return nil, store.ErrNotFound
		}
		if !p.Active {
			return nil, store.ErrInvalidInput
		}
		if p.Quantity < qty {
			return nil, fmt.Errorf("%w: %s", store.ErrInsufficientStock, p.Name)
		}
	}

	// All checks passed; apply everything. Nothing below can fail, which is
	// what keeps this atomic without a transaction.
	now := time.Now().UTC()
	for id, qty := range needed {
		p := s.products[id]
		p.Quantity -= qty
		p.UpdatedAt = now
		s.products[id] = p
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	for i := range sale.Items {
		if sale.Items[i].ID == "" {
			sale.Items[i].ID = xid.New("li")
		}
		sale.Items[i].SaleID = sale.ID
	}

	for _, m := range movements {
		if m.ID == "" {
			m.ID = xid.New("mv")
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = sale.CreatedAt
		}
		s.movements = append(s.movements, m)
	}

	saved := cloneSale(&sale)
	s.salesByID[sale.ID] = saved
	s.saleOrder = append(s.saleOrder, sale.ID)

	result := cloneSale(saved)
	return result, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func saleInRange(sale *domain.Sale, from, to string) bool {
	day := sale.CreatedAt.Format(domain.DateFormat)
	return day >= from && day <= to
}

func (s *Store) ListSales(_ context.Context, from, to string, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	sales := make([]domain.Sale, 0, limit)
	for i := len(s.saleOrder) - 1; i >= 0 && len(sales) < limit; i-- {
		sale := s.salesByID[s.saleOrder[i]]
		if !saleInRange(sale, from, to) {
			continue
		}
		sales = append(sales, *cloneSale(sale))
	}
	return sales, nil
}

func (s *Store) GetSettlement(_ context.Context, date string) (*domain.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.settlements[date]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySt := cloneSettlement(st)
	return &copySt, nil
}

func (s *Store) cashSalesForDateLocked(date string) decimal.Decimal {
	total := decimal.Zero
	for _, sale := range s.salesByID {
		if sale.CreatedAt.Format(domain.DateFormat) == date {
			total = total.Add(sale.Total)
		}
	}
	return total
}

func (s *Store) UpsertCashFloat(_ context.Context, date string, cashFloat decimal.Decimal) (*domain.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cashSales := s.cashSalesForDateLocked(date)
	expected := cashFloat.Add(cashSales)

	st, exists := s.settlements[date]
	if !exists {
		st = domain.Settlement{Date: date, Status: domain.SettlementFloatSet}
	}
	st.CashFloat = cashFloat
	st.CashSales = cashSales
	st.Expected = expected
	if st.Actual != nil {
		d := st.Actual.Sub(expected)
		st.Discrepancy = &d
	}
	st.UpdatedAt = time.Now().UTC()
	s.settlements[date] = st

	copySt := cloneSettlement(st)
	return &copySt, nil
}

func (s *Store) SettleUp(_ context.Context, date string, actual decimal.Decimal) (*domain.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, exists := s.settlements[date]
	if !exists {
		return nil, store.ErrSettlementNotInitialized
	}

	d := actual.Sub(st.Expected)
	st.Actual = &actual
	st.Discrepancy = &d
	st.Status = domain.SettlementSettled
	st.UpdatedAt = time.Now().UTC()
	s.settlements[date] = st

	copySt := cloneSettlement(st)
	return &copySt, nil
}

func (s *Store) ListSettlements(_ context.Context, from, to string) ([]domain.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settlements := make([]domain.Settlement, 0, len(s.settlements))
	for date, st := range s.settlements {
		if date < from || date > to {
			continue
		}
		settlements = append(settlements, cloneSettlement(st))
	}
	slices.SortFunc(settlements, func(a, b domain.Settlement) int {
		return strings.Compare(b.Date, a.Date)
	})
	return settlements, nil
}

func (s *Store) GetSetting(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.settings[key]
	if !exists {
		return "", store.ErrNotFound
	}
	return value, nil
}

func (s *Store) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings[key] = value
	return nil
}

func (s *Store) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUser := cloneUser(user)
	return &copyUser, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, cloneUser(u))
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrDuplicateName
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	s.usersByUsername[user.Username] = cloneUser(user)
	return nil
}

func (s *Store) UpdateUserCommission(_ context.Context, username string, rate decimal.Decimal) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return nil, store.ErrNotFound
	}
	user.CommissionRate = rate
	s.usersByUsername[username] = user

	copyUser := cloneUser(user)
	return &copyUser, nil
}

func (s *Store) DeleteUser(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[username]; !exists {
		return store.ErrNotFound
	}
	// sale rows keep the username string for historical attribution
	delete(s.usersByUsername, username)
	return nil
}

func (s *Store) SalesSummary(_ context.Context, from, to string) (*domain.SalesSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.SalesSummary{
		From:            from,
		To:              to,
		TotalSales:      decimal.Zero,
		TotalCommission: decimal.Zero,
	}
	for _, sale := range s.salesByID {
		if !saleInRange(sale, from, to) {
			continue
		}
		summary.Transactions++
		summary.TotalSales = summary.TotalSales.Add(sale.Total)
		summary.TotalCommission = summary.TotalCommission.Add(sale.TotalCommission)
	}
	return &summary, nil
}

func (s *Store) TopProducts(_ context.Context, from, to string, limit int) ([]domain.ProductSales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 10
	}
	byProduct := make(map[string]*domain.ProductSales)
	for _, sale := range s.salesByID {
		if !saleInRange(sale, from, to) {
			continue
		}
		for _, item := range sale.Items {
			agg, exists := byProduct[item.ProductID]
			if !exists {
				agg = &domain.ProductSales{
					ProductID: item.ProductID,
					Name:      item.ProductName,
					Amount:    decimal.Zero,
				}
				byProduct[item.ProductID] = agg
			}
			agg.Quantity += int64(item.Quantity)
			agg.Amount = agg.Amount.Add(item.LineSubtotal)
		}
	}

	results := make([]domain.ProductSales, 0, len(byProduct))
	for _, agg := range byProduct {
		results = append(results, *agg)
	}
	slices.SortFunc(results, func(a, b domain.ProductSales) int {
		if c := b.Amount.Cmp(a.Amount); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *Store) SalesByStaff(_ context.Context, from, to string) ([]domain.StaffSales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byStaff := make(map[string]*domain.StaffSales)
	for _, sale := range s.salesByID {
		if !saleInRange(sale, from, to) {
			continue
		}
		agg, exists := byStaff[sale.StaffOfRecord]
		if !exists {
			agg = &domain.StaffSales{
				Staff:           sale.StaffOfRecord,
				TotalSales:      decimal.Zero,
				TotalCommission: decimal.Zero,
			}
			byStaff[sale.StaffOfRecord] = agg
		}
		agg.Transactions++
		agg.TotalSales = agg.TotalSales.Add(sale.Total)
		agg.TotalCommission = agg.TotalCommission.Add(sale.TotalCommission)
	}

	results := make([]domain.StaffSales, 0, len(byStaff))
	for _, agg := range byStaff {
		results = append(results, *agg)
	}
	slices.SortFunc(results, func(a, b domain.StaffSales) int {
		return strings.Compare(a.Staff, b.Staff)
	})
	return results, nil
}

func (s *Store) SalesByStaffProduct(_ context.Context, from, to string) ([]domain.StaffProductSales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct{ staff, productID string }
	byKey := make(map[key]*domain.StaffProductSales)
	for _, sale := range s.salesByID {
		if !saleInRange(sale, from, to) {
			continue
		}
		for _, item := range sale.Items {
			k := key{item.AssignedStaff, item.ProductID}
			agg, exists := byKey[k]
			if !exists {
				agg = &domain.StaffProductSales{
					Staff:      item.AssignedStaff,
					ProductID:  item.ProductID,
					Name:       item.ProductName,
					Amount:     decimal.Zero,
					Commission: decimal.Zero,
				}
				byKey[k] = agg
			}
			agg.Quantity += int64(item.Quantity)
			agg.Amount = agg.Amount.Add(item.LineSubtotal)
			agg.Commission = agg.Commission.Add(item.Commission)
		}
	}

	results := make([]domain.StaffProductSales, 0, len(byKey))
	for _, agg := range byKey {
		results = append(results, *agg)
	}
	slices.SortFunc(results, func(a, b domain.StaffProductSales) int {
		if a.Staff == b.Staff {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Staff, b.Staff)
	})
	return results, nil
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

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	logs := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(logs) < limit; i-- {
		logs = append(logs, s.auditLogs[i])
	}
	return logs, nil
}

func (s *Store) ResetOperationalData(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.salesByID = make(map[string]*domain.Sale)
	s.saleOrder = s.saleOrder[:0]
	s.movements = s.movements[:0]
	s.settlements = make(map[string]domain.Settlement)
	s.auditLogs = s.auditLogs[:0]
	return nil
}
