package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"kopipos/backend/internal/domain"
	"kopipos/backend/internal/store"
	"kopipos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			category TEXT NOT NULL DEFAULT '',
			quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
			unit TEXT NOT NULL DEFAULT 'pcs',
			cost_price NUMERIC(14,2) NOT NULL DEFAULT 0,
			selling_price NUMERIC(14,2) NOT NULL DEFAULT 0,
			commission_mode TEXT NOT NULL DEFAULT 'percentage',
			commission_rate NUMERIC(7,4) NOT NULL DEFAULT 0,
			commission_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
			reorder_threshold INTEGER NOT NULL DEFAULT 0,
			supplier TEXT,
			expiry_date DATE,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS stock_movements (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
			kind TEXT NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			reason TEXT NOT NULL DEFAULT '',
			actor TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_movements_product ON stock_movements (product_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id TEXT PRIMARY KEY,
			subtotal NUMERIC(14,2) NOT NULL,
			tax_rate NUMERIC(7,4) NOT NULL,
			tax NUMERIC(14,2) NOT NULL,
			total NUMERIC(14,2) NOT NULL,
			cash_received NUMERIC(14,2) NOT NULL,
			change_due NUMERIC(14,2) NOT NULL,
			staff_of_record TEXT NOT NULL,
			total_commission NUMERIC(14,2) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_created ON sales (created_at)`,
		`CREATE TABLE IF NOT EXISTS sale_items (
			id TEXT PRIMARY KEY,
			sale_id TEXT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
			product_id TEXT NOT NULL REFERENCES products(id) ON DELETE RESTRICT,
			product_name TEXT NOT NULL,
			unit_price NUMERIC(14,2) NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			commission_mode TEXT NOT NULL,
			commission_rate NUMERIC(7,4) NOT NULL,
			commission_amount NUMERIC(14,2) NOT NULL,
			assigned_staff TEXT NOT NULL,
			line_subtotal NUMERIC(14,2) NOT NULL,
			commission NUMERIC(14,2) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sale_items_sale ON sale_items (sale_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sale_items_product ON sale_items (product_id)`,
		`CREATE TABLE IF NOT EXISTS settlements (
			date TEXT PRIMARY KEY,
			cash_float NUMERIC(14,2) NOT NULL DEFAULT 0,
			cash_sales NUMERIC(14,2) NOT NULL DEFAULT 0,
			expected NUMERIC(14,2) NOT NULL DEFAULT 0,
			actual NUMERIC(14,2),
			discrepancy NUMERIC(14,2),
			status TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS app_users (
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'staff',
			commission_rate NUMERIC(7,4) NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS staff_details (
			username TEXT PRIMARY KEY REFERENCES app_users(username) ON DELETE CASCADE,
			employee_id TEXT NOT NULL DEFAULT '',
			hire_date TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			actor TEXT NOT NULL,
			actor_role TEXT NOT NULL,
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const productColumns = `id, name, category, quantity, unit, cost_price, selling_price,
	commission_mode, commission_rate, commission_amount, reorder_threshold,
	supplier, expiry_date, active, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	var supplier sql.NullString
	var expiry sql.NullTime
	if err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Quantity, &p.Unit,
		&p.CostPrice, &p.SellingPrice, &p.CommissionMode, &p.CommissionRate,
		&p.CommissionAmount, &p.ReorderThreshold, &supplier, &expiry, &p.Active,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Supplier = supplier.String
	if expiry.Valid {
		e := expiry.Time.UTC()
		p.ExpiryDate = &e
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, category string) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY category, name`
	args := []any{}
	if category != "" {
		query = `SELECT ` + productColumns + ` FROM products WHERE category = $1 ORDER BY name`
		args = append(args, category)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = *p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (
			id, name, category, quantity, unit, cost_price, selling_price,
			commission_mode, commission_rate, commission_amount, reorder_threshold,
			supplier, expiry_date, active, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, product.ID, product.Name, product.Category, product.Quantity, product.Unit,
		product.CostPrice, product.SellingPrice, product.CommissionMode,
		product.CommissionRate, product.CommissionAmount, product.ReorderThreshold,
		nullIfEmpty(product.Supplier), nullDate(product.ExpiryDate), product.Active,
		product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, unit = $4, cost_price = $5, selling_price = $6,
			commission_mode = $7, commission_rate = $8, commission_amount = $9,
			reorder_threshold = $10, supplier = $11, expiry_date = $12, active = $13,
			updated_at = $14
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.Unit, product.CostPrice,
		product.SellingPrice, product.CommissionMode, product.CommissionRate,
		product.CommissionAmount, product.ReorderThreshold, nullIfEmpty(product.Supplier),
		nullDate(product.ExpiryDate), product.Active, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		// sale_items hold a RESTRICT reference; sold products stay on the books
		if isForeignKeyViolation(err) {
			return store.ErrProductInUse
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AdjustStock(ctx context.Context, productID string, delta int, movement domain.StockMovement) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var qty int
	err = tx.QueryRowContext(ctx, `SELECT quantity FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&qty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if qty+delta < 0 {
		return nil, store.ErrInsufficientStock
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE products SET quantity = quantity + $2, updated_at = now() WHERE id = $1
	`, productID, delta)
	if err != nil {
		return nil, err
	}

	if movement.ID == "" {
		movement.ID = xid.New("mv")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_movements (id, product_id, kind, quantity, reason, actor, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, movement.ID, productID, movement.Kind, movement.Quantity, movement.Reason,
		movement.Actor, movement.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, productID)
}

func (s *Store) ListMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 100
	}

	query := `
		SELECT id, product_id, kind, quantity, reason, actor, created_at
		FROM stock_movements
		ORDER BY created_at DESC
		LIMIT $1`
	args := []any{limit}
	if productID != "" {
		query = `
		SELECT id, product_id, kind, quantity, reason, actor, created_at
		FROM stock_movements
		WHERE product_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
		args = []any{productID, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Kind, &m.Quantity, &m.Reason, &m.Actor, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, movements []domain.StockMovement) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	needed := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		if item.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
		needed[item.ProductID] += item.Quantity
	}
	ids := make([]string, 0, len(needed))
	for id := range needed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	stockRows, err := tx.QueryContext(ctx, `
		SELECT id, name, quantity, active
		FROM products
		WHERE id = ANY($1)
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	stock := make(map[string]int, len(ids))
	names := make(map[string]string, len(ids))
	active := make(map[string]bool, len(ids))
	for stockRows.Next() {
		var id, name string
		var qty int
		var isActive bool
		if err := stockRows.Scan(&id, &name, &qty, &isActive); err != nil {
			_ = stockRows.Close()
			return nil, err
		}
		stock[id] = qty
		names[id] = name
		active[id] = isActive
	}
	if err := stockRows.Err(); err != nil {
		_ = stockRows.Close()
		return nil, err
	}
	_ = stockRows.Close()

	for _, id := range ids {
		if _, exists := stock[id]; !exists {
			return nil, store.ErrNotFound
		}
		if !active[id] {
			return nil, store.ErrInvalidInput
		}
		if stock[id] < needed[id] {
			return nil, fmt.Errorf("%w: %s", store.ErrInsufficientStock, names[id])
		}
	}

	for _, id := range ids {
		_, err = tx.ExecContext(ctx, `
			UPDATE products SET quantity = quantity - $2, updated_at = now() WHERE id = $1
		`, id, needed[id])
		if err != nil {
			return nil, err
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, subtotal, tax_rate, tax, total, cash_received, change_due,
			staff_of_record, total_commission, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, sale.ID, sale.Subtotal, sale.TaxRate, sale.Tax, sale.Total, sale.CashReceived,
		sale.Change, sale.StaffOfRecord, sale.TotalCommission, sale.CreatedAt)
	if err != nil {
		return nil, err
	}

	for i := range sale.Items {
		item := &sale.Items[i]
		if item.ID == "" {
			item.ID = xid.New("li")
		}
		item.SaleID = sale.ID
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (
				id, sale_id, product_id, product_name, unit_price, quantity,
				commission_mode, commission_rate, commission_amount, assigned_staff,
				line_subtotal, commission
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`, item.ID, item.SaleID, item.ProductID, item.ProductName, item.UnitPrice,
			item.Quantity, item.CommissionMode, item.CommissionRate, item.CommissionAmount,
			item.AssignedStaff, item.LineSubtotal, item.Commission)
		if err != nil {
			return nil, err
		}
	}

	for _, m := range movements {
		if m.ID == "" {
			m.ID = xid.New("mv")
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = sale.CreatedAt
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO stock_movements (id, product_id, kind, quantity, reason, actor, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, m.ID, m.ProductID, m.Kind, m.Quantity, m.Reason, m.Actor, m.CreatedAt)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

const saleColumns = `id, subtotal, tax_rate, tax, total, cash_received, change_due,
	staff_of_record, total_commission, created_at`

func scanSale(row interface{ Scan(...any) error }) (*domain.Sale, error) {
	var sale domain.Sale
	if err := row.Scan(&sale.ID, &sale.Subtotal, &sale.TaxRate, &sale.Tax, &sale.Total,
		&sale.CashReceived, &sale.Change, &sale.StaffOfRecord, &sale.TotalCommission,
		&sale.CreatedAt); err != nil {
		return nil, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	return &sale, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, product_name, unit_price, quantity,
			commission_mode, commission_rate, commission_amount, assigned_staff,
			line_subtotal, commission
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.ProductName,
			&item.UnitPrice, &item.Quantity, &item.CommissionMode, &item.CommissionRate,
			&item.CommissionAmount, &item.AssignedStaff, &item.LineSubtotal,
			&item.Commission); err != nil {
			return nil, err
		}
		sale.Items = append(sale.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context, from, to string, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE created_at >= $1::date AND created_at < $2::date + INTERVAL '1 day'
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

const settlementColumns = `date, cash_float, cash_sales, expected, actual, discrepancy, status, updated_at`

func scanSettlement(row interface{ Scan(...any) error }) (*domain.Settlement, error) {
	var st domain.Settlement
	var actual, discrepancy decimal.NullDecimal
	if err := row.Scan(&st.Date, &st.CashFloat, &st.CashSales, &st.Expected,
		&actual, &discrepancy, &st.Status, &st.UpdatedAt); err != nil {
		return nil, err
	}
	if actual.Valid {
		st.Actual = &actual.Decimal
	}
	if discrepancy.Valid {
		st.Discrepancy = &discrepancy.Decimal
	}
	st.UpdatedAt = st.UpdatedAt.UTC()
	return &st, nil
}

func (s *Store) GetSettlement(ctx context.Context, date string) (*domain.Settlement, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+settlementColumns+` FROM settlements WHERE date = $1`, date)
	st, err := scanSettlement(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return st, nil
}

func (s *Store) cashSalesForDate(ctx context.Context, tx *sql.Tx, date string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total), 0)
		FROM sales
		WHERE created_at >= $1::date AND created_at < $1::date + INTERVAL '1 day'
	`, date).Scan(&total)
	return total, err
}

func (s *Store) UpsertCashFloat(ctx context.Context, date string, cashFloat decimal.Decimal) (*domain.Settlement, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	cashSales, err := s.cashSalesForDate(ctx, tx, date)
	if err != nil {
		return nil, err
	}
	expected := cashFloat.Add(cashSales)

	// Re-entrant: a second call overwrites the float and recomputes the day.
	// An already-settled day keeps its counted cash and gets a fresh
	// discrepancy against the new expected value.
	row := tx.QueryRowContext(ctx, `
		INSERT INTO settlements (date, cash_float, cash_sales, expected, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (date) DO UPDATE SET
			cash_float = EXCLUDED.cash_float,
			cash_sales = EXCLUDED.cash_sales,
			expected = EXCLUDED.expected,
			discrepancy = CASE WHEN settlements.actual IS NULL THEN NULL
				ELSE settlements.actual - EXCLUDED.expected END,
			updated_at = now()
		RETURNING `+settlementColumns+`
	`, date, cashFloat, cashSales, expected, domain.SettlementFloatSet)
	st, err := scanSettlement(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) SettleUp(ctx context.Context, date string, actual decimal.Decimal) (*domain.Settlement, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var expected decimal.Decimal
	err = tx.QueryRowContext(ctx, `
		SELECT expected FROM settlements WHERE date = $1 FOR UPDATE
	`, date).Scan(&expected)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrSettlementNotInitialized
		}
		return nil, err
	}

	discrepancy := actual.Sub(expected)
	row := tx.QueryRowContext(ctx, `
		UPDATE settlements
		SET actual = $2, discrepancy = $3, status = $4, updated_at = now()
		WHERE date = $1
		RETURNING `+settlementColumns+`
	`, date, actual, discrepancy, domain.SettlementSettled)
	st, err := scanSettlement(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) ListSettlements(ctx context.Context, from, to string) ([]domain.Settlement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+settlementColumns+`
		FROM settlements
		WHERE date >= $1 AND date <= $2
		ORDER BY date DESC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settlements := make([]domain.Settlement, 0, 32)
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		settlements = append(settlements, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return settlements, nil
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", err
	}
	return value, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	return err
}

const userColumns = `u.username, u.password, u.role, u.commission_rate, u.active, u.created_at,
	d.username, d.employee_id, d.hire_date, d.phone, d.address`

func scanUser(row interface{ Scan(...any) error }) (*domain.UserAccount, error) {
	var user domain.UserAccount
	var detailUsername sql.NullString
	var employeeID, hireDate, phone, address sql.NullString
	if err := row.Scan(&user.Username, &user.Password, &user.Role, &user.CommissionRate,
		&user.Active, &user.CreatedAt, &detailUsername, &employeeID, &hireDate,
		&phone, &address); err != nil {
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	if detailUsername.Valid {
		user.Detail = &domain.StaffDetail{
			EmployeeID: employeeID.String,
			HireDate:   hireDate.String,
			Phone:      phone.String,
			Address:    address.String,
		}
	}
	return &user, nil
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM app_users u
		LEFT JOIN staff_details d ON d.username = u.username
		WHERE u.username = $1
	`, username)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM app_users u
		LEFT JOIN staff_details d ON d.username = u.username
		ORDER BY u.username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, commission_rate, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, user.Username, user.Password, user.Role, user.CommissionRate, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateName
		}
		return err
	}

	if user.Detail != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO staff_details (username, employee_id, hire_date, phone, address)
			VALUES ($1,$2,$3,$4,$5)
		`, user.Username, user.Detail.EmployeeID, user.Detail.HireDate,
			user.Detail.Phone, user.Detail.Address)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) UpdateUserCommission(ctx context.Context, username string, rate decimal.Decimal) (*domain.UserAccount, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users SET commission_rate = $2, updated_at = now() WHERE username = $1
	`, username, rate)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetUser(ctx, username)
}

func (s *Store) DeleteUser(ctx context.Context, username string) error {
	// staff_details cascade; sale rows keep the username string
	res, err := s.db.ExecContext(ctx, `DELETE FROM app_users WHERE username = $1`, username)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SalesSummary(ctx context.Context, from, to string) (*domain.SalesSummary, error) {
	summary := domain.SalesSummary{From: from, To: to}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint, COALESCE(SUM(total),0), COALESCE(SUM(total_commission),0)
		FROM sales
		WHERE created_at >= $1::date AND created_at < $2::date + INTERVAL '1 day'
	`, from, to).Scan(&summary.Transactions, &summary.TotalSales, &summary.TotalCommission)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *Store) TopProducts(ctx context.Context, from, to string, limit int) ([]domain.ProductSales, error) {
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT i.product_id, i.product_name, SUM(i.quantity)::bigint, SUM(i.line_subtotal)
		FROM sale_items i
		JOIN sales s ON s.id = i.sale_id
		WHERE s.created_at >= $1::date AND s.created_at < $2::date + INTERVAL '1 day'
		GROUP BY i.product_id, i.product_name
		ORDER BY SUM(i.line_subtotal) DESC, i.product_name
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.ProductSales, 0, limit)
	for rows.Next() {
		var row domain.ProductSales
		if err := rows.Scan(&row.ProductID, &row.Name, &row.Quantity, &row.Amount); err != nil {
			return nil, err
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Store) SalesByStaff(ctx context.Context, from, to string) ([]domain.StaffSales, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT staff_of_record, COALESCE(SUM(total),0), COALESCE(SUM(total_commission),0), COUNT(*)::bigint
		FROM sales
		WHERE created_at >= $1::date AND created_at < $2::date + INTERVAL '1 day'
		GROUP BY staff_of_record
		ORDER BY staff_of_record
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.StaffSales, 0, 16)
	for rows.Next() {
		var row domain.StaffSales
		if err := rows.Scan(&row.Staff, &row.TotalSales, &row.TotalCommission, &row.Transactions); err != nil {
			return nil, err
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Store) SalesByStaffProduct(ctx context.Context, from, to string) ([]domain.StaffProductSales, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.assigned_staff, i.product_id, i.product_name,
			SUM(i.quantity)::bigint, SUM(i.line_subtotal), SUM(i.commission)
		FROM sale_items i
		JOIN sales s ON s.id = i.sale_id
		WHERE s.created_at >= $1::date AND s.created_at < $2::date + INTERVAL '1 day'
		GROUP BY i.assigned_staff, i.product_id, i.product_name
		ORDER BY i.assigned_staff, i.product_name
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.StaffProductSales, 0, 32)
	for rows.Next() {
		var row domain.StaffProductSales
		if err := rows.Scan(&row.Staff, &row.ProductID, &row.Name, &row.Quantity,
			&row.Amount, &row.Commission); err != nil {
			return nil, err
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.Actor, entry.ActorRole, entry.Action, entry.EntityType,
		entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.Actor, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) ResetOperationalData(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// sale_items cascade from sales
	for _, stmt := range []string{
		`DELETE FROM sales`,
		`DELETE FROM stock_movements`,
		`DELETE FROM settlements`,
		`DELETE FROM audit_logs`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	t := val.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
