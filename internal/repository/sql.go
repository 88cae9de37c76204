package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/happydevs-studio/wool-witch/internal/domain"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

type OrderStatus string

const (
	OrderPending       OrderStatus = "pending"
	OrderPaid          OrderStatus = "paid"
	OrderPaymentFailed OrderStatus = "payment_failed"
)

// Order is an order as stored, with its items.
type Order struct {
	ID            string          `json:"id"`
	Customer      Customer        `json:"customer"`
	Items         []OrderItem     `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	DeliveryTotal decimal.Decimal `json:"delivery_total"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Status        OrderStatus     `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

type Payment struct {
	ID                string          `json:"id"`
	OrderID           string          `json:"order_id"`
	Method            PaymentMethod   `json:"method"`
	ExternalPaymentID string          `json:"external_payment_id,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	Status            PaymentStatus   `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
}

// SQLRepository implements Repository on SQLite or PostgreSQL. Order and
// payment writes run in a transaction and are checked against the product
// rows read inside it.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
	newID   func() string
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func NewSQLRepository(dialect Dialect, dsn string) (*SQLRepository, error) {
	var driverName string
	switch dialect {
	case DialectSQLite:
		driverName = "sqlite"
	case DialectPostgres:
		driverName = "postgres"
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(100)
		db.SetMaxIdleConns(10)
	}

	r := &SQLRepository{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.NewString() },
	}
	if err := r.RunMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLRepository) RunMigrations() error {
	source, err := iofs.New(migrationsFS, "migrations/"+string(r.dialect))
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	var driver database.Driver
	switch r.dialect {
	case DialectSQLite:
		driver, err = migratesqlite.WithInstance(r.db, &migratesqlite.Config{
			MigrationsTable: "storefront_schema_migrations",
		})
	case DialectPostgres:
		driver, err = migratepg.WithInstance(r.db, &migratepg.Config{
			MigrationsTable: "storefront_schema_migrations",
		})
	}
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, string(r.dialect), driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

const productColumns = `id, name, description, category, image_url, price, price_max,
	delivery_charge, is_available, stock_quantity, custom_properties, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p          domain.Product
		priceMax   decimal.NullDecimal
		delivery   decimal.NullDecimal
		properties []byte
	)
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Category,
		&p.ImageURL,
		&p.Price,
		&priceMax,
		&delivery,
		&p.IsAvailable,
		&p.StockQuantity,
		&properties,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}

	if priceMax.Valid {
		p.PriceMax = &priceMax.Decimal
	}
	if delivery.Valid {
		p.DeliveryCharge = &delivery.Decimal
	}
	if len(properties) > 0 {
		if err := json.Unmarshal(properties, &p.CustomProperties); err != nil {
			return p, fmt.Errorf("decode custom properties of %s: %w", p.ID, err)
		}
	}
	return p, nil
}

func queryProducts(ctx context.Context, q queryer, query string, args ...any) ([]domain.Product, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return products, nil
}

func (r *SQLRepository) ListProducts(ctx context.Context, f Filter) ([]domain.Product, error) {
	var (
		where []string
		args  []any
	)
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("LOWER(category) = LOWER($%d)", len(args)))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+strings.ToLower(s)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(description) LIKE $%d)", n, n))
	}

	query := "SELECT " + productColumns + " FROM products"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name, id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		if f.Offset > 0 {
			args = append(args, f.Offset)
			query += fmt.Sprintf(" OFFSET $%d", len(args))
		}
	}

	return queryProducts(ctx, r.db, query, args...)
}

func (r *SQLRepository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, r.db, id)
}

func getProduct(ctx context.Context, q queryer, id string) (*domain.Product, error) {
	row := q.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product by id: %w", err)
	}
	return &p, nil
}

// GetProductsByIDs returns the products that exist among ids. Missing ids are
// simply absent from the result.
func (r *SQLRepository) GetProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	return productsByIDs(ctx, r.db, ids)
}

func productsByIDs(ctx context.Context, q queryer, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return []domain.Product{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := "SELECT " + productColumns + " FROM products WHERE id IN (" + placeholders(1, len(ids)) + ") ORDER BY id"
	return queryProducts(ctx, q, query, args...)
}

func placeholders(start, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", start+i)
	}
	return b.String()
}

func (r *SQLRepository) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT category FROM products WHERE category <> '' ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return categories, nil
}

func productArgs(p domain.Product) ([]any, error) {
	var properties []byte
	if len(p.CustomProperties) > 0 {
		var err error
		if properties, err = json.Marshal(p.CustomProperties); err != nil {
			return nil, fmt.Errorf("encode custom properties: %w", err)
		}
	}
	return []any{
		p.ID,
		p.Name,
		p.Description,
		p.Category,
		p.ImageURL,
		p.Price,
		decimal.NullDecimal{Decimal: deref(p.PriceMax), Valid: p.PriceMax != nil},
		decimal.NullDecimal{Decimal: deref(p.DeliveryCharge), Valid: p.DeliveryCharge != nil},
		p.IsAvailable,
		p.StockQuantity,
		nullableJSON(properties),
	}, nil
}

func deref(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// nullableJSON keeps empty documents as SQL NULL and hands the driver a
// string, which both TEXT and JSONB columns accept.
func nullableJSON(b []byte) sql.NullString {
	return sql.NullString{String: string(b), Valid: len(b) > 0}
}

func (r *SQLRepository) CreateProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	if err := validateProduct(p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = r.newID()
	}
	p.CreatedAt = r.now()
	p.UpdatedAt = p.CreatedAt

	args, err := productArgs(p)
	if err != nil {
		return nil, err
	}
	args = append(args, p.CreatedAt, p.UpdatedAt)

	query := `INSERT INTO products (` + productColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateProduct
		}
		return nil, fmt.Errorf("insert product: %w", err)
	}
	return &p, nil
}

func (r *SQLRepository) UpdateProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	if err := validateProduct(p); err != nil {
		return nil, err
	}
	p.UpdatedAt = r.now()

	args, err := productArgs(p)
	if err != nil {
		return nil, err
	}
	args = append(args, p.UpdatedAt)

	query := `UPDATE products SET name = $2, description = $3, category = $4, image_url = $5,
	          price = $6, price_max = $7, delivery_charge = $8, is_available = $9,
	          stock_quantity = $10, custom_properties = $11, updated_at = $12
	          WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrProductNotFound
	}
	return r.GetProduct(ctx, p.ID)
}

func (r *SQLRepository) DeleteProduct(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrProductNotFound
	}
	return nil
}

// CreateOrder checks the request against the current product rows and stores
// the order with its items. The returned id is assigned here.
func (r *SQLRepository) CreateOrder(ctx context.Context, req OrderRequest) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.ProductID)
	}
	found, err := productsByIDs(ctx, tx, ids)
	if err != nil {
		return "", err
	}
	products := make(map[string]domain.Product, len(found))
	for _, p := range found {
		products[p.ID] = p
	}

	if err := validateOrder(req, products); err != nil {
		return "", err
	}

	id := r.newID()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, customer_name, customer_email, customer_phone, address,
		 subtotal, delivery_total, total, payment_method, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		id,
		req.Customer.Name,
		req.Customer.Email,
		req.Customer.Phone,
		req.Customer.Address,
		req.Subtotal,
		req.DeliveryTotal,
		req.Total,
		string(req.PaymentMethod),
		string(OrderPending),
		r.now(),
	)
	if err != nil {
		return "", fmt.Errorf("insert order: %w", mapCheckViolation(err))
	}

	for i, item := range req.Items {
		var selections []byte
		if len(item.Selections) > 0 {
			if selections, err = json.Marshal(item.Selections); err != nil {
				return "", fmt.Errorf("encode selections: %w", err)
			}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, position, product_id, product_name, quantity,
			 unit_price, delivery_charge, selections)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			id, i, item.ProductID, item.ProductName, item.Quantity,
			item.UnitPrice, item.DeliveryCharge, nullableJSON(selections),
		)
		if err != nil {
			return "", fmt.Errorf("insert order item: %w", mapCheckViolation(err))
		}
	}

	if err := r.takeStock(ctx, tx, req.Items); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit order: %w", err)
	}
	return id, nil
}

// takeStock removes the ordered quantities from stock. The row guard keeps
// two concurrent orders from taking the same units.
func (r *SQLRepository) takeStock(ctx context.Context, tx *sql.Tx, items []OrderItem) error {
	totals := make(map[string]int, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := totals[item.ProductID]; !ok {
			ids = append(ids, item.ProductID)
		}
		totals[item.ProductID] += item.Quantity
	}

	for _, id := range ids {
		res, err := tx.ExecContext(ctx,
			`UPDATE products SET stock_quantity = stock_quantity - $1, updated_at = $2
			 WHERE id = $3 AND stock_quantity >= $4`,
			totals[id], r.now(), id, totals[id])
		if err != nil {
			return fmt.Errorf("update stock: %w", mapCheckViolation(err))
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return &ConstraintError{Field: "items", Reason: "not enough stock for " + id}
		}
	}
	return nil
}

// CreatePayment records a payment against an existing order. A completed or
// failed payment moves the order to the matching status.
func (r *SQLRepository) CreatePayment(ctx context.Context, req PaymentRequest) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var total decimal.Decimal
	err = tx.QueryRowContext(ctx, `SELECT total FROM orders WHERE id = $1`, req.OrderID).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrOrderNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query order total: %w", err)
	}

	if err := validatePayment(req, total); err != nil {
		return "", err
	}

	var details []byte
	if len(req.Details) > 0 {
		if details, err = json.Marshal(req.Details); err != nil {
			return "", fmt.Errorf("encode payment details: %w", err)
		}
	}

	id := r.newID()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO payments (id, order_id, method, external_payment_id, amount, status, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, req.OrderID, string(req.Method), req.ExternalPaymentID, req.Amount,
		string(req.Status), nullableJSON(details), r.now(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", &ConstraintError{Field: "external_payment_id", Reason: "already recorded"}
		}
		return "", fmt.Errorf("insert payment: %w", mapCheckViolation(err))
	}

	var status OrderStatus
	switch req.Status {
	case PaymentCompleted:
		status = OrderPaid
	case PaymentFailed:
		status = OrderPaymentFailed
	}
	if status != "" {
		if _, err := tx.ExecContext(ctx, `UPDATE orders SET status = $1 WHERE id = $2`,
			string(status), req.OrderID); err != nil {
			return "", fmt.Errorf("update order status: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit payment: %w", err)
	}
	return id, nil
}

func (r *SQLRepository) GetOrder(ctx context.Context, id string) (*Order, error) {
	var (
		o      Order
		method string
		status string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, customer_name, customer_email, customer_phone, address,
		 subtotal, delivery_total, total, payment_method, status, created_at
		 FROM orders WHERE id = $1`, id).Scan(
		&o.ID,
		&o.Customer.Name,
		&o.Customer.Email,
		&o.Customer.Phone,
		&o.Customer.Address,
		&o.Subtotal,
		&o.DeliveryTotal,
		&o.Total,
		&method,
		&status,
		&o.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}
	o.PaymentMethod = PaymentMethod(method)
	o.Status = OrderStatus(status)

	rows, err := r.db.QueryContext(ctx,
		`SELECT product_id, product_name, quantity, unit_price, delivery_charge, selections
		 FROM order_items WHERE order_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item       OrderItem
			selections []byte
		)
		if err := rows.Scan(
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.UnitPrice,
			&item.DeliveryCharge,
			&selections,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if len(selections) > 0 {
			if err := json.Unmarshal(selections, &item.Selections); err != nil {
				return nil, fmt.Errorf("decode order item selections: %w", err)
			}
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return &o, nil
}

func (r *SQLRepository) ListPayments(ctx context.Context, orderID string) ([]Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, order_id, method, external_payment_id, amount, status, created_at
		 FROM payments WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var (
			p              Payment
			method, status string
		)
		if err := rows.Scan(&p.ID, &p.OrderID, &method, &p.ExternalPaymentID,
			&p.Amount, &status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		p.Method = PaymentMethod(method)
		p.Status = PaymentStatus(status)
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return payments, nil
}

func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
		return liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT &&
			strings.Contains(liteErr.Error(), "UNIQUE constraint failed")
	}
	return false
}

// mapCheckViolation turns a CHECK constraint failure reported by the database
// into a ConstraintError so callers see a rejection rather than an outage.
func mapCheckViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23514" {
		return &ConstraintError{Field: pqErr.Constraint, Reason: pqErr.Message}
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) && liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_CHECK {
		return &ConstraintError{Field: "check", Reason: liteErr.Error()}
	}
	return err
}
