package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/happydevs-studio/wool-witch/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func setupSQLite(t *testing.T) *SQLRepository {
	t.Helper()
	repo, err := NewSQLRepository(DialectSQLite, filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func setupPostgres(t *testing.T) *SQLRepository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%d user=testuser password=testpass dbname=testdb sslmode=disable",
		host, port.Int())
	repo, err := NewSQLRepository(DialectPostgres, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func yarnProduct() domain.Product {
	return domain.Product{
		ID:             "yarn-1",
		Name:           "Merino Yarn",
		Description:    "Soft merino wool",
		Category:       "Yarn",
		Price:          dec("12.50"),
		DeliveryCharge: decPtr("2.00"),
		IsAvailable:    true,
		StockQuantity:  40,
		CustomProperties: domain.CustomPropertiesConfig{
			domain.Dropdown{
				PropertyBase: domain.PropertyBase{ID: "weight", Label: "Weight", Required: true},
				Options:      []string{"50g", "100g"},
				Prices:       map[string]decimal.Decimal{"100g": dec("22.00")},
			},
			domain.Text{PropertyBase: domain.PropertyBase{ID: "note", Label: "Note"}, MaxLength: 50},
		},
	}
}

func needleProduct() domain.Product {
	return domain.Product{
		ID:            "needles-1",
		Name:          "Bamboo Needles",
		Category:      "Tools",
		Price:         dec("8.00"),
		PriceMax:      decPtr("14.00"),
		IsAvailable:   true,
		StockQuantity: 10,
	}
}

func orderFor(items ...OrderItem) OrderRequest {
	subtotal, delivery := decimal.Zero, decimal.Zero
	for _, it := range items {
		qty := decimal.NewFromInt(int64(it.Quantity))
		subtotal = subtotal.Add(it.UnitPrice.Mul(qty))
		delivery = delivery.Add(it.DeliveryCharge.Mul(qty))
	}
	return OrderRequest{
		Customer: Customer{
			Name:    "Ada Lovelace",
			Email:   "ada@example.com",
			Address: "12 Loom Street",
		},
		Items:         items,
		Subtotal:      subtotal,
		DeliveryTotal: delivery,
		Total:         subtotal.Add(delivery),
		PaymentMethod: PaymentCard,
	}
}

func forEachDialect(t *testing.T, fn func(t *testing.T, repo *SQLRepository)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, setupSQLite(t)) })
	t.Run("postgres", func(t *testing.T) { fn(t, setupPostgres(t)) })
}

func TestSQLRepository_ProductRoundTrip(t *testing.T) {
	forEachDialect(t, func(t *testing.T, repo *SQLRepository) {
		ctx := context.Background()

		created, err := repo.CreateProduct(ctx, yarnProduct())
		require.NoError(t, err)
		assert.False(t, created.CreatedAt.IsZero())

		got, err := repo.GetProduct(ctx, "yarn-1")
		require.NoError(t, err)
		assert.Equal(t, "Merino Yarn", got.Name)
		assert.True(t, got.Price.Equal(dec("12.50")))
		require.NotNil(t, got.DeliveryCharge)
		assert.True(t, got.DeliveryCharge.Equal(dec("2")))
		assert.Nil(t, got.PriceMax)
		assert.True(t, got.IsAvailable)
		assert.Equal(t, 40, got.StockQuantity)

		require.Len(t, got.CustomProperties, 2)
		dd, ok := got.CustomProperties[0].(domain.Dropdown)
		require.True(t, ok)
		price, ok := dd.OverridePrice("100g")
		require.True(t, ok)
		assert.True(t, price.Equal(dec("22")))
		assert.Equal(t, domain.PropertyText, got.CustomProperties[1].Type())
	})
}

func TestSQLRepository_CreateDuplicateProduct(t *testing.T) {
	forEachDialect(t, func(t *testing.T, repo *SQLRepository) {
		ctx := context.Background()
		_, err := repo.CreateProduct(ctx, yarnProduct())
		require.NoError(t, err)

		_, err = repo.CreateProduct(ctx, yarnProduct())
		assert.ErrorIs(t, err, ErrDuplicateProduct)
	})
}

func TestSQLRepository_CreateProductAssignsID(t *testing.T) {
	repo := setupSQLite(t)
	p := needleProduct()
	p.ID = ""

	created, err := repo.CreateProduct(context.Background(), p)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
}

func TestSQLRepository_RejectsInvalidProduct(t *testing.T) {
	repo := setupSQLite(t)
	p := yarnProduct()
	p.CustomProperties = domain.CustomPropertiesConfig{
		domain.Dropdown{
			PropertyBase: domain.PropertyBase{ID: "size"},
			Options:      []string{"S"},
			Prices:       map[string]decimal.Decimal{"XL": dec("5")},
		},
	}

	_, err := repo.CreateProduct(context.Background(), p)
	var ce *ConstraintError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "custom_properties", ce.Field)
}

func TestSQLRepository_GetProductNotFound(t *testing.T) {
	forEachDialect(t, func(t *testing.T, repo *SQLRepository) {
		_, err := repo.GetProduct(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrProductNotFound)
	})
}

func TestSQLRepository_ListProductsFilter(t *testing.T) {
	forEachDialect(t, func(t *testing.T, repo *SQLRepository) {
		ctx := context.Background()
		for _, p := range []domain.Product{yarnProduct(), needleProduct()} {
			_, err := repo.CreateProduct(ctx, p)
			require.NoError(t, err)
		}

		all, err := repo.ListProducts(ctx, Filter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)
		assert.Equal(t, "Bamboo Needles", all[0].Name)

		tools, err := repo.ListProducts(ctx, Filter{Category: "tools"})
		require.NoError(t, err)
		require.Len(t, tools, 1)
		assert.Equal(t, "needles-1", tools[0].ID)

		search, err := repo.ListProducts(ctx, Filter{Search: "MERINO"})
		require.NoError(t, err)
		require.Len(t, search, 1)
		assert.Equal(t, "yarn-1", search[0].ID)

		page, err := repo.ListProducts(ctx, Filter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "Merino Yarn", page[0].Name)
	})
}

func TestSQLRepository_GetProductsByIDsSkipsMissing(t *testing.T) {
	repo := setupSQLite(t)
	ctx := context.Background()
	_, err := repo.CreateProduct(ctx, yarnProduct())
	require.NoError(t, err)

	got, err := repo.GetProductsByIDs(ctx, []string{"yarn-1", "gone"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "yarn-1", got[0].ID)

	none, err := repo.GetProductsByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLRepository_ListCategories(t *testing.T) {
	repo := setupSQLite(t)
	ctx := context.Background()
	for _, p := range []domain.Product{yarnProduct(), needleProduct()} {
		_, err := repo.CreateProduct(ctx, p)
		require.NoError(t, err)
	}

	categories, err := repo.ListCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Tools", "Yarn"}, categories)
}

func TestSQLRepository_UpdateAndDeleteProduct(t *testing.T) {
	forEachDialect(t, func(t *testing.T, repo *SQLRepository) {
		ctx := context.Background()
		_, err := repo.CreateProduct(ctx, yarnProduct())
		require.NoError(t, err)

		p := yarnProduct()
		p.Price = dec("13.75")
		p.IsAvailable = false
		updated, err := repo.UpdateProduct(ctx, p)
		require.NoError(t, err)
		assert.True(t, updated.Price.Equal(dec("13.75")))
		assert.False(t, updated.IsAvailable)

		require.NoError(t, repo.DeleteProduct(ctx, "yarn-1"))
		assert.ErrorIs(t, repo.DeleteProduct(ctx, "yarn-1"), ErrProductNotFound)

		_, err = repo.UpdateProduct(ctx, p)
		assert.ErrorIs(t, err, ErrProductNotFound)
	})
}

func TestSQLRepository_CreateOrder(t *testing.T) {
	forEachDialect(t, func(t *testing.T, repo *SQLRepository) {
		ctx := context.Background()
		_, err := repo.CreateProduct(ctx, yarnProduct())
		require.NoError(t, err)

		req := orderFor(OrderItem{
			ProductID:      "yarn-1",
			ProductName:    "Merino Yarn",
			Quantity:       2,
			UnitPrice:      dec("22.00"),
			DeliveryCharge: dec("2.00"),
			Selections:     domain.Selections{{PropertyID: "weight", Value: "100g"}},
		})
		id, err := repo.CreateOrder(ctx, req)
		require.NoError(t, err)
		require.NotEmpty(t, id)

		order, err := repo.GetOrder(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, OrderPending, order.Status)
		assert.True(t, order.Total.Equal(dec("48.00")))
		require.Len(t, order.Items, 1)
		assert.Equal(t, 2, order.Items[0].Quantity)
		weight, ok := order.Items[0].Selections.Value("weight")
		require.True(t, ok)
		assert.Equal(t, "100g", weight)
	})
}

func TestSQLRepository_CreateOrderTakesStock(t *testing.T) {
	forEachDialect(t, func(t *testing.T, repo *SQLRepository) {
		ctx := context.Background()
		_, err := repo.CreateProduct(ctx, needleProduct())
		require.NoError(t, err)

		item := OrderItem{ProductID: "needles-1", ProductName: "Bamboo Needles", Quantity: 3, UnitPrice: dec("8.00")}
		_, err = repo.CreateOrder(ctx, orderFor(item, item))
		require.NoError(t, err)

		p, err := repo.GetProduct(ctx, "needles-1")
		require.NoError(t, err)
		assert.Equal(t, 4, p.StockQuantity)

		item.Quantity = 5
		_, err = repo.CreateOrder(ctx, orderFor(item))
		var ce *ConstraintError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "items[0].quantity", ce.Field)
		assert.True(t, IsRejection(err))

		p, err = repo.GetProduct(ctx, "needles-1")
		require.NoError(t, err)
		assert.Equal(t, 4, p.StockQuantity, "a rejected order takes nothing")
	})
}

func TestSQLRepository_CreateOrderRejectsStalePrice(t *testing.T) {
	repo := setupSQLite(t)
	ctx := context.Background()
	_, err := repo.CreateProduct(ctx, yarnProduct())
	require.NoError(t, err)

	req := orderFor(OrderItem{
		ProductID:      "yarn-1",
		Quantity:       1,
		UnitPrice:      dec("12.50"),
		DeliveryCharge: dec("2.00"),
		Selections:     domain.Selections{{PropertyID: "weight", Value: "100g"}},
	})
	_, err = repo.CreateOrder(ctx, req)
	assert.ErrorIs(t, err, ErrAmountMismatch)
	assert.True(t, IsRejection(err))
}

func TestSQLRepository_CreateOrderRejectsBadTotal(t *testing.T) {
	repo := setupSQLite(t)
	ctx := context.Background()
	_, err := repo.CreateProduct(ctx, needleProduct())
	require.NoError(t, err)

	req := orderFor(OrderItem{ProductID: "needles-1", Quantity: 3, UnitPrice: dec("8.00")})
	req.Total = req.Total.Add(dec("0.02"))

	_, err = repo.CreateOrder(ctx, req)
	assert.ErrorIs(t, err, ErrAmountMismatch)
}

func TestSQLRepository_CreateOrderToleratesRounding(t *testing.T) {
	repo := setupSQLite(t)
	ctx := context.Background()
	_, err := repo.CreateProduct(ctx, needleProduct())
	require.NoError(t, err)

	req := orderFor(OrderItem{ProductID: "needles-1", Quantity: 3, UnitPrice: dec("8.00")})
	req.Total = req.Total.Add(dec("0.01"))

	_, err = repo.CreateOrder(ctx, req)
	assert.NoError(t, err)
}

func TestSQLRepository_CreateOrderRejectsUnknownProduct(t *testing.T) {
	repo := setupSQLite(t)
	req := orderFor(OrderItem{ProductID: "gone", Quantity: 1, UnitPrice: dec("5")})

	_, err := repo.CreateOrder(context.Background(), req)
	var ce *ConstraintError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "items[0].product_id", ce.Field)
}

func TestSQLRepository_CreatePayment(t *testing.T) {
	forEachDialect(t, func(t *testing.T, repo *SQLRepository) {
		ctx := context.Background()
		_, err := repo.CreateProduct(ctx, needleProduct())
		require.NoError(t, err)
		orderID, err := repo.CreateOrder(ctx, orderFor(OrderItem{
			ProductID: "needles-1", Quantity: 1, UnitPrice: dec("8.00"),
		}))
		require.NoError(t, err)

		_, err = repo.CreatePayment(ctx, PaymentRequest{
			OrderID:           orderID,
			Method:            PaymentCard,
			ExternalPaymentID: "pi_123",
			Amount:            dec("8.00"),
			Status:            PaymentCompleted,
			Details:           map[string]string{"last4": "4242"},
		})
		require.NoError(t, err)

		order, err := repo.GetOrder(ctx, orderID)
		require.NoError(t, err)
		assert.Equal(t, OrderPaid, order.Status)

		payments, err := repo.ListPayments(ctx, orderID)
		require.NoError(t, err)
		require.Len(t, payments, 1)
		assert.Equal(t, PaymentCompleted, payments[0].Status)

		_, err = repo.CreatePayment(ctx, PaymentRequest{
			OrderID:           orderID,
			Method:            PaymentCard,
			ExternalPaymentID: "pi_123",
			Amount:            dec("8.00"),
			Status:            PaymentCompleted,
		})
		var ce *ConstraintError
		assert.ErrorAs(t, err, &ce)
	})
}

func TestSQLRepository_CreatePaymentChecks(t *testing.T) {
	repo := setupSQLite(t)
	ctx := context.Background()

	_, err := repo.CreatePayment(ctx, PaymentRequest{
		OrderID: "missing", Method: PaymentCard, Amount: dec("1"), Status: PaymentPending,
	})
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = repo.CreateProduct(ctx, needleProduct())
	require.NoError(t, err)
	orderID, err := repo.CreateOrder(ctx, orderFor(OrderItem{
		ProductID: "needles-1", Quantity: 2, UnitPrice: dec("8.00"),
	}))
	require.NoError(t, err)

	_, err = repo.CreatePayment(ctx, PaymentRequest{
		OrderID: orderID, Method: PaymentPayPal, Amount: dec("8.00"), Status: PaymentPending,
	})
	assert.ErrorIs(t, err, ErrAmountMismatch)

	_, err = repo.CreatePayment(ctx, PaymentRequest{
		OrderID: orderID, Method: "cash", Amount: dec("16.00"), Status: PaymentPending,
	})
	var ce *ConstraintError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "method", ce.Field)
}

func TestSQLRepository_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	repo, err := NewSQLRepository(DialectSQLite, path)
	require.NoError(t, err)
	_, err = repo.CreateProduct(context.Background(), needleProduct())
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	reopened, err := NewSQLRepository(DialectSQLite, path)
	require.NoError(t, err)
	defer reopened.Close()

	p, err := reopened.GetProduct(context.Background(), "needles-1")
	require.NoError(t, err)
	require.NotNil(t, p.PriceMax)
	assert.True(t, p.PriceMax.Equal(dec("14")))
}

func TestNewSQLRepository_UnsupportedDialect(t *testing.T) {
	_, err := NewSQLRepository("oracle", "")
	assert.Error(t, err)
}
