package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/happydevs-studio/wool-witch/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrDuplicateProduct   = errors.New("product with this id already exists")
	ErrAmountMismatch     = errors.New("order amounts do not add up")
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// ConstraintError is returned when a write breaks an entity-level rule.
type ConstraintError struct {
	Field  string
	Reason string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint violation on %s: %s", e.Field, e.Reason)
}

// IsRejection reports whether err is a deliberate refusal by the backend
// rather than a transport or availability failure.
func IsRejection(err error) bool {
	var ce *ConstraintError
	return errors.Is(err, ErrAmountMismatch) || errors.As(err, &ce)
}

type Filter struct {
	Category string
	Search   string
	Limit    int
	Offset   int
}

// Key is a stable encoding of every filter parameter.
func (f Filter) Key() string {
	return fmt.Sprintf("c=%s|q=%s|l=%d|o=%d",
		strings.ToLower(f.Category), strings.ToLower(strings.TrimSpace(f.Search)), f.Limit, f.Offset)
}

type PaymentMethod string

const (
	PaymentCard         PaymentMethod = "card"
	PaymentPayPal       PaymentMethod = "paypal"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCard, PaymentPayPal, PaymentBankTransfer:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

func (s PaymentStatus) Valid() bool {
	return s == PaymentPending || s == PaymentCompleted || s == PaymentFailed
}

type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address"`
}

type OrderItem struct {
	ProductID      string            `json:"product_id"`
	ProductName    string            `json:"product_name"`
	Quantity       int               `json:"quantity"`
	UnitPrice      decimal.Decimal   `json:"unit_price"`
	DeliveryCharge decimal.Decimal   `json:"delivery_charge"`
	Selections     domain.Selections `json:"selections,omitempty"`
}

type OrderRequest struct {
	Customer      Customer
	Items         []OrderItem
	Subtotal      decimal.Decimal
	DeliveryTotal decimal.Decimal
	Total         decimal.Decimal
	PaymentMethod PaymentMethod
}

type PaymentRequest struct {
	OrderID           string
	Method            PaymentMethod
	ExternalPaymentID string
	Amount            decimal.Decimal
	Status            PaymentStatus
	Details           map[string]string
}

// Repository is the backend the storefront core talks to. Authorization is
// enforced behind it; a denied call surfaces as an ordinary error.
type Repository interface {
	ListProducts(ctx context.Context, f Filter) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
	ListCategories(ctx context.Context) ([]string, error)
	CreateProduct(ctx context.Context, p domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, p domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	CreateOrder(ctx context.Context, req OrderRequest) (string, error)
	CreatePayment(ctx context.Context, req PaymentRequest) (string, error)
}
