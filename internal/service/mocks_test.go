package service

import (
	"context"
	"sync"

	"github.com/happydevs-studio/wool-witch/internal/domain"
	"github.com/happydevs-studio/wool-witch/internal/publisher"
	"github.com/happydevs-studio/wool-witch/internal/repository"
)

// MockProducts implements validator.ProductSource
type MockProducts struct {
	mu       sync.Mutex
	Products map[string]domain.Product
	Err      error
	Calls    int
}

func (m *MockProducts) ProductsByIDs(_ context.Context, ids []string) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	var out []domain.Product
	for _, id := range ids {
		if p, ok := m.Products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// MockRepository implements repository.Repository for checkout tests
type MockRepository struct {
	mu         sync.Mutex
	Order      *repository.OrderRequest
	Payment    *repository.PaymentRequest
	OrderErr   error
	PaymentErr error
}

func (m *MockRepository) ListProducts(context.Context, repository.Filter) ([]domain.Product, error) {
	return nil, nil
}

func (m *MockRepository) GetProduct(context.Context, string) (*domain.Product, error) {
	return nil, repository.ErrProductNotFound
}

func (m *MockRepository) GetProductsByIDs(context.Context, []string) ([]domain.Product, error) {
	return nil, nil
}

func (m *MockRepository) ListCategories(context.Context) ([]string, error) {
	return nil, nil
}

func (m *MockRepository) CreateProduct(_ context.Context, p domain.Product) (*domain.Product, error) {
	return &p, nil
}

func (m *MockRepository) UpdateProduct(_ context.Context, p domain.Product) (*domain.Product, error) {
	return &p, nil
}

func (m *MockRepository) DeleteProduct(context.Context, string) error {
	return nil
}

func (m *MockRepository) CreateOrder(_ context.Context, req repository.OrderRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Order = &req
	if m.OrderErr != nil {
		return "", m.OrderErr
	}
	return "order-1", nil
}

func (m *MockRepository) CreatePayment(_ context.Context, req repository.PaymentRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Payment = &req
	if m.PaymentErr != nil {
		return "", m.PaymentErr
	}
	return "payment-1", nil
}

// MockInvalidator records invalidated product ids
type MockInvalidator struct {
	mu  sync.Mutex
	IDs []string
}

func (m *MockInvalidator) InvalidateProducts(_ context.Context, ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IDs = append(m.IDs, ids...)
}

// MockPublisher implements publisher.Publisher
type MockPublisher struct {
	mu     sync.Mutex
	Events []publisher.OrderPlaced
	Err    error
}

func (m *MockPublisher) PublishOrderPlaced(_ context.Context, event publisher.OrderPlaced) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
	return m.Err
}

func (m *MockPublisher) Close() error {
	return nil
}
