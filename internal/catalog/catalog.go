// Package catalog serves product reads through the two-tier cache and keeps
// cached copies honest after admin writes.
package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/happydevs-studio/wool-witch/internal/cache"
	"github.com/happydevs-studio/wool-witch/internal/domain"
	"github.com/happydevs-studio/wool-witch/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	keyProductList = "products:list:"
	keyProduct     = "products:id:"
	keyProductSet  = "products:ids:"
	keyCategories  = "categories"
)

// TTLs are the cache lifetimes per class of read. Lists and categories change
// rarely; product detail carries price and stock and is kept short.
type TTLs struct {
	List   time.Duration
	Detail time.Duration
}

func DefaultTTLs() TTLs {
	return TTLs{List: 30 * time.Minute, Detail: 5 * time.Minute}
}

type Catalog struct {
	repo   repository.Repository
	cache  *cache.Cache
	ttl    TTLs
	log    *zap.Logger
	tracer trace.Tracer
}

func New(repo repository.Repository, c *cache.Cache, ttl TTLs, log *zap.Logger) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	return &Catalog{
		repo:   repo,
		cache:  c,
		ttl:    ttl,
		log:    log,
		tracer: otel.Tracer("github.com/happydevs-studio/wool-witch/internal/catalog"),
	}
}

func (c *Catalog) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "catalog."+name, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (c *Catalog) Products(ctx context.Context, f repository.Filter) (products []domain.Product, err error) {
	ctx, span := c.span(ctx, "Products", attribute.String("filter", f.Key()))
	defer func() { finish(span, err) }()

	return cache.Fetch(ctx, c.cache, keyProductList+f.Key(), c.ttl.List,
		func(ctx context.Context) ([]domain.Product, error) {
			return c.repo.ListProducts(ctx, f)
		})
}

// Product returns one product by id. Not-found answers are not cached, so a
// product created later shows up on the next call.
func (c *Catalog) Product(ctx context.Context, id string) (product *domain.Product, err error) {
	ctx, span := c.span(ctx, "Product", attribute.String("product.id", id))
	defer func() { finish(span, err) }()

	p, err := cache.Fetch(ctx, c.cache, keyProduct+id, c.ttl.Detail,
		func(ctx context.Context) (domain.Product, error) {
			p, err := c.repo.GetProduct(ctx, id)
			if err != nil {
				return domain.Product{}, err
			}
			return *p, nil
		})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ProductsByIDs returns the products that still exist among ids. The result
// is cached under the sorted id set with the detail TTL.
func (c *Catalog) ProductsByIDs(ctx context.Context, ids []string) (products []domain.Product, err error) {
	if len(ids) == 0 {
		return []domain.Product{}, nil
	}
	ctx, span := c.span(ctx, "ProductsByIDs", attribute.Int("product.count", len(ids)))
	defer func() { finish(span, err) }()

	sorted := uniqueSorted(ids)
	return cache.Fetch(ctx, c.cache, keyProductSet+strings.Join(sorted, ","), c.ttl.Detail,
		func(ctx context.Context) ([]domain.Product, error) {
			return c.repo.GetProductsByIDs(ctx, sorted)
		})
}

func uniqueSorted(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (c *Catalog) Categories(ctx context.Context) (categories []string, err error) {
	ctx, span := c.span(ctx, "Categories")
	defer func() { finish(span, err) }()

	return cache.Fetch(ctx, c.cache, keyCategories, c.ttl.List, c.repo.ListCategories)
}

func (c *Catalog) CreateProduct(ctx context.Context, p domain.Product) (created *domain.Product, err error) {
	ctx, span := c.span(ctx, "CreateProduct", attribute.String("product.id", p.ID))
	defer func() { finish(span, err) }()

	created, err = c.repo.CreateProduct(ctx, p)
	if err != nil {
		return nil, err
	}
	cache.Put(ctx, c.cache, keyProduct+created.ID, c.ttl.Detail, *created)
	c.invalidateCollections(ctx)
	return created, nil
}

func (c *Catalog) UpdateProduct(ctx context.Context, p domain.Product) (updated *domain.Product, err error) {
	ctx, span := c.span(ctx, "UpdateProduct", attribute.String("product.id", p.ID))
	defer func() { finish(span, err) }()

	updated, err = c.repo.UpdateProduct(ctx, p)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			c.InvalidateProducts(ctx, p.ID)
		}
		return nil, err
	}
	cache.Put(ctx, c.cache, keyProduct+updated.ID, c.ttl.Detail, *updated)
	c.invalidateCollections(ctx)
	return updated, nil
}

func (c *Catalog) DeleteProduct(ctx context.Context, id string) (err error) {
	ctx, span := c.span(ctx, "DeleteProduct", attribute.String("product.id", id))
	defer func() { finish(span, err) }()

	err = c.repo.DeleteProduct(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrProductNotFound) {
		return err
	}
	c.InvalidateProducts(ctx, id)
	return err
}

// InvalidateProducts drops the detail entries of ids along with every list
// and id-set entry that may contain them. Failures are logged; the entries
// still age out on their TTL.
func (c *Catalog) InvalidateProducts(ctx context.Context, ids ...string) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyProduct + id
	}
	if err := c.cache.Invalidate(ctx, keys...); err != nil {
		c.log.Warn("failed to invalidate product entries", zap.Strings("product_ids", ids), zap.Error(err))
	}
	c.invalidateCollections(ctx)
}

func (c *Catalog) invalidateCollections(ctx context.Context) {
	for _, prefix := range []string{keyProductList, keyProductSet} {
		if err := c.cache.InvalidatePrefix(ctx, prefix); err != nil {
			c.log.Warn("failed to invalidate cached collections", zap.String("prefix", prefix), zap.Error(err))
		}
	}
	if err := c.cache.Invalidate(ctx, keyCategories); err != nil {
		c.log.Warn("failed to invalidate categories", zap.Error(err))
	}
}
