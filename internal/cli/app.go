package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/happydevs-studio/wool-witch/internal/cache"
	"github.com/happydevs-studio/wool-witch/internal/cart"
	"github.com/happydevs-studio/wool-witch/internal/catalog"
	"github.com/happydevs-studio/wool-witch/internal/config"
	"github.com/happydevs-studio/wool-witch/internal/publisher"
	"github.com/happydevs-studio/wool-witch/internal/repository"
	"github.com/happydevs-studio/wool-witch/internal/service"
	"github.com/happydevs-studio/wool-witch/internal/storage"
	"github.com/happydevs-studio/wool-witch/internal/validator"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App is one wired storefront: durable storage, the backend behind its
// circuit breaker, the cache and everything reading through it.
type App struct {
	Config     config.Config
	Log        *zap.Logger
	Store      storage.Store
	Orders     *repository.SQLRepository
	Backend    *repository.Breaker
	Cache      *cache.Cache
	Catalog    *catalog.Catalog
	Cart       *cart.Store
	Validator  *validator.Validator
	Publisher  publisher.Publisher
	Storefront *service.Storefront
	Checkout   *service.Checkout
}

func NewApp(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}

	store, err := openStorage(ctx, cfg.Storage, log)
	if err != nil {
		return nil, err
	}

	orders, err := repository.NewSQLRepository(repository.Dialect(cfg.Backend.Driver), cfg.Backend.DSN)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open backend: %w", err)
	}

	backend := repository.NewBreaker(orders, repository.BreakerSettings{
		Name:                "backend",
		ConsecutiveFailures: cfg.Backend.Breaker.ConsecutiveFailures,
		OpenTimeout:         cfg.Backend.Breaker.OpenTimeout,
		HalfOpenRequests:    cfg.Backend.Breaker.HalfOpenRequests,
	}, log)

	c := cache.New(
		cache.WithDurable(store),
		cache.WithPrefix(cfg.Cache.Prefix),
		cache.WithStaleGrace(cfg.Cache.StaleGrace),
		cache.WithLogger(log.Named("cache")),
	)
	cat := catalog.New(backend, c, catalog.TTLs{List: cfg.Cache.CatalogTTL, Detail: cfg.Cache.ProductTTL}, log.Named("catalog"))

	var pub publisher.Publisher = publisher.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		pub = publisher.NewKafkaPublisher(cfg.Kafka.Topic, cfg.Kafka.Brokers...)
	}

	crt := cart.Load(ctx, store, cart.WithLogger(log.Named("cart")))
	v := validator.New(cat)

	return &App{
		Config:     cfg,
		Log:        log,
		Store:      store,
		Orders:     orders,
		Backend:    backend,
		Cache:      c,
		Catalog:    cat,
		Cart:       crt,
		Validator:  v,
		Publisher:  pub,
		Storefront: service.NewStorefront(crt, c, v, log.Named("storefront")),
		Checkout:   service.NewCheckout(crt, v, backend, cat, pub, log.Named("checkout")),
	}, nil
}

func openStorage(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (storage.Store, error) {
	switch cfg.Driver {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "sqlite":
		st, err := storage.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		if n, err := st.PurgeExpired(ctx); err != nil {
			log.Warn("failed to purge expired storage rows", zap.Error(err))
		} else if n > 0 {
			log.Debug("purged expired storage rows", zap.Int64("rows", n))
		}
		return st, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return storage.NewRedisStore(client, cfg.Redis.Namespace), nil
	case "mongo":
		db, err := storage.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		st := storage.NewMongoStore(db, cfg.Mongo.Collection)
		if err := st.CreateIndexes(ctx); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Close waits for background cache refreshes before releasing the stores
// they write to.
func (a *App) Close() error {
	a.Cache.Close()
	return errors.Join(
		a.Publisher.Close(),
		a.Orders.Close(),
		a.Store.Close(),
	)
}
