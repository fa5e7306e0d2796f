package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/CaseHive/fulfillsync/config"
	"github.com/CaseHive/fulfillsync/internal/broker/kafka"
	"github.com/CaseHive/fulfillsync/internal/cache/rediscache"
	"github.com/CaseHive/fulfillsync/internal/integrations/supplier"
	"github.com/CaseHive/fulfillsync/internal/integrations/supplier/aliexpresshttp"
	"github.com/CaseHive/fulfillsync/internal/integrations/supplier/cjhttp"
	"github.com/CaseHive/fulfillsync/internal/integrations/supplier/fake"
	"github.com/CaseHive/fulfillsync/internal/models"
	"github.com/CaseHive/fulfillsync/internal/services/reconciler"
	"github.com/CaseHive/fulfillsync/internal/storage/pgorders"
)

type workerFactories struct {
	newStorage     func(cfg *config.Config) (store reconciler.Store, closeFn func(), err error)
	newProducer    func(cfg *config.Config) reconciler.Producer
	newRateLimiter func(cfg *config.Config) reconciler.RateLimiter
	newRegistry    func(cfg *config.Config) supplier.Registry
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (reconciler.Store, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgorders.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) reconciler.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) reconciler.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newRegistry: newSupplierRegistry,
	}
}

// newSupplierRegistry wires the live AliExpress/CJ adapters when supplier_mode
// is "live" and their base URLs are configured. Anything else gets the local
// fake for both supplier codes (dev/demo).
func newSupplierRegistry(cfg *config.Config) supplier.Registry {
	fs := cfg.FulfillSync
	if fs.SupplierMode == "live" {
		reg := supplier.Registry{}
		if fs.AliExpressBaseURL != "" {
			reg[models.SupplierAliExpress] = supplier.Entry{
				Client:    aliexpresshttp.New(fs.AliExpressBaseURL, fs.AliExpressAppKey),
				MapStatus: aliexpresshttp.MapStatus,
			}
		}
		if fs.CJBaseURL != "" {
			reg[models.SupplierCJDropship] = supplier.Entry{
				Client:    cjhttp.New(fs.CJBaseURL, fs.CJAccessToken),
				MapStatus: cjhttp.MapStatus,
			}
		}
		if len(reg) > 0 {
			return reg
		}
	}
	fc := fake.New()
	return supplier.Registry{
		models.SupplierAliExpress: {Client: fc, MapStatus: fake.MapStatus},
		models.SupplierCJDropship: {Client: fc, MapStatus: fake.MapStatus},
	}
}

func RunFulfillWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	topic := cfg.Kafka.FulfillmentUpdatedTopicName
	if topic == "" {
		topic = "order.fulfillment.updated"
	}

	interval := time.Duration(cfg.FulfillSync.ReconcileIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	pageSize := cfg.FulfillSync.ReconcilePageSize
	if pageSize <= 0 {
		pageSize = 200
	}
	concurrency := cfg.FulfillSync.ReconcileConcurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	rlPerMin := int64(cfg.FulfillSync.RateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 120
	}

	store, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer := f.newProducer(cfg)
	rl := f.newRateLimiter(cfg)
	registry := f.newRegistry(cfg)

	engine := reconciler.New(store, registry, producer, rl, topic).
		WithSettings(pageSize, concurrency, rlPerMin)
	if n := cfg.FulfillSync.RateLimitAliExpressPerMinute; n > 0 {
		engine = engine.WithSupplierRateLimit(models.SupplierAliExpress, int64(n))
	}
	if n := cfg.FulfillSync.RateLimitCJPerMinute; n > 0 {
		engine = engine.WithSupplierRateLimit(models.SupplierCJDropship, int64(n))
	}

	sched := reconciler.NewScheduler(engine, interval)

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    cfg.FulfillSync.WorkerHTTPAddr,
			swaggerPath: os.Getenv("swaggerPath"),
			scheduler:   sched,
			cfg:         cfg,
		})
	}()

	schedErr := make(chan error, 1)
	go func() {
		schedErr <- sched.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-schedErr:
		return err
	case err := <-httpErr:
		return err
	}
}
