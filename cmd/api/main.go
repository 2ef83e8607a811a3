package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-retail-fulfillment/internal/capital"
	"github.com/ariefcatur/go-retail-fulfillment/internal/config"
	"github.com/ariefcatur/go-retail-fulfillment/internal/fulfillment"
	"github.com/ariefcatur/go-retail-fulfillment/internal/handoff"
	"github.com/ariefcatur/go-retail-fulfillment/internal/httpx"
	"github.com/ariefcatur/go-retail-fulfillment/internal/inventory"
	kafkax "github.com/ariefcatur/go-retail-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-retail-fulfillment/internal/logx"
	"github.com/ariefcatur/go-retail-fulfillment/internal/memstore"
	"github.com/ariefcatur/go-retail-fulfillment/internal/metrics"
	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
	"github.com/ariefcatur/go-retail-fulfillment/internal/postgres"
	"github.com/ariefcatur/go-retail-fulfillment/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := logx.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New("retail")

	// Store
	var store orders.Store
	switch cfg.Store {
	case "memory":
		log.Warn("using in-memory store, data is lost on exit")
		store = memstore.New()
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
		if cfg.AutoMigrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				log.Fatal("db migrate", zap.Error(err))
			}
		}
		store = orders.NewRepo(db)
	}

	// Redis: idempotency, status cache, vendor lock
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	var (
		cache  *redis.Client
		idem   httpx.IdempotencyStore
		locker fulfillment.Locker
	)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis unavailable, falling back to in-process locks", zap.Error(err))
	} else {
		cache = rdb
		idem = redisx.NewIdempotency(rdb)
		locker = redisx.NewLocker(rdb, cfg.VendorLockTTL, log)
	}

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start(ctx)

	inv := inventory.NewLedger(store, log,
		inventory.WithMetrics(m),
		inventory.WithLowStockThreshold(cfg.LowStockThreshold),
	)
	capl := capital.NewLedger(store, log,
		capital.WithMetrics(m),
		capital.WithRetryPolicy(capital.RetryPolicy{
			MaxAttempts: cfg.LedgerMaxRetries,
			BaseDelay:   cfg.LedgerRetryBase,
			MaxDelay:    cfg.LedgerRetryBase * 16,
		}),
	)
	dispatcher := handoff.NewDispatcher(prod, cfg.ServiceName, handoff.NewBreaker(handoff.DefaultBreakerConfig("kafka-handoff"), log), log)
	svc := fulfillment.NewService(store, inv, capl, log, fulfillment.Options{
		DefaultDeliveryFee: decimal.NewNullDecimal(cfg.DefaultDeliveryFee),
		ServiceName:        cfg.ServiceName,
		Publisher:          prod,
		Dispatcher:         dispatcher,
		Locker:             locker,
		Metrics:            m,
	})

	router := httpx.NewRouter(log, m)
	(&httpx.OrdersHandler{Service: svc, Redis: cache, Idempotency: idem, Log: log}).Register(router)
	(&httpx.LedgerHandler{Inventory: inv, Capital: capl, Log: log}).Register(router)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // tutup inbox -> flush & close writer
	cancel()          // stop producer loop
	prod.WaitClosed() // drain
}
