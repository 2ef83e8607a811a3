package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-retail-fulfillment/internal/config"
	"github.com/ariefcatur/go-retail-fulfillment/internal/handoff"
	kafkax "github.com/ariefcatur/go-retail-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-retail-fulfillment/internal/logx"
	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
	"github.com/ariefcatur/go-retail-fulfillment/internal/redisx"
)

// dispatcher forwards delivery.dispatch events to the carrier intake endpoint.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	service := cfg.ServiceName + "-dispatcher"
	log, err := logx.New(cfg.LogLevel, service)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	fwd := handoff.NewForwarder(
		cfg.CarrierIntakeURL,
		nil,
		redisx.NewDeduper(rdb, service),
		handoff.NewBreaker(handoff.DefaultBreakerConfig("carrier-intake"), log),
		log,
	)

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.DispatchGroup, orders.TopicDispatch, cfg.DispatchWorkers, log)

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("dispatch consumer started",
			zap.String("group", cfg.DispatchGroup),
			zap.String("topic", orders.TopicDispatch),
			zap.Int("workers", cfg.DispatchWorkers),
		)
		if err := cons.Start(ctx, fwd.Handle); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Info("shutting down consumer")
	case <-ctx.Done():
	}
	cancel()
	<-done
}
