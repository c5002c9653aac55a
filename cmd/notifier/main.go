package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/shoestopper/checkout/internal/config"
	kafkax "github.com/shoestopper/checkout/internal/kafka"
	"github.com/shoestopper/checkout/internal/logging"
	"github.com/shoestopper/checkout/internal/mailer"
	"github.com/shoestopper/checkout/internal/notifier"
	"github.com/shoestopper/checkout/internal/orders"
	"github.com/shoestopper/checkout/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.ServiceName + "-notifier")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notifier.Service{
		Log:    log,
		Redis:  rdb,
		Mailer: &mailer.LogMailer{Log: log},
	}

	group := getenv("NOTIFIER_GROUP", "notifier-svc")
	workers := mustAtoi(os.Getenv("NOTIFIER_WORKERS"), 4)

	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range []string{orders.TopicOrderConfirmed, orders.TopicOrderPaid, orders.TopicOrderCancelled} {
		cons := kafkax.NewConsumer(log, cfg.KafkaBrokers, group, topic, workers)
		g.Go(func() error {
			log.Info("notifier consumer started", "group", group, "topic", topic, "workers", workers)
			return cons.Start(gctx, svc.Handle)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("consumer exit", "err", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
