package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/shoestopper/checkout/internal/auth"
	"github.com/shoestopper/checkout/internal/cart"
	"github.com/shoestopper/checkout/internal/catalog"
	"github.com/shoestopper/checkout/internal/checkout"
	"github.com/shoestopper/checkout/internal/config"
	"github.com/shoestopper/checkout/internal/httpx"
	kafkax "github.com/shoestopper/checkout/internal/kafka"
	"github.com/shoestopper/checkout/internal/logging"
	"github.com/shoestopper/checkout/internal/mailer"
	"github.com/shoestopper/checkout/internal/orders"
	"github.com/shoestopper/checkout/internal/outbox"
	"github.com/shoestopper/checkout/internal/payment"
	"github.com/shoestopper/checkout/internal/postgres"
	"github.com/shoestopper/checkout/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.ServiceName)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// one producer per topic; the outbox relay is the only publisher
	producers := map[string]*kafkax.Producer{
		orders.TopicOrderConfirmed: kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderConfirmed),
		orders.TopicOrderPaid:      kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPaid),
		orders.TopicOrderCancelled: kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCancelled),
	}
	publishers := make(map[string]outbox.Publisher, len(producers))
	for topic, p := range producers {
		publishers[topic] = p
	}

	variants := &catalog.VariantRepo{DB: db}
	carts := &cart.Repo{DB: db}
	orderRepo := &orders.Repo{DB: db, Producer: cfg.ServiceName}
	mail := &mailer.LogMailer{Log: log}

	placer := &checkout.Service{
		Log:     log,
		Carts:   carts,
		Orders:  orderRepo,
		Service: cfg.ServiceName,
	}
	gate := &payment.Gate{
		Log:     log,
		Orders:  orderRepo,
		Codes:   &payment.RedisCodeStore{RDB: rdb, TTL: cfg.CodeTTL},
		Mailer:  mail,
		Service: cfg.ServiceName,
	}

	router := httpx.NewRouter()
	catalogHandler := &httpx.CatalogHandler{Repo: variants}
	catalogHandler.Register(router)

	ordersHandler := &httpx.OrdersHandler{Repo: orderRepo, Checkout: placer, Redis: rdb}
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(&auth.RedisResolver{RDB: rdb}))
		(&httpx.CartHandler{Repo: carts}).Register(r)
		ordersHandler.Register(r)
		(&httpx.PaymentHandler{Gate: gate}).Register(r)
	})
	router.Group(func(r chi.Router) {
		r.Use(httpx.AdminOnly(cfg.AdminToken))
		ordersHandler.RegisterAdmin(r)
		catalogHandler.RegisterAdmin(r)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	relay := &outbox.Relay{
		Log:       log,
		DB:        db,
		Producers: publishers,
		Interval:  cfg.OutboxInterval,
		BatchSize: cfg.OutboxBatchSize,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shCancel()
		return srv.Shutdown(shCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("exit", "err", err)
	}
	// the relay has exited by now; nothing publishes anymore
	for _, p := range producers {
		_ = p.Close()
	}
	log.Info("shutdown complete")
}
