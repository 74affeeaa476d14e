package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/shop-bot/internal/auth"
	"github.com/example/shop-bot/internal/bot"
	"github.com/example/shop-bot/internal/catalog"
	"github.com/example/shop-bot/internal/config"
	"github.com/example/shop-bot/internal/domain/order"
	"github.com/example/shop-bot/internal/infrastructure/kafka"
	"github.com/example/shop-bot/internal/infrastructure/store"
	"github.com/example/shop-bot/internal/metrics"
	"github.com/example/shop-bot/internal/payment"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Bot] Invalid configuration: %v", err)
	}
	admins, err := auth.ParseAdmins(cfg.AdminIDs)
	if err != nil {
		log.Fatalf("[Bot] Invalid ADMIN_IDS: %v", err)
	}
	if admins.Len() == 0 {
		log.Println("[Bot] WARNING: ADMIN_IDS is empty, nobody can confirm or ship orders")
	}

	log.Println("[Bot] ========================================")
	log.Println("[Bot] Shop Bot")
	log.Println("[Bot] ========================================")
	log.Printf("[Bot] Payment gateway: %s (%s)", cfg.PaymentAPIURL, cfg.PaymentCurrency)
	log.Printf("[Bot] Administrators: %d", admins.Len())

	m := metrics.New()
	orderStore, closeStore := openStore(ctx, cfg)
	defer closeStore()

	opts := []order.Option{order.WithMetrics(m)}
	if cfg.LenientLifecycle {
		log.Println("[Bot] Lifecycle transitions are NOT guarded")
		opts = append(opts, order.WithLenientTransitions())
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		opts = append(opts, order.WithPublisher(producer))
		log.Printf("[Bot] Publishing order events to %s on %v", cfg.KafkaTopic, cfg.KafkaBrokers)
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("[Bot] Failed to connect to Telegram: %v", err)
	}
	api.Debug = cfg.BotDebug
	log.Printf("[Bot] Authorized as @%s", api.Self.UserName)

	gateway := &payment.Client{
		BaseURL:       cfg.PaymentAPIURL,
		APIKey:        cfg.PaymentAPIKey,
		WalletAddress: cfg.PaymentWalletAddress,
		Currency:      cfg.PaymentCurrency,
		Timeout:       cfg.PaymentTimeout,
		HTTP:          &http.Client{Timeout: cfg.PaymentTimeout},
		Metrics:       m,
	}

	cat := catalog.Default()
	orderSvc := order.NewService(cat, gateway, orderStore, bot.NewNotifier(api), opts...)
	router := bot.NewRouter(bot.RouterConfig{
		Orders:          orderSvc,
		Menu:            cat,
		Admins:          admins,
		Metrics:         m,
		Currency:        cfg.PaymentCurrency,
		OrdersPerMinute: cfg.OrderRateLimit,
	})

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			log.Printf("[Bot] Metrics on %s/metrics", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[Bot] Metrics server error: %v", err)
			}
		}()
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Println("[Bot] Polling for updates...")
		if err := bot.NewTelegram(api, router).Run(ctx, updates); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[Bot] Update loop stopped: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-done:
	}

	log.Println("[Bot] Shutting down...")
	api.StopReceivingUpdates()
	cancel()
	<-done

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		metricsServer.Shutdown(shutdownCtx)
	}
}

// openStore picks the order backend: PostgreSQL, then Redis, then memory.
func openStore(ctx context.Context, cfg config.Config) (order.Store, func()) {
	switch {
	case cfg.DatabaseURL != "":
		db, err := store.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("[Bot] Failed to connect to PostgreSQL: %v", err)
		}
		s, err := store.NewPostgresOrderStore(ctx, db)
		if err != nil {
			log.Fatalf("[Bot] Failed to prepare orders table: %v", err)
		}
		log.Println("[Bot] Order store: PostgreSQL")
		return s, func() { db.Close() }
	case cfg.RedisAddr != "":
		client, err := store.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatalf("[Bot] Failed to connect to Redis: %v", err)
		}
		log.Printf("[Bot] Order store: Redis (%s)", cfg.RedisAddr)
		return store.NewRedisOrderStore(client), func() { client.Close() }
	default:
		log.Println("[Bot] Order store: in-memory (orders are lost on restart)")
		return store.NewMemoryOrderStore(), func() {}
	}
}
