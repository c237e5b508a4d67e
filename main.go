package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"tg_shop/auth"
	"tg_shop/internal/api"
	"tg_shop/internal/cache"
	"tg_shop/internal/cart"
	"tg_shop/internal/config"
	db "tg_shop/internal/database"
	"tg_shop/internal/events"
	"tg_shop/internal/handlers"
	"tg_shop/internal/logger"
	"tg_shop/internal/metrics"
	"tg_shop/internal/orders"
	"tg_shop/internal/payment"
	"tg_shop/internal/session"
	"tg_shop/internal/utils"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Ошибка конфигурации:", err)
		os.Exit(1)
	}
	log, level, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Ошибка логгера:", err)
		os.Exit(1)
	}
	defer log.Sync()

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatal("telegram auth failed", zap.Error(err))
	}

	if len(os.Args) > 1 && os.Args[1] == "setwebhook" {
		if err := utils.SetWebhook(bot, cfg.BotURL); err != nil {
			log.Fatal("set webhook failed", zap.Error(err))
		}
		log.Info("webhook set", zap.String("url", cfg.BotURL))
		return
	}

	if err := run(cfg, bot, log, level); err != nil {
		log.Fatal("shop stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, bot *tgbotapi.BotAPI, log *zap.Logger, level zap.AtomicLevel) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	utils.Currency = cfg.Currency

	DB, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("ошибка подключения к базе: %w", err)
	}
	if err := db.Migrate(DB); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if cfg.SeedDemoData {
		if err := db.SeedTestData(DB); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	// redis необязателен: без него кэш читает из БД, а мастер живёт в памяти процесса
	var rdb redis.Cmdable
	sessions := session.Store(session.NewMemoryStore())
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opt)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		rdb = client
		sessions = session.NewRedisStore(client, session.DefaultTTL)
	}

	if rdb != nil && cfg.RefreshInterval > 0 {
		refresher := config.NewRefresher(rdb, cfg.Env, cfg.Tunables, log)
		refresher.OnChange = func(changed []string) {
			if slices.Contains(changed, "log_level") {
				if err := logger.SetLevel(level, cfg.Tunables.LogLevel()); err != nil {
					log.Warn("log level not applied", zap.Error(err))
				}
			}
		}
		if err := refresher.Refresh(ctx); err != nil {
			log.Warn("initial runtime config refresh failed", zap.Error(err))
		}
		go refresher.Run(ctx, cfg.RefreshInterval)
	}

	pub, err := events.New(cfg, log)
	if err != nil {
		return fmt.Errorf("events: %w", err)
	}
	defer pub.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	orderSvc := orders.New(DB, pub, m, log)
	cartSvc := cart.New(DB, log)
	payments := payment.New(orderSvc, cfg.Tunables, cfg.PaymentAPIKey, log)
	users := cache.NewUserCache(rdb, DB, cache.DefaultTTL, log)

	dispatcher := handlers.New(handlers.Deps{
		DB:       DB,
		Bot:      bot,
		Auth:     auth.New(cfg.AdminIDs),
		Cart:     cartSvc,
		Orders:   orderSvc,
		Payments: payments,
		Users:    users,
		Sessions: sessions,
		Metrics:  m,
		Tunables: cfg.Tunables,
		Log:      log,
	})

	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	deps := api.Deps{
		DB:       DB,
		Users:    users,
		Cart:     cartSvc,
		Orders:   orderSvc,
		Payments: payments,
		Metrics:  m,
		Log:      log,
	}
	if cfg.BotMode == config.BotModeWebhook {
		deps.Webhook = dispatcher.Webhook
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("http server started", zap.String("addr", cfg.HTTPAddr), zap.String("bot_mode", cfg.BotMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	if cfg.BotMode == config.BotModePolling {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := bot.GetUpdatesChan(u)
		go dispatcher.Poll(ctx, updates)
		log.Info("polling started", zap.String("bot", bot.Self.UserName))
	}

	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	}

	log.Info("shutting down")
	if cfg.BotMode == config.BotModePolling {
		bot.StopReceivingUpdates()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
