package main // Entry point of the booking API

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/iliyamo/pitch-booking/internal/cache"
	"github.com/iliyamo/pitch-booking/internal/config"
	"github.com/iliyamo/pitch-booking/internal/database"
	"github.com/iliyamo/pitch-booking/internal/handler"
	"github.com/iliyamo/pitch-booking/internal/logging"
	"github.com/iliyamo/pitch-booking/internal/middleware"
	"github.com/iliyamo/pitch-booking/internal/observability/metrics"
	"github.com/iliyamo/pitch-booking/internal/queue"
	"github.com/iliyamo/pitch-booking/internal/repository"
	"github.com/iliyamo/pitch-booking/internal/router"
	"github.com/iliyamo/pitch-booking/internal/scheduling"
)

func main() {
	if os.Getenv("APP_ENV") != "prod" {
		_ = godotenv.Load() // .env is optional outside production
	}
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal("mysql unavailable", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	// Redis is optional: without it the slot cache and the rate limiter
	// are off.
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Warn("redis unavailable, slot cache and rate limiting disabled", zap.Error(err))
	} else {
		defer func() { _ = rdb.Close() }()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts, err := cfg.ScheduleOptions()
	if err != nil {
		log.Fatal("invalid schedule options", zap.Error(err))
	}
	extra := []scheduling.Option{
		scheduling.WithLogger(log.Named("scheduling")),
		scheduling.WithMetrics(metrics.NewSchedulingMetrics(reg)),
	}
	if cc := cfg.Cache(); cc.Enabled && rdb != nil {
		extra = append(extra, scheduling.WithSlotCache(cache.NewSlotCache(rdb, cc.Prefix, cc.TTL, log.Named("cache"))))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	brokerURL := cfg.BrokerURL()
	pub, err := queue.NewPublisher(brokerURL, cfg.EventsExchange, log.Named("events"))
	if err != nil {
		log.Warn("rabbitmq unavailable, appointment events will be dropped", zap.Error(err))
	} else {
		defer func() { _ = pub.Close() }()
		extra = append(extra, scheduling.WithEvents(pub))

		audit := &queue.AuditConsumer{
			URL:      brokerURL,
			Exchange: cfg.EventsExchange,
			Queue:    cfg.EventsAuditQueue,
			Dir:      cfg.EventsLogDir,
			Log:      log.Named("audit"),
		}
		go func() {
			if err := audit.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit consumer stopped", zap.Error(err))
			}
		}()
	}

	svc := scheduling.NewService(
		repository.NewAppointmentRepo(db),
		repository.NewFieldRepo(db),
		opts,
		extra...,
	)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log.Named("http")))

	router.RegisterRoutes(e, reg)
	router.RegisterAppointments(e,
		handler.NewAppointmentHandler(svc, log.Named("handler")),
		cfg.JWTSecret,
		middleware.NewTokenBucket(cfg.RateLimit(), rdb, log.Named("ratelimit")),
	)

	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
	}
}
