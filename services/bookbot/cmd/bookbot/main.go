package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/twclinics/groupbook/libs/config"
	"github.com/twclinics/groupbook/libs/db"
	"github.com/twclinics/groupbook/libs/httpx"
	"github.com/twclinics/groupbook/libs/kafkax"
	otelx "github.com/twclinics/groupbook/libs/otel"
	"github.com/twclinics/groupbook/libs/redisx"
	"github.com/twclinics/groupbook/libs/runtime"
	"github.com/twclinics/groupbook/services/bookbot/internal/authz"
	"github.com/twclinics/groupbook/services/bookbot/internal/booking"
	"github.com/twclinics/groupbook/services/bookbot/internal/handlers"
	"github.com/twclinics/groupbook/services/bookbot/internal/notify"
	"github.com/twclinics/groupbook/services/bookbot/internal/outbox"
	"github.com/twclinics/groupbook/services/bookbot/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "bookbot")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr: config.String("REDIS_ADDR", "localhost:6379"),
	})
	defer rdb.Close()

	outboxRepo := outbox.NewRepository(pool)
	appts := storage.NewAppointmentRepository(pool, outboxRepo)
	states := storage.NewGroupStateRepository(pool)
	staff := storage.NewStaffRepository(pool)
	gate := authz.NewPGGate(pool)

	gateway, err := notify.NewGateway(logger, notify.Config{
		WebhookURL:   config.String("CHAT_WEBHOOK_URL", ""),
		WebhookToken: config.String("CHAT_WEBHOOK_TOKEN", ""),
		GRPCAddr:     config.String("NOTIFY_GRPC_ADDR", ""),
	})
	if err != nil {
		logger.Error("notify gateway init failed", "err", err)
		gateway = notify.NewNoopGateway()
	}

	locker := redisx.NewLocker(rdb, redisx.LockerConfig{
		TTL:    10 * time.Second,
		Prefix: "grouplock",
	})

	svc := booking.NewService(logger, states, appts, gate, gateway, locker, booking.ServiceConfig{})

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	eventsHandler := handlers.NewEventsHandler(svc, logger)
	adminHandler := handlers.NewAdminHandler(svc, appts, staff, gate, logger, jwtSecret, 12*time.Hour)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/events", eventsHandler.Receive)
	mux.HandleFunc("/api/v1/customer/appointments", eventsHandler.ListMine)
	mux.HandleFunc("/api/v1/customer/cancel", eventsHandler.CancelMine)
	mux.HandleFunc("/api/v1/customer/modify", eventsHandler.ModifyMine)
	mux.HandleFunc("/api/v1/admin/login", adminHandler.Login)
	mux.HandleFunc("/api/v1/admin/appointments", adminHandler.List)
	mux.HandleFunc("/api/v1/admin/appointments/confirm", adminHandler.Confirm)
	mux.HandleFunc("/api/v1/admin/appointments/cancel", adminHandler.Cancel)
	mux.HandleFunc("/api/v1/admin/appointments/complete", adminHandler.Complete)
	mux.HandleFunc("/api/v1/admin/appointments/delete", adminHandler.Delete)
	mux.HandleFunc("/api/v1/admin/stats", adminHandler.Stats)
	mux.HandleFunc("/api/v1/admin/groups/authorize", adminHandler.AuthorizeGroup)
	mux.HandleFunc("/api/v1/admin/groups/revoke", adminHandler.RevokeGroup)

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1 << 20),
		httpx.WithTimeout(15 * time.Second),
	}
	if origins := config.String("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		middlewares = append(middlewares, httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(origins, ","),
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}))
	}
	if limit, err := strconv.Atoi(config.String("RATE_LIMIT_PER_MINUTE", "0")); err == nil && limit > 0 {
		rl := httpx.NewRedisRateLimiter(rdb, limit, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		middlewares = append(middlewares, rl.Middleware(logger, true))
	}
	httpHandler := httpx.Chain(mux, middlewares...)
	httpHandler = otelhttp.NewHandler(httpHandler, "bookbot")

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
