package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yw9142/ProjectBridge-sub000/libs/config"
	"github.com/yw9142/ProjectBridge-sub000/libs/db"
	"github.com/yw9142/ProjectBridge-sub000/libs/httpx"
	"github.com/yw9142/ProjectBridge-sub000/libs/kafkax"
	otelx "github.com/yw9142/ProjectBridge-sub000/libs/otel"
	"github.com/yw9142/ProjectBridge-sub000/libs/runtime"
	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/dispatch"
	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/fanout"
	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/feed"
	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/identity"
	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/membership"
	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/notifications"
	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/outbox"
	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/push"
	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/requests"
)

func main() {
	service := config.String("SERVICE_NAME", "collab-service")
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
	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	members, err := membership.NewDirectoryProvider(logger, pool, config.String("DIRECTORY_GRPC_ADDR", ""))
	if err != nil {
		logger.Error("directory provider setup failed", "err", err)
		panic(err)
	}

	outboxRepo := outbox.NewRepository(pool)
	producer := outbox.NewProducer(outboxRepo)
	inboxRepo := notifications.NewRepository(pool)
	registry := push.NewRegistry(logger)
	resolver := fanout.NewResolver(members)

	worker := dispatch.NewWorker(pool, outboxRepo, inboxRepo, resolver, registry, logger, dispatch.WorkerConfig{
		Interval:  config.Duration("DISPATCH_INTERVAL", 1*time.Second),
		BatchSize: config.Int("DISPATCH_BATCH_SIZE", 100),
	})
	go worker.Run(ctx)

	kafkaBrokers := strings.TrimSpace(config.String("KAFKA_BROKERS", ""))
	relay := outbox.NewRelay(pool, outboxRepo, logger, outbox.RelayConfig{
		Brokers:   kafkaBrokers,
		PollEvery: config.Duration("RELAY_INTERVAL", 2*time.Second),
		BatchSize: config.Int("RELAY_BATCH_SIZE", 50),
	})
	go relay.Run(ctx)

	notificationHandler := notifications.NewHandler(inboxRepo, registry, logger)
	sseHandler := push.NewSSEHandler(registry, logger)
	feedHandler := feed.NewHandler(outboxRepo, members, logger)
	requestHandler := requests.NewHandler(requests.NewRepository(pool), producer, logger)

	jwtSecret := config.String("JWT_SECRET", "dev-secret")
	authed := identity.Middleware(jwtSecret)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if kafkaBrokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/api/notifications", authed(http.HandlerFunc(notificationHandler.List)))
	mux.Handle("/api/notifications/stream", authed(sseHandler))
	mux.Handle("/api/notifications/", authed(http.HandlerFunc(notificationHandler.MarkRead)))
	mux.Handle("/api/activity", authed(feedHandler))
	mux.Handle("/api/requests", authed(http.HandlerFunc(requestHandler.Create)))

	var rateLimitMW httpx.Middleware
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		limiter := httpx.NewRedisRateLimiter(rdb, config.Int("RATE_LIMIT_PER_MINUTE", 120), time.Minute, service)
		rateLimitMW = limiter.Middleware(logger, true)
	} else {
		rateLimitMW = httpx.NewRateLimiter(config.Int("RATE_LIMIT_PER_MINUTE", 120), time.Minute).Middleware()
	}

	corsOrigins := strings.Split(config.String("CORS_ALLOWED_ORIGINS", ""), ",")
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   corsOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           10 * time.Minute,
		}),
		rateLimitMW,
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
	)
	handler = otelhttp.NewHandler(handler, service)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
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
