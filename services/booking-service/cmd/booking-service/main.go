package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/specialistbook/libs/auth"
	"github.com/md-rashed-zaman/specialistbook/libs/config"
	"github.com/md-rashed-zaman/specialistbook/libs/db"
	"github.com/md-rashed-zaman/specialistbook/libs/httpx"
	"github.com/md-rashed-zaman/specialistbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/specialistbook/libs/otel"
	"github.com/md-rashed-zaman/specialistbook/libs/redisx"
	"github.com/md-rashed-zaman/specialistbook/libs/runtime"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/consumer"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/inbox"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/pricing"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/slots"
	"github.com/md-rashed-zaman/specialistbook/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	configFile := flag.String("config", config.String("CONFIG_FILE", ""), "optional YAML config file")
	flag.Parse()
	if err := config.Load(*configFile); err != nil {
		panic(err)
	}

	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9093")
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

	loc, err := time.LoadLocation(config.String("TIMEZONE", "UTC"))
	if err != nil {
		logger.Error("invalid TIMEZONE; using UTC", "err", err)
		loc = time.UTC
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	brokers := config.String("KAFKA_BROKERS", "")
	if brokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	var rdb *redis.Client
	if redisURL := config.String("REDIS_URL", ""); redisURL != "" {
		rdb, err = redisx.Open(ctx, redisURL)
		if err != nil {
			logger.Error("redis connection failed", "err", err)
			panic(err)
		}
		defer rdb.Close()
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
	}

	outboxRepo := outbox.NewRepository()
	store := storage.NewStore(pool, outboxRepo)

	svc := booking.NewService(
		booking.NewEngine(
			availability.NewResolver(config.Duration("RECURRENCE_HORIZON", availability.DefaultHorizon), fallbackWindows(logger)),
			conflict.NewDetector(conflict.Policy{
				MinDuration:    config.Int("MIN_DURATION_MINUTES", conflict.DefaultMinDuration),
				MaxDuration:    config.Int("MAX_DURATION_MINUTES", conflict.DefaultMaxDuration),
				RequireFullFit: config.Bool("REQUIRE_FULL_FIT", false),
			}),
		),
		store,
		bookingLocker(rdb),
		logger,
		booking.WithClock(func() time.Time { return time.Now().In(loc) }),
		booking.WithRetries(config.Int("BOOKING_RETRIES", 3)),
	)

	grid := slots.DefaultGrid()
	grid.Step = config.Int("SLOT_STEP_MINUTES", grid.Step)
	prices := pricing.NewSyncer(config.String("STRIPE_SECRET_KEY", ""), config.String("STRIPE_CURRENCY", "usd"), logger)
	h := handlers.NewHandler(svc, store, prices, logger, grid)
	if v := tokenVerifier(); v != nil {
		h.RequireTokens(v)
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	h.Routes(mux, rateLimit(rdb, logger))
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: splitList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "If-Match", "If-None-Match", "Idempotency-Key"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 15*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	g.Go(func() error { return publisher.Run(gctx) })

	if topic := strings.TrimSpace(config.String("KAFKA_CONSUME_TOPIC", "specialist.workingdays.updated.v1")); topic != "" && brokers != "" {
		c := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", service),
			Topic:   topic,
		}, h.IngestProfile)
		g.Go(func() error { return c.Run(gctx) })
	}

	g.Go(func() error { return serveGRPC(gctx, ":"+grpcPort, logger) })

	g.Go(func() error {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "err", err)
		}
		logger.Info("http server stopped")
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("booking service stopped with error", "err", err)
	}
}

// fallbackWindows is the working day assumed for dates no rule covers.
func fallbackWindows(logger *slog.Logger) []clock.Range {
	start, err := clock.ParseTimeOfDay(config.String("DEFAULT_DAY_START", "09:00"))
	if err != nil {
		logger.Error("invalid DEFAULT_DAY_START; using default", "err", err)
		return availability.DefaultFallback()
	}
	end, err := clock.ParseTimeOfDay(config.String("DEFAULT_DAY_END", "21:00"))
	if err != nil {
		logger.Error("invalid DEFAULT_DAY_END; using default", "err", err)
		return availability.DefaultFallback()
	}
	r, err := clock.NewRange(start, end)
	if err != nil {
		logger.Error("invalid default working day; using default", "err", err)
		return availability.DefaultFallback()
	}
	return []clock.Range{r}
}

func bookingLocker(rdb *redis.Client) booking.Locker {
	if rdb == nil {
		return booking.NewKeyedMutex()
	}
	return redisx.NewLock(rdb, "specialistbook", config.Duration("BOOKING_LOCK_TTL", 10*time.Second))
}

func rateLimit(rdb *redis.Client, logger *slog.Logger) httpx.Middleware {
	limit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if rdb != nil {
		return httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "booking-rl").Middleware(logger, true)
	}
	return httpx.NewRateLimiter(limit, time.Minute).Middleware()
}

// tokenVerifier returns nil when profile and treatment writes are left open.
func tokenVerifier() *auth.Verifier {
	issuer := config.String("AUTH_ISSUER", "")
	if secret := config.String("AUTH_JWT_SECRET", ""); secret != "" {
		return auth.NewHS256Verifier(secret, issuer)
	}
	if url := config.String("AUTH_JWKS_URL", ""); url != "" {
		return auth.NewJWKSVerifier(auth.NewJWKSClient(url, config.Duration("AUTH_JWKS_TTL", 5*time.Minute)), issuer)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
