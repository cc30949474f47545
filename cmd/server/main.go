package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aryan0dhankhar/datingapp/internal/domain"
	"github.com/aryan0dhankhar/datingapp/internal/featureflags"
	"github.com/aryan0dhankhar/datingapp/internal/handler"
	"github.com/aryan0dhankhar/datingapp/internal/infrastructure/kafka"
	"github.com/aryan0dhankhar/datingapp/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/datingapp/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/datingapp/internal/observability/tracing"
	"github.com/aryan0dhankhar/datingapp/internal/repository"
	"github.com/aryan0dhankhar/datingapp/internal/security/audit"
	"github.com/aryan0dhankhar/datingapp/internal/security/auth"
	"github.com/aryan0dhankhar/datingapp/internal/security/ratelimit"
	"github.com/aryan0dhankhar/datingapp/internal/service"
	"github.com/aryan0dhankhar/datingapp/internal/worker"
	"github.com/aryan0dhankhar/datingapp/pkg/config"
	"github.com/aryan0dhankhar/datingapp/pkg/database"
	"github.com/google/uuid"
)

const serviceName = "datingapp"

type stores struct {
	profiles  domain.ProfileRepository
	relations domain.RelationRepository
	outbox    domain.OutboxRepository
	close     func() error
}

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting datingapp server",
		slog.String("environment", cfg.Environment),
		slog.String("storage", cfg.StorageDriver),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, log, cfg.OTLPEndpoint, serviceName, cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 3. Initialize storage
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.close()

	// 4. Initialize Redis-backed cache and session revocation, or in-process fallbacks
	var (
		redisClient *redis.Client
		cache       domain.ProfileCache
		revoked     domain.RevocationList
		sweepers    = map[string]worker.Sweeper{}
	)
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Error("failed to connect to Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer redisClient.Close()
		cache = repository.NewRedisProfileCache(redisClient, cfg.ProfileCacheTTL, log)
		revoked = repository.NewRedisRevocationList(redisClient)
	} else {
		log.Info("redis not configured, using in-process cache and revocation list")
		memCache := repository.NewMemoryProfileCache(cfg.ProfileCacheTTL)
		memRevoked := repository.NewMemoryRevocationList()
		sweepers["profile_cache"] = memCache
		sweepers["revoked_sessions"] = memRevoked
		cache, revoked = memCache, memRevoked
	}

	// 5. Initialize event publisher
	var publisher interface {
		domain.EventPublisher
		Close() error
	}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicPrefix)
		log.Info("publishing events to kafka", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		publisher = kafka.NewLogPublisher(log)
		log.Info("kafka not configured, events are logged")
	}
	defer publisher.Close()

	// 6. Initialize services
	events := service.NewEventRecorder(st.outbox, log)
	profileService := service.NewProfileService(st.profiles, cache, events, auth.NewHasher(cfg.BcryptCost), log)
	relationService := service.NewRelationService(st.relations, st.profiles, events, log)

	if featureflags.Enabled(featureflags.SeedDemo) {
		if err := service.SeedDemo(ctx, profileService, log); err != nil {
			log.Error("failed to seed demo profiles", slog.String("error", err.Error()))
		}
	}

	// 7. Initialize security components
	secret := cfg.SessionSecret
	if secret == "" {
		secret = uuid.NewString()
		log.Warn("SESSION_SECRET not set, using a random secret; sessions will not survive restarts")
	}
	tokenManager := auth.NewTokenManager(secret, serviceName, cfg.SessionTTL)
	sessions := handler.NewSessions(tokenManager, revoked, cfg.SessionCookieName, cfg.SessionCookieSecure, log)
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitPerMinute, time.Minute)
	auditLogger := audit.NewLogger(log)

	// 8. Initialize handlers and routes
	paging := handler.Paging{DefaultSize: cfg.DefaultPageSize, MaxSize: cfg.MaxPageSize}
	webHandler, err := handler.NewWebHandler(profileService, relationService, sessions, paging, log)
	if err != nil {
		log.Error("failed to load templates", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rootHandler := handler.NewRouter(handler.RouterDeps{
		Profiles:       handler.NewProfileHandler(profileService, relationService, sessions, paging, log),
		Relations:      handler.NewRelationHandler(relationService, log),
		Web:            webHandler,
		Health:         handler.NewHealthHandler(profileService, redisClient, log),
		Sessions:       sessions,
		Limiter:        rateLimiter,
		LoginPerMinute: cfg.LoginRateLimitPerMinute,
		Audit:          auditLogger,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		Logger:         log,
	})

	// 9. Start background workers
	outboxWorker := worker.NewOutboxWorker(st.outbox, publisher, log, cfg.OutboxInterval, cfg.OutboxBatchSize)
	go outboxWorker.Start(ctx)
	if len(sweepers) > 0 {
		go worker.NewSweepWorker(sweepers, log, time.Minute).Start(ctx)
	}

	// 10. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      tracing.Handler(rootHandler, serviceName),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.Int("rate_limit", cfg.RateLimitPerMinute),
		slog.Int("login_rate_limit", cfg.LoginRateLimitPerMinute),
		slog.Bool("web_ui", !featureflags.Enabled(featureflags.WebUIDisabled)),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
			sigChan <- syscall.SIGTERM
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel()
	outboxWorker.PublishBatch(shutdownCtx)
	rateLimiter.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}

func openStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (*stores, error) {
	if cfg.StorageDriver == config.StorageMemory {
		log.Warn("using in-memory storage; data is lost on restart")
		mem := repository.NewMemoryStore()
		return &stores{
			profiles:  mem.Profiles(),
			relations: mem.Relations(),
			outbox:    mem.Outbox(),
			close:     func() error { return nil },
		}, nil
	}

	dbCfg := database.DefaultConfig()
	dbCfg.Host = cfg.DBHost
	dbCfg.Port = cfg.DBPort
	dbCfg.User = cfg.DBUser
	dbCfg.Password = cfg.DBPassword
	dbCfg.Database = cfg.DBName
	dbCfg.SSLMode = cfg.DBSSLMode
	dbCfg.MaxOpenConns = cfg.DBMaxOpenConns

	pool, err := database.NewConnectionPool(ctx, dbCfg, log)
	if err != nil {
		return nil, err
	}
	if err := pool.Migrate(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}

	db := pool.GetDB()
	return &stores{
		profiles:  repository.NewPostgresProfileRepository(db, log),
		relations: repository.NewPostgresRelationRepository(db, log),
		outbox:    repository.NewPostgresOutboxRepository(db),
		close:     pool.Close,
	}, nil
}
