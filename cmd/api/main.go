package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"group-chat/internal/chat"
	"group-chat/internal/config"
	"group-chat/internal/db"
	apihttp "group-chat/internal/http"
	"group-chat/internal/logging"
	"group-chat/internal/repository"
	"group-chat/internal/service"
	"group-chat/internal/telemetry"

	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing(logger, cfg.ServiceName, version)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	} else {
		defer shutdownTracing()
	}

	checks := map[string]apihttp.Check{}

	var (
		messageRepo repository.MessageRepository
		userRepo    repository.UserRepository
	)
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		if cfg.DBAutoMigrate {
			if err := db.RunMigrations(cfg.DatabaseURL, logger); err != nil {
				logger.Fatal("db migrate", zap.Error(err))
			}
		}
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		checks["postgres"] = func(ctx context.Context) error { return db.Ping(ctx, pool) }
		messageRepo = repository.NewPgMessageRepository(pool)
		userRepo = repository.NewPgUserRepository(pool)
	case config.StoreDriverBadger:
		bdb, err := badger.Open(badger.DefaultOptions(cfg.BadgerPath).WithLogger(nil))
		if err != nil {
			logger.Fatal("badger open", zap.String("path", cfg.BadgerPath), zap.Error(err))
		}
		defer bdb.Close()
		repo, err := repository.NewBadgerMessageRepository(bdb)
		if err != nil {
			logger.Fatal("badger message repository", zap.Error(err))
		}
		defer repo.Close()
		messageRepo = repo
		userRepo = seededUsers(logger, cfg.SeedUsers)
	default:
		messageRepo = repository.NewMemoryMessageRepository()
		userRepo = seededUsers(logger, cfg.SeedUsers)
	}

	var (
		identities  service.IdentityResolver = service.NewUserDirectory(userRepo)
		limiter                              = service.NewMemoryRateLimiter(cfg.SendWindow, cfg.SendLimit)
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
			redisClient = nil
		}
		cancel()
	}
	if redisClient != nil {
		identities = service.NewCachedIdentityResolver(identities, redisClient, cfg.IdentityCacheTTL, logger)
		limiter = service.NewRedisRateLimiter(redisClient, cfg.SendWindow, cfg.SendLimit)
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	if cfg.SendLimit <= 0 {
		limiter = service.NoRateLimit()
	}

	loc, _ := cfg.ClockLocation()
	messageSvc := service.NewMessageService(messageRepo)
	registry := chat.NewRegistry(logger)
	defer registry.Close()

	var publisher chat.Publisher
	if redisClient != nil {
		relay := chat.NewRedisRelay(redisClient, cfg.RedisChannel, registry, logger)
		publisher = relay
		go func() {
			if err := relay.Run(ctx); err != nil {
				logger.Error("redis relay stopped", zap.Error(err))
			}
		}()
		// hasta que la suscripción confirme, Publish entrega solo localmente
		select {
		case <-relay.Ready():
		case <-time.After(3 * time.Second):
			logger.Warn("redis relay not subscribed yet, delivering locally until it is")
		case <-ctx.Done():
		}
	}

	hub := chat.NewHub(logger, registry, publisher, messageSvc, identities, limiter, chat.HubConfig{
		Room:          cfg.ChatRoom,
		QueueSize:     cfg.MemberQueueSize,
		ClockLocation: loc,
	})

	var jwtSvc *service.JWTService
	if cfg.AuthEnabled() {
		jwtSvc = service.NewJWTService(cfg.JWTSecret, time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute)
	} else {
		logger.Warn("jwt secret not configured, websocket upgrade is unauthenticated")
	}

	chatHandler := apihttp.NewChatHandler(logger, messageSvc)
	wsHandler := apihttp.NewWSHandler(logger, hub)
	healthHandler := apihttp.NewHealthHandler(logger, checks)
	router := apihttp.NewRouter(logger, chatHandler, wsHandler, healthHandler, jwtSvc)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.Info("starting server",
		zap.String("port", cfg.HTTPPort),
		zap.String("store", cfg.StoreDriver),
		zap.String("room", cfg.ChatRoom),
		zap.Bool("redis", redisClient != nil),
		zap.Bool("auth", jwtSvc != nil),
	)

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	// los websockets están hijacked: Shutdown no los espera
	registry.Close()
}

func seededUsers(logger *zap.Logger, usernames []string) repository.UserRepository {
	users := repository.NewSeededUserRepository(usernames)
	if users.Len() == 0 {
		logger.Warn("no seed users configured, every inbound event will be rejected", zap.String("env", "CHAT_SEED_USERS"))
	}
	return users
}
