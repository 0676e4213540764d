package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/artworkup/api/internal/auth"
	"github.com/artworkup/api/internal/client"
	"github.com/artworkup/api/internal/config"
	"github.com/artworkup/api/internal/handler"
	"github.com/artworkup/api/internal/logging"
	"github.com/artworkup/api/internal/middleware"
	"github.com/artworkup/api/internal/model"
	"github.com/artworkup/api/internal/registry"
	"github.com/artworkup/api/internal/retry"
	"github.com/artworkup/api/internal/service"
	ws "github.com/artworkup/api/internal/websocket"
	"github.com/artworkup/api/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logging.New(cfg.Server.LogLevel, cfg.Server.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis backs the registry and the asynq queue; the job rate limit rides along
	// when it is there. Without either the server runs entirely in memory.
	var redisClient *redis.Client
	if needsRedis(cfg) {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			zapLogger.Warn("Redis not available", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
	}

	var jobs registry.Store
	switch cfg.Registry.Backend {
	case config.RegistryRedis:
		jobs = registry.NewRedisStore(redisClient, time.Duration(cfg.Registry.TTLHours)*time.Hour)
	default:
		jobs = registry.NewMemoryStore()
	}

	// Credentials from config are the defaults; POST /api/config overrides them at runtime
	settings, err := service.NewSettingsService(model.Credentials{
		SpotifyClientID:     cfg.Spotify.ClientID,
		SpotifyClientSecret: cfg.Spotify.ClientSecret,
		LastFMAPIKey:        cfg.LastFM.APIKey,
		LastFMAPISecret:     cfg.LastFM.APISecret,
	}, cfg.Pipeline.DataDir, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to load settings", zap.Error(err))
	}

	// External clients
	spotifyClient := client.NewSpotifyClient(&cfg.Spotify, settings, zapLogger)
	lastfmClient := client.NewLastFMClient(&cfg.LastFM, settings, zapLogger)
	itunesClient := client.NewITunesClient(&cfg.ITunes, zapLogger)
	launcher := client.NewChromeLauncher(&cfg.Browser, zapLogger)

	var archive client.Archiver
	if cfg.Archive.Enabled() {
		archiveClient, err := client.NewArchiveClient(ctx, &cfg.Archive)
		if err != nil {
			zapLogger.Warn("Archive disabled", zap.Error(err))
		} else {
			archive = archiveClient
			zapLogger.Info("Archive enabled", zap.String("bucket", cfg.Archive.Bucket))
		}
	}

	// Pipeline stages
	policy := retry.New(cfg.Retry.MaxRetries, cfg.Retry.Delay())
	worklists := service.NewWorklistStore(cfg.Pipeline.ArtworkFolder, archive, zapLogger)

	resolver, err := service.NewResolver(cfg.Pipeline.ResolverCacheSize, retry.Once, zapLogger, spotifyClient, itunesClient)
	if err != nil {
		zapLogger.Fatal("Failed to create resolver", zap.Error(err))
	}

	fetcherOpts := []service.FetcherOption{service.WithMaxDimension(cfg.Pipeline.MaxImageDimension)}
	if archive != nil {
		fetcherOpts = append(fetcherOpts, service.WithArchive(archive))
	}

	pipeline := worker.Pipeline{
		Records:   service.NewNormalizer(spotifyClient, lastfmClient, zapLogger),
		Checker:   service.NewChecker(lastfmClient, retry.Once, cfg.Pipeline.RequireArtHint, zapLogger),
		Resolver:  resolver,
		Fetcher:   service.NewFetcher(time.Duration(cfg.Pipeline.DownloadTimeout)*time.Second, policy, zapLogger, fetcherOpts...),
		Uploader:  service.NewUploader(launcher, policy, cfg.Browser.WaitTimeout(), cfg.Browser.LoginURL, zapLogger),
		Worklists: worklists,
	}

	// Initialize WebSocket hub
	hub := ws.NewHub(zapLogger)
	go hub.Run()

	orchestrator := worker.NewOrchestrator(pipeline, jobs, hub, cfg.Browser.UploadDelayDuration(), zapLogger)

	var (
		dispatcher service.Dispatcher
		inline     *worker.InlineDispatcher
	)
	switch cfg.Dispatch.Mode {
	case config.DispatchAsynq:
		redisOpt := asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
		asynqClient := asynq.NewClient(redisOpt)
		defer asynqClient.Close()
		dispatcher = worker.NewAsynqDispatcher(asynqClient)

		srv := newWorkerServer(cfg, redisOpt, zapLogger)
		go func() {
			mux := asynq.NewServeMux()
			mux.HandleFunc(worker.TaskTypeArtwork, worker.NewJobWorker(orchestrator, zapLogger).ProcessTask)
			if err := srv.Run(mux); err != nil {
				zapLogger.Error("Asynq worker error", zap.Error(err))
			}
		}()
	default:
		inline = worker.NewInlineDispatcher(ctx, orchestrator, zapLogger)
		dispatcher = inline
	}

	jobService := service.NewJobService(jobs, dispatcher, worklists, zapLogger)

	// Initialize validator
	validate := validator.New()

	// Initialize handlers
	jobHandler := handler.NewJobHandler(jobService, validate, zapLogger)
	configHandler := handler.NewConfigHandler(settings, validate)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    1 * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"spotify": spotifyClient.IsConfigured(),
				"lastfm":  lastfmClient.IsConfigured(),
				"itunes":  true,
				"archive": archive != nil,
				"redis":   redisClient != nil,
				"auth":    cfg.Auth.Enabled,
			},
			"registry": cfg.Registry.Backend,
			"dispatch": cfg.Dispatch.Mode,
		})
	})

	var protected []fiber.Handler
	if cfg.Auth.Enabled {
		authMiddleware, err := newAuthMiddleware(ctx, &cfg.Auth, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to set up authentication", zap.Error(err))
		}
		protected = append(protected, authMiddleware.Authenticate())
	}

	// API routes
	api := app.Group("/api", protected...)

	startJob := []fiber.Handler{}
	if redisClient != nil && cfg.RateLimit.JobsPerHour > 0 {
		rateLimiter := middleware.NewRateLimiter(redisClient, zapLogger)
		startJob = append(startJob, rateLimiter.JobLimit(cfg.RateLimit.JobsPerHour))
	}
	startJob = append(startJob, jobHandler.Start)

	api.Post("/start-job", startJob...)
	api.Get("/job-status/:jobId", jobHandler.Status)
	api.Get("/jobs", jobHandler.List)
	api.Delete("/clear-job/:jobId", jobHandler.Clear)
	api.Get("/config", configHandler.Get)
	api.Post("/config", configHandler.Update)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	wsRoute := append([]fiber.Handler{}, protected...)
	wsRoute = append(wsRoute, websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("jobId"))
	}))
	app.Get("/ws/jobs/:jobId", wsRoute...)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		zapLogger.Info("Shutting down server...")
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			zapLogger.Error("Server shutdown error", zap.Error(err))
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	zapLogger.Info("Server starting",
		zap.String("addr", addr),
		zap.String("registry", cfg.Registry.Backend),
		zap.String("dispatch", cfg.Dispatch.Mode),
	)
	if err := app.Listen(addr); err != nil {
		zapLogger.Error("Server error", zap.Error(err))
	}

	// Jobs observe the cancelled context and record their failure before exiting
	if inline != nil {
		inline.Wait()
	}
	hub.Stop()
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Registry.Backend == config.RegistryRedis || cfg.Dispatch.Mode == config.DispatchAsynq
}

func newAuthMiddleware(ctx context.Context, cfg *config.AuthConfig, logger *zap.Logger) (*middleware.AuthMiddleware, error) {
	var verifier auth.TokenVerifier
	if cfg.OIDCIssuer != "" {
		oidc, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCAudience)
		if err != nil {
			if cfg.JWTSecret == "" {
				return nil, err
			}
			logger.Warn("OIDC verifier unavailable, accepting legacy tokens only", zap.Error(err))
		} else {
			verifier = oidc
		}
	}
	return middleware.NewAuthMiddleware(verifier, cfg.JWTSecret), nil
}

func newWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt, logger *zap.Logger) *asynq.Server {
	logLevel := asynq.InfoLevel
	if logging.IsDebug(cfg.Server.LogLevel) {
		logLevel = asynq.DebugLevel
	}
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Dispatch.Concurrency,
		Queues: map[string]int{
			worker.QueueArtwork: 1,
		},
		Logger:          logger.Named("asynq").Sugar(),
		LogLevel:        logLevel,
		ShutdownTimeout: 30 * time.Second,
	})
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
