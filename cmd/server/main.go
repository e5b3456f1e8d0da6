package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/client"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/config"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/handler"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/library"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/logging"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/middleware"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/poll"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/store"
	ws "github.com/ai-hackathon-team-af/agent-education-video-studio/internal/websocket"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/wizard"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Server.LogLevel, cfg.Server.LogDir)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	logger.WithFields(logrus.Fields{"env": cfg.Server.Env, "remote": cfg.Remote.BaseURL}).Info("starting studio")

	// Initialize Redis client. Without redis the studio runs in memory only.
	var redisClient *redis.Client
	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
	if err := rc.Ping(pingCtx).Err(); err != nil {
		logger.WithError(err).Warn("redis not available, sessions and rate limits stay in memory")
		rc.Close()
	} else {
		redisClient = rc
		defer redisClient.Close()
	}
	cancelPing()

	// Remote clients
	remote := client.NewRemote(&cfg.Remote, logger)
	intakeClient := client.NewIntakeClient(remote)
	generatorClient := client.NewGeneratorClient(remote)
	jobClient := client.NewJobClient(remote)
	scriptStore := client.NewScriptStoreClient(remote)

	var archive wizard.DocumentArchiver
	if cfg.Archive.Enabled() {
		archiveClient, err := client.NewArchiveClient(&cfg.Archive)
		if err != nil {
			logger.WithError(err).Warn("document archive disabled")
		} else {
			archive = archiveClient
		}
	}

	// Initialize validator
	validate := validator.New()

	loop := poll.New(jobClient, cfg.Poll.Interval(), logger)

	// Wizard sessions
	var snapshots wizard.SnapshotStore
	if redisClient != nil {
		snapshots = store.NewSessionStore(redisClient, 0)
	}
	manager := wizard.NewManager(wizard.Deps{
		Intake:    intakeClient,
		Generator: generatorClient,
		Jobs:      jobClient,
		Saver:     scriptStore,
		Archive:   archive,
		Poll:      loop,
		Log:       logger,
	}, snapshots)

	// Initialize WebSocket hub
	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := ws.NewHub(logger)
	go hub.Run(hubCtx)
	manager.Subscribe(hub.PublishSnapshot)

	// Saved-script library. The generated flag goes through the task queue
	// when redis is there so that it survives a script store outage.
	var marker library.Marker = library.DirectMarker{Store: scriptStore}
	var asynqClient *asynq.Client
	if redisClient != nil && cfg.Worker.Enabled {
		asynqClient = asynq.NewClient(redisOpt(cfg))
		defer asynqClient.Close()
		marker = worker.NewEnqueuer(asynqClient)
	}
	lib := library.New(scriptStore, jobClient, loop, marker, logger)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)
	if !authMiddleware.Enabled() {
		logger.Warn("JWT secret not set, API is unauthenticated")
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    50 * 1024 * 1024, // 50MB
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		Output: logger.Out,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	handler.Register(app, handler.Routes{
		Wizard:  handler.NewWizardHandler(manager, validate),
		Library: handler.NewLibraryHandler(lib),
		Health: handler.NewHealthHandler(remote, fiber.Map{
			"redis":   redisClient != nil,
			"archive": archive != nil,
			"auth":    authMiddleware.Enabled(),
		}),
		Auth:           handler.NewAuthHandler(authMiddleware),
		Stream:         handler.NewStreamHandler(manager, hub, authMiddleware),
		AuthMiddleware: authMiddleware,
		RateLimiter:    rateLimiter,
		Limits:         cfg.RateLimit,
	})

	// Start Asynq worker server
	var workerSrv *asynq.Server
	if asynqClient != nil {
		workerSrv = startWorkerServer(cfg, scriptStore, logger)
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.WithError(err).Error("server shutdown error")
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	logger.WithField("addr", addr).Info("server starting")
	if err := app.Listen(addr); err != nil {
		logger.WithError(err).Error("server error")
	}

	manager.Close()
	lib.Close()
	loop.StopAll()
	stopHub()
	if workerSrv != nil {
		workerSrv.Shutdown()
	}
	logger.Info("server stopped")
}

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

func startWorkerServer(cfg *config.Config, scripts worker.StatusUpdater, log logrus.FieldLogger) *asynq.Server {
	srv := asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				worker.QueueScripts: 1,
			},
			Logger: log,
		},
	)

	statusWorker := worker.NewStatusWorker(scripts, log)

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypeMarkGenerated, statusWorker.ProcessTask)

	if err := srv.Start(mux); err != nil {
		log.WithError(err).Error("asynq worker error")
		return nil
	}
	return srv
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
