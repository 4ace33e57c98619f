// Package main runs the live scoring HTTP server with streaming fan-out and
// graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rwalker123/draco-sub020/config"
	"github.com/rwalker123/draco-sub020/internal/auth"
	"github.com/rwalker123/draco-sub020/internal/contests"
	"github.com/rwalker123/draco-sub020/internal/live"
	"github.com/rwalker123/draco-sub020/internal/middleware"
	"github.com/rwalker123/draco-sub020/internal/realtime"
	"github.com/rwalker123/draco-sub020/internal/results"
	"github.com/rwalker123/draco-sub020/pkg/database"
	"github.com/rwalker123/draco-sub020/pkg/redis"
	"github.com/rwalker123/draco-sub020/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	// Redis is optional: without it the service runs single-process and
	// broadcasts stay local.
	var pubsub *realtime.RedisPubSub
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		pubsub = realtime.NewRedisPubSub(rdb, logger)
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	var hub *realtime.Hub
	if pubsub != nil {
		hub = realtime.NewHub(logger, pubsub, pubsub)
	} else {
		hub = realtime.NewHub(logger, nil, nil)
	}

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Contests
	contestRepo := contests.NewRepository(pool)
	contestHandler := contests.NewHandler(contestRepo, logger)

	// Final results
	resultRepo := results.NewRepository(pool)
	resultHandler := results.NewHandler(resultRepo, logger)

	// Live scoring
	sessionStore := live.NewStore()
	ticketIssuer := live.NewTicketIssuer(time.Duration(cfg.Live.TicketTTLSeconds) * time.Second)
	liveService := live.NewService(sessionStore, ticketIssuer, hub, contestRepo, resultRepo, logger)
	liveHandler := live.NewHandler(liveService, contestRepo, hub, logger)

	// New connections replay the current session snapshot before any diffs.
	hub.SetSnapshotFunc(func(contestID int64) (interface{}, bool) {
		sess, ok := sessionStore.Get(contestID)
		if !ok {
			return nil, false
		}
		return sess, true
	})

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Public reads: current snapshot, final result.
	router.GET("/api/contests/:id/live", liveHandler.Snapshot)
	router.GET("/api/contests/:id/result", resultHandler.GetByContest)

	// Streaming (ticket in query; no Authorization header required).
	router.GET("/api/contests/:id/live/subscribe", liveHandler.Subscribe)
	router.GET("/api/contests/:id/live/ws", liveHandler.SubscribeWS)

	// Protected API (JWT required)
	api := router.Group("/api")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/me", authHandler.Me)

		api.GET("/contests", contestHandler.List)
		api.POST("/contests", middleware.RequireRole("admin"), contestHandler.Create)
		api.GET("/contests/:id", contestHandler.GetByID)
		api.POST("/contests/:id/scorers", middleware.RequireRole("admin"), contestHandler.AddScorer)

		api.GET("/contests/:id/live/status", liveHandler.Status)
		api.POST("/contests/:id/live/ticket", liveHandler.CreateTicket)
		api.POST("/contests/:id/live/start", liveHandler.Start)
		api.POST("/contests/:id/live/scores", liveHandler.SubmitScore)
		api.POST("/contests/:id/live/advance", liveHandler.Advance)
		api.POST("/contests/:id/live/finalize", liveHandler.Finalize)
		api.POST("/contests/:id/live/stop", liveHandler.Stop)
	}

	srv := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     router,
		ReadTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		// No WriteTimeout: streaming responses stay open indefinitely.
	}

	viewerCtx, viewerCancel := context.WithCancel(context.Background())
	defer viewerCancel()
	go hub.RunViewerCount(viewerCtx, time.Duration(cfg.Live.ViewerCountIntervalSecs)*time.Second)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	viewerCancel()
	hub.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
