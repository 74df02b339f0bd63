package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/collectline/lcse/cmd/bootstrap"
	"github.com/collectline/lcse/pkg/asr"
	"github.com/collectline/lcse/pkg/config"
	"github.com/collectline/lcse/pkg/engine"
	"github.com/collectline/lcse/pkg/intent"
	"github.com/collectline/lcse/pkg/logger"
	"github.com/collectline/lcse/pkg/middleware"
	"github.com/collectline/lcse/pkg/sessionstore"
	"github.com/collectline/lcse/pkg/transfer"
	"github.com/collectline/lcse/pkg/tts"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func main() {
	mode := flag.String("mode", "", "running environment (dev, test, prod)")
	flag.Parse()
	if *mode != "" {
		os.Setenv("MODE", *mode)
	}

	cfg, err := config.Load()
	if err != nil {
		panic("config load failed: " + err.Error())
	}

	if err := logger.Init(cfg.Log, cfg.Mode); err != nil {
		panic("logger init failed: " + err.Error())
	}
	defer logger.Sync()

	db, err := bootstrap.SetupDatabase(cfg)
	if err != nil {
		logger.L().Fatal("database setup failed", zap.Error(err))
	}

	redisClient := bootstrap.SetupRedis(cfg)
	store, err := sessionstore.NewRedisStore(redisClient, db, cfg.Session.LocalCacheSize)
	if err != nil {
		logger.L().Fatal("session store setup failed", zap.Error(err))
	}

	shared := engine.Shared{
		ASR: asr.NewHTTPService(asr.Config{
			BaseURL:       cfg.ASR.BaseURL,
			APIKey:        cfg.ASR.APIKey,
			MaxRetries:    cfg.ASR.MaxRetries,
			RetryDelayMs:  cfg.ASR.RetryDelayMs,
			MinAudioMs:    cfg.ASR.MinAudioMs,
			MinAudioBytes: cfg.ASR.MinAudioBytes,
			PerMinute:     cfg.Rate.ASRPerMin,
			MinGapMs:      cfg.Rate.ASRMinGapMs,
			Timeout:       8 * time.Second,
		}),
		TTS: tts.NewHTTPService(tts.Config{
			BaseURL:          cfg.TTS.BaseURL,
			APIKey:           cfg.TTS.APIKey,
			ChunkMs:          cfg.TTS.ChunkMs,
			ProcessingTailMs: cfg.TTS.ProcessingTailMs,
			Timeout:          8 * time.Second,
		}),
		ConfirmClassifier: intent.LexiconClassifier{},
		AgentClassifier: intent.NewLLMClassifier(
			cfg.Intent.APIKey, cfg.Intent.BaseURL, cfg.Intent.Model,
		),
		Transfer: transfer.NewHTTPClient(transfer.Config{
			BaseURL: cfg.Transfer.BaseURL,
			APIKey:  cfg.Transfer.APIKey,
			Timeout: 8 * time.Second,
		}),
		Store:   store,
		Records: engine.NewGormRecordWriter(db),
		Config:  cfg,
	}

	staleAge := 2 * time.Duration(cfg.Call.MaxDurationS) * time.Second
	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@every 1m", func() {
		n, err := engine.SweepStale(context.Background(), db, store, staleAge)
		if err != nil {
			logger.L().Warn("stale call sweep failed", zap.Error(err))
			return
		}
		if n > 0 {
			logger.L().Info("swept stale call sessions", zap.Int("count", n))
		}
	}); err != nil {
		logger.L().Warn("failed to schedule stale call sweep", zap.Error(err))
	}
	sweeper.Start()
	defer sweeper.Stop()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(logger.L()))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws/voice-stream", func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.L().Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		session := engine.NewSession(conn, shared)
		outcome := session.Run(c.Request.Context())
		logger.L().Info("call session ended", zap.String("outcome", string(outcome)))
	})

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // voice-stream connections are long-lived
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.L().Info("starting server", zap.String("addr", cfg.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L().Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.L().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.L().Warn("graceful shutdown failed", zap.Error(err))
	}
}
