package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/dispatch/internal/api"
	"github.com/ignite/dispatch/internal/bootstrap"
	"github.com/ignite/dispatch/internal/config"
	"github.com/ignite/dispatch/internal/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg.Logging.Service = "dispatch-server"
	if err := logger.Init(cfg.Logging); err != nil {
		logger.Error("failed to init logger", "error", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := bootstrap.OpenDB(ctx, cfg.Database)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	redisClient := bootstrap.OpenRedis(ctx, cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
	}

	reg, err := bootstrap.Registry(db, cfg.ContentTypes)
	if err != nil {
		logger.Error("invalid content types", "error", err)
		os.Exit(1)
	}
	pub, err := bootstrap.Publisher(ctx, cfg.Events)
	if err != nil {
		logger.Error("event publisher unavailable", "error", err)
		os.Exit(1)
	}
	svc, err := bootstrap.NewServices(db, reg, cfg.Token.Secret, pub)
	if err != nil {
		logger.Error("failed to wire services", "error", err)
		os.Exit(1)
	}

	router := api.SetupRoutes(
		api.NewHandlers(svc.Recipients, svc.Dispatches),
		api.NewHealthChecker(db, redisClient),
		cfg.Server.AllowedOrigins,
	)
	server := api.NewServer(cfg.Server.Addr(), router)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting server", "addr", server.Addr(), "content_types", reg.RegisteredTypes())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}
