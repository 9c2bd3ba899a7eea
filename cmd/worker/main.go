package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ignite/dispatch/internal/bootstrap"
	"github.com/ignite/dispatch/internal/config"
	"github.com/ignite/dispatch/internal/pkg/distlock"
	"github.com/ignite/dispatch/internal/pkg/logger"
	"github.com/ignite/dispatch/internal/repository/postgres"
	"github.com/ignite/dispatch/internal/worker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	once := flag.Bool("once", false, "run a single delivery pass and exit")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg.Logging.Service = "dispatch-worker"
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
	sender, err := bootstrap.Sender(ctx, cfg.Delivery)
	if err != nil {
		logger.Error("transport unavailable", "error", err)
		os.Exit(1)
	}

	lease := cfg.Worker.Lease()
	locks := func(key string) distlock.DistLock {
		return distlock.NewLock(redisClient, db, key, lease)
	}

	w := worker.NewDeliveryWorker(
		svc.DispatchRepo,
		svc.Dispatches,
		reg,
		nil, // each content type's own lookup
		postgres.NewRecipientRepo(db),
		sender,
		svc.Tokens,
		locks,
		worker.Options{
			PollInterval:       cfg.Worker.Interval(),
			BatchSize:          cfg.Worker.BatchSize,
			Concurrency:        cfg.Worker.Concurrency,
			Lease:              lease,
			Managers:           cfg.Worker.Managers,
			FromName:           cfg.Delivery.FromName,
			FromEmail:          cfg.Delivery.FromEmail,
			ReplyTo:            cfg.Delivery.ReplyTo,
			UnsubscribeBaseURL: strings.TrimRight(cfg.Server.PublicURL, "/"),
		},
	)

	logger.Info("delivery worker configured",
		"transport", sender.Type(),
		"managers", cfg.Worker.Managers,
		"interval", cfg.Worker.Interval().String(),
		"distributed_lock", lockBackend(redisClient != nil))

	if *once {
		runCtx, runCancel := context.WithTimeout(ctx, lease)
		defer runCancel()
		if err := w.RunOnce(runCtx); err != nil {
			logger.Error("delivery pass failed", "error", err)
			os.Exit(1)
		}
		st := w.Stats()
		logger.Info("delivery pass complete", "sent", st.Sent, "failed", st.Failed,
			"cancelled", st.Cancelled, "unsubscribed", st.Unsubscribed, "skipped", st.Skipped)
		return
	}

	if err := w.Start(); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(30 * time.Second):
		logger.Warn("worker did not stop within 30s")
	}
	logger.Info("worker stopped")
}

func lockBackend(redis bool) string {
	if redis {
		return "redis"
	}
	return "postgres"
}
