// Package bootstrap wires configuration into the collaborators shared by
// the server and worker binaries.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/dispatch/internal/config"
	"github.com/ignite/dispatch/internal/content"
	"github.com/ignite/dispatch/internal/events"
	"github.com/ignite/dispatch/internal/pkg/logger"
	"github.com/ignite/dispatch/internal/repository/postgres"
	"github.com/ignite/dispatch/internal/service/dispatch"
	"github.com/ignite/dispatch/internal/service/recipient"
	"github.com/ignite/dispatch/internal/token"
	"github.com/ignite/dispatch/internal/transport"
)

// OpenDB opens and pings the Postgres pool.
func OpenDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.URL
	if !strings.Contains(dsn, "connect_timeout") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "connect_timeout=5"
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnLifetime())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// OpenRedis returns a connected client, or nil when Redis is not
// configured or unreachable. Callers fall back to Postgres advisory locks.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	var client *redis.Client
	if opts, err := redis.ParseURL(cfg.Addr); err == nil {
		client = redis.NewClient(opts)
	} else {
		client = redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, using postgres advisory locks", "addr", cfg.Addr, "error", err)
		client.Close()
		return nil
	}
	logger.Info("redis connected", "addr", cfg.Addr)
	return client
}

// ContentTables converts the configured content types.
func ContentTables(cts []config.ContentTypeConfig) []postgres.ContentTable {
	out := make([]postgres.ContentTable, 0, len(cts))
	for _, ct := range cts {
		out = append(out, postgres.ContentTable{
			ContentType:   ct.Name,
			Table:         ct.Table,
			KeyColumn:     ct.KeyColumn,
			IntegerKeys:   ct.IntegerKeys,
			SubjectColumn: ct.SubjectColumn,
			HTMLColumn:    ct.HTMLColumn,
			TextColumn:    ct.TextColumn,
		})
	}
	return out
}

// Registry builds a content registry holding every configured type.
func Registry(db *sql.DB, cts []config.ContentTypeConfig) (*content.Registry, error) {
	tables := ContentTables(cts)
	repo, err := postgres.NewContentRepo(db, tables)
	if err != nil {
		return nil, err
	}
	reg := content.NewRegistry()
	if err := repo.Register(reg, tables); err != nil {
		return nil, err
	}
	return reg, nil
}

// Publisher returns the SQS status publisher, or a no-op publisher when no
// queue is configured.
func Publisher(ctx context.Context, cfg config.EventsConfig) (dispatch.EventPublisher, error) {
	if cfg.QueueURL == "" {
		return events.NopPublisher{}, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return events.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.QueueURL), nil
}

// Sender returns the configured transport.
func Sender(ctx context.Context, cfg config.DeliveryConfig) (transport.Sender, error) {
	switch cfg.Transport {
	case "ses":
		return transport.NewSESSender(ctx, transport.SESConfig{
			Region:           cfg.SES.Region,
			AccessKeyID:      cfg.SES.AccessKey,
			SecretAccessKey:  cfg.SES.SecretKey,
			ConfigurationSet: cfg.SES.ConfigurationSet,
		})
	case "smtp":
		return transport.NewSMTPSender(transport.SMTPConfig{
			Host:               cfg.SMTP.Host,
			Port:               cfg.SMTP.Port,
			User:               cfg.SMTP.User,
			Pass:               cfg.SMTP.Pass,
			TLSMode:            cfg.SMTP.TLSMode,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
			Timeout:            cfg.SMTP.Timeout(),
		}), nil
	case "log", "":
		return transport.LogSender{}, nil
	default:
		return nil, fmt.Errorf("unknown delivery transport %q", cfg.Transport)
	}
}

// Services holds the wired dispatch and recipient services.
type Services struct {
	Registry     *content.Registry
	Tokens       *token.Generator
	DispatchRepo *postgres.DispatchRepo
	Recipients   *recipient.Service
	Dispatches   *dispatch.Service
}

// NewServices wires the services onto db.
func NewServices(db *sql.DB, reg *content.Registry, secret string, pub dispatch.EventPublisher) (*Services, error) {
	tokens, err := token.New(secret)
	if err != nil {
		return nil, err
	}
	dispatchRepo := postgres.NewDispatchRepo(db)
	recipients := recipient.NewService(postgres.NewRecipientRepo(db))

	dispatches := dispatch.NewService(dispatchRepo, reg, recipients)
	if pub != nil {
		dispatches.SetEventPublisher(pub)
	}
	recipients.SetTokenVerification(dispatches, tokens)

	return &Services{
		Registry:     reg,
		Tokens:       tokens,
		DispatchRepo: dispatchRepo,
		Recipients:   recipients,
		Dispatches:   dispatches,
	}, nil
}
