package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/dispatch/internal/pkg/logger"
)

// Config holds all configuration for the dispatch services.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  logger.Config  `yaml:"logging"`
	Token    TokenConfig    `yaml:"token"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Worker   WorkerConfig   `yaml:"worker"`
	Events   EventsConfig   `yaml:"events"`

	ContentTypes []ContentTypeConfig `yaml:"content_types"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// PublicURL is the externally reachable base of the server; unsubscribe
	// links are built under it.
	PublicURL string `yaml:"public_url"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
}

// ConnLifetime returns the connection max lifetime as a duration.
func (c DatabaseConfig) ConnLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetime) * time.Second
}

// RedisConfig holds Redis settings. An empty Addr disables Redis and
// distributed locks fall back to Postgres advisory locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TokenConfig holds the secret that signs unsubscribe tokens. Rotating it
// invalidates every link already mailed.
type TokenConfig struct {
	Secret string `yaml:"secret"`
}

// DeliveryConfig selects the outbound transport and sender identity.
type DeliveryConfig struct {
	// Transport is "ses", "smtp" or "log".
	Transport string     `yaml:"transport"`
	FromName  string     `yaml:"from_name"`
	FromEmail string     `yaml:"from_email"`
	ReplyTo   string     `yaml:"reply_to"`
	SES       SESConfig  `yaml:"ses"`
	SMTP      SMTPConfig `yaml:"smtp"`
}

// SESConfig holds AWS SES credentials. Empty keys use the default AWS
// credential chain.
type SESConfig struct {
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	Region           string `yaml:"region"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	User               string `yaml:"user"`
	Pass               string `yaml:"pass"`
	TLSMode            string `yaml:"tls_mode"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
}

func (c SMTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// WorkerConfig controls the delivery poller.
type WorkerConfig struct {
	IntervalSeconds int      `yaml:"interval_seconds"`
	BatchSize       int      `yaml:"batch_size"`
	Concurrency     int      `yaml:"concurrency"`
	LeaseSeconds    int      `yaml:"lease_seconds"`
	Managers        []string `yaml:"managers"`
}

func (c WorkerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c WorkerConfig) Lease() time.Duration {
	return time.Duration(c.LeaseSeconds) * time.Second
}

// EventsConfig holds the SQS queue receiving status changes. Publishing is
// disabled when QueueURL is empty.
type EventsConfig struct {
	QueueURL string `yaml:"queue_url"`
	Region   string `yaml:"region"`
}

// ContentTypeConfig maps a mailable content type onto the table holding
// its objects.
type ContentTypeConfig struct {
	Name          string `yaml:"name"`
	Table         string `yaml:"table"`
	KeyColumn     string `yaml:"key_column"`
	IntegerKeys   bool   `yaml:"integer_keys"`
	SubjectColumn string `yaml:"subject_column"`
	HTMLColumn    string `yaml:"html_column"`
	TextColumn    string `yaml:"text_column"`
}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.PublicURL == "" {
		cfg.Server.PublicURL = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 300
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Delivery.Transport == "" {
		cfg.Delivery.Transport = "log"
	}
	if cfg.Delivery.SES.Region == "" {
		cfg.Delivery.SES.Region = "us-east-1"
	}
	if cfg.Delivery.SMTP.Port == 0 {
		cfg.Delivery.SMTP.Port = 587
	}
	if cfg.Delivery.SMTP.TLSMode == "" {
		cfg.Delivery.SMTP.TLSMode = "auto"
	}
	if cfg.Delivery.SMTP.TimeoutSeconds == 0 {
		cfg.Delivery.SMTP.TimeoutSeconds = 30
	}
	if cfg.Worker.IntervalSeconds == 0 {
		cfg.Worker.IntervalSeconds = 15
	}
	if cfg.Worker.BatchSize == 0 {
		cfg.Worker.BatchSize = 100
	}
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = 8
	}
	if cfg.Worker.LeaseSeconds == 0 {
		cfg.Worker.LeaseSeconds = 300
	}
	if cfg.Events.Region == "" {
		cfg.Events.Region = cfg.Delivery.SES.Region
	}
	for i := range cfg.ContentTypes {
		if cfg.ContentTypes[i].KeyColumn == "" {
			cfg.ContentTypes[i].KeyColumn = "id"
		}
	}

	return &cfg, nil
}

// LoadFromEnv loads the YAML file and then applies environment overrides.
// A .env file in the working directory is read first when present.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("PUBLIC_URL"); v != "" {
		cfg.Server.PublicURL = v
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	// Database override (critical for ECS deployment where config.yaml has local defaults)
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DISPATCH_TOKEN_SECRET"); v != "" {
		cfg.Token.Secret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("DELIVERY_TRANSPORT"); v != "" {
		cfg.Delivery.Transport = v
	}
	if v := os.Getenv("DELIVERY_FROM_EMAIL"); v != "" {
		cfg.Delivery.FromEmail = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Delivery.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Delivery.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Delivery.SES.Region = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Delivery.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Delivery.SMTP.User = v
	}
	if v := os.Getenv("SMTP_PASS"); v != "" {
		cfg.Delivery.SMTP.Pass = v
	}
	if v := os.Getenv("WORKER_MANAGERS"); v != "" {
		cfg.Worker.Managers = splitList(v)
	}
	if v := os.Getenv("EVENTS_QUEUE_URL"); v != "" {
		cfg.Events.QueueURL = v
	}

	return cfg, nil
}

// Validate reports settings that would make the services unusable.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database url is required")
	}
	if c.Token.Secret == "" {
		return fmt.Errorf("token secret is required")
	}
	switch c.Delivery.Transport {
	case "log":
	case "ses", "smtp":
		if c.Delivery.FromEmail == "" {
			return fmt.Errorf("delivery.from_email is required for %s transport", c.Delivery.Transport)
		}
		if c.Delivery.Transport == "smtp" && c.Delivery.SMTP.Host == "" {
			return fmt.Errorf("delivery.smtp.host is required")
		}
	default:
		return fmt.Errorf("unknown delivery transport %q", c.Delivery.Transport)
	}
	seen := make(map[string]bool, len(c.ContentTypes))
	for _, ct := range c.ContentTypes {
		if ct.Name == "" || ct.Table == "" {
			return fmt.Errorf("content_types entries need a name and a table")
		}
		if seen[ct.Name] {
			return fmt.Errorf("content type %q is listed twice", ct.Name)
		}
		seen[ct.Name] = true
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
