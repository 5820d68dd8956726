package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable the service reads.
	EnvPrefix = "GIFTWELL"

	AppEnvDev  = "development"
	AppEnvProd = "production"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	RateLimit    RateLimitConfig
	Idempotency  IdempotencyConfig
	Tickets      TicketConfig
	Storage      StorageConfig
	GCP          GCPConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"GIFTWELL_APP_ENV" required:"true"`
	Port         string `envconfig:"GIFTWELL_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"GIFTWELL_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GIFTWELL_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"GIFTWELL_DB_DSN"`
	Driver string `envconfig:"GIFTWELL_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"GIFTWELL_DB_HOST"`
	Port     int    `envconfig:"GIFTWELL_DB_PORT" default:"5432"`
	User     string `envconfig:"GIFTWELL_DB_USER"`
	Password string `envconfig:"GIFTWELL_DB_PASSWORD"`
	Name     string `envconfig:"GIFTWELL_DB_NAME"`
	SSLMode  string `envconfig:"GIFTWELL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GIFTWELL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GIFTWELL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GIFTWELL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GIFTWELL_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// QueryTimeout bounds every repository call; timeouts surface as a retryable error.
	QueryTimeout time.Duration `envconfig:"GIFTWELL_DB_QUERY_TIMEOUT" default:"5s"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GIFTWELL_REDIS_URL"`
	Address      string        `envconfig:"GIFTWELL_REDIS_ADDR"`
	Password     string        `envconfig:"GIFTWELL_REDIS_PASSWORD"`
	DB           int           `envconfig:"GIFTWELL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GIFTWELL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GIFTWELL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GIFTWELL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GIFTWELL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GIFTWELL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// RateLimitConfig carries the fixed-window throttle parameters per scope.
// Backend selects where the counters live: "redis" shares windows across
// processes, "memory" keeps them process-local.
type RateLimitConfig struct {
	Backend         string        `envconfig:"GIFTWELL_RATE_LIMIT_BACKEND" default:"redis"`
	Window          time.Duration `envconfig:"GIFTWELL_RATE_LIMIT_WINDOW" default:"1m"`
	ReserveLimit    int           `envconfig:"GIFTWELL_RATE_LIMIT_RESERVE" default:"10"`
	ContributeLimit int           `envconfig:"GIFTWELL_RATE_LIMIT_CONTRIBUTE" default:"10"`
	UploadLimit     int           `envconfig:"GIFTWELL_RATE_LIMIT_UPLOAD" default:"5"`
	DefaultLimit    int           `envconfig:"GIFTWELL_RATE_LIMIT_DEFAULT" default:"30"`
}

// LimitFor resolves the per-window limit for a scope.
func (r RateLimitConfig) LimitFor(scope string) int {
	switch strings.ToLower(strings.TrimSpace(scope)) {
	case "reserve", "unreserve":
		return r.ReserveLimit
	case "contribute":
		return r.ContributeLimit
	case "upload":
		return r.UploadLimit
	default:
		return r.DefaultLimit
	}
}

type IdempotencyConfig struct {
	Backend string        `envconfig:"GIFTWELL_IDEMPOTENCY_BACKEND" default:"redis"`
	TTL     time.Duration `envconfig:"GIFTWELL_IDEMPOTENCY_TTL" default:"24h"`
}

type TicketConfig struct {
	Backend      string        `envconfig:"GIFTWELL_TICKET_BACKEND" default:"memory"`
	UploadTTL    time.Duration `envconfig:"GIFTWELL_TICKET_UPLOAD_TTL" default:"10m"`
	PreviewTTL   time.Duration `envconfig:"GIFTWELL_TICKET_PREVIEW_TTL" default:"5m"`
	MaxImages    int           `envconfig:"GIFTWELL_TICKET_MAX_IMAGES" default:"4"`
	MaxUploadMB  int           `envconfig:"GIFTWELL_TICKET_MAX_UPLOAD_MB" default:"8"`
	AllowedMimes []string      `envconfig:"GIFTWELL_TICKET_ALLOWED_MIMES" default:"image/png,image/jpeg,image/webp,image/gif"`
}

// MaxUploadBytes converts the configured megabyte bound.
func (t TicketConfig) MaxUploadBytes() int64 {
	return int64(t.MaxUploadMB) * 1024 * 1024
}

type StorageConfig struct {
	Backend           string        `envconfig:"GIFTWELL_STORAGE_BACKEND" default:"gcs"`
	BucketName        string        `envconfig:"GIFTWELL_STORAGE_BUCKET"`
	DownloadURLExpiry time.Duration `envconfig:"GIFTWELL_STORAGE_DOWNLOAD_URL_EXPIRY" default:"5m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"GIFTWELL_FEATURE_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"GIFTWELL_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"GIFTWELL_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GIFTWELL_GOOGLE_APPLICATION_CREDENTIALS"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	if db.Host == "" {
		missing = append(missing, "GIFTWELL_DB_HOST")
	}
	if db.User == "" {
		missing = append(missing, "GIFTWELL_DB_USER")
	}
	if db.Name == "" {
		missing = append(missing, "GIFTWELL_DB_NAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("either GIFTWELL_DB_DSN or %s are required", strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
