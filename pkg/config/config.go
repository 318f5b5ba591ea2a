package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Sync         SyncConfig
	Ticketing    TicketingConfig
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
	Env          string `envconfig:"TEMPORA_APP_ENV" required:"true"`
	Port         string `envconfig:"TEMPORA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TEMPORA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TEMPORA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TEMPORA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TEMPORA_DB_DSN"`
	Driver string `envconfig:"TEMPORA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TEMPORA_DB_HOST"`
	LegacyPort     int    `envconfig:"TEMPORA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TEMPORA_DB_USER"`
	LegacyPassword string `envconfig:"TEMPORA_DB_PASSWORD"`
	LegacyName     string `envconfig:"TEMPORA_DB_NAME"`
	LegacySSLMode  string `envconfig:"TEMPORA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TEMPORA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TEMPORA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TEMPORA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TEMPORA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TEMPORA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TEMPORA_REDIS_ADDR"`
	Password     string        `envconfig:"TEMPORA_REDIS_PASSWORD"`
	DB           int           `envconfig:"TEMPORA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TEMPORA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TEMPORA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TEMPORA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TEMPORA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TEMPORA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TEMPORA_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"TEMPORA_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TEMPORA_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"TEMPORA_PUBSUB_DOMAIN_TOPIC" default:"tempora-domain-events"`
	DomainSubscription string `envconfig:"TEMPORA_PUBSUB_DOMAIN_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TEMPORA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TEMPORA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TEMPORA_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"TEMPORA_OUTBOX_RETENTION_DAYS" default:"30"`
}

type SyncConfig struct {
	Interval   time.Duration `envconfig:"TEMPORA_SYNC_INTERVAL" default:"1h"`
	LockTTL    time.Duration `envconfig:"TEMPORA_SYNC_LOCK_TTL" default:"2h"`
	StaleAfter time.Duration `envconfig:"TEMPORA_SYNC_STALE_AFTER" default:"6h"`
	PageSize   int           `envconfig:"TEMPORA_SYNC_PAGE_SIZE" default:"100"`
}

type TicketingConfig struct {
	BaseURL  string        `envconfig:"TEMPORA_TICKETING_BASE_URL"`
	APIToken string        `envconfig:"TEMPORA_TICKETING_API_TOKEN"`
	Timeout  time.Duration `envconfig:"TEMPORA_TICKETING_TIMEOUT" default:"30s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TEMPORA_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
