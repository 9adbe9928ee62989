package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "CARGOLINE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "CARGOLINE_DB_DSN"
	EnvDBHost = "CARGOLINE_DB_HOST"
	EnvDBUser = "CARGOLINE_DB_USER"
	EnvDBName = "CARGOLINE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Routing      RoutingConfig
	Tracking     TrackingConfig
	Fuel         FuelConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
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
	Env          string `envconfig:"CARGOLINE_APP_ENV" required:"true"`
	Port         string `envconfig:"CARGOLINE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CARGOLINE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CARGOLINE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CARGOLINE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CARGOLINE_DB_DSN"`
	Driver string `envconfig:"CARGOLINE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CARGOLINE_DB_HOST"`
	LegacyPort     int    `envconfig:"CARGOLINE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CARGOLINE_DB_USER"`
	LegacyPassword string `envconfig:"CARGOLINE_DB_PASSWORD"`
	LegacyName     string `envconfig:"CARGOLINE_DB_NAME"`
	LegacySSLMode  string `envconfig:"CARGOLINE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CARGOLINE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CARGOLINE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CARGOLINE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CARGOLINE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CARGOLINE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CARGOLINE_REDIS_ADDR"`
	Password     string        `envconfig:"CARGOLINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"CARGOLINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CARGOLINE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CARGOLINE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CARGOLINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CARGOLINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CARGOLINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// RoutingConfig drives the routing provider client (matrix + directions).
type RoutingConfig struct {
	BaseURL        string        `envconfig:"CARGOLINE_ROUTING_BASE_URL" default:"https://api.openrouteservice.org"`
	APIKey         string        `envconfig:"CARGOLINE_ROUTING_API_KEY" required:"true"`
	Profile        string        `envconfig:"CARGOLINE_ROUTING_PROFILE" default:"driving-hgv"`
	RequestTimeout time.Duration `envconfig:"CARGOLINE_ROUTING_TIMEOUT" default:"10s"`
}

// TrackingConfig bounds the per-carrier processing cycle.
type TrackingConfig struct {
	CarrierLockTTL time.Duration `envconfig:"CARGOLINE_TRACKING_CARRIER_LOCK_TTL" default:"30s"`
}

// FuelConfig feeds the fuel cost estimate attached to planned routes.
type FuelConfig struct {
	PricePerLiter          string  `envconfig:"CARGOLINE_FUEL_PRICE_PER_LITER" default:"1.65"`
	DefaultConsumptionL100 float64 `envconfig:"CARGOLINE_FUEL_DEFAULT_CONSUMPTION_L100" default:"32"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CARGOLINE_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CARGOLINE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CARGOLINE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CARGOLINE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	LocationTopic        string `envconfig:"CARGOLINE_PUBSUB_LOCATION_TOPIC" default:"cl-location-pings"`
	LocationSubscription string `envconfig:"CARGOLINE_PUBSUB_LOCATION_SUBSCRIPTION"`
	DomainTopic          string `envconfig:"CARGOLINE_PUBSUB_DOMAIN_TOPIC" default:"cl-domain-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CARGOLINE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CARGOLINE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CARGOLINE_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
