package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/logger"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/pg"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/redis"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

var config *Config

// Config holds every configuration value of the services. Only this struct must
// be used to read configuration, no direct access to env or any other config
// source should be made.
type Config struct {
	AppEnv              string `env:"APP_ENV,default=dev"`
	AppName             string `env:"APP_NAME,default=card_xref"`
	AppDebug            bool   `env:"APP_DEBUG,default=1"`
	AppDebugMetricsAddr string `env:"APP_DEBUG_METRIC_ADDR,default=:9100"`
	AppDebugMetricsURI  string `env:"APP_DEBUG_METRIC_URI,default=/metrics"`

	HttpListenAddr         string        `env:"HTTP_LISTEN_ADDR,default=:8080"`
	HttpBaseRequestUrl     string        `env:"HTTP_BASE_REQUEST_URI,default=/api/v1"`
	HttpServerReadTimeout  time.Duration `env:"HTTP_SERVER_READ_TIMEOUT,default=2500ms"`
	HttpServerWriteTimeout time.Duration `env:"HTTP_SERVER_WRITE_TIMEOUT,default=2500ms"`
	HttpRequestTimeout     time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=5s"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	PostgresMaxOpenConns    int           `env:"POSTGRES_MAX_OPEN_CONNS,default=20"`
	PostgresMaxIdleConns    int           `env:"POSTGRES_MAX_IDLE_CONNS,default=5"`
	PostgresConnMaxLifetime time.Duration `env:"POSTGRES_CONN_MAX_LIFETIME,default=30m"`

	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX"`

	PromNamespace string `env:"PROM_NAMESPACE,default=carddemo"`

	XrefDefaultPageSize     int           `env:"XREF_DEFAULT_PAGE_SIZE,default=7"`
	XrefMaxPageSize         int           `env:"XREF_MAX_PAGE_SIZE,default=100"`
	XrefCascadeMaxRetries   int           `env:"XREF_CASCADE_MAX_RETRIES,default=3"`
	XrefCascadeRetryDelay   time.Duration `env:"XREF_CASCADE_RETRY_DELAY,default=2ms"`
	XrefCascadeLockTTL      time.Duration `env:"XREF_CASCADE_LOCK_TTL,default=30s"`
	XrefEventsStream        string        `env:"XREF_EVENTS_STREAM,default=xref:events"`
	XrefEventsGroup         string        `env:"XREF_EVENTS_GROUP,default=xref-audit"`
	XrefEventsConsumer      string        `env:"XREF_EVENTS_CONSUMER"`
	XrefEventsMaxLen        int64         `env:"XREF_EVENTS_MAXLEN,default=100000"`
	XrefEventsMaxRetries    int           `env:"XREF_EVENTS_MAX_RETRIES,default=3"`
	XrefEventsVisibility    time.Duration `env:"XREF_EVENTS_VISIBILITY_TIMEOUT,default=30s"`
	XrefEventsPollInterval  time.Duration `env:"XREF_EVENTS_POLL_INTERVAL,default=1s"`
	XrefEventsBatchSize     int64         `env:"XREF_EVENTS_BATCH_SIZE,default=10"`
	XrefEventsEnableDLQ     bool          `env:"XREF_EVENTS_ENABLE_DLQ,default=true"`
	XrefEventsPublishEnable bool          `env:"XREF_EVENTS_PUBLISH_ENABLE,default=true"`

	AuditInterval  time.Duration `env:"AUDIT_INTERVAL,default=5m"`
	AuditWorkers   int           `env:"AUDIT_WORKERS,default=4"`
	AuditQueueSize int           `env:"AUDIT_QUEUE_SIZE,default=1000"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		if err := godotenv.Load(path); err != nil {
			return errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	if _, err := env.UnmarshalFromEnviron(c); err != nil {
		return errors.Wrap(err, "failed to map env variables to configuration")
	}
	if err := c.validate(); err != nil {
		return err
	}

	config = c
	return nil
}

func (c *Config) validate() error {
	if c.XrefDefaultPageSize <= 0 {
		return errors.New("XREF_DEFAULT_PAGE_SIZE must be greater than 0")
	}
	if c.XrefMaxPageSize < c.XrefDefaultPageSize {
		return errors.Errorf("XREF_MAX_PAGE_SIZE must be at least %d", c.XrefDefaultPageSize)
	}
	if c.XrefCascadeMaxRetries < 0 {
		return errors.New("XREF_CASCADE_MAX_RETRIES must not be negative")
	}
	return nil
}

func (c *Config) PostgresRead() pg.Config {
	return pg.Config{
		User:     c.PostgresReadUser,
		Host:     c.PostgresReadHost,
		Port:     c.PostgresReadPort,
		Password: c.PostgresReadPassword,
		Database: c.PostgresReadDatabase,
	}
}

func (c *Config) PostgresWrite() pg.Config {
	return pg.Config{
		User:     c.PostgresWriteUser,
		Host:     c.PostgresWriteHost,
		Port:     c.PostgresWritePort,
		Password: c.PostgresWritePassword,
		Database: c.PostgresWriteDatabase,
	}
}

func (c *Config) PostgresPool() pg.PoolConfig {
	return pg.PoolConfig{
		MaxOpenConns:    c.PostgresMaxOpenConns,
		MaxIdleConns:    c.PostgresMaxIdleConns,
		ConnMaxLifetime: c.PostgresConnMaxLifetime,
	}
}

func (c *Config) Redis(clientName string) *redis.Options {
	return &redis.Options{
		Addrs:      []string{c.RedisAddr},
		ClientName: clientName,
		DB:         c.RedisDatabase,
		Username:   c.RedisUsername,
		Password:   c.RedisPassword,
	}
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}
