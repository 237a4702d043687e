package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

type Environment string

const (
	EnvLocal      Environment = "local"
	EnvDev        Environment = "dev"
	EnvStage      Environment = "stage"
	EnvProduction Environment = "production"
)

type StoreDriver string

const (
	StoreSqlite StoreDriver = "sqlite"
	StoreRemote StoreDriver = "remote"
)

type CacheBackend string

const (
	CacheLRU   CacheBackend = "lru"
	CacheRedis CacheBackend = "redis"
)

type LogFormat string

const (
	LogConsole LogFormat = "console"
	LogZap     LogFormat = "zap"
)

type ConfigBasicClient struct {
	Username string
	Password string
}

type Config struct {
	App struct {
		Version  string      `env:"APP_VERSION" envDefault:"local"`
		Env      Environment `env:"APP_ENV" envDefault:"local"`
		Timezone string      `env:"APP_TIMEZONE" envDefault:"UTC"`
	}

	HTTP struct {
		Port string `env:"HTTP_SERVER_PORT" envDefault:"8080"`
		Host string `env:"HTTP_SERVER_HOST" envDefault:"localhost"`
	}

	Auth struct {
		BasicClientsString string `env:"AUTH_BASIC_CLIENTS" envDefault:"booking:booking"`
		BasicClients       []ConfigBasicClient
	}

	Store struct {
		Driver    StoreDriver   `env:"STORE_DRIVER" envDefault:"sqlite"`
		SqliteDSN string        `env:"STORE_SQLITE_DSN" envDefault:"file:booking.db"`
		SeedDemo  bool          `env:"STORE_SEED_DEMO" envDefault:"true"`
		RemoteURL string        `env:"STORE_REMOTE_URL"`
		Username  string        `env:"STORE_REMOTE_USERNAME"`
		Password  string        `env:"STORE_REMOTE_PASSWORD"`
		Timeout   time.Duration `env:"STORE_REMOTE_TIMEOUT" envDefault:"10s"`
	}

	Cache struct {
		Enabled   bool          `env:"CACHE_ENABLED"`
		Backend   CacheBackend  `env:"CACHE_BACKEND" envDefault:"lru"`
		Size      int           `env:"CACHE_SIZE" envDefault:"1000"`
		TTL       time.Duration `env:"CACHE_TTL" envDefault:"1m"`
		RedisAddr string        `env:"CACHE_REDIS_ADDR"`
		RedisDB   int           `env:"CACHE_REDIS_DB" envDefault:"0"`
	}

	RabbitMQ struct {
		Enabled  bool   `env:"RABBITMQ_ENABLED"`
		URL      string `env:"RABBITMQ_URL"`
		Exchange string `env:"RABBITMQ_EXCHANGE" envDefault:"booking"`
		Queue    string `env:"RABBITMQ_QUEUE" envDefault:"booking.speaker.selected"`
	}

	Log struct {
		Format LogFormat `env:"LOG_FORMAT" envDefault:"console"`
		Level  string    `env:"LOG_LEVEL" envDefault:"debug"`
	}

	Booking struct {
		SelectionBuffer    int `env:"BOOKING_SELECTION_BUFFER" envDefault:"8"`
		NotificationBuffer int `env:"BOOKING_NOTIFICATION_BUFFER" envDefault:"64"`
		MaxSessions        int `env:"BOOKING_MAX_SESSIONS" envDefault:"1000"`
	}
}

func NewConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Приведение перечислений к нижнему регистру для унификации
	cfg.App.Env = Environment(strings.ToLower(string(cfg.App.Env)))
	cfg.Store.Driver = StoreDriver(strings.ToLower(string(cfg.Store.Driver)))
	cfg.Cache.Backend = CacheBackend(strings.ToLower(string(cfg.Cache.Backend)))
	cfg.Log.Format = LogFormat(strings.ToLower(string(cfg.Log.Format)))

	cfg.Auth.BasicClients = parseBasicClients(cfg.Auth.BasicClientsString)

	// Redis без адреса не поднимется, работаем без кэша
	if cfg.Cache.Backend == CacheRedis && cfg.Cache.RedisAddr == "" {
		cfg.Cache.Enabled = false
	}
	if cfg.Cache.Size <= 0 {
		cfg.Cache.Enabled = false
	}

	return cfg, nil
}

func parseBasicClients(raw string) []ConfigBasicClient {
	clients := []ConfigBasicClient{}
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) == 2 && parts[0] != "" {
			clients = append(clients, ConfigBasicClient{
				Username: parts[0],
				Password: parts[1],
			})
		}
	}
	return clients
}

func (c *Config) IsLocal() bool {
	return c.App.Env == EnvLocal
}

func (c *Config) IsNotLocal() bool {
	return c.App.Env == EnvDev || c.App.Env == EnvStage || c.App.Env == EnvProduction
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
