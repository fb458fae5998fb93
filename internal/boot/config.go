package boot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/log"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Env      string `env:"ENV,default=dev"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
	DataDir  string `env:"DATA_DIR"`
	Server   struct {
		Port          string  `env:"PORT,default=8080"`
		MetricsPort   string  `env:"METRICS_PORT,default=8081"`
		Origins       string  `env:"ALLOWED_ORIGINS,default=*"`
		PollRateLimit float64 `env:"POLL_RATE_LIMIT,default=5"`
	}
	Database struct {
		URL string `env:"DATABASE_URL"`
	}
	Delivery struct {
		PushTimeout time.Duration `env:"DELIVERY_PUSH_TIMEOUT,default=1500ms"`
		Shards      int           `env:"REGISTRY_SHARDS,default=32"`
	}
	Identity struct {
		JWK string `env:"IDENTITY_JWK"`
	}
	AMQP struct {
		URL      string `env:"AMQP_URL"`
		Exchange string `env:"AMQP_EXCHANGE,default=conversations"`
		// empty binds a private queue per process
		Queue    string `env:"AMQP_QUEUE"`
	}
	Meeting struct {
		APIURL       string `env:"MEETING_API_URL"`
		TokenURL     string `env:"MEETING_TOKEN_URL"`
		ClientID     string `env:"MEETING_CLIENT_ID"`
		ClientSecret string `env:"MEETING_CLIENT_SECRET"`
	}
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return LoadFrom(envconfig.OsLookuper())
}

func LoadFrom(lookuper envconfig.Lookuper) (*Config, error) {
	config := &Config{}
	if err := envconfig.ProcessWith(context.Background(), config, lookuper); err != nil {
		return nil, fmt.Errorf("parsing env vars: %w", err)
	}
	return config, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "prod"
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "dev"
}

// DatabaseURL falls back to a file in the data directory, or a private
// in-memory database when neither is set.
func (c *Config) DatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	if c.DataDir != "" {
		return "file:" + strings.TrimRight(c.DataDir, "/") + "/conversations.db"
	}
	return "file:conversations.db?mode=memory&cache=shared"
}

func (c *Config) PushTimeout() time.Duration {
	return c.Delivery.PushTimeout
}

func (c *Config) RegistryShards() int {
	return c.Delivery.Shards
}

func (c *Config) AllowedOrigins() []string {
	origins := strings.Split(c.Server.Origins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return origins
}

func (c *Config) Level() log.Lvl {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	}
	return log.INFO
}

func (c *Config) MeetingsEnabled() bool {
	return c.Meeting.APIURL != "" && c.Meeting.TokenURL != ""
}
