package server

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/ccxcon/ccxcon/internal/queue"
	"github.com/ccxcon/ccxcon/internal/webhook"
	"github.com/ccxcon/ccxcon/server/database"
)

// LoadConfig reads defaults, the config file and CCXCON_ prefixed environment variables.
// An empty cfgPath searches for ccxcon.{json,yaml,toml} in the working directory and /etc/ccxcon/.
func LoadConfig(cfgPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("ccxcon")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/ccxcon/")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgPath != "" || !asConfigNotFound(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}
	v.SetEnvPrefix("ccxcon")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg, func(config *mapstructure.DecoderConfig) {
		config.TagName = "cfg"
	}, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

func asConfigNotFound(err error, target *viper.ConfigFileNotFoundError) bool {
	notFound, ok := err.(viper.ConfigFileNotFoundError)
	if ok {
		*target = notFound
	}
	return ok
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("dev_mode", false)
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("http_timeout", "30s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", LogFormatText)
	v.SetDefault("log.add_source", false)
	v.SetDefault("log.no_color", false)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.debug", false)
	v.SetDefault("database.path", "ccxcon.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.username", "ccxcon")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "ccxcon")
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("queue.type", "memory")
	v.SetDefault("queue.name", "default")
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.poll_interval", "1s")
	v.SetDefault("queue.visibility_timeout", "5m")
	v.SetDefault("queue.max_retries", 5)

	v.SetDefault("webhook.timeout", "10s")
	v.SetDefault("webhook.user_agent", "ccxcon")

	v.SetDefault("edx.timeout", "30s")

	v.SetDefault("auth.allowed_client_keys", []string{})
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "1h")
	v.SetDefault("auth.clients", map[string]string{})

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests", 60)
	v.SetDefault("rate_limit.duration", "1m")
	v.SetDefault("rate_limit.whitelist", []string{"127.0.0.1"})
	v.SetDefault("rate_limit.blacklist", []string{})

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.size", 1024)
	v.SetDefault("cache.ttl", "5s")

	v.SetDefault("status.token", "")
	v.SetDefault("status.worker_timeout", "1m")

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.instance_id", "1")
	v.SetDefault("otel.trace.enabled", false)
	v.SetDefault("otel.trace.endpoint", "localhost:4318")
	v.SetDefault("otel.trace.insecure", false)
	v.SetDefault("otel.metrics.enabled", false)
	v.SetDefault("otel.metrics.listen_addr", ":9100")
}

type Config struct {
	Debug       bool              `cfg:"debug"`
	DevMode     bool              `cfg:"dev_mode"`
	ListenAddr  string            `cfg:"listen_addr"`
	HTTPTimeout time.Duration     `cfg:"http_timeout"`
	Log         LogConfig         `cfg:"log"`
	Database    database.Config   `cfg:"database"`
	Redis       queue.RedisConfig `cfg:"redis"`
	Queue       queue.Config      `cfg:"queue"`
	Webhook     webhook.Config    `cfg:"webhook"`
	Edx         EdxConfig         `cfg:"edx"`
	Auth        AuthConfig        `cfg:"auth"`
	RateLimit   RateLimitConfig   `cfg:"rate_limit"`
	Cache       CacheConfig       `cfg:"cache"`
	Status      StatusConfig      `cfg:"status"`
	Otel        OtelConfig        `cfg:"otel"`
}

func (c Config) String() string {
	return fmt.Sprintf("\n Debug: %t\n DevMode: %t\n ListenAddr: %s\n HTTPTimeout: %s\n Log: %s\n Database: %s\n Redis: %s\n Queue: %s\n Webhook: %s\n Edx: %s\n Auth: %s\n RateLimit: %s\n Cache: %s\n Status: %s\n Otel: %s\n",
		c.Debug,
		c.DevMode,
		c.ListenAddr,
		c.HTTPTimeout,
		c.Log,
		c.Database,
		redisString(c.Redis),
		c.Queue,
		c.Webhook,
		c.Edx,
		c.Auth,
		c.RateLimit,
		c.Cache,
		c.Status,
		c.Otel,
	)
}

func redisString(c queue.RedisConfig) string {
	return fmt.Sprintf("\n  Address: %s\n  Username: %s\n  Password: %s\n  DB: %d",
		c.Address,
		c.Username,
		strings.Repeat("*", len(c.Password)),
		c.DB,
	)
}

const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

type LogConfig struct {
	Level     slog.Level `cfg:"level"`
	Format    string     `cfg:"format"`
	AddSource bool       `cfg:"add_source"`
	NoColor   bool       `cfg:"no_color"`
}

func (c LogConfig) String() string {
	return fmt.Sprintf("\n  Level: %s\n  Format: %s\n  AddSource: %t\n  NoColor: %t",
		c.Level,
		c.Format,
		c.AddSource,
		c.NoColor,
	)
}

type EdxConfig struct {
	Timeout time.Duration `cfg:"timeout"`
}

func (c EdxConfig) String() string {
	return fmt.Sprintf("\n  Timeout: %s", c.Timeout)
}

type AuthConfig struct {
	AllowedClientKeys []string          `cfg:"allowed_client_keys"`
	JWTSecret         string            `cfg:"jwt_secret"`
	TokenTTL          time.Duration     `cfg:"token_ttl"`
	Clients           map[string]string `cfg:"clients"`
}

func (c AuthConfig) String() string {
	return fmt.Sprintf("\n  AllowedClientKeys: %d configured\n  JWTSecret: %s\n  TokenTTL: %s\n  Clients: %d configured",
		len(c.AllowedClientKeys),
		strings.Repeat("*", len(c.JWTSecret)),
		c.TokenTTL,
		len(c.Clients),
	)
}

type RateLimitConfig struct {
	Enabled   bool          `cfg:"enabled"`
	Requests  int           `cfg:"requests"`
	Duration  time.Duration `cfg:"duration"`
	Whitelist []string      `cfg:"whitelist"`
	Blacklist []string      `cfg:"blacklist"`
}

func (c RateLimitConfig) String() string {
	return fmt.Sprintf("\n  Enabled: %t\n  Requests: %d\n  Duration: %s\n  Whitelist: %v\n  Blacklist: %v",
		c.Enabled,
		c.Requests,
		c.Duration,
		c.Whitelist,
		c.Blacklist,
	)
}

type CacheConfig struct {
	Enabled bool          `cfg:"enabled"`
	Size    int           `cfg:"size"`
	TTL     time.Duration `cfg:"ttl"`
}

func (c CacheConfig) String() string {
	return fmt.Sprintf("\n  Enabled: %t\n  Size: %d\n  TTL: %s", c.Enabled, c.Size, c.TTL)
}

type StatusConfig struct {
	Token         string        `cfg:"token"`
	WorkerTimeout time.Duration `cfg:"worker_timeout"`
}

func (c StatusConfig) String() string {
	return fmt.Sprintf("\n  Token: %s\n  WorkerTimeout: %s", strings.Repeat("*", len(c.Token)), c.WorkerTimeout)
}

type OtelConfig struct {
	Enabled    bool           `cfg:"enabled"`
	InstanceID string         `cfg:"instance_id"`
	Trace      *TraceConfig   `cfg:"trace"`
	Metrics    *MetricsConfig `cfg:"metrics"`
}

func (c OtelConfig) String() string {
	return fmt.Sprintf("\n  Enabled: %t\n  InstanceID: %s\n  Trace: %s\n  Metrics: %s",
		c.Enabled,
		c.InstanceID,
		c.Trace,
		c.Metrics,
	)
}

type TraceConfig struct {
	Enabled  bool   `cfg:"enabled"`
	Endpoint string `cfg:"endpoint"`
	Insecure bool   `cfg:"insecure"`
}

func (c *TraceConfig) String() string {
	if c == nil {
		return "<nil>"
	}
	return fmt.Sprintf("\n   Enabled: %t\n   Endpoint: %s\n   Insecure: %t", c.Enabled, c.Endpoint, c.Insecure)
}

type MetricsConfig struct {
	Enabled    bool   `cfg:"enabled"`
	ListenAddr string `cfg:"listen_addr"`
}

func (c *MetricsConfig) String() string {
	if c == nil {
		return "<nil>"
	}
	return fmt.Sprintf("\n   Enabled: %t\n   ListenAddr: %s", c.Enabled, c.ListenAddr)
}
