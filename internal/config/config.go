package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"db"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Functions FunctionsConfig `mapstructure:"functions"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Export    ExportConfig    `mapstructure:"export"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"env"`
	Version     string `mapstructure:"version"`
}

func (a AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	// URL, when set, is used verbatim instead of the individual fields.
	URL                string        `mapstructure:"url"`
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	Name               string        `mapstructure:"name"`
	User               string        `mapstructure:"user"`
	Password           string        `mapstructure:"password"`
	SSLMode            string        `mapstructure:"sslmode"`
	MaxOpenConns       int           `mapstructure:"max_open_conns"`
	MaxIdleConns       int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime    time.Duration `mapstructure:"conn_max_idle_time"`
	SlowQueryThreshold time.Duration `mapstructure:"slow_query_threshold"`
}

func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode,
	)
}

type JWTConfig struct {
	Secret          string        `mapstructure:"secret"`
	AccessTokenTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_ttl"`
	Issuer          string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type CORSConfig struct {
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	AllowedMethods []string      `mapstructure:"allowed_methods"`
	AllowedHeaders []string      `mapstructure:"allowed_headers"`
	MaxAge         time.Duration `mapstructure:"max_age"`
}

type RateLimitConfig struct {
	// Global rate limit per IP
	RequestsPerSecond float64 `mapstructure:"rps"`
	BurstSize         int     `mapstructure:"burst"`
	// Login has a stricter limit
	AuthRequestsPerMinute int `mapstructure:"auth_rpm"`
}

// FunctionsConfig points the API server at the privileged user-management functions.
type FunctionsConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	Timeout          time.Duration `mapstructure:"timeout"`
	BreakerFailures  uint32        `mapstructure:"breaker_failures"`
	BreakerOpenDelay time.Duration `mapstructure:"breaker_open_delay"`
}

func (f FunctionsConfig) Address() string {
	return fmt.Sprintf("%s:%d", f.Host, f.Port)
}

// RemoteConfig bounds every call that leaves the process (database, functions).
type RemoteConfig struct {
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

type CacheConfig struct {
	ListTTL    time.Duration `mapstructure:"list_ttl"`
	PreviewTTL time.Duration `mapstructure:"preview_ttl"`
}

type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type ExportConfig struct {
	Bucket   string `mapstructure:"s3_bucket"`
	Prefix   string `mapstructure:"s3_prefix"`
	Region   string `mapstructure:"s3_region"`
	Endpoint string `mapstructure:"s3_endpoint"`
}

func (e ExportConfig) Enabled() bool {
	return e.Bucket != ""
}

var defaults = map[string]any{
	"app.name":    "childscreen",
	"app.env":     "development",
	"app.version": "0.0.0",

	"server.host":             "0.0.0.0",
	"server.port":             8080,
	"server.read_timeout":     15 * time.Second,
	"server.write_timeout":    15 * time.Second,
	"server.idle_timeout":     60 * time.Second,
	"server.shutdown_timeout": 30 * time.Second,
	"server.request_timeout":  20 * time.Second,

	"db.url":                  "",
	"db.host":                 "localhost",
	"db.port":                 5432,
	"db.name":                 "childscreen",
	"db.user":                 "childscreen",
	"db.password":             "",
	"db.sslmode":              "require",
	"db.max_open_conns":       25,
	"db.max_idle_conns":       10,
	"db.conn_max_lifetime":    30 * time.Minute,
	"db.conn_max_idle_time":   5 * time.Minute,
	"db.slow_query_threshold": 200 * time.Millisecond,

	"jwt.secret":      "",
	"jwt.access_ttl":  15 * time.Minute,
	"jwt.refresh_ttl": 7 * 24 * time.Hour,
	"jwt.issuer":      "childscreen-api",

	"log.level":  "info",
	"log.format": "json",
	"log.output": "stdout",

	"tracing.enabled":      false,
	"tracing.service_name": "childscreen-api",
	"tracing.endpoint":     "otel-collector:4318",
	"tracing.sample_rate":  0.1,

	"cors.allowed_origins": []string{"http://localhost:5173"},
	"cors.allowed_methods": []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
	"cors.allowed_headers": []string{"Authorization", "Content-Type", "X-Request-ID"},
	"cors.max_age":         12 * time.Hour,

	"rate_limit.rps":      100.0,
	"rate_limit.burst":    200,
	"rate_limit.auth_rpm": 10,

	"functions.base_url":           "http://localhost:8081/functions/v1",
	"functions.host":               "0.0.0.0",
	"functions.port":               8081,
	"functions.timeout":            10 * time.Second,
	"functions.breaker_failures":   5,
	"functions.breaker_open_delay": 30 * time.Second,

	"remote.call_timeout": 8 * time.Second,

	"cache.list_ttl":    10 * time.Second,
	"cache.preview_ttl": 15 * time.Minute,

	"kafka.brokers":       []string{},
	"kafka.topic":         "childscreen.events",
	"kafka.write_timeout": 5 * time.Second,

	"export.s3_bucket":   "",
	"export.s3_prefix":   "exports/",
	"export.s3_region":   "",
	"export.s3_endpoint": "",
}

// Load reads configuration from the environment (DB_HOST, JWT_SECRET, KAFKA_BROKERS, ...)
// and an optional .env file in the working directory.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// Missing .env is fine
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORS.AllowedOrigins = splitList(cfg.CORS.AllowedOrigins)
	cfg.CORS.AllowedMethods = splitList(cfg.CORS.AllowedMethods)
	cfg.CORS.AllowedHeaders = splitList(cfg.CORS.AllowedHeaders)
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate enforces production security requirements.
func validate(cfg *Config) error {
	var errs []string

	if cfg.JWT.Secret == "" {
		errs = append(errs, "JWT_SECRET is required")
	} else if len(cfg.JWT.Secret) < 32 && cfg.App.IsProduction() {
		errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
	}

	if cfg.Database.Password == "" && cfg.Database.URL == "" && cfg.App.Environment != "development" {
		errs = append(errs, "DB_PASSWORD is required in non-development environments")
	}

	if cfg.Database.SSLMode == "disable" && cfg.App.IsProduction() {
		errs = append(errs, "DB_SSLMODE=disable is not allowed in production")
	}

	if cfg.Functions.BaseURL == "" {
		errs = append(errs, "FUNCTIONS_BASE_URL is required")
	}

	if cfg.Remote.CallTimeout <= 0 {
		errs = append(errs, "REMOTE_CALL_TIMEOUT must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// splitList normalises list values that arrive from the environment as a
// single comma-separated string.
func splitList(in []string) []string {
	result := make([]string, 0, len(in))
	for _, raw := range in {
		for _, p := range strings.Split(raw, ",") {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
	}
	return result
}
