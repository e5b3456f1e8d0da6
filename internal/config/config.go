package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Remote    RemoteConfig
	Poll      PollConfig
	Archive   ArchiveConfig
	Worker    WorkerConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
	LogDir   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type RateLimitConfig struct {
	DocumentPerHour int
	ScriptPerHour   int
	RenderPerHour   int
}

// RemoteConfig points at the extraction / generation / render backend.
type RemoteConfig struct {
	BaseURL           string
	Timeout           int // seconds
	RequestsPerSecond float64
	Burst             int
}

type PollConfig struct {
	IntervalMS int
}

func (c PollConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// ArchiveConfig configures the optional S3-compatible document archive.
type ArchiveConfig struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

func (c ArchiveConfig) Enabled() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.SecretAccessKey != "" && c.BucketName != ""
}

type WorkerConfig struct {
	Concurrency int
	Enabled     bool
}

func Load() (*Config, error) {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("ARCHIVE_ACCESS_KEY_ID")
	readSecret("ARCHIVE_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.log_dir", "LOG_DIR")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("ratelimit.document_per_hour", "RATELIMIT_DOCUMENT_PER_HOUR")
	_ = v.BindEnv("ratelimit.script_per_hour", "RATELIMIT_SCRIPT_PER_HOUR")
	_ = v.BindEnv("ratelimit.render_per_hour", "RATELIMIT_RENDER_PER_HOUR")
	_ = v.BindEnv("remote.base_url", "REMOTE_BASE_URL")
	_ = v.BindEnv("remote.timeout", "REMOTE_TIMEOUT")
	_ = v.BindEnv("remote.requests_per_second", "REMOTE_REQUESTS_PER_SECOND")
	_ = v.BindEnv("remote.burst", "REMOTE_BURST")
	_ = v.BindEnv("poll.interval_ms", "POLL_INTERVAL_MS")
	_ = v.BindEnv("archive.account_id", "ARCHIVE_ACCOUNT_ID")
	_ = v.BindEnv("archive.access_key_id", "ARCHIVE_ACCESS_KEY_ID")
	_ = v.BindEnv("archive.secret_access_key", "ARCHIVE_SECRET_ACCESS_KEY")
	_ = v.BindEnv("archive.bucket_name", "ARCHIVE_BUCKET_NAME")
	_ = v.BindEnv("archive.public_url", "ARCHIVE_PUBLIC_URL")
	_ = v.BindEnv("worker.concurrency", "WORKER_CONCURRENCY")
	_ = v.BindEnv("worker.enabled", "WORKER_ENABLED")

	// Defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_dir", "")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("ratelimit.document_per_hour", 30)
	v.SetDefault("ratelimit.script_per_hour", 20)
	v.SetDefault("ratelimit.render_per_hour", 10)
	v.SetDefault("remote.base_url", "http://localhost:8000/api")
	v.SetDefault("remote.timeout", 300)
	v.SetDefault("remote.requests_per_second", 10)
	v.SetDefault("remote.burst", 5)
	v.SetDefault("poll.interval_ms", 2000)
	v.SetDefault("worker.concurrency", 5)
	v.SetDefault("worker.enabled", true)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     v.GetString("server.port"),
			Env:      v.GetString("server.env"),
			LogLevel: v.GetString("server.log_level"),
			LogDir:   v.GetString("server.log_dir"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
		},
		RateLimit: RateLimitConfig{
			DocumentPerHour: v.GetInt("ratelimit.document_per_hour"),
			ScriptPerHour:   v.GetInt("ratelimit.script_per_hour"),
			RenderPerHour:   v.GetInt("ratelimit.render_per_hour"),
		},
		Remote: RemoteConfig{
			BaseURL:           strings.TrimRight(v.GetString("remote.base_url"), "/"),
			Timeout:           v.GetInt("remote.timeout"),
			RequestsPerSecond: v.GetFloat64("remote.requests_per_second"),
			Burst:             v.GetInt("remote.burst"),
		},
		Poll: PollConfig{
			IntervalMS: v.GetInt("poll.interval_ms"),
		},
		Archive: ArchiveConfig{
			AccountID:       v.GetString("archive.account_id"),
			AccessKeyID:     v.GetString("archive.access_key_id"),
			SecretAccessKey: v.GetString("archive.secret_access_key"),
			BucketName:      v.GetString("archive.bucket_name"),
			PublicURL:       v.GetString("archive.public_url"),
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("worker.concurrency"),
			Enabled:     v.GetBool("worker.enabled"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if c.Remote.BaseURL == "" {
		return errors.New("remote base url is required")
	}
	if c.Remote.Timeout <= 0 {
		return errors.Errorf("remote timeout must be greater than 0, got %d", c.Remote.Timeout)
	}
	if c.Remote.RequestsPerSecond <= 0 || c.Remote.Burst <= 0 {
		return errors.New("remote rate limit must be greater than 0")
	}
	if c.Poll.IntervalMS <= 0 {
		return errors.Errorf("poll interval must be greater than 0, got %d", c.Poll.IntervalMS)
	}
	if c.Worker.Concurrency <= 0 {
		return errors.New("worker concurrency must be greater than 0")
	}
	return nil
}
