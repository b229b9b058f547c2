package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerPort string `yaml:"server_port"`
	Env        string `yaml:"env"` // "local" or "prod"

	StoreDriver string `yaml:"store_driver"` // "postgres" or "sqlite"
	SQLitePath  string `yaml:"sqlite_path"`
	DBURL       string `yaml:"database_url"`
	DBHost      string `yaml:"db_host"`
	DBPort      string `yaml:"db_port"`
	DBUser      string `yaml:"db_user"`
	DBPassword  string `yaml:"db_password"`
	DBName      string `yaml:"db_name"`
	DBMaxConns  int32  `yaml:"db_max_conns"`

	// Empty NatsURL / RedisAddr select the in-process broker and presence.
	NatsURL   string `yaml:"nats_url"`
	RedisAddr string `yaml:"redis_addr"`

	JWTSecret    string `yaml:"jwt_secret"`
	OtelEndpoint string `yaml:"otel_endpoint"`

	MatchMaxRetries int           `yaml:"match_max_retries"`
	MessageMaxBytes int           `yaml:"message_max_bytes"`
	HistoryPageSize int           `yaml:"history_page_size"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	PresenceTTL     time.Duration `yaml:"presence_ttl"`

	// CandidatePool feeds the static candidate source used with sqlite.
	CandidatePool []string `yaml:"candidate_pool"`
}

func defaults() *Config {
	return &Config{
		ServerPort:      "8080",
		Env:             "local",
		StoreDriver:     "postgres",
		SQLitePath:      "ontomatch.db",
		DBHost:          "localhost",
		DBPort:          "5432",
		DBUser:          "ontomatch",
		DBPassword:      "ontomatch_dev_password",
		DBName:          "ontomatch",
		DBMaxConns:      10,
		JWTSecret:       "dev-secret-change-me",
		MatchMaxRetries: 3,
		MessageMaxBytes: 4000,
		HistoryPageSize: 50,
		PollInterval:    5 * time.Second,
		PresenceTTL:     2 * time.Minute,
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order of precedence (environment wins). A .env file in
// the working directory is loaded into the environment first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.ServerPort = getEnv("SERVER_PORT", cfg.ServerPort)
	cfg.Env = getEnv("APP_ENV", cfg.Env)
	cfg.StoreDriver = getEnv("STORE_DRIVER", cfg.StoreDriver)
	cfg.SQLitePath = getEnv("SQLITE_PATH", cfg.SQLitePath)
	cfg.DBURL = getEnv("DATABASE_URL", cfg.DBURL)
	cfg.DBHost = getEnv("DB_HOST", cfg.DBHost)
	cfg.DBPort = getEnv("DB_PORT", cfg.DBPort)
	cfg.DBUser = getEnv("DB_USER", cfg.DBUser)
	cfg.DBPassword = getEnv("DB_PASSWORD", cfg.DBPassword)
	cfg.DBName = getEnv("DB_NAME", cfg.DBName)
	cfg.NatsURL = getEnv("NATS_URL", cfg.NatsURL)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.OtelEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OtelEndpoint)

	var err error
	if cfg.MatchMaxRetries, err = getEnvInt("MATCH_MAX_RETRIES", cfg.MatchMaxRetries); err != nil {
		return nil, err
	}
	if cfg.MessageMaxBytes, err = getEnvInt("MESSAGE_MAX_BYTES", cfg.MessageMaxBytes); err != nil {
		return nil, err
	}
	if cfg.HistoryPageSize, err = getEnvInt("HISTORY_PAGE_SIZE", cfg.HistoryPageSize); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = getEnvDuration("POLL_INTERVAL", cfg.PollInterval); err != nil {
		return nil, err
	}
	if cfg.PresenceTTL, err = getEnvDuration("PRESENCE_TTL", cfg.PresenceTTL); err != nil {
		return nil, err
	}
	if pool := getEnv("CANDIDATE_POOL", ""); pool != "" {
		cfg.CandidatePool = strings.Split(pool, ",")
	}

	if cfg.StoreDriver != "postgres" && cfg.StoreDriver != "sqlite" {
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	return cfg, nil
}

// DatabaseURL returns DATABASE_URL when set, otherwise a DSN built from the
// DB_* parts.
func (c *Config) DatabaseURL() string {
	if c.DBURL != "" {
		return c.DBURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func getEnv(key, fallback string) string {
	val, exists := os.LookupEnv(key)

	if exists {
		return strings.TrimSpace(val)
	}

	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
