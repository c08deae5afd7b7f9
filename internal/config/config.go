package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Catalog   CatalogConfig
	Database  DatabaseConfig
	SQLite    SQLiteConfig
	Valkey    ValkeyConfig
	NATS      NATSConfig
	Bus       BusConfig
	Dispatch  DispatchConfig
	Search    SearchConfig
	MinIO     MinIOConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// CatalogConfig selects the index catalog backend: postgres, sqlite or memory.
type CatalogConfig struct {
	Driver string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type SQLiteConfig struct {
	Path string
}

type ValkeyConfig struct {
	Addr     string
	Password string
	DB       int
}

type NATSConfig struct {
	URL string
}

// BusConfig selects the notification transport (memory, valkey or nats) and
// the topic layout. Granularity "region" publishes to <prefix>.<region>,
// "index" to <prefix>.index.<id>.
type BusConfig struct {
	Driver      string
	Prefix      string
	Granularity string
}

// DispatchConfig selects how declared builds reach an executor: "local" runs
// them in-process, "queue" hands them to workers over a valkey stream.
type DispatchConfig struct {
	Mode       string
	Stream     string
	Group      string
	ToolsDir   string
	WorkDir    string
	JobTimeout time.Duration
}

type SearchConfig struct {
	URL     string
	Timeout time.Duration
}

// MinIOConfig configures the object store client used to materialize
// s3:// data source locators before a build starts.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

type SchedulerConfig struct {
	SweepInterval time.Duration
	StaleAfter    time.Duration
	RefreshCron   string
	RefreshMaxAge time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  time.Duration(getEnvInt("SERVER_READ_TIMEOUT_SECS", 30)) * time.Second,
			WriteTimeout: time.Duration(getEnvInt("SERVER_WRITE_TIMEOUT_SECS", 60)) * time.Second,
		},
		Catalog: CatalogConfig{
			Driver: getEnv("CATALOG_DRIVER", "postgres"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "geodex"),
			Password: getEnv("DB_PASSWORD", "geodex"),
			Name:     getEnv("DB_NAME", "geodex"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 5)),
		},
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "geodex.db"),
		},
		Valkey: ValkeyConfig{
			Addr:     getEnv("VALKEY_ADDR", "localhost:6379"),
			Password: getEnv("VALKEY_PASSWORD", ""),
			DB:       getEnvInt("VALKEY_DB", 0),
		},
		NATS: NATSConfig{
			URL: getEnv("NATS_URL", "nats://localhost:4222"),
		},
		Bus: BusConfig{
			Driver:      getEnv("BUS_DRIVER", "valkey"),
			Prefix:      getEnv("BUS_TOPIC_PREFIX", "geodex.events"),
			Granularity: getEnv("BUS_TOPIC_GRANULARITY", "region"),
		},
		Dispatch: DispatchConfig{
			Mode:       getEnv("DISPATCH_MODE", "local"),
			Stream:     getEnv("DISPATCH_STREAM", "geodex:builds"),
			Group:      getEnv("DISPATCH_GROUP", "geodex-workers"),
			ToolsDir:   getEnv("TOOLS_DIR", "/usr/local/bin"),
			WorkDir:    getEnv("WORK_DIR", "/tmp/geodex"),
			JobTimeout: time.Duration(getEnvInt("JOB_TIMEOUT_MINS", 120)) * time.Minute,
		},
		Search: SearchConfig{
			URL:     getEnv("SEARCH_URL", "http://localhost:9200"),
			Timeout: time.Duration(getEnvInt("SEARCH_TIMEOUT_SECS", 10)) * time.Second,
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "geodex"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "geodex123"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Scheduler: SchedulerConfig{
			SweepInterval: time.Duration(getEnvInt("SWEEP_INTERVAL_MINS", 10)) * time.Minute,
			StaleAfter:    time.Duration(getEnvInt("SWEEP_STALE_AFTER_MINS", 180)) * time.Minute,
			RefreshCron:   getEnv("REFRESH_CRON", "0 3 * * *"),
			RefreshMaxAge: time.Duration(getEnvInt("REFRESH_MAX_AGE_HOURS", 0)) * time.Hour,
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
