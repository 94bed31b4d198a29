package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/go-ini/ini"
	"github.com/joho/godotenv"
)

type Config struct {
	Env  string
	Port int

	StoreDriver string // postgres | sqlite | memory
	DBURL       string
	DBMaxConns  int
	SQLitePath  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SessionBackend   string // redis | memory
	SessionSecret    string
	SessionTTL       time.Duration
	SessionCookie    string
	SessionHeader    string
	SessionTransport string // cookie | header

	UploadBackend  string // local | minio
	UploadDir      string
	MaxUploadBytes int64
	Minio          MinioConfig

	AdminUsername string
	AdminPassword string

	OTLPEndpoint     string
	TraceSampleRatio float64

	LoginRatePerMin int
	LoginRateBurst  int
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// DBSection is the database block of the INI file.
type DBSection struct {
	Host     string `ini:"host"`
	Port     int    `ini:"port"`
	User     string `ini:"user"`
	Password string `ini:"password"`
	Database string `ini:"database"`
	SSLMode  string `ini:"sslmode"`
}

var ErrMissingSection = errors.New("database config section not found")

func (c Config) IsProd() bool {
	return c.Env == "prod"
}

func Load() (Config, error) {
	// a missing .env is normal outside local dev
	_ = godotenv.Load()

	cfg := Config{
		Env:  getEnv("APP_ENV", "dev"),
		Port: getEnvInt("PORT", 8080),

		StoreDriver: getEnv("STORE_DRIVER", "postgres"),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 5),
		SQLitePath:  getEnv("SQLITE_PATH", "userhub.db"),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		SessionBackend:   getEnv("SESSION_BACKEND", "memory"),
		SessionSecret:    os.Getenv("SESSION_SECRET"),
		SessionTTL:       getEnvDuration("SESSION_TTL", 24*time.Hour),
		SessionCookie:    getEnv("SESSION_COOKIE", "session_id"),
		SessionHeader:    getEnv("SESSION_HEADER", "X-Session-Token"),
		SessionTransport: getEnv("SESSION_TRANSPORT", "cookie"),

		UploadBackend:  getEnv("UPLOAD_BACKEND", "local"),
		UploadDir:      getEnv("UPLOAD_DIR", "static/uploads"),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 5<<20)),
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    getEnv("MINIO_BUCKET", "userhub-uploads"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},

		AdminUsername: os.Getenv("ADMIN_USERNAME"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TraceSampleRatio: getEnvFloat("OTEL_TRACES_SAMPLER_ARG", 1),

		LoginRatePerMin: getEnvInt("LOGIN_RATE_PER_MIN", 30),
		LoginRateBurst:  getEnvInt("LOGIN_RATE_BURST", 10),
	}

	if cfg.StoreDriver == "postgres" {
		section, err := LoadDBSection(getEnv("DB_CONFIG_FILE", "config.ini"), getEnv("DB_CONFIG_SECTION", "postgres"))
		if err != nil {
			return Config{}, err
		}
		cfg.DBURL = section.URL()
	}

	if cfg.SessionSecret == "" {
		if cfg.IsProd() {
			return Config{}, errors.New("SESSION_SECRET is required in prod")
		}
		cfg.SessionSecret = "dev-insecure-session-secret"
	}

	return cfg, nil
}

// LoadDBSection reads the named section from an INI file. When the file does
// not exist the DB_* environment variables are used instead.
func LoadDBSection(path, section string) (DBSection, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return dbSectionFromEnv(), nil
	}

	f, err := ini.Load(path)
	if err != nil {
		return DBSection{}, fmt.Errorf("read %s: %w", path, err)
	}

	if !f.HasSection(section) {
		return DBSection{}, fmt.Errorf("section %s not found in the %s file: %w", section, path, ErrMissingSection)
	}

	out := DBSection{Host: "127.0.0.1", Port: 5432, SSLMode: "disable"}
	if err := f.Section(section).MapTo(&out); err != nil {
		return DBSection{}, fmt.Errorf("parse section %s: %w", section, err)
	}
	return out, nil
}

func dbSectionFromEnv() DBSection {
	return DBSection{
		Host:     getEnv("DB_HOST", "127.0.0.1"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "userhub"),
		Password: getEnv("DB_PASSWORD", "userhub"),
		Database: getEnv("DB_NAME", "userhub"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}
}

func (s DBSection) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(s.User, s.Password),
		Host:     fmt.Sprintf("%s:%d", s.Host, s.Port),
		Path:     "/" + s.Database,
		RawQuery: "sslmode=" + url.QueryEscape(s.SSLMode),
	}
	return u.String()
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)
		if err != nil {
			return fallback
		}
		return num
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return b
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fallback
		}
		return d
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fallback
		}
		return f
	}
	return fallback
}
