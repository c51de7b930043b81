// Package config loads runtime configuration from the environment (optionally
// seeded from a .env file).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the service.
type Config struct {
	// HTTP
	Port        string
	GinMode     string
	FrontOrigin string
	LogLevel    string

	// Auth gate
	APIKey    string
	JWTSecret string

	// Reporting API (Google Analytics Data API)
	ReportingPropertyID      string
	ReportingCredentialsFile string
	ReportingEndpoint        string

	// Event warehouse (ClickHouse)
	WarehouseHost     string
	WarehousePort     int
	WarehouseDatabase string
	WarehouseUsername string
	WarehousePassword string
	WarehouseLocation string
	WarehouseDriver   string

	// Aggregation
	TrackedPages   []string
	TimezoneOffset time.Duration
	AppName        string
	TopLimit       int

	// Cache
	CacheTTL      time.Duration
	CacheCapacity int
	QueryTimeout  time.Duration
}

// Capabilities tells the resolvers which upstream sources are usable.
type Capabilities struct {
	Reporting bool
	Warehouse bool
}

const (
	WarehouseClickHouse = "clickhouse"
	WarehouseMemory     = "memory"
)

// Capabilities derives source availability from the configured credentials.
func (c Config) Capabilities() Capabilities {
	return Capabilities{
		Reporting: c.ReportingPropertyID != "",
		Warehouse: c.WarehouseDriver == WarehouseMemory ||
			(c.WarehouseDriver == WarehouseClickHouse && c.WarehouseHost != "" && c.WarehouseDatabase != ""),
	}
}

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	return FromEnv()
}

// FromEnv parses the process environment without touching .env.
func FromEnv() (Config, error) {
	offset, err := ParseOffset(getEnvString("ANALYTICS_TZ_OFFSET", "+00:00"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:        getEnvString("PORT", "8080"),
		GinMode:     getEnvString("GIN_MODE", "debug"),
		FrontOrigin: getEnvString("FE_ORIGIN", "http://localhost:3000"),
		LogLevel:    getEnvString("LOG_LEVEL", "info"),

		APIKey:    os.Getenv("AUTH_DEFAULT"),
		JWTSecret: os.Getenv("JWT_SECRET_KEY"),

		ReportingPropertyID:      os.Getenv("GA_PROPERTY_ID"),
		ReportingCredentialsFile: os.Getenv("GA_CREDENTIALS_FILE"),
		ReportingEndpoint:        os.Getenv("GA_ENDPOINT"),

		WarehouseHost:     os.Getenv("CLICKHOUSE_HOST"),
		WarehousePort:     getEnvInt("CLICKHOUSE_NATIVE_PORT", 9000),
		WarehouseDatabase: os.Getenv("CLICKHOUSE_DB_NAME"),
		WarehouseUsername: getEnvString("CLICKHOUSE_USERNAME", "default"),
		WarehousePassword: os.Getenv("CLICKHOUSE_PASSWORD"),
		WarehouseLocation: os.Getenv("WAREHOUSE_LOCATION"),
		WarehouseDriver:   strings.ToLower(getEnvString("WAREHOUSE_DRIVER", WarehouseClickHouse)),

		TrackedPages:   getEnvList("TRACKED_PAGES", []string{"/", "/explore", "/create", "/pricing", "/login", "/signup", "/posts/[id]"}),
		TimezoneOffset: offset,
		AppName:        os.Getenv("APP_NAME"),
		TopLimit:       getEnvInt("TOP_LIMIT", 10),

		CacheTTL:      getEnvDuration("CACHE_TTL", 5*time.Minute),
		CacheCapacity: getEnvInt("CACHE_CAPACITY", 128),
		QueryTimeout:  getEnvDuration("QUERY_TIMEOUT", 30*time.Second),
	}

	switch cfg.WarehouseDriver {
	case WarehouseClickHouse, WarehouseMemory:
	default:
		return Config{}, fmt.Errorf("unsupported WAREHOUSE_DRIVER %q", cfg.WarehouseDriver)
	}
	if cfg.TopLimit <= 0 {
		return Config{}, fmt.Errorf("TOP_LIMIT must be positive, got %d", cfg.TopLimit)
	}
	return cfg, nil
}

// ParseOffset parses a fixed UTC offset such as "+09:00", "-0530" or "Z".
func ParseOffset(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "Z" || s == "z" {
		return 0, nil
	}
	sign := time.Duration(1)
	switch s[0] {
	case '+':
		s = s[1:]
	case '-':
		sign = -1
		s = s[1:]
	default:
		return 0, fmt.Errorf("invalid offset %q: must start with + or -", raw)
	}
	s = strings.ReplaceAll(s, ":", "")
	if len(s) != 4 {
		return 0, fmt.Errorf("invalid offset %q: want ±HH:MM", raw)
	}
	h, err := strconv.Atoi(s[:2])
	if err != nil {
		return 0, fmt.Errorf("invalid offset %q: %w", raw, err)
	}
	m, err := strconv.Atoi(s[2:])
	if err != nil {
		return 0, fmt.Errorf("invalid offset %q: %w", raw, err)
	}
	if h > 14 || m > 59 {
		return 0, fmt.Errorf("invalid offset %q: out of range", raw)
	}
	return sign * (time.Duration(h)*time.Hour + time.Duration(m)*time.Minute), nil
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func getEnvList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
