// Package config reads both programs' settings from the environment. The
// mains import github.com/joho/godotenv/autoload so a .env file is honoured.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Client holds cmd/screenbreakers settings.
type Client struct {
	APIURL        string
	SettingsPath  string
	RedisAddr     string
	RedisDB       int
	Debounce      time.Duration
	PollInterval  time.Duration
	LinkScheme    string
	LogLevel      logrus.Level
	WatchRoster   bool
	RecordMinutes bool
}

// LoadClient reads the client configuration.
func LoadClient() Client {
	return Client{
		APIURL:        getEnv("SCREENBREAKERS_API_URL", "http://localhost:8080"),
		SettingsPath:  getEnv("SCREENBREAKERS_SETTINGS", "screenbreakers.yaml"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		Debounce:      getEnvDuration("USAGE_DEBOUNCE", 30*time.Second),
		PollInterval:  getEnvDuration("USAGE_POLL_INTERVAL", 15*time.Second),
		LinkScheme:    getEnv("LINK_SCHEME", "screenbreakers"),
		LogLevel:      getEnvLevel("LOG_LEVEL", logrus.InfoLevel),
		WatchRoster:   getEnvBool("WATCH_ROSTER", true),
		RecordMinutes: getEnvBool("RECORD_MINUTES", false),
	}
}

// Server holds cmd/server settings.
type Server struct {
	Production     bool
	Addr           string
	DatabaseURL    string
	RedisAddr      string
	RedisDB        int
	TokenExpire    time.Duration
	PrivateKeyPath string
	PublicKeyPath  string
	RPCRateLimit   int
	AllowedOrigins []string
	LogLevel       logrus.Level
}

// LoadServer reads the server configuration. DATABASE_URL wins over the
// individual POSTGRES_* and PG_* variables.
func LoadServer() (Server, error) {
	expire, err := ParseTokenExpire(os.Getenv("TOKEN_EXPIRE_TIME"))
	if err != nil {
		return Server{}, err
	}

	cfg := Server{
		Production:     getEnv("SCREENBREAKERS_ENV", "development") == "production",
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		TokenExpire:    expire,
		PrivateKeyPath: os.Getenv("JWT_PRIVATE_KEY_PATH"),
		PublicKeyPath:  os.Getenv("JWT_PUBLIC_KEY_PATH"),
		RPCRateLimit:   getEnvInt("RPC_RATE_LIMIT", 120),
		LogLevel:       getEnvLevel("LOG_LEVEL", logrus.InfoLevel),
	}

	port := getEnv("PORT", "8080")
	if cfg.Production {
		// bind to all hosts in production mode
		cfg.Addr = ":" + port
		cfg.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))
	} else {
		cfg.Addr = "localhost:" + port
		cfg.AllowedOrigins = []string{"https://*", "http://*"}
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s",
			os.Getenv("POSTGRES_USER"),
			os.Getenv("POSTGRES_PASSWORD"),
			getEnv("PG_HOST", "localhost"),
			getEnv("PG_PORT", "5432"),
			os.Getenv("PG_DATABASE"),
		)
	}
	return cfg, nil
}

// ParseTokenExpire reads a TOKEN_EXPIRE_TIME value. "", "0" and "never"
// mean tokens do not expire.
func ParseTokenExpire(s string) (time.Duration, error) {
	if s == "" || s == "0" || s == "never" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token expire time: %w", err)
	}
	return d, nil
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func getEnvBool(key string, def bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return v
}

func getEnvLevel(key string, def logrus.Level) logrus.Level {
	lvl, err := logrus.ParseLevel(getEnv(key, def.String()))
	if err != nil {
		return def
	}
	return lvl
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
