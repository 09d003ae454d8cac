package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	taskCreatedPath = "/webhook/task-created"
	typebotChatPath = "/webhook/typebot-chat"

	defaultChatWebhookURL = "http://localhost:5678" + typebotChatPath
)

type Config struct {
	HTTPAddr        string
	HTTPH2C         bool
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	StoreDriver string

	DatabaseURL string
	DBHost      string
	DBPort      int
	DBUser      string
	DBName      string
	DBSSLMode   string

	// DB_SERVICE_KEY is the elevated credential used for server-side mutations;
	// DB_ANON_KEY is only a fallback.
	DBServiceKey string
	DBAnonKey    string

	N8NBaseURL           string
	N8NWebhookURL        string
	N8NTypebotWebhookURL string

	RelayPingInterval time.Duration

	EnrichmentSecret  string
	EnrichmentWorkers int
	EnrichmentQueue   int

	LogLevel  string
	LogFormat string
}

// Load reads .env (if any), an optional CONFIG_FILE and the process environment.
// Environment variables win over file values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	return fromViper(v), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("HTTP_H2C", false)
	v.SetDefault("SHUTDOWN_TIMEOUT", 10*time.Second)
	v.SetDefault("CORS_ORIGINS", "*")

	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_NAME", "postgres")
	v.SetDefault("DB_SSLMODE", "disable")

	v.SetDefault("RELAY_PING_INTERVAL", 30*time.Second)

	v.SetDefault("ENRICHMENT_WORKERS", 2)
	v.SetDefault("ENRICHMENT_QUEUE", 64)

	v.SetDefault("LOG_LEVEL", "INFO")
	v.SetDefault("LOG_FORMAT", "text")
}

func fromViper(v *viper.Viper) *Config {
	port := v.GetInt("DB_PORT")
	if port <= 0 {
		port = 5432 // fallback
	}

	return &Config{
		HTTPAddr:        v.GetString("HTTP_ADDR"),
		HTTPH2C:         v.GetBool("HTTP_H2C"),
		ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		CORSOrigins:     splitList(v.GetString("CORS_ORIGINS")),

		StoreDriver: strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER"))),

		DatabaseURL: v.GetString("DATABASE_URL"),
		DBHost:      v.GetString("DB_HOST"),
		DBPort:      port,
		DBUser:      v.GetString("DB_USER"),
		DBName:      v.GetString("DB_NAME"),
		DBSSLMode:   v.GetString("DB_SSLMODE"),

		DBServiceKey: v.GetString("DB_SERVICE_KEY"),
		DBAnonKey:    v.GetString("DB_ANON_KEY"),

		N8NBaseURL:           strings.TrimRight(v.GetString("N8N_BASE_URL"), "/"),
		N8NWebhookURL:        v.GetString("N8N_WEBHOOK_URL"),
		N8NTypebotWebhookURL: v.GetString("N8N_TYPEBOT_WEBHOOK_URL"),

		RelayPingInterval: v.GetDuration("RELAY_PING_INTERVAL"),

		EnrichmentSecret:  v.GetString("ENRICHMENT_SECRET"),
		EnrichmentWorkers: v.GetInt("ENRICHMENT_WORKERS"),
		EnrichmentQueue:   v.GetInt("ENRICHMENT_QUEUE"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
	}
}

// AccessKey returns the credential used for the database connection and
// whether it is the elevated service key.
func (c *Config) AccessKey() (key string, elevated bool) {
	if c.DBServiceKey != "" {
		return c.DBServiceKey, true
	}
	return c.DBAnonKey, false
}

// ConnString builds the Postgres DSN. DATABASE_URL wins over the DB_* parts;
// the access key fills in the password when the URL carries none.
func (c *Config) ConnString() (string, error) {
	key, _ := c.AccessKey()

	if c.DatabaseURL == "" {
		if c.DBHost == "" {
			return "", fmt.Errorf("database is not configured: set DATABASE_URL or DB_HOST")
		}
		u := &url.URL{
			Scheme:   "postgres",
			Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
			Path:     "/" + c.DBName,
			RawQuery: "sslmode=" + c.DBSSLMode,
		}
		if key != "" {
			u.User = url.UserPassword(c.DBUser, key)
		} else {
			u.User = url.User(c.DBUser)
		}
		return u.String(), nil
	}

	u, err := url.Parse(c.DatabaseURL)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	if u.User != nil {
		if _, hasPassword := u.User.Password(); !hasPassword && key != "" {
			u.User = url.UserPassword(u.User.Username(), key)
		}
	}
	return u.String(), nil
}

// TaskCreatedWebhookURL is empty when no enrichment workflow is configured.
func (c *Config) TaskCreatedWebhookURL() string {
	if c.N8NBaseURL != "" {
		return c.N8NBaseURL + taskCreatedPath
	}
	return c.N8NWebhookURL
}

func (c *Config) ChatWebhookURL() string {
	if c.N8NBaseURL != "" {
		return c.N8NBaseURL + typebotChatPath
	}
	if c.N8NTypebotWebhookURL != "" {
		return c.N8NTypebotWebhookURL
	}
	return defaultChatWebhookURL
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.RelayPingInterval <= 0 {
		return fmt.Errorf("RELAY_PING_INTERVAL must be positive")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
