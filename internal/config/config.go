package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Tesseract-Nexus/go-shared/secrets"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the gateway service
type Config struct {
	// Server
	Port        string
	Environment string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// NATS
	NATSURL string

	// CallbackBaseURL is the public base of the /callback and /return routes
	// handed to processors
	CallbackBaseURL string

	// GatewayHTTPTimeout bounds one processor round trip
	GatewayHTTPTimeout time.Duration

	// Settings encryption. A local base64 key wins over Secret Manager.
	SettingsEncryptionKey    string
	SettingsEncryptionSecret string
	GCPProjectID             string

	// Tracing
	OTelEnabled  bool
	OTelEndpoint string

	// Staff service for RBAC
	StaffServiceURL string

	CORSAllowedOrigins []string

	// CallbackRateLimit is the per-minute request budget per client IP on
	// the processor callback routes
	CallbackRateLimit int

	// NotificationDedupeTTL is how long an applied notification is remembered
	NotificationDedupeTTL time.Duration
}

// buildDatabaseURL constructs the database URL from individual components
// Password is fetched from GCP Secret Manager if enabled
func buildDatabaseURL() string {
	// First check if DATABASE_URL is explicitly set
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "postgres")
	dbname := getEnv("DB_NAME", "gateway_service")
	sslmode := getEnv("DB_SSLMODE", "disable")

	password := getPasswordFromGCPOrEnv()

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, dbname, sslmode)
}

// getPasswordFromGCPOrEnv fetches the database password from GCP Secret Manager
// or falls back to environment variable
func getPasswordFromGCPOrEnv() string {
	if os.Getenv("USE_GCP_SECRET_MANAGER") != "true" {
		return getEnv("DB_PASSWORD", "password")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	secretFetcher, err := secrets.NewEnvSecretFetcher(ctx)
	if err != nil {
		log.Printf("Warning: Failed to initialize GCP Secret Manager: %v (using env var)", err)
		return getEnv("DB_PASSWORD", "password")
	}
	defer secretFetcher.Close()

	password := secrets.LoadDatabasePassword(ctx, secretFetcher)
	if password == "" || password == "password" {
		log.Printf("Warning: Got empty/default password from GCP Secret Manager, using env var")
		return getEnv("DB_PASSWORD", "password")
	}

	log.Printf("✓ Database password loaded from GCP Secret Manager")
	return password
}

// Load loads configuration from the environment, reading a .env file first
// when one is present
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	config := &Config{
		Port:                     getEnv("PORT", "8093"),
		Environment:              getEnv("ENVIRONMENT", "development"),
		DatabaseURL:              buildDatabaseURL(),
		RedisURL:                 getEnv("REDIS_URL", "redis://localhost:6379/0"),
		NATSURL:                  getEnv("NATS_URL", "nats://localhost:4222"),
		CallbackBaseURL:          strings.TrimRight(getEnv("CALLBACK_BASE_URL", "http://localhost:8093"), "/"),
		GatewayHTTPTimeout:       getDurationEnv("GATEWAY_HTTP_TIMEOUT", 30*time.Second),
		SettingsEncryptionKey:    getEnv("SETTINGS_ENCRYPTION_KEY", ""),
		SettingsEncryptionSecret: getEnv("SETTINGS_ENCRYPTION_SECRET", "gateway-settings-encryption-key"),
		GCPProjectID:             getEnv("GCP_PROJECT_ID", ""),
		OTelEnabled:              getBoolEnv("OTEL_ENABLED", false),
		OTelEndpoint:             getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		StaffServiceURL:          getEnv("STAFF_SERVICE_URL", "http://staff-service:8080"),
		CORSAllowedOrigins:       splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),
		CallbackRateLimit:        getIntEnv("CALLBACK_RATE_LIMIT", 120),
		NotificationDedupeTTL:    getDurationEnv("NOTIFICATION_DEDUPE_TTL", 72*time.Hour),
	}

	if config.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	return config
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getBoolEnv(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

// getDurationEnv accepts Go durations ("45s") or plain seconds ("45")
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
