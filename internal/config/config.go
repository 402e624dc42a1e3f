package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	InstanceID  string

	Telemetry TelemetryConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Remote    RemoteMetricsConfig
	Scheduler SchedulerConfig

	// DBType is postgres, migrated at start, or sqlite/mysql with a
	// pre-provisioned schema.
	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBRunMigrations   bool
}

type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
	// TokenTTLHours only applies to tokens minted by the local issuer.
	TokenTTLHours int

	BootstrapUsername string
	BootstrapFullName string
}

// TelemetryConfig carries logging and OpenTelemetry settings. The standard
// OTEL_EXPORTER_OTLP_* variables win over the app-level ones.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ClaimSubmitRate       float64
	ClaimSubmitBurst      int
	ClaimSubmitLockTTLSec int
}

type SchedulerConfig struct {
	Enabled         bool
	IntervalSeconds int
	StaleClaimHours int
	// Jobs limits the scheduler to the named jobs. Empty runs all of them.
	Jobs []string
}

type RemoteMetricsConfig struct {
	Enabled         bool
	Exporter        string
	Endpoint        string
	AuthToken       string
	IntervalSeconds int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "duesledger"),
		AppVersion:  getenv("SERVICE_VERSION", getenv("APP_VERSION", "0.1.0")),
		Environment: getenv("DEPLOYMENT_ENV", environment),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		InstanceID:  getenv("INSTANCE_ID", hostname()),
		Telemetry:   loadTelemetry(),
		Auth: AuthConfig{
			JWTSecret:     strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
			JWTIssuer:     strings.TrimSpace(getenv("AUTH_JWT_ISSUER", "")),
			TokenTTLHours: getenvInt("AUTH_TOKEN_TTL_HOURS", 12),

			BootstrapUsername: strings.TrimSpace(getenv("BOOTSTRAP_SUPERADMIN_USERNAME", "")),
			BootstrapFullName: strings.TrimSpace(getenv("BOOTSTRAP_SUPERADMIN_NAME", "Union Administrator")),
		},
		RateLimit: RateLimitConfig{
			Enabled:               getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:             strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "localhost:6379")),
			RedisPassword:         getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:               getenvInt("RATE_LIMIT_REDIS_DB", 0),
			ClaimSubmitRate:       getenvFloat("RATE_LIMIT_CLAIM_SUBMIT_RATE", 0.2),
			ClaimSubmitBurst:      getenvInt("RATE_LIMIT_CLAIM_SUBMIT_BURST", 3),
			ClaimSubmitLockTTLSec: getenvInt("RATE_LIMIT_CLAIM_SUBMIT_LOCK_TTL", 10),
		},
		Remote: RemoteMetricsConfig{
			Enabled:         getenvBool("REMOTE_METRICS_ENABLED", false),
			Exporter:        strings.ToLower(getenv("REMOTE_METRICS_EXPORTER", "")),
			Endpoint:        strings.TrimSpace(getenv("REMOTE_METRICS_ENDPOINT", "")),
			AuthToken:       strings.TrimSpace(getenv("REMOTE_METRICS_AUTH_TOKEN", "")),
			IntervalSeconds: getenvInt("REMOTE_METRICS_INTERVAL", 300),
		},
		Scheduler: SchedulerConfig{
			Enabled:         getenvBool("SCHEDULER_ENABLED", false),
			IntervalSeconds: getenvInt("SCHEDULER_INTERVAL", 900),
			StaleClaimHours: getenvInt("SCHEDULER_STALE_CLAIM_HOURS", 72),
			Jobs:            splitList(getenv("SCHEDULER_JOBS", "")),
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "duesledger"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "duesledger.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBRunMigrations:   getenvBool("DATABASE_RUN_MIGRATIONS", true),
	}

	return cfg
}

func loadTelemetry() TelemetryConfig {
	protocol := getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	if traces := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = traces
	}
	return TelemetryConfig{
		LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		OtelEnabled:   getenvBool("OTEL_ENABLED", true),
		OTLPEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317"))),
		OTLPProtocol:  strings.ToLower(strings.TrimSpace(protocol)),
		SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
	}
}

// IsDevelopment covers the environments where verbose logging is on by default.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
