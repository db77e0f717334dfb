package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBMetricsEnabled  bool

	Auth      AuthConfig
	RateLimit RateLimitConfig
	Clinical  ClinicalConfig
	Log       LogConfig
	Bootstrap BootstrapConfig
}

// AuthConfig configures verification of credentials issued by the identity provider.
type AuthConfig struct {
	JWTSecret        string
	JWTIssuer        string
	JWTAudience      string
	CookieName       string
	CookieHashKey    string
	CookieBlockKey   string
	CookieSecure     bool
	ClockSkewSeconds int
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	InviteOrgRate  float64
	InviteOrgBurst int
	InviteLockTTL  time.Duration
}

// ClinicalConfig holds settings for clinical records.
type ClinicalConfig struct {
	SealKey          string
	PracticeTimezone string
	NoteEditWindow   time.Duration
}

type LogConfig struct {
	FilePath       string
	FileMaxSizeMB  int
	FileMaxBackups int
	FileMaxAgeDays int
}

type BootstrapConfig struct {
	SuperadminSubject string
	SuperadminEmail   string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	cookieSecure := environment == "production"
	if !cookieSecure {
		cookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "carelog"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       environment,
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		NodeID:            getenvInt64("NODE_ID", 1),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "carelog"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBMetricsEnabled:  getenvBool("DATABASE_METRICS_ENABLED", true),
		Auth: AuthConfig{
			JWTSecret:        strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
			JWTIssuer:        strings.TrimSpace(getenv("AUTH_JWT_ISSUER", "")),
			JWTAudience:      strings.TrimSpace(getenv("AUTH_JWT_AUDIENCE", "")),
			CookieName:       getenv("AUTH_COOKIE_NAME", "_sid"),
			CookieHashKey:    strings.TrimSpace(getenv("AUTH_COOKIE_HASH_KEY", "")),
			CookieBlockKey:   strings.TrimSpace(getenv("AUTH_COOKIE_BLOCK_KEY", "")),
			CookieSecure:     cookieSecure,
			ClockSkewSeconds: getenvInt("AUTH_CLOCK_SKEW_SECONDS", 30),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:      strings.TrimSpace(getenv("REDIS_ADDR", "")),
			RedisPassword:  getenv("REDIS_PASSWORD", ""),
			RedisDB:        getenvInt("REDIS_DB", 0),
			InviteOrgRate:  getenvFloat("RATE_LIMIT_INVITE_ORG_RATE", 0.2),
			InviteOrgBurst: getenvInt("RATE_LIMIT_INVITE_ORG_BURST", 10),
			InviteLockTTL:  time.Duration(getenvInt("RATE_LIMIT_INVITE_LOCK_TTL_SECONDS", 10)) * time.Second,
		},
		Clinical: ClinicalConfig{
			SealKey:          strings.TrimSpace(getenv("CLINICAL_SEAL_KEY", "")),
			PracticeTimezone: getenv("PRACTICE_TIMEZONE", "UTC"),
			NoteEditWindow:   time.Duration(getenvInt("SESSION_NOTE_EDIT_WINDOW_HOURS", 24)) * time.Hour,
		},
		Log: LogConfig{
			FilePath:       strings.TrimSpace(getenv("LOG_FILE_PATH", "")),
			FileMaxSizeMB:  getenvInt("LOG_FILE_MAX_SIZE_MB", 100),
			FileMaxBackups: getenvInt("LOG_FILE_MAX_BACKUPS", 5),
			FileMaxAgeDays: getenvInt("LOG_FILE_MAX_AGE_DAYS", 14),
		},
		Bootstrap: BootstrapConfig{
			SuperadminSubject: strings.TrimSpace(getenv("BOOTSTRAP_SUPERADMIN_SUBJECT", "")),
			SuperadminEmail:   strings.TrimSpace(getenv("BOOTSTRAP_SUPERADMIN_EMAIL", "")),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

// PracticeLocation resolves the time zone used to compute calendar days.
func (c Config) PracticeLocation() *time.Location {
	name := strings.TrimSpace(c.Clinical.PracticeTimezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
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

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
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
