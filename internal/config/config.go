package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is built once at startup and injected into constructors.
// Core logic never reads the environment directly.
type Config struct {
	Addr   string // API bind address
	LogDir string // logs directory

	DatabaseDriver string // "sqlite", "postgres" or "memory"
	DatabaseURL    string // DSN for postgres, file path for sqlite

	// Probing
	RequestRetries int           // total attempts per check for transient errors
	RequestBackoff time.Duration // base backoff, doubled per attempt

	// Hysteresis
	FailureThreshold  int
	RecoveryThreshold int

	// Anomaly detection
	MLEnabled          bool
	MLWindow           int           // baseline sample window
	MLComputeInterval  time.Duration // baseline recomputation period
	AnomalyCooldown    time.Duration
	AnomalyM           int
	AnomalyN           int
	AnomalySensitivity float64
	AnomalyPctFactor   float64

	// Maintenance
	DowntimeReminder time.Duration
	RetentionDays    int
	DigestHour       int // local hour for the daily digest

	// Notification channels
	TelegramToken string
	AdminChatID   string // mandatory fallback recipient
	SlackWebhook  string

	// API auth. Empty slices disable the check (local dev).
	PublicAPIKeys []string
	AdminAPIKeys  []string
	RateLimitRPM  int // requests per minute per client IP, 0 disables
}

func FromEnv() Config {
	return Config{
		Addr:   getEnv("ADDR", "127.0.0.1:8080"),
		LogDir: getEnv("LOG_DIR", "logs"),

		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseURL:    getEnv("DATABASE_URL", "apiwatch.db"),

		RequestRetries: getEnvInt("REQUEST_RETRIES", 2),
		RequestBackoff: getEnvMS("REQUEST_BACKOFF_MS", 300*time.Millisecond),

		FailureThreshold:  getEnvInt("FAILURE_THRESHOLD", 3),
		RecoveryThreshold: getEnvInt("RECOVERY_THRESHOLD", 2),

		MLEnabled:          getEnvBool("ML_ENABLED", true),
		MLWindow:           getEnvInt("ML_WINDOW", 200),
		MLComputeInterval:  getEnvMinutes("ML_COMPUTE_INTERVAL_MINUTES", 10*time.Minute),
		AnomalyCooldown:    getEnvMinutes("ANOMALY_COOLDOWN_MINUTES", 30*time.Minute),
		AnomalyM:           getEnvInt("ANOMALY_M", 3),
		AnomalyN:           getEnvInt("ANOMALY_N", 5),
		AnomalySensitivity: getEnvFloat("ANOMALY_SENSITIVITY", 1.5),
		AnomalyPctFactor:   getEnvFloat("ANOMALY_PCT_FACTOR", 1.2),

		DowntimeReminder: getEnvMinutes("DOWNTIME_REMINDER_MINUTES", 60*time.Minute),
		RetentionDays:    getEnvInt("RETENTION_DAYS", 30),
		DigestHour:       getEnvInt("DIGEST_HOUR", 9),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		AdminChatID:   os.Getenv("ADMIN_CHAT_ID"),
		SlackWebhook:  os.Getenv("SLACK_WEBHOOK"),

		PublicAPIKeys: getEnvList("API_KEYS_PUBLIC"),
		AdminAPIKeys:  getEnvList("API_KEYS_ADMIN"),
		RateLimitRPM:  getEnvInt("RATE_LIMIT_RPM", 0),
	}
}

func getEnvList(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
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

func getEnvMS(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}

func getEnvMinutes(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if m, err := strconv.Atoi(v); err == nil && m > 0 {
			return time.Duration(m) * time.Minute
		}
	}
	return fallback
}
