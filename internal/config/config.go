package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the core runtime configuration.  Each field corresponds to
// an environment variable; feature-specific settings live in their own
// loaders (LoadChatConfig, LoadRateLimitConfig, LoadCacheConfig).
type Config struct {
	Env             string        // application environment (dev, test, prod)
	Port            string        // HTTP port to listen on
	StoreDriver     string        // "mysql" or "memory"
	DBUser          string        // database username
	DBPass          string        // database password (optional)
	DBHost          string        // database host address
	DBPort          string        // database port number
	DBName          string        // database name
	DBMigrate       bool          // apply the embedded schema on start
	JWTSecret       string        // secret used to sign JWTs
	AccessTTLMin    int           // access token time-to-live in minutes
	RefreshTTLDays  int           // refresh token time-to-live in days
	BcryptCost      int           // bcrypt cost for password hashing
	SecureCookies   bool          // mark the session cookie Secure
	LogLevel        string        // zap level name
	LogFile         string        // optional rotating log file
	AMQPURL         string        // RabbitMQ URL; empty disables booking events
	BookingConsumer bool          // run the booking event consumer in-process
	LiveViewEvery   time.Duration // live map push interval
}

// LoadDotEnv reads a .env file into the environment when one exists.
// Variables already set in the environment win.
func LoadDotEnv(paths ...string) {
	if err := godotenv.Load(paths...); err != nil && !os.IsNotExist(err) {
		log.Printf("config: .env not loaded: %v", err)
	}
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Database settings
// are only required for the mysql store.
func Load() Config {
	cfg := Config{
		Env:             envStr("APP_ENV", "dev"),
		Port:            envStr("APP_PORT", "8080"),
		StoreDriver:     strings.ToLower(envStr("STORE_DRIVER", "mysql")),
		DBPass:          os.Getenv("DB_PASS"),
		DBMigrate:       envBool("DB_MIGRATE", true),
		JWTSecret:       must("JWT_SECRET"),
		AccessTTLMin:    mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays:  mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:      envInt("BCRYPT_COST", 12),
		SecureCookies:   envBool("SECURE_COOKIES", false),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		LogFile:         os.Getenv("LOG_FILE"),
		AMQPURL:         amqpURL(),
		BookingConsumer: envBool("BOOKING_CONSUMER", false),
		LiveViewEvery:   envDur("LIVE_VIEW_INTERVAL", 5*time.Second),
	}
	switch cfg.StoreDriver {
	case "mysql":
		cfg.DBUser = must("DB_USER")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	case "memory":
	default:
		log.Fatalf("invalid STORE_DRIVER %q (want mysql or memory)", cfg.StoreDriver)
	}
	return cfg
}

// amqpURL reads RABBITMQ_URL, falling back to AMQP_URL.
func amqpURL() string {
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}
	return os.Getenv("AMQP_URL")
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
