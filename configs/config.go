package configs

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Config is built once at startup and passed by value to whoever needs it.
type Config struct {
	AppEnv   string
	AppDebug bool
	AppPort  int

	DBDriver  string
	DBHost    string
	DBPort    int
	DBUser    string
	DBPass    string
	DBName    string
	DBCharset string

	RedisHost     string
	RedisPort     int
	RedisPassword string

	JWTSecret  string
	JWTTTL     time.Duration
	SessionTTL time.Duration

	LoginPath         string
	LogDir            string
	RateLimitMax      int
	PublicAPITaskList bool

	AdminUsername string
	AdminEmail    string
	AdminPassword string

	values map[string]string
}

// LoadConfig reads the given env files (".env" when none are given), overlays
// the process environment and fills in defaults.
func LoadConfig(files ...string) Config {
	if len(files) == 0 {
		files = []string{".env"}
	}

	values := map[string]string{}
	for _, file := range files {
		fileValues, err := godotenv.Read(file)
		if err != nil {
			// quiet under GO_ENV=test
			if os.Getenv("GO_ENV") != "test" {
				log.Printf("No %s file found, using environment and default values", file)
			}
			continue
		}
		for k, v := range fileValues {
			values[k] = v
		}
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			values[k] = v
		}
	}

	return FromMap(values)
}

// FromMap builds a Config from an explicit key/value set.
func FromMap(values map[string]string) Config {
	own := make(map[string]string, len(values))
	for k, v := range values {
		own[k] = v
	}
	cfg := Config{values: own}

	cfg.AppEnv = cfg.Get("APP_ENV", "development")
	cfg.AppDebug = getBool(cfg.Get("APP_DEBUG", "true"), true)
	cfg.AppPort = getInt(cfg.Get("APP_PORT", ""), 3004)

	cfg.DBDriver = strings.ToLower(cfg.Get("DB_DRIVER", DriverPostgres))
	defaultPort := 5432
	if cfg.DBDriver == DriverMySQL {
		defaultPort = 3306
	}
	cfg.DBHost = cfg.Get("DB_HOST", "localhost")
	cfg.DBPort = getInt(cfg.Get("DB_PORT", ""), defaultPort)
	cfg.DBUser = cfg.Get("DB_USER", "")
	cfg.DBPass = cfg.Get("DB_PASS", "")
	cfg.DBName = cfg.Get("DB_NAME", "")
	cfg.DBCharset = cfg.Get("DB_CHARSET", "utf8mb4")

	cfg.RedisHost = cfg.Get("REDIS_HOST", "")
	cfg.RedisPort = getInt(cfg.Get("REDIS_PORT", ""), 6379)
	cfg.RedisPassword = cfg.Get("REDIS_PASSWORD", "")

	cfg.JWTSecret = cfg.Get("JWT_SECRET", "secret")
	cfg.JWTTTL = getDuration(cfg.Get("JWT_TTL", ""), time.Hour)
	cfg.SessionTTL = getDuration(cfg.Get("SESSION_TTL", ""), 24*time.Hour)

	cfg.LoginPath = cfg.Get("LOGIN_PATH", "/login")
	cfg.LogDir = cfg.Get("LOG_DIR", "logs")
	cfg.RateLimitMax = getInt(cfg.Get("RATE_LIMIT_MAX", ""), 100)
	cfg.PublicAPITaskList = getBool(cfg.Get("API_PUBLIC_TASK_LIST", ""), false)

	cfg.AdminUsername = cfg.Get("ADMIN_USERNAME", "admin")
	cfg.AdminEmail = cfg.Get("ADMIN_EMAIL", "admin@example.com")
	cfg.AdminPassword = cfg.Get("ADMIN_PASSWORD", "")

	return cfg
}

// Get returns the raw value for key, or def when it is unset or empty.
func (c Config) Get(key, def string) string {
	if v, ok := c.values[key]; ok && v != "" {
		return v
	}
	return def
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getInt(raw string, def int) int {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func getBool(raw string, def bool) bool {
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func getDuration(raw string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
