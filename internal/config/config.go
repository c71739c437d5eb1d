package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env                   string
	LogLevel              string
	MongoURI              string
	MongoDB               string
	MongoTransactions     bool
	ServerAddr            string
	FrontendOrigin        string
	FrontendURL           string
	RateLimitImport       int
	RateLimitLogin        int
	RateLimitWindowSec    int
	RedisURL              string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	CacheTTLSeconds       int
	AdminSetupKey         string
	ImportAPIKey          string
	ImportDefaultAssignee string
	JWTSecret             string
	AccessTTLMinutes      int
	RefreshTTLMinutes     int
	UploadTTLMinutes      int
	MaxUploadMB           int
	CookieSecure          bool
	DefaultCurrency       string
	BrevoAPIKey           string
	BrevoSenderEmail      string
	BrevoSenderName       string
	BrevoSandbox          bool
	Timezone              *time.Location
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
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

// Load reads the process environment. A .env file in the working directory is
// applied first; variables already present in the environment are not overridden.
func Load() (*Config, error) {
	_ = godotenv.Load()

	loc, err := time.LoadLocation(getEnv("TZ", "Europe/Istanbul"))
	if err != nil {
		return nil, err
	}

	mongoURI := getEnv("MONGO_URI", "mongodb://localhost:27017/clinic_crm")
	mongoDB := getEnv("MONGO_DB", "")
	if mongoDB == "" {
		mongoDB = mongoDBFromURI(mongoURI)
	}
	if mongoDB == "" {
		mongoDB = "clinic_crm"
	}

	frontendOrigin := getEnv("FRONTEND_ORIGIN", "http://localhost:5173")

	cfg := &Config{
		Env:                   getEnv("APP_ENV", "development"),
		LogLevel:              strings.ToLower(getEnv("LOG_LEVEL", "info")),
		MongoURI:              mongoURI,
		MongoDB:               mongoDB,
		MongoTransactions:     getEnvBool("MONGO_TRANSACTIONS", false),
		ServerAddr:            getEnv("SERVER_ADDR", ":8080"),
		FrontendOrigin:        frontendOrigin,
		FrontendURL:           strings.TrimRight(getEnv("FRONTEND_URL", frontendOrigin), "/"),
		RateLimitImport:       getEnvInt("RATE_LIMIT_IMPORT", 30),
		RateLimitLogin:        getEnvInt("RATE_LIMIT_LOGIN", 10),
		RateLimitWindowSec:    getEnvInt("RATE_LIMIT_WINDOW_SEC", 60),
		RedisURL:              getEnv("REDIS_URL", ""),
		RedisAddr:             getEnv("REDIS_ADDR", ""),
		RedisPassword:         getEnv("REDIS_PASSWORD", ""),
		RedisDB:               getEnvInt("REDIS_DB", 0),
		CacheTTLSeconds:       getEnvInt("CACHE_TTL_SECONDS", 60),
		AdminSetupKey:         getEnv("ADMIN_SETUP_KEY", ""),
		ImportAPIKey:          getEnv("IMPORT_API_KEY", ""),
		ImportDefaultAssignee: getEnv("IMPORT_DEFAULT_ASSIGNEE", ""),
		JWTSecret:             getEnv("JWT_SECRET", ""),
		AccessTTLMinutes:      getEnvInt("ACCESS_TTL_MINUTES", 60),
		RefreshTTLMinutes:     getEnvInt("REFRESH_TTL_MINUTES", 43200),
		UploadTTLMinutes:      getEnvInt("UPLOAD_TTL_MINUTES", 10),
		MaxUploadMB:           getEnvInt("MAX_UPLOAD_MB", 25),
		CookieSecure:          getEnvBool("COOKIE_SECURE", false),
		DefaultCurrency:       strings.ToUpper(getEnv("DEFAULT_CURRENCY", "EUR")),
		BrevoAPIKey:           getEnv("BREVO_API_KEY", ""),
		BrevoSenderEmail:      getEnv("BREVO_SENDER_EMAIL", ""),
		BrevoSenderName:       getEnv("BREVO_SENDER_NAME", "Clinic CRM"),
		BrevoSandbox:          getEnvBool("BREVO_SANDBOX", false),
		Timezone:              loc,
	}

	return cfg, nil
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}

func mongoDBFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	db := strings.Trim(u.Path, "/")
	if db == "" {
		return ""
	}
	// only the first path segment names the database
	if idx := strings.Index(db, "/"); idx >= 0 {
		db = db[:idx]
	}
	return db
}
