package config

import (
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

type Config struct {
	Environment    string // ENV: production, development, etc.
	Port           string
	PostgresURI    string
	RedisURI       string
	MongoURI       string
	AllowedOrigins []string // CORS for the admin API

	// AdminIDs is the chat-user allow-list that always classifies as admin.
	AdminIDs []string
	// AdminAPIKeyHash is the argon2id hash of the bearer key for /api/admin.
	AdminAPIKeyHash string
	VerifyToken     string
	ConsoleEnabled  bool

	Delivery   DeliveryConfig
	Cloudinary CloudinaryConfig
	Cache      CacheConfig
	Quota      QuotaConfig
	Logging    LoggingConfig

	TrialDays     int
	EventDedupTTL time.Duration
}

type DeliveryConfig struct {
	URL   string
	Token string
	RPS   float64
}

type CloudinaryConfig struct {
	Name      string
	APIKey    string
	APISecret string
	Folder    string
}

// Enabled reports whether all credentials are present.
func (c CloudinaryConfig) Enabled() bool {
	return c.Name != "" && c.APIKey != "" && c.APISecret != ""
}

type CacheSpec struct {
	TTL  time.Duration
	Size int
}

type CacheConfig struct {
	Profile       CacheSpec
	Listing       CacheSpec
	Search        CacheSpec
	Stats         CacheSpec
	SweepInterval time.Duration
	MemoryLimitMB int
}

type QuotaConfig struct {
	// Timezone anchors the daily reset. Empty means the process local zone.
	Timezone      string
	RetentionDays int
}

// Location resolves Timezone, falling back to time.Local.
func (q QuotaConfig) Location() *time.Location {
	if q.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

type LoggingConfig struct {
	Level         string
	Format        string
	IncludeCaller bool
}

func Load() *Config {
	env := strings.ToLower(strings.TrimSpace(getEnv("ENV", "development")))

	allowedOrigins := getEnvList("ALLOWED_ORIGINS")
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}

	return &Config{
		Environment:     env,
		Port:            getEnv("PORT", "8080"),
		PostgresURI:     getEnv("POSTGRES_URI", "postgres://localhost:5432/marketbot?sslmode=disable"),
		RedisURI:        getEnv("REDIS_URI", "redis://localhost:6379/0"),
		MongoURI:        getEnv("MONGODB_URI", getEnv("MONGO_URI", "mongodb://localhost:27017/marketbot")),
		AllowedOrigins:  allowedOrigins,
		AdminIDs:        getEnvList("ADMIN_IDS"),
		AdminAPIKeyHash: getEnv("ADMIN_API_KEY_HASH", ""),
		VerifyToken:     getEnv("VERIFY_TOKEN", ""),
		ConsoleEnabled:  getEnvBool("CONSOLE_ENABLED", env != "production"),
		Delivery: DeliveryConfig{
			URL:   getEnv("DELIVERY_URL", ""),
			Token: getEnv("DELIVERY_TOKEN", ""),
			RPS:   getEnvFloat("DELIVERY_RPS", 20),
		},
		Cloudinary: CloudinaryConfig{
			Name:      getEnv("CLOUDINARY_CLOUD_NAME", ""),
			APIKey:    getEnv("CLOUDINARY_API_KEY", ""),
			APISecret: getEnv("CLOUDINARY_API_SECRET", ""),
			Folder:    getEnv("CLOUDINARY_FOLDER", "marketbot/listings"),
		},
		Cache: CacheConfig{
			Profile:       CacheSpec{TTL: getEnvDuration("CACHE_PROFILE_TTL", 5*time.Minute), Size: getEnvInt("CACHE_PROFILE_SIZE", 1000)},
			Listing:       CacheSpec{TTL: getEnvDuration("CACHE_LISTING_TTL", 10*time.Minute), Size: getEnvInt("CACHE_LISTING_SIZE", 500)},
			Search:        CacheSpec{TTL: getEnvDuration("CACHE_SEARCH_TTL", 2*time.Minute), Size: getEnvInt("CACHE_SEARCH_SIZE", 200)},
			Stats:         CacheSpec{TTL: getEnvDuration("CACHE_STATS_TTL", time.Minute), Size: getEnvInt("CACHE_STATS_SIZE", 16)},
			SweepInterval: getEnvDuration("CACHE_SWEEP_INTERVAL", time.Minute),
			MemoryLimitMB: getEnvInt("CACHE_MEMORY_LIMIT_MB", 512),
		},
		Quota: QuotaConfig{
			Timezone:      getEnv("QUOTA_TIMEZONE", ""),
			RetentionDays: getEnvInt("COUNTER_RETENTION_DAYS", 30),
		},
		Logging: LoggingConfig{
			Level:         getEnv("LOG_LEVEL", "info"),
			Format:        getEnv("LOG_FORMAT", "text"),
			IncludeCaller: getEnvBool("LOG_CALLER", false),
		},
		TrialDays:     getEnvInt("TRIAL_DAYS", 30),
		EventDedupTTL: getEnvDuration("EVENT_DEDUP_TTL", 10*time.Minute),
	}
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return strings.ToLower(strings.TrimSpace(c.Environment)) == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("90s", "5m").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
