package config

import (
	"os"
	"strconv"
)

// EnvConfig holds process-level configuration read from environment variables
type EnvConfig struct {
	Port           int
	Env            string
	YouTubeAPIKey  string
	AdminAccessKey string
	DataDir        string

	EnableCORS bool
	CORSOrigin string

	EnableRateLimit      bool
	RateLimitWindow      int // seconds
	RateLimitMaxRequests int

	ResetTimezone string

	// Upstream client knobs
	UpstreamTimeout int     // seconds
	UpstreamRPS     float64 // outbound requests per second to the YouTube API
	UpstreamBurst   int

	// Log file settings
	LogDir        string
	LogFile       string
	LogMaxSize    int // MB per file
	LogMaxBackups int
	LogMaxAge     int // days
	LogCompress   bool
	LogToConsole  bool
}

// NewEnvConfig reads configuration from the environment
func NewEnvConfig() *EnvConfig {
	// Support ENV and NODE_ENV (the original backend used NODE_ENV)
	env := getEnv("ENV", "")
	if env == "" {
		env = getEnv("NODE_ENV", "development")
	}

	return &EnvConfig{
		Port:           getEnvAsInt("PORT", 5000),
		Env:            env,
		YouTubeAPIKey:  getEnv("YOUTUBE_API_KEY", ""),
		AdminAccessKey: getEnv("ADMIN_ACCESS_KEY", ""),
		DataDir:        getEnv("DATA_DIR", ".config"),

		EnableCORS: getEnv("ENABLE_CORS", "true") != "false",
		CORSOrigin: getEnv("CORS_ORIGIN", "*"),

		EnableRateLimit:      getEnv("ENABLE_RATE_LIMIT", "true") != "false",
		RateLimitWindow:      getEnvAsInt("RATE_LIMIT_WINDOW", 900), // 15 minutes
		RateLimitMaxRequests: getEnvAsInt("RATE_LIMIT_MAX_REQUESTS", 100),

		ResetTimezone: getEnv("RESET_TIMEZONE", "Europe/Moscow"),

		UpstreamTimeout: getEnvAsInt("UPSTREAM_TIMEOUT", 10),
		UpstreamRPS:     getEnvAsFloat("UPSTREAM_RPS", 5),
		UpstreamBurst:   getEnvAsInt("UPSTREAM_BURST", 5),

		LogDir:        getEnv("LOG_DIR", "logs"),
		LogFile:       getEnv("LOG_FILE", "ytgate.log"),
		LogMaxSize:    getEnvAsInt("LOG_MAX_SIZE", 100),
		LogMaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 10),
		LogMaxAge:     getEnvAsInt("LOG_MAX_AGE", 30),
		LogCompress:   getEnv("LOG_COMPRESS", "true") != "false",
		LogToConsole:  getEnv("LOG_TO_CONSOLE", "true") != "false",
	}
}

// IsDevelopment reports whether the process runs in development mode
func (c *EnvConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction reports whether the process runs in production mode
func (c *EnvConfig) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}
