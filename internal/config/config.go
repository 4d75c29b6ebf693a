package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	AllowOrigins           string
	DatabaseURL            string
	RedisURL               string
	JWTSecret              string
	StatsCacheTTL          time.Duration
	UploadMaxSizeMB        int
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	RateLimitMax           int
	RateLimitWindow        time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// CloudinaryEnabled reports whether attachment uploads have credentials.
func (c Config) CloudinaryEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// Load reads configuration values from environment variables and an optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("HOMEWORK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.name", "Homework Tracker API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.allow_origins", "*")
	v.SetDefault("database.url", "sqlite://homework.db")
	v.SetDefault("stats.cache_ttl", "1m")
	v.SetDefault("upload.max_size_mb", 10)
	v.SetDefault("cloudinary.folder", "homework/attachments")
	v.SetDefault("rate_limit.max", 30)
	v.SetDefault("rate_limit.window", "1m")

	statsTTL, err := parseDuration(v, "stats.cache_ttl")
	if err != nil {
		return Config{}, err
	}

	window, err := parseDuration(v, "rate_limit.window")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		AllowOrigins:           v.GetString("app.allow_origins"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		JWTSecret:              v.GetString("jwt.secret"),
		StatsCacheTTL:          statsTTL,
		UploadMaxSizeMB:        v.GetInt("upload.max_size_mb"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		RateLimitMax:           v.GetInt("rate_limit.max"),
		RateLimitWindow:        window,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.UploadMaxSizeMB <= 0 {
		cfg.UploadMaxSizeMB = 10
	}

	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = 30
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	duration, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return duration, nil
}
