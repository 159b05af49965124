package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrMissingAPIKey is fatal at startup: the service cannot reach any model without it.
var ErrMissingAPIKey = errors.New("API_KEY environment variable not set")

type GeminiConfig struct {
	APIKey     string
	TextModel  string
	ImageModel string
	EditModel  string
	Timeout    time.Duration
}

type Config struct {
	Addr               string
	AppEnv             string
	LogLevel           string
	StaticDir          string
	CORSAllowOrigins   []string
	AccessPasswordHash string
	MenuMaxBytes       int
	SessionIdleTimeout time.Duration
	Gemini             GeminiConfig
}

func Load() Config {
	port := getenv("PORT", "8080")

	return Config{
		Addr:               ":" + port,
		AppEnv:             strings.ToLower(getenv("APP_ENV", "development")),
		LogLevel:           strings.ToLower(getenv("LOG_LEVEL", "info")),
		StaticDir:          os.Getenv("STATIC_DIR"),
		CORSAllowOrigins:   splitList(getenv("CORS_ALLOW_ORIGINS", "*")),
		AccessPasswordHash: strings.TrimSpace(os.Getenv("ACCESS_PASSWORD_HASH")),
		MenuMaxBytes:       getenvInt("MENU_MAX_BYTES", 64<<10, 1<<10, 1<<20),
		SessionIdleTimeout: time.Duration(getenvInt("SESSION_IDLE_MINUTES", 120, 1, 1440)) * time.Minute,
		Gemini: GeminiConfig{
			APIKey:     getenvFirst([]string{"API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"}, ""),
			TextModel:  getenv("GEMINI_TEXT_MODEL", "gemini-2.5-flash"),
			ImageModel: getenv("GEMINI_IMAGE_MODEL", "imagen-4.0-generate-001"),
			EditModel:  getenv("GEMINI_EDIT_MODEL", "gemini-2.5-flash-image"),
			Timeout:    time.Duration(getenvInt("GEMINI_TIMEOUT_SECONDS", 120, 5, 600)) * time.Second,
		},
	}
}

// Validate reports configuration the process cannot start without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Gemini.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getenv(key, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}

func getenvFirst(keys []string, fallback string) string {
	for _, key := range keys {
		val := strings.TrimSpace(os.Getenv(key))
		if val != "" {
			return val
		}
	}
	return fallback
}

func getenvInt(key string, fallback int, min int, max int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if min > 0 && v < min {
		return fallback
	}
	if max > 0 && v > max {
		return fallback
	}
	return v
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
