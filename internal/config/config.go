package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

// AppName names the client's data directory.
const AppName = "feedbackbot"

// Cfg holds the server's runtime configuration loaded from environment variables.
type Cfg struct {
	// Auth
	PasswordHash         string // PASSWORD_HASH, hex SHA-256 of the site password
	EnhancedPasswordHash string // ENHANCED_QUALITY_PASSWORD_HASH, empty = commercial models open
	SessionSecret        string // SESSION_SECRET, HMAC key for session cookies
	AuthRatePerMinute    int    // AUTH_RATE_PER_MINUTE=10, login attempts per client

	// Upstream
	APIKey       string // NANO_GPT_API_KEY
	APIBaseURL   string // API_BASE_URL=https://nano-gpt.com/api/v1
	DefaultModel string // NANO_GPT_MODEL=TEE/DeepSeek-v3.2

	// Catalog override
	ModelsFile string // MODELS_FILE, optional YAML model catalog

	// Server
	ListenAddr string // e.g. :8080
	StaticDir  string // STATIC_DIR, optional directory served at /
	LogLevel   slog.Level
}

// Load reads .env (if present) then environment variables and returns Cfg.
func Load() (*Cfg, error) {
	// Best-effort: load .env from current directory
	_ = godotenv.Load()

	passwordHash, err := loadHash("PASSWORD_HASH", true)
	if err != nil {
		return nil, err
	}
	enhancedHash, err := loadHash("ENHANCED_QUALITY_PASSWORD_HASH", false)
	if err != nil {
		return nil, err
	}

	secret := strings.TrimSpace(os.Getenv("SESSION_SECRET"))
	if secret == "" {
		return nil, fmt.Errorf("SESSION_SECRET must be set")
	}
	if len(secret) < 32 {
		slog.Warn("config: SESSION_SECRET is shorter than 32 characters")
	}

	apiKey := strings.TrimSpace(os.Getenv("NANO_GPT_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("NANO_GPT_API_KEY must be set")
	}

	baseURL := strings.TrimSpace(os.Getenv("API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://nano-gpt.com/api/v1"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(os.Getenv("NANO_GPT_MODEL"))
	if model == "" {
		model = "TEE/DeepSeek-v3.2"
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	rate := 10
	if raw := strings.TrimSpace(os.Getenv("AUTH_RATE_PER_MINUTE")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("AUTH_RATE_PER_MINUTE must be a positive integer, got %q", raw)
		}
		rate = n
	}

	return &Cfg{
		PasswordHash:         passwordHash,
		EnhancedPasswordHash: enhancedHash,
		SessionSecret:        secret,
		AuthRatePerMinute:    rate,
		APIKey:               apiKey,
		APIBaseURL:           baseURL,
		DefaultModel:         model,
		ModelsFile:           strings.TrimSpace(os.Getenv("MODELS_FILE")),
		ListenAddr:           ":" + port,
		StaticDir:            strings.TrimSpace(os.Getenv("STATIC_DIR")),
		LogLevel:             ParseLevel(os.Getenv("LOG_LEVEL")),
	}, nil
}

// loadHash reads a hex SHA-256 digest from env var name.
func loadHash(name string, required bool) (string, error) {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	if raw == "" {
		if required {
			return "", fmt.Errorf("%s must be set", name)
		}
		return "", nil
	}
	if b, err := hex.DecodeString(raw); err != nil || len(b) != 32 {
		return "", fmt.Errorf("%s must be a hex SHA-256 digest (64 characters)", name)
	}
	return raw, nil
}

// ParseLevel maps LOG_LEVEL values to slog levels, defaulting to info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// ClientCfg configures the terminal client.
type ClientCfg struct {
	ServerURL string // FEEDBACKBOT_URL=http://localhost:8080
	DBPath    string // FEEDBACKBOT_DB, defaults under $XDG_DATA_HOME/feedbackbot
	Password  string // FEEDBACKBOT_PASSWORD, optional, for non-interactive use
	LogLevel  slog.Level
}

// LoadClient reads the client configuration.
func LoadClient() *ClientCfg {
	_ = godotenv.Load()

	serverURL := strings.TrimSpace(os.Getenv("FEEDBACKBOT_URL"))
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}
	dbPath := strings.TrimSpace(os.Getenv("FEEDBACKBOT_DB"))
	if dbPath == "" {
		dbPath = filepath.Join(DataDir(), "feedbackbot.db")
	}
	return &ClientCfg{
		ServerURL: strings.TrimRight(serverURL, "/"),
		DBPath:    dbPath,
		Password:  os.Getenv("FEEDBACKBOT_PASSWORD"),
		LogLevel:  ParseLevel(os.Getenv("LOG_LEVEL")),
	}
}

// DataDir is the client's data directory.
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}
