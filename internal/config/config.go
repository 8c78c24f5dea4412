package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	CredentialFile   = "file"
	CredentialRedis  = "redis"
	CredentialMemory = "memory"
)

type AppConfig struct {
	APIURL  string
	LiveURL string

	HTTPTimeout time.Duration

	LiveReconnectAttempts int
	LiveReconnectDelay    time.Duration

	CredentialBackend string
	CredentialFile    string
	CredentialProfile string

	RedisURL    string
	DatabaseURL string

	BoardOutputDir string
	MessagesDir    string
}

// Load reads the environment after merging an optional .env file.
// Variables already set in the environment win over .env entries.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPTimeout:           10 * time.Second,
		LiveReconnectAttempts: 8,
		LiveReconnectDelay:    500 * time.Millisecond,
		CredentialBackend:     CredentialFile,
		CredentialProfile:     "default",
		BoardOutputDir:        "boards",
	}

	cfg.APIURL = strings.TrimRight(env("CHESS_API_URL"), "/")
	cfg.LiveURL = env("CHESS_LIVE_URL")

	if n, ok := positiveInt("HTTP_TIMEOUT_MS"); ok {
		cfg.HTTPTimeout = time.Duration(n) * time.Millisecond
	}
	// 0 or negative means retry forever.
	if v := env("LIVE_RECONNECT_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LiveReconnectAttempts = n
		}
	}
	if n, ok := positiveInt("LIVE_RECONNECT_DELAY_MS"); ok {
		cfg.LiveReconnectDelay = time.Duration(n) * time.Millisecond
	}

	if v := strings.ToLower(env("CREDENTIAL_BACKEND")); v != "" {
		cfg.CredentialBackend = v
	}
	cfg.CredentialFile = env("CREDENTIAL_FILE")
	if v := env("CREDENTIAL_PROFILE"); v != "" {
		cfg.CredentialProfile = v
	}

	cfg.RedisURL = env("REDIS_URL")
	cfg.DatabaseURL = env("DATABASE_URL")

	if v := env("BOARD_OUTPUT_DIR"); v != "" {
		cfg.BoardOutputDir = v
	}
	cfg.MessagesDir = env("MESSAGES_DIR")

	if cfg.APIURL == "" {
		return nil, errors.New("CHESS_API_URL is required")
	}
	if cfg.LiveURL == "" {
		live, err := DeriveLiveURL(cfg.APIURL)
		if err != nil {
			return nil, err
		}
		cfg.LiveURL = live
	}
	switch cfg.CredentialBackend {
	case CredentialFile, CredentialMemory:
	case CredentialRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("REDIS_URL is required when CREDENTIAL_BACKEND=redis")
		}
	default:
		return nil, fmt.Errorf("unknown CREDENTIAL_BACKEND %q", cfg.CredentialBackend)
	}

	return cfg, nil
}

// DeriveLiveURL maps the API base URL onto the Socket.IO websocket endpoint of the same host.
func DeriveLiveURL(apiURL string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid CHESS_API_URL %q", apiURL)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported CHESS_API_URL scheme %q", u.Scheme)
	}
	u.Path = "/socket.io/"
	u.RawQuery = "EIO=4&transport=websocket"
	u.Fragment = ""
	return u.String(), nil
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func positiveInt(key string) (int, bool) {
	v := env(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
