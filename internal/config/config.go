// Package config loads the process-wide configuration once at startup.
// The resulting Config value is immutable and passed by reference into
// every component constructor; nothing reads the environment afterwards.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Provider names accepted in AI_PROVIDER.
const (
	ProviderDashScope = "dashscope"
	ProviderGemini    = "gemini"
)

// Config holds everything the service needs from the environment.
type Config struct {
	// Mongo connection.
	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	// Shared-secret for the HTTP API. Empty disables auth.
	APIToken string

	// AI extraction providers. AIProvider forces one of the Provider*
	// constants; empty means "first provider with credentials".
	AIProvider   string
	DashScopeKey string
	GeminiKey    string

	// Default zone for local-time formatting and bare-time anchoring.
	DefaultTZ string

	// ForceChatID, when set, is enforced server-side on every query and
	// mutation; caller-supplied chat IDs are ignored.
	ForceChatID *int64

	// Telegram bot channel.
	TelegramToken  string
	AllowedUserIDs map[int64]bool
}

var splitIDs = regexp.MustCompile(`[\s,]+`)

// FromEnv builds the configuration from environment variables.
func FromEnv() (*Config, error) {
	cfg := &Config{
		MongoURI:        firstEnv("MONGODB_URI", "MONGO_URI"),
		MongoDatabase:   envDefault("MONGO_DB", "tele_finance"),
		MongoCollection: envDefault("MONGO_COLLECTION", "expenses"),
		APIToken:        strings.TrimSpace(os.Getenv("API_TOKEN")),
		AIProvider:      strings.ToLower(strings.TrimSpace(os.Getenv("AI_PROVIDER"))),
		DashScopeKey:    strings.TrimSpace(os.Getenv("DASHSCOPE_API_KEY")),
		GeminiKey:       firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY"),
		DefaultTZ:       envDefault("DEFAULT_TZ", "Asia/Shanghai"),
		TelegramToken:   strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		AllowedUserIDs:  map[int64]bool{},
	}

	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("config: MONGODB_URI is required")
	}

	switch cfg.AIProvider {
	case "", ProviderDashScope, ProviderGemini:
	default:
		return nil, fmt.Errorf("config: unknown AI_PROVIDER %q", cfg.AIProvider)
	}

	if raw := strings.TrimSpace(os.Getenv("FORCE_CHAT_ID")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: invalid FORCE_CHAT_ID %q: %w", raw, err)
		}
		cfg.ForceChatID = &id
	}

	// ALLOWED_USER_IDS is comma or whitespace separated; FORCE_CHAT_ID is
	// accepted as a single-entry fallback for older deployments.
	raw := firstEnv("ALLOWED_USER_IDS", "FORCE_CHAT_ID")
	for _, part := range splitIDs.Split(raw, -1) {
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		cfg.AllowedUserIDs[id] = true
	}

	return cfg, nil
}

// UserAllowed reports whether a Telegram user may talk to the bot.
// An empty allow-list denies everyone.
func (c *Config) UserAllowed(id int64) bool {
	return c.AllowedUserIDs[id]
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func envDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
