package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
	Session   SessionConfig
	Reading   ReadingConfig
}

// CacheConfig controls the analysis response cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached responses.
	MaxEntries int // default: 1000
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"

	// CORSOrigins are the origins allowed to call the beacon endpoints from
	// a browser. "*" allows any.
	CORSOrigins []string // default: ["*"]
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int // default: 5

	// DefaultProxy is the default proxy URL for all requests.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// ViewportWidth is the emulated window width used when rendering.
	ViewportWidth int // default: 1280

	// ViewportHeight is the emulated window height used when rendering.
	ViewportHeight int // default: 800
}

// ScraperConfig controls page loading behavior.
type ScraperConfig struct {
	// DefaultTimeout is the per-request timeout.
	DefaultTimeout time.Duration // default: 30s

	// MaxTimeout is the maximum allowed timeout from the client.
	MaxTimeout time.Duration // default: 120s

	// BlockedResourceTypes lists resource types to block. Images are not
	// blocked by default: they take up room in the layout.
	// default: ["Media", "Font"]
	BlockedResourceTypes []string
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 20

	// Burst is the maximum burst size per API key.
	Burst int // default: 40
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// SessionConfig controls beacon-fed reading sessions.
type SessionConfig struct {
	// MaxSessions caps the number of concurrently open sessions.
	MaxSessions int // default: 10000

	// TTL closes sessions that received no beacon for this long.
	TTL time.Duration // default: 30m

	// WebhookURL receives a report for every closed session. Beacon clients
	// cannot choose it.
	WebhookURL string

	// WebhookSecret signs webhook deliveries.
	WebhookSecret string
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        envOr("READTRACK_HOST", "0.0.0.0"),
			Port:        envIntOr("READTRACK_PORT", 8080),
			Mode:        envOr("READTRACK_MODE", "release"),
			CORSOrigins: envSliceOr("READTRACK_CORS_ORIGINS", []string{"*"}),
		},
		Browser: BrowserConfig{
			Headless:       envBoolOr("READTRACK_HEADLESS", true),
			MaxPages:       envIntOr("READTRACK_MAX_PAGES", 5),
			DefaultProxy:   os.Getenv("READTRACK_PROXY"),
			NoSandbox:      envBoolOr("READTRACK_NO_SANDBOX", false),
			BrowserBin:     os.Getenv("READTRACK_BROWSER_BIN"),
			ViewportWidth:  envIntOr("READTRACK_VIEWPORT_WIDTH", 1280),
			ViewportHeight: envIntOr("READTRACK_VIEWPORT_HEIGHT", 800),
		},
		Scraper: ScraperConfig{
			DefaultTimeout:       envDurationOr("READTRACK_DEFAULT_TIMEOUT", 30*time.Second),
			MaxTimeout:           envDurationOr("READTRACK_MAX_TIMEOUT", 120*time.Second),
			BlockedResourceTypes: envSliceOr("READTRACK_BLOCKED_RESOURCES", []string{"Media", "Font"}),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("READTRACK_AUTH_ENABLED", true),
			APIKeys: envSliceOr("READTRACK_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("READTRACK_RATE_RPS", 20.0),
			Burst:             envIntOr("READTRACK_RATE_BURST", 40),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("READTRACK_CACHE_MAX_ENTRIES", 1000),
		},
		Log: LogConfig{
			Level:  envOr("READTRACK_LOG_LEVEL", "info"),
			Format: envOr("READTRACK_LOG_FORMAT", "json"),
		},
		Session: SessionConfig{
			MaxSessions:   envIntOr("READTRACK_MAX_SESSIONS", 10000),
			TTL:           envDurationOr("READTRACK_SESSION_TTL", 30*time.Minute),
			WebhookURL:    os.Getenv("READTRACK_WEBHOOK_URL"),
			WebhookSecret: os.Getenv("READTRACK_WEBHOOK_SECRET"),
		},
		Reading: ReadingConfig{
			PixelThreshold:   envIntOr("READTRACK_PIXEL_THRESHOLD", DefaultPixelThreshold),
			TimeThreshold:    envIntOr("READTRACK_TIME_THRESHOLD", DefaultTimeThreshold),
			ResizeFactor:     envFloatOr("READTRACK_RESIZE_FACTOR", DefaultResizeFactor),
			DebugMode:        envBoolOr("READTRACK_DEBUG", false),
			DebounceInterval: envDurationOr("READTRACK_DEBOUNCE", DefaultDebounceInterval),
			TrackerName:      envOr("READTRACK_TRACKER", "log"),
			ProfileFile:      os.Getenv("READTRACK_PROFILE_FILE"),
			WordsPerMinute:   envIntOr("READTRACK_WORDS_PER_MINUTE", DefaultWordsPerMinute),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
