package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DiscordWebhookURL string
	Port              string
	RunOnce           bool
	ScanInterval      time.Duration
	RunTimeout        time.Duration
	HeartbeatInterval time.Duration
	LogLevel          string
	LogFormat         string

	MarketplaceURL string
	Source         string
	SearchesPath   string
	SelectorsPath  string

	StoreBackend  string
	DatabasePath  string
	DatabaseURL   string
	ProjectID     string
	RetentionDays int

	BrowserEngine     string
	Headless          bool
	UserAgent         string
	Locale            string
	NavigationTimeout time.Duration
	RenderTimeout     time.Duration
	RenderSelector    string
	ConsentTimeout    time.Duration
	ConsentAttempts   int
	DiagnosticsDir    string

	PageDelayMin   time.Duration
	PageDelayMax   time.Duration
	NotifyInterval time.Duration

	Evaluator        string
	EvaluatorTimeout time.Duration
	GeminiAPIKey     string
	GeminiModel      string
	OllamaBaseURL    string
	OllamaModel      string
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Load reads configuration from the environment, after merging an optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to read .env file", "error", err)
	}

	var errs []error
	duration := func(key, def string) time.Duration {
		raw := envString(key, def)
		d, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", key, raw, err))
		}
		return d
	}
	integer := func(key string, def int) int {
		raw := os.Getenv(key)
		if raw == "" {
			return def
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", key, raw, err))
		}
		return n
	}
	boolean := func(key string, def bool) bool {
		raw := os.Getenv(key)
		if raw == "" {
			return def
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", key, raw, err))
		}
		return b
	}

	cfg := &Config{
		DiscordWebhookURL: os.Getenv("DISCORD_WEBHOOK_URL"),
		Port:              envString("PORT", "8080"),
		RunOnce:           boolean("RUN_ONCE", false),
		ScanInterval:      duration("SCAN_INTERVAL", "0s"),
		RunTimeout:        duration("RUN_TIMEOUT", "20m"),
		HeartbeatInterval: duration("HEARTBEAT_INTERVAL", "1m"),
		LogLevel:          strings.ToLower(envString("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(envString("LOG_FORMAT", "text")),

		MarketplaceURL: strings.TrimRight(envString("MARKETPLACE_URL", "https://www.blocket.se"), "/"),
		Source:         envString("MARKETPLACE_SOURCE", "blocket"),
		SearchesPath:   os.Getenv("SEARCHES_CONFIG_PATH"),
		SelectorsPath:  envString("SELECTORS_CONFIG_PATH", "config/selectors.json"),

		StoreBackend:  strings.ToLower(envString("STORE_BACKEND", "sqlite")),
		DatabasePath:  envString("DATABASE_PATH", "listings.db"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		ProjectID:     os.Getenv("GOOGLE_CLOUD_PROJECT"),
		RetentionDays: integer("RETENTION_DAYS", 30),

		BrowserEngine:     strings.ToLower(envString("BROWSER_ENGINE", "playwright")),
		Headless:          boolean("BROWSER_HEADLESS", true),
		UserAgent:         envString("BROWSER_USER_AGENT", defaultUserAgent),
		Locale:            envString("BROWSER_LOCALE", "sv-SE"),
		NavigationTimeout: duration("NAVIGATION_TIMEOUT", "30s"),
		RenderTimeout:     duration("RENDER_TIMEOUT", "10s"),
		RenderSelector:    envString("RENDER_SELECTOR", "article"),
		ConsentTimeout:    duration("CONSENT_TIMEOUT", "5s"),
		ConsentAttempts:   integer("CONSENT_ATTEMPTS", 2),
		DiagnosticsDir:    envString("DIAGNOSTICS_DIR", "screenshots"),

		PageDelayMin:   duration("PAGE_DELAY_MIN", "3s"),
		PageDelayMax:   duration("PAGE_DELAY_MAX", "8s"),
		NotifyInterval: duration("NOTIFY_INTERVAL", "2s"),

		Evaluator:        strings.ToLower(envString("EVALUATOR", "rules")),
		EvaluatorTimeout: duration("EVALUATOR_TIMEOUT", "60s"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      envString("GEMINI_MODEL", "gemini-2.5-flash"),
		OllamaBaseURL:    strings.TrimRight(envString("OLLAMA_BASE_URL", "http://localhost:11434"), "/"),
		OllamaModel:      envString("OLLAMA_MODEL", "mistral"),
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := cfg.check(); err != nil {
		return nil, err
	}

	if cfg.DiscordWebhookURL == "" {
		slog.Warn("DISCORD_WEBHOOK_URL not set, Discord notifications will be skipped")
	}
	return cfg, nil
}

func (c *Config) check() error {
	switch c.StoreBackend {
	case "sqlite":
	case "firestore":
		if c.ProjectID == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required when STORE_BACKEND=firestore")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q: want sqlite, firestore or postgres", c.StoreBackend)
	}

	switch c.BrowserEngine {
	case "playwright", "chromedp", "static":
	default:
		return fmt.Errorf("invalid BROWSER_ENGINE %q: want playwright, chromedp or static", c.BrowserEngine)
	}

	switch c.Evaluator {
	case "rules", "ollama":
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when EVALUATOR=gemini")
		}
	default:
		return fmt.Errorf("invalid EVALUATOR %q: want rules, gemini or ollama", c.Evaluator)
	}

	if c.PageDelayMax < c.PageDelayMin {
		return fmt.Errorf("PAGE_DELAY_MAX (%s) must not be below PAGE_DELAY_MIN (%s)", c.PageDelayMax, c.PageDelayMin)
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("RETENTION_DAYS must be positive, got %d", c.RetentionDays)
	}
	if c.ConsentAttempts < 1 {
		return fmt.Errorf("CONSENT_ATTEMPTS must be at least 1, got %d", c.ConsentAttempts)
	}
	return nil
}

// Retention is the age after which seen-set rows are purged.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
