package lynnzone

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lynnntropy/lynnzone/feed"
)

// SiteConfig holds all configuration for the site.
type SiteConfig struct {
	Name        string // Site name, also the feed title (default "lynn.zone")
	URL         string // Canonical URL. No default: the feed refuses to build without it.
	Description string // Site description for RSS and meta tags
	Author      string // Author name for JSON-LD

	Addr         string // Listen address (default ":3000")
	DatabasePath string // SQLite path (default "data/site.db")
	ContentDir   string // Markdown posts synced into the database on start (optional)

	AnalyticsEnabled      bool   // Record page views
	AnalyticsDatabasePath string // Analytics SQLite path (default "data/analytics.db")

	AdminPassword string // Enables the admin API when set
	SessionSecret string // Required with AdminPassword
	CookieSecure  bool   // Set true for HTTPS

	PostCacheTTL time.Duration // Post cache TTL (default 5min)

	FeedMode       feed.Mode      // full or metadata (default full)
	FeedSort       feed.SortOrder // default depends on FeedMode
	FeedSkipFailed bool           // leave posts that fail to render out of the feed
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "lynn.zone"
	}
	if c.Description == "" {
		c.Description = "Lynn's blog."
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/site.db"
	}
	if c.AnalyticsDatabasePath == "" {
		c.AnalyticsDatabasePath = "data/analytics.db"
	}
	if c.PostCacheTTL == 0 {
		c.PostCacheTTL = 5 * time.Minute
	}
}

// AdminEnabled reports whether the admin API is mounted.
func (c SiteConfig) AdminEnabled() bool {
	return c.AdminPassword != ""
}

// FeedTitle is the channel title of the blog feed.
func (c SiteConfig) FeedTitle() string {
	return c.Name + " (blog)"
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App before the server starts.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithStaticDir sets the directory for static assets (default "public").
func WithStaticDir(dir string) Option {
	return func(a *App) {
		a.staticDir = dir
	}
}

// WithLogger replaces the default logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *App) {
		a.Logger = l
	}
}

// WithViews replaces the built-in page components.
func WithViews(v ViewFuncs) Option {
	return func(a *App) {
		a.Views = v
	}
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// EnvInt returns the integer value of key, or fallback if unset or invalid.
func EnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

// EnvBool returns the boolean value of key, or fallback if unset or invalid.
func EnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

// EnvDuration parses key as a duration. Bare integers are minutes.
func EnvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Minute
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

// EnvLogLevel parses key as a zerolog level.
func EnvLogLevel(key string, fallback zerolog.Level) zerolog.Level {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	level, err := zerolog.ParseLevel(raw)
	if err != nil {
		return fallback
	}
	return level
}
