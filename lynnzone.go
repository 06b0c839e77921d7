// Package lynnzone is the lynn.zone personal site: a small blog served with
// Echo and templ, backed by SQLite, with an RSS feed, a sitemap, page-view
// analytics and an optional JSON admin API.
package lynnzone

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/lynnntropy/lynnzone/analytics"
	"github.com/lynnntropy/lynnzone/content"
	"github.com/lynnntropy/lynnzone/feed"
	"github.com/lynnntropy/lynnzone/markdown"
	"github.com/lynnntropy/lynnzone/views"
)

// ViewFuncs holds the page components the handlers render. DefaultViews
// returns the built-in set; WithViews swaps it out.
type ViewFuncs struct {
	Home        func(site views.Site, posts []content.Post) templ.Component
	Post        func(site views.Site, post content.Post) templ.Component
	NotFound    func(site views.Site) templ.Component
	ServerError func(site views.Site) templ.Component
}

// DefaultViews returns the components from the views package.
func DefaultViews() ViewFuncs {
	return ViewFuncs{
		Home:        views.Home,
		Post:        views.Post,
		NotFound:    views.NotFound,
		ServerError: views.ServerError,
	}
}

// App wires together the store, cache, feed builder, handlers and
// middleware.
type App struct {
	Config SiteConfig
	Echo   *echo.Echo
	Store  *Store
	Cache  *PostCache
	Feed   *feed.Builder
	Views  ViewFuncs
	Logger zerolog.Logger

	loginLimiter   *LoginLimiter
	analyticsStore *analytics.Store
	stopCleanup    func()
	customRoutes   []func(*App)
	staticDir      string
}

// New creates an App with the given configuration.
func New(cfg SiteConfig, opts ...Option) *App {
	cfg.setDefaults()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	a := &App{
		Config:    cfg,
		Echo:      e,
		Views:     DefaultViews(),
		Logger:    zerolog.New(os.Stderr).With().Timestamp().Logger(),
		staticDir: "public",
	}

	for _, opt := range opts {
		opt(a)
	}

	a.Feed = NewFeedBuilder(a.Config, a.Logger)
	return a
}

// NewFeedBuilder builds the blog feed builder for cfg. Post bodies are
// rendered as standalone documents, the same way post pages are.
func NewFeedBuilder(cfg SiteConfig, logger zerolog.Logger) *feed.Builder {
	policy := feed.OnErrorAbort
	if cfg.FeedSkipFailed {
		policy = feed.OnErrorSkip
	}
	return feed.NewBuilder(feed.Options{
		Title:       cfg.FeedTitle(),
		Description: cfg.Description,
		Mode:        cfg.FeedMode,
		Sort:        cfg.FeedSort,
		OnError:     policy,
		Renderer:    markdown.Renderer{Standalone: true},
		Logger:      logger.With().Str("component", "feed").Logger(),
	})
}

// Setup opens the databases, syncs ContentDir into the store and registers
// middleware and routes. It does not start listening.
func (a *App) Setup(ctx context.Context) error {
	if a.Config.AdminEnabled() && a.Config.SessionSecret == "" {
		return fmt.Errorf("lynnzone: SessionSecret is required when AdminPassword is set")
	}
	if a.Config.URL == "" {
		a.Logger.Warn().Msg("site URL is not set; /rss.xml will fail until it is")
	}

	store, err := NewStore(a.Config.DatabasePath)
	if err != nil {
		return fmt.Errorf("lynnzone: init store: %w", err)
	}
	a.Store = store

	if a.Config.ContentDir != "" {
		n, err := ImportDir(ctx, a.Store, a.Config.ContentDir)
		if err != nil {
			return fmt.Errorf("lynnzone: import %s: %w", a.Config.ContentDir, err)
		}
		a.Logger.Info().Int("posts", n).Str("dir", a.Config.ContentDir).Msg("synced content")
	}

	a.Cache = NewPostCache(a.Store, a.Config.PostCacheTTL)
	a.loginLimiter = NewLoginLimiter(5, time.Minute)

	if a.Config.AnalyticsEnabled {
		as, err := analytics.NewStore(a.Config.AnalyticsDatabasePath)
		if err != nil {
			return fmt.Errorf("lynnzone: init analytics: %w", err)
		}
		if err := as.InitSalt(ctx); err != nil {
			as.Close()
			return fmt.Errorf("lynnzone: init analytics salt: %w", err)
		}
		a.analyticsStore = as
		a.stopCleanup = as.StartCleanupScheduler(365, 24*time.Hour, a.Logger)
	}

	a.setupMiddleware()
	a.setupRoutes()

	for _, fn := range a.customRoutes {
		fn(a)
	}
	return nil
}

// Start runs Setup and serves HTTP until the server is shut down.
func (a *App) Start(ctx context.Context) error {
	if err := a.Setup(ctx); err != nil {
		return err
	}
	a.Logger.Info().Str("addr", a.Config.Addr).Msg("listening")
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Echo.Shutdown(ctx)
}

// ImportDir loads every Markdown post under dir and upserts it into store.
// It returns the number of posts synced.
func ImportDir(ctx context.Context, store *Store, dir string) (int, error) {
	posts, err := content.LoadDir(dir)
	if err != nil {
		return 0, err
	}
	if err := store.SyncPosts(ctx, posts); err != nil {
		return 0, err
	}
	return len(posts), nil
}

func (a *App) site() views.Site {
	return views.Site{
		Name:        a.Config.Name,
		URL:         a.Config.URL,
		Description: a.Config.Description,
		Author:      a.Config.Author,
	}
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.Static("/public", a.staticDir)
	e.GET("/robots.txt", a.handleRobots)
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/rss.xml", a.handleFeed)
	e.GET("/feed.xml", a.handleFeed)
	e.GET("/blog", handleBlogRedirect)
	e.GET("/blog/*", a.handlePost)
	e.GET("/", a.handleHome)

	var admin *echo.Group
	if a.Config.AdminEnabled() {
		admin = a.setupAdminRoutes()
	}

	if a.analyticsStore != nil {
		h := analytics.NewHandler(a.analyticsStore, a.Logger.With().Str("component", "analytics").Logger())
		h.RegisterRoutes(e, admin)
	}
}

// Close releases the databases and stops background work.
func (a *App) Close() error {
	if a.stopCleanup != nil {
		a.stopCleanup()
	}
	if a.loginLimiter != nil {
		a.loginLimiter.Stop()
	}
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.analyticsStore != nil {
		errs = append(errs, a.analyticsStore.Close())
	}
	return errors.Join(errs...)
}

// MustEnv returns the value of the environment variable key, or exits if it
// is empty.
func MustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		fmt.Fprintf(os.Stderr, "lynnzone: required environment variable %s is not set\n", key)
		os.Exit(1)
	}
	return v
}
