package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lynnntropy/lynnzone"
	"github.com/lynnntropy/lynnzone/content"
	"github.com/lynnntropy/lynnzone/feed"
)

var version = "dev"

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

const usage = `Usage: lynnzone [command] [options]
Commands: serve, import, feed, version, help

For command-specific options, use: lynnzone [command] -h`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "import":
		err = runImport(os.Args[2:])
	case "feed":
		err = runFeed(os.Args[2:], os.Stdout)
	case "version":
		fmt.Println("lynnzone", version)
	case "-h", "--help", "help":
		fmt.Println(usage)
	default:
		log.Error().Str("command", os.Args[1]).Msg("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}
	if err != nil {
		log.Error().Err(err).Str("command", os.Args[1]).Msg("Command failed")
		os.Exit(1)
	}
}

// logLevelFlag registers -log-level on fs and returns a func that applies it.
func logLevelFlag(fs *flag.FlagSet) func() {
	var raw string
	fs.StringVar(&raw, "log-level", lynnzone.EnvOr("LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: LOG_LEVEL)")
	return func() {
		if level, err := zerolog.ParseLevel(raw); err == nil {
			zerolog.SetGlobalLevel(level)
		}
	}
}

// feedFlags registers the feed settings shared by serve and feed.
func feedFlags(fs *flag.FlagSet, cfg *lynnzone.SiteConfig) func() error {
	var mode, sort string
	fs.StringVar(&mode, "mode", lynnzone.EnvOr("FEED_MODE", "full"),
		"Feed mode: full or metadata (env: FEED_MODE)")
	fs.StringVar(&sort, "sort", lynnzone.EnvOr("FEED_SORT", "default"),
		"Feed order: default, date or none (env: FEED_SORT)")
	fs.BoolVar(&cfg.FeedSkipFailed, "skip-failed", lynnzone.EnvBool("FEED_SKIP_FAILED", false),
		"Leave posts that fail to render out of the feed (env: FEED_SKIP_FAILED)")
	return func() error {
		var err error
		if cfg.FeedMode, err = feed.ParseMode(mode); err != nil {
			return err
		}
		cfg.FeedSort, err = feed.ParseSortOrder(sort)
		return err
	}
}

func siteFlags(fs *flag.FlagSet, cfg *lynnzone.SiteConfig) {
	fs.StringVar(&cfg.Name, "name", lynnzone.EnvOr("SITE_NAME", "lynn.zone"),
		"Site name (env: SITE_NAME)")
	fs.StringVar(&cfg.URL, "url", lynnzone.EnvOr("SITE_URL", ""),
		"Canonical site URL, required for the feed (env: SITE_URL)")
	fs.StringVar(&cfg.Description, "description", lynnzone.EnvOr("SITE_DESCRIPTION", "Lynn's blog."),
		"Site description (env: SITE_DESCRIPTION)")
}

func runServe(args []string) error {
	var cfg lynnzone.SiteConfig
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	siteFlags(fs, &cfg)
	fs.StringVar(&cfg.Author, "author", lynnzone.EnvOr("SITE_AUTHOR", ""), "Author name (env: SITE_AUTHOR)")
	fs.StringVar(&cfg.Addr, "addr", lynnzone.EnvOr("ADDR", ":3000"), "Listen address (env: ADDR)")
	fs.StringVar(&cfg.DatabasePath, "db", lynnzone.EnvOr("DATABASE_PATH", "data/site.db"),
		"Path to the SQLite database file (env: DATABASE_PATH)")
	fs.StringVar(&cfg.ContentDir, "content", lynnzone.EnvOr("CONTENT_DIR", ""),
		"Markdown directory synced into the database on start (env: CONTENT_DIR)")
	fs.BoolVar(&cfg.AnalyticsEnabled, "analytics", lynnzone.EnvBool("ANALYTICS_ENABLED", false),
		"Record page views (env: ANALYTICS_ENABLED)")
	fs.StringVar(&cfg.AnalyticsDatabasePath, "analytics-db", lynnzone.EnvOr("ANALYTICS_DATABASE_PATH", "data/analytics.db"),
		"Path to the analytics database (env: ANALYTICS_DATABASE_PATH)")
	fs.BoolVar(&cfg.CookieSecure, "cookie-secure", lynnzone.EnvBool("COOKIE_SECURE", false),
		"Mark cookies Secure (env: COOKIE_SECURE)")
	fs.DurationVar(&cfg.PostCacheTTL, "cache-ttl", lynnzone.EnvDuration("POST_CACHE_TTL", 5*time.Minute),
		"Post cache TTL (env: POST_CACHE_TTL)")
	applyFeed := feedFlags(fs, &cfg)
	applyLevel := logLevelFlag(fs)
	fs.Parse(args)
	applyLevel()
	if err := applyFeed(); err != nil {
		return err
	}

	// secrets only come from the environment
	cfg.AdminPassword = os.Getenv("ADMIN_PASSWORD")
	cfg.SessionSecret = os.Getenv("SESSION_SECRET")

	app := lynnzone.New(cfg, lynnzone.WithLogger(log.Logger))
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- app.Start(ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.Shutdown(shutdownCtx)
	}
}

func runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	dir := fs.String("dir", lynnzone.EnvOr("CONTENT_DIR", "blog"), "Markdown directory (env: CONTENT_DIR)")
	dbPath := fs.String("db", lynnzone.EnvOr("DATABASE_PATH", "data/site.db"),
		"Path to the SQLite database file (env: DATABASE_PATH)")
	applyLevel := logLevelFlag(fs)
	fs.Parse(args)
	applyLevel()

	store, err := lynnzone.NewStore(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	n, err := lynnzone.ImportDir(context.Background(), store, *dir)
	if err != nil {
		var entryErr *content.EntryError
		if errors.As(err, &entryErr) {
			log.Error().Str("file", entryErr.Path).Err(entryErr.Err).Msg("Invalid post")
		}
		return err
	}
	log.Info().Int("posts", n).Str("dir", *dir).Str("db", *dbPath).Msg("Import complete")
	return nil
}

// runFeed builds the feed from a Markdown directory without a server and
// writes it to -o, or stdout when -o is "-".
func runFeed(args []string, stdout io.Writer) error {
	var cfg lynnzone.SiteConfig
	fs := flag.NewFlagSet("feed", flag.ExitOnError)
	siteFlags(fs, &cfg)
	dir := fs.String("dir", lynnzone.EnvOr("CONTENT_DIR", "blog"), "Markdown directory (env: CONTENT_DIR)")
	out := fs.String("o", "rss.xml", "Output file, - for stdout")
	applyFeed := feedFlags(fs, &cfg)
	applyLevel := logLevelFlag(fs)
	fs.Parse(args)
	applyLevel()
	if err := applyFeed(); err != nil {
		return err
	}

	posts, err := content.LoadDir(*dir)
	if err != nil {
		return err
	}

	builder := lynnzone.NewFeedBuilder(cfg, log.Logger)
	doc, err := builder.Build(context.Background(), cfg.URL, posts)
	if err != nil {
		if errors.Is(err, feed.ErrConfiguration) {
			return fmt.Errorf("%w (set -url or SITE_URL)", err)
		}
		return err
	}

	var buf bytes.Buffer
	if err := feed.WriteRSS(&buf, doc); err != nil {
		return err
	}
	if *out == "-" {
		_, err = stdout.Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(*out, buf.Bytes(), 0o644); err != nil {
		return err
	}
	log.Info().Int("items", len(doc.Items)).Str("file", *out).Msg("Feed written")
	return nil
}
