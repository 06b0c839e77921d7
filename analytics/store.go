package analytics

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const timeLayout = "2006-01-02T15:04:05Z"

// Store persists page views in SQLite.
type Store struct {
	db *sqlx.DB

	mu   sync.RWMutex
	salt string
}

// NewStore opens (or creates) the analytics database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open analytics db: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS pageviews (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			host TEXT NOT NULL DEFAULT '',
			path TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			ip_hash TEXT NOT NULL,
			browser TEXT NOT NULL DEFAULT '',
			device TEXT NOT NULL DEFAULT '',
			timestamp TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_pageviews_timestamp ON pageviews(timestamp);
		CREATE INDEX IF NOT EXISTS idx_pageviews_path ON pageviews(path);

		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	return err
}

// currentSchemaVersion is the latest schema version. Increment when adding migrations.
const currentSchemaVersion = 1

func (s *Store) migrate() error {
	verStr, err := s.GetSetting(context.Background(), "schema_version")
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	version := 0
	if verStr != "" {
		version, err = strconv.Atoi(verStr)
		if err != nil {
			return fmt.Errorf("parse schema version %q: %w", verStr, err)
		}
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported %d", version, currentSchemaVersion)
	}
	return s.SetSetting(context.Background(), "schema_version", strconv.Itoa(currentSchemaVersion))
}

// GetSetting returns a setting value, or "" if it is not set.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var val string
	err := s.db.GetContext(ctx, &val, `SELECT value FROM settings WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return val, err
}

// SetSetting upserts a setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// InitSalt loads the IP hashing salt, generating and persisting one on first
// run. It must be called before page views are recorded.
func (s *Store) InitSalt(ctx context.Context) error {
	salt, err := s.GetSetting(ctx, "hash_salt")
	if err != nil {
		return fmt.Errorf("read hash salt: %w", err)
	}
	if salt == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return fmt.Errorf("generate salt: %w", err)
		}
		salt = hex.EncodeToString(b)
		if err := s.SetSetting(ctx, "hash_salt", salt); err != nil {
			return fmt.Errorf("store hash salt: %w", err)
		}
	}
	s.mu.Lock()
	s.salt = salt
	s.mu.Unlock()
	return nil
}

// HashIP hashes ip with the store's salt.
func (s *Store) HashIP(ip string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return hashIP(s.salt, ip)
}

// SavePageView records v.
func (s *Store) SavePageView(ctx context.Context, v PageView) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO pageviews (host, path, title, ip_hash, browser, device, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.Host, v.Path, v.Title, v.IPHash, v.Browser, v.Device, v.Timestamp.UTC().Format(timeLayout))
	return err
}

// TopPages returns the most viewed paths in [from, to), most viewed first.
// The title is the most recent one seen for the path.
func (s *Store) TopPages(ctx context.Context, from, to time.Time, limit int) ([]PageStat, error) {
	pages := []PageStat{}
	err := s.db.SelectContext(ctx, &pages, `
		SELECT path,
		       (SELECT p2.title FROM pageviews p2 WHERE p2.path = p.path ORDER BY p2.id DESC LIMIT 1) AS title,
		       COUNT(*) AS views
		FROM pageviews p
		WHERE timestamp >= ? AND timestamp < ?
		GROUP BY path
		ORDER BY views DESC, path
		LIMIT ?`,
		from.UTC().Format(timeLayout), to.UTC().Format(timeLayout), limit)
	return pages, err
}

// DailyViews returns per-day totals in [from, to). Days without views are
// omitted.
func (s *Store) DailyViews(ctx context.Context, from, to time.Time) ([]DailyView, error) {
	days := []DailyView{}
	err := s.db.SelectContext(ctx, &days, `
		SELECT substr(timestamp, 1, 10) AS day, COUNT(*) AS views
		FROM pageviews
		WHERE timestamp >= ? AND timestamp < ?
		GROUP BY day
		ORDER BY day`,
		from.UTC().Format(timeLayout), to.UTC().Format(timeLayout))
	return days, err
}

// Totals returns total views and distinct visitor hashes in [from, to).
func (s *Store) Totals(ctx context.Context, from, to time.Time) (views, visitors int, err error) {
	var row struct {
		Views    int `db:"views"`
		Visitors int `db:"visitors"`
	}
	err = s.db.GetContext(ctx, &row, `
		SELECT COUNT(*) AS views, COUNT(DISTINCT ip_hash) AS visitors
		FROM pageviews
		WHERE timestamp >= ? AND timestamp < ?`,
		from.UTC().Format(timeLayout), to.UTC().Format(timeLayout))
	return row.Views, row.Visitors, err
}

// GetStats gathers every aggregate for [from, to).
func (s *Store) GetStats(ctx context.Context, from, to time.Time, topN int) (*Stats, error) {
	views, visitors, err := s.Totals(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("totals: %w", err)
	}
	top, err := s.TopPages(ctx, from, to, topN)
	if err != nil {
		return nil, fmt.Errorf("top pages: %w", err)
	}
	daily, err := s.DailyViews(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("daily views: %w", err)
	}
	return &Stats{
		From:           from.UTC(),
		To:             to.UTC(),
		TotalViews:     views,
		UniqueVisitors: visitors,
		TopPages:       top,
		Daily:          daily,
	}, nil
}

// CleanupBefore deletes page views older than cutoff and returns how many
// were removed.
func (s *Store) CleanupBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pageviews WHERE timestamp < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("cleanup pageviews: %w", err)
	}
	return res.RowsAffected()
}

// StartCleanupScheduler deletes page views older than retentionDays every
// interval. It returns a stop function.
func (s *Store) StartCleanupScheduler(retentionDays int, interval time.Duration, logger zerolog.Logger) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-ticker.C:
				cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
				n, err := s.CleanupBefore(context.Background(), cutoff)
				if err != nil {
					logger.Error().Err(err).Msg("analytics cleanup failed")
					continue
				}
				if n > 0 {
					logger.Info().Int64("deleted", n).Msg("analytics cleanup")
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}
