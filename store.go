package lynnzone

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/lynnntropy/lynnzone/content"
)

// ErrNotFound is returned when a requested post does not exist.
var ErrNotFound = sql.ErrNoRows

// Store wraps a SQLite database holding the blog collection and uploaded
// image metadata. It implements content.Source.
type Store struct {
	db *sqlx.DB
}

var _ content.Source = (*Store)(nil)

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and creates the schema.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets readers proceed while the admin API or a content sync writes;
	// busy_timeout makes writers wait instead of failing with SQLITE_BUSY.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS posts (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    date TEXT NOT NULL,
    updated_date TEXT,
    body TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS images (
    filename TEXT PRIMARY KEY,
    original_name TEXT NOT NULL,
    width INTEGER NOT NULL,
    height INTEGER NOT NULL,
    size INTEGER NOT NULL,
    uploaded_at TEXT NOT NULL
);
`)
	return err
}

type postRow struct {
	ID          string         `db:"id"`
	Title       string         `db:"title"`
	Date        string         `db:"date"`
	UpdatedDate sql.NullString `db:"updated_date"`
	Body        string         `db:"body"`
}

func (r postRow) post() (content.Post, error) {
	date, err := content.ParseDate(r.Date)
	if err != nil {
		return content.Post{}, fmt.Errorf("post %q: %w", r.ID, err)
	}
	p := content.Post{ID: r.ID, Title: r.Title, Date: date, Body: r.Body}
	if r.UpdatedDate.Valid && r.UpdatedDate.String != "" {
		updated, err := content.ParseDate(r.UpdatedDate.String)
		if err != nil {
			return content.Post{}, fmt.Errorf("post %q: %w", r.ID, err)
		}
		p.UpdatedDate = &updated
	}
	return p, nil
}

func rowFromPost(p content.Post) postRow {
	r := postRow{
		ID:    p.ID,
		Title: p.Title,
		Date:  formatDate(p.Date),
		Body:  p.Body,
	}
	if p.UpdatedDate != nil {
		r.UpdatedDate = sql.NullString{String: formatDate(*p.UpdatedDate), Valid: true}
	}
	return r
}

func formatDate(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ListPosts returns every post in collection order (by id).
func (s *Store) ListPosts(ctx context.Context) ([]content.Post, error) {
	var rows []postRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, title, date, updated_date, body FROM posts ORDER BY id`); err != nil {
		return nil, err
	}
	posts := make([]content.Post, 0, len(rows))
	for _, r := range rows {
		p, err := r.post()
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, nil
}

// GetPost returns a single post by id.
func (s *Store) GetPost(ctx context.Context, id string) (content.Post, error) {
	var r postRow
	if err := s.db.GetContext(ctx, &r, `SELECT id, title, date, updated_date, body FROM posts WHERE id = ?`, id); err != nil {
		return content.Post{}, err
	}
	return r.post()
}

const upsertPost = `INSERT INTO posts (id, title, date, updated_date, body)
VALUES (:id, :title, :date, :updated_date, :body)
ON CONFLICT(id) DO UPDATE SET
    title = excluded.title,
    date = excluded.date,
    updated_date = excluded.updated_date,
    body = excluded.body`

// SavePost inserts or replaces a post.
func (s *Store) SavePost(ctx context.Context, p content.Post) error {
	_, err := s.db.NamedExecContext(ctx, upsertPost, rowFromPost(p))
	return err
}

// SyncPosts upserts posts in a single transaction. Posts already stored but
// absent from the list are left alone.
func (s *Store) SyncPosts(ctx context.Context, posts []content.Post) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, upsertPost)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range posts {
		if _, err := stmt.ExecContext(ctx, rowFromPost(p)); err != nil {
			return fmt.Errorf("sync post %q: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// DeletePost removes a post by id. Deleting a missing post returns ErrNotFound.
func (s *Store) DeletePost(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListImages returns uploaded images, newest first.
func (s *Store) ListImages(ctx context.Context) ([]Image, error) {
	var images []Image
	err := s.db.SelectContext(ctx, &images, `SELECT filename, original_name, width, height, size, uploaded_at FROM images ORDER BY uploaded_at DESC, filename`)
	return images, err
}

// ImageExists reports whether filename is already recorded.
func (s *Store) ImageExists(ctx context.Context, filename string) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM images WHERE filename = ?`, filename); err != nil {
		return false, err
	}
	return n > 0, nil
}

// SaveImage records an uploaded image.
func (s *Store) SaveImage(ctx context.Context, img Image) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT OR REPLACE INTO images (filename, original_name, width, height, size, uploaded_at)
VALUES (:filename, :original_name, :width, :height, :size, :uploaded_at)`, img)
	return err
}

// DeleteImage removes an image record.
func (s *Store) DeleteImage(ctx context.Context, filename string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE filename = ?`, filename)
	return err
}
