// Package content loads blog posts from a directory of Markdown files with
// YAML front matter.
package content

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Post is a single entry of the blog collection.
type Post struct {
	ID          string     `db:"id"`
	Title       string     `db:"title"`
	Date        time.Time  `db:"date"`
	UpdatedDate *time.Time `db:"updated_date"`
	Body        string     `db:"body"`
}

// Source is anything that can list the posts of the blog collection.
type Source interface {
	ListPosts(ctx context.Context) ([]Post, error)
}

// EntryError reports a Markdown file that could not be turned into a Post.
type EntryError struct {
	Path string
	Err  error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("content: %s: %v", e.Path, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

type frontMatter struct {
	Title       string `yaml:"title"`
	Date        string `yaml:"date"`
	UpdatedDate string `yaml:"updatedDate"`
}

// dateLayouts are tried in order when coercing front matter dates.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseDate coerces a front matter or stored date string into a time.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// Parse builds a Post from a Markdown document. The id is supplied by the
// caller since it depends on where the document lives.
func Parse(id string, data []byte) (Post, error) {
	fm, body, err := splitFrontMatter(data)
	if err != nil {
		return Post{}, err
	}
	var meta frontMatter
	if err := yaml.Unmarshal(fm, &meta); err != nil {
		return Post{}, fmt.Errorf("front matter: %w", err)
	}
	if strings.TrimSpace(meta.Title) == "" {
		return Post{}, fmt.Errorf("title is required")
	}
	if strings.TrimSpace(meta.Date) == "" {
		return Post{}, fmt.Errorf("date is required")
	}
	date, err := ParseDate(meta.Date)
	if err != nil {
		return Post{}, fmt.Errorf("date: %w", err)
	}
	p := Post{
		ID:    id,
		Title: meta.Title,
		Date:  date,
		Body:  body,
	}
	if strings.TrimSpace(meta.UpdatedDate) != "" {
		updated, err := ParseDate(meta.UpdatedDate)
		if err != nil {
			return Post{}, fmt.Errorf("updatedDate: %w", err)
		}
		p.UpdatedDate = &updated
	}
	return p, nil
}

// splitFrontMatter separates a leading `---` fenced block from the body.
func splitFrontMatter(data []byte) ([]byte, string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(text, "---\n") {
		return nil, "", fmt.Errorf("missing front matter")
	}
	rest := text[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, "", fmt.Errorf("unterminated front matter")
	}
	fm := rest[:end]
	body := rest[end+len("\n---"):]
	// Drop the remainder of the closing fence line.
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = ""
	}
	return []byte(fm), body, nil
}

// LoadDir reads every .md file below dir. Posts come back ordered by id.
func LoadDir(dir string) ([]Post, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".md" {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("content: walk %s: %w", dir, err)
	}

	posts := make([]Post, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, path := range paths {
		id, err := entryID(dir, path)
		if err != nil {
			return nil, &EntryError{Path: path, Err: err}
		}
		if prev, ok := seen[id]; ok {
			return nil, &EntryError{Path: path, Err: fmt.Errorf("duplicate id %q (also %s)", id, prev)}
		}
		seen[id] = path

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &EntryError{Path: path, Err: err}
		}
		p, err := Parse(id, data)
		if err != nil {
			return nil, &EntryError{Path: path, Err: err}
		}
		posts = append(posts, p)
	}
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].ID < posts[j].ID })
	return posts, nil
}

// entryID derives the collection id from a file path: relative to dir,
// without extension, slash separated and lower-cased.
func entryID(dir, path string) (string, error) {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return "", err
	}
	rel = strings.TrimSuffix(filepath.ToSlash(rel), ".md")
	rel = strings.TrimSuffix(rel, "/index")
	return strings.ToLower(rel), nil
}

// DirSource serves posts straight from a Markdown directory.
type DirSource struct {
	Dir string
}

// ListPosts implements Source.
func (s DirSource) ListPosts(ctx context.Context) ([]Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadDir(s.Dir)
}

// SortByDate returns a copy of posts ordered newest first. Posts sharing a
// date keep their relative order.
func SortByDate(posts []Post) []Post {
	sorted := make([]Post, len(posts))
	copy(sorted, posts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.After(sorted[j].Date)
	})
	return sorted
}

// LastModified returns UpdatedDate when set, Date otherwise.
func (p Post) LastModified() time.Time {
	if p.UpdatedDate != nil {
		return *p.UpdatedDate
	}
	return p.Date
}
