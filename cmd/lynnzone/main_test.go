package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lynnntropy/lynnzone/feed"
)

func writePosts(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	posts := map[string]string{
		"first.md":  "---\ntitle: First\ndate: 2023-01-09\n---\nSee [the second](/blog/second).\n",
		"second.md": "---\ntitle: Second\ndate: 2024-06-02\n---\nNewer.\n",
	}
	for name, body := range posts {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestRunFeedToStdout(t *testing.T) {
	dir := writePosts(t)
	var out bytes.Buffer

	require.NoError(t, runFeed([]string{"-dir", dir, "-url", "https://lynn.zone/", "-o", "-"}, &out))

	parsed, err := gofeed.NewParser().ParseString(out.String())
	require.NoError(t, err)
	require.Len(t, parsed.Items, 2)
	assert.Equal(t, "Second", parsed.Items[0].Title)
	assert.Equal(t, "https://lynn.zone/blog/first", parsed.Items[1].Link)
	assert.Contains(t, parsed.Items[1].Content, `href="https://lynn.zone/blog/second"`)
}

func TestRunFeedToFile(t *testing.T) {
	dir := writePosts(t)
	target := filepath.Join(t.TempDir(), "rss.xml")

	require.NoError(t, runFeed([]string{"-dir", dir, "-url", "https://lynn.zone", "-o", target, "-mode", "metadata"}, &bytes.Buffer{}))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "content:encoded")
	assert.Contains(t, string(data), "<title>lynn.zone (blog)</title>")
}

func TestRunFeedRequiresURL(t *testing.T) {
	t.Setenv("SITE_URL", "")
	err := runFeed([]string{"-dir", writePosts(t), "-o", "-"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.ErrorIs(t, err, feed.ErrConfiguration)
}

func TestRunFeedRejectsUnknownMode(t *testing.T) {
	err := runFeed([]string{"-dir", writePosts(t), "-url", "https://lynn.zone", "-mode", "summary"}, &bytes.Buffer{})
	require.Error(t, err)
}
