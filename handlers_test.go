package lynnzone

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lynnntropy/lynnzone/content"
	"github.com/lynnntropy/lynnzone/feed"
)

var testPosts = map[string]string{
	"hello.md": `---
title: Hello
date: 2024-06-02
updatedDate: 2024-06-10
---
Hello [home](/) and ![pic](/img.png).
`,
	"archive.md": `---
title: Older
date: 2023-01-01
---
Old news.
`,
}

func newTestApp(t *testing.T, cfg SiteConfig) *App {
	t.Helper()
	dir := t.TempDir()
	contentDir := filepath.Join(dir, "blog")
	require.NoError(t, os.MkdirAll(contentDir, 0o755))
	for name, body := range testPosts {
		require.NoError(t, os.WriteFile(filepath.Join(contentDir, name), []byte(body), 0o644))
	}

	cfg.DatabasePath = filepath.Join(dir, "data", "site.db")
	cfg.AnalyticsDatabasePath = filepath.Join(dir, "data", "analytics.db")
	cfg.ContentDir = contentDir

	a := New(cfg, WithLogger(zerolog.Nop()), WithStaticDir(filepath.Join(dir, "public")))
	require.NoError(t, a.Setup(context.Background()))
	t.Cleanup(func() { a.Close() })
	return a
}

func get(a *App, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	return rec
}

func TestFeedEndpoint(t *testing.T) {
	a := newTestApp(t, SiteConfig{URL: "https://lynn.zone/"})

	for _, path := range []string{"/rss.xml", "/feed.xml"} {
		t.Run(path, func(t *testing.T) {
			rec := get(a, path)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, feed.ContentType, rec.Header().Get("Content-Type"))

			parsed, err := gofeed.NewParser().ParseString(rec.Body.String())
			require.NoError(t, err)
			assert.Equal(t, "lynn.zone (blog)", parsed.Title)
			assert.Equal(t, "Lynn's blog.", parsed.Description)
			require.Len(t, parsed.Items, 2)

			hello := parsed.Items[0]
			assert.Equal(t, "Hello", hello.Title)
			assert.Equal(t, "https://lynn.zone/blog/hello", hello.Link)
			assert.Contains(t, hello.Content, `href="https://lynn.zone/"`)
			assert.Contains(t, hello.Content, `src="https://lynn.zone/img.png"`)
			assert.NotContains(t, hello.Content, "DOCTYPE")

			assert.Equal(t, "Older", parsed.Items[1].Title)
		})
	}
}

func TestFeedMetadataModeKeepsStoreOrder(t *testing.T) {
	a := newTestApp(t, SiteConfig{URL: "https://lynn.zone", FeedMode: feed.ModeMetadata})

	rec := get(a, "/rss.xml")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "content:encoded")

	parsed, err := gofeed.NewParser().ParseString(rec.Body.String())
	require.NoError(t, err)
	require.Len(t, parsed.Items, 2)
	assert.Equal(t, "Older", parsed.Items[0].Title)
	assert.Equal(t, "Hello", parsed.Items[1].Title)
}

func TestFeedWithoutSiteURLIsServerError(t *testing.T) {
	a := newTestApp(t, SiteConfig{})

	rec := get(a, "/rss.xml")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Something went wrong")
	assert.NotContains(t, rec.Body.String(), "<rss")
}

func TestHomeListsPostsNewestFirst(t *testing.T) {
	a := newTestApp(t, SiteConfig{URL: "https://lynn.zone"})

	rec := get(a, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `href="/rss.xml"`)
	hello := strings.Index(body, `href="/blog/hello"`)
	older := strings.Index(body, `href="/blog/archive"`)
	require.True(t, hello > 0 && older > 0, "both posts should be linked")
	assert.Less(t, hello, older)
}

func TestPostPage(t *testing.T) {
	a := newTestApp(t, SiteConfig{URL: "https://lynn.zone"})

	rec := get(a, "/blog/hello")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>Hello</h1>")
	assert.Contains(t, rec.Body.String(), `<link rel="canonical" href="https://lynn.zone/blog/hello">`)

	rec = get(a, "/blog/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not found")

	rec = get(a, "/blog/hello/")
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/blog/hello", rec.Header().Get("Location"))

	rec = get(a, "/blog")
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestUnknownRouteRendersNotFound(t *testing.T) {
	a := newTestApp(t, SiteConfig{URL: "https://lynn.zone"})
	rec := get(a, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not found")
}

func TestSitemap(t *testing.T) {
	a := newTestApp(t, SiteConfig{URL: "https://lynn.zone"})

	rec := get(a, "/sitemap.xml")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<loc>https://lynn.zone/</loc>")
	assert.Contains(t, body, "<loc>https://lynn.zone/blog/hello</loc><lastmod>2024-06-10</lastmod>")
	assert.Contains(t, body, "<loc>https://lynn.zone/blog/archive</loc><lastmod>2023-01-01</lastmod>")
}

func TestPostIDsWithReservedCharacters(t *testing.T) {
	a := newTestApp(t, SiteConfig{URL: "https://lynn.zone"})
	post := content.Post{ID: "c#-tips", Title: "C# tips", Date: time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC), Body: "Sharp."}
	require.NoError(t, a.Store.SavePost(context.Background(), post))
	a.Cache.Invalidate()

	rss := get(a, "/rss.xml").Body.String()
	assert.Contains(t, rss, "<link>https://lynn.zone/blog/c%23-tips</link>")

	rec := get(a, "/blog/c%23-tips")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>C# tips</h1>")
	assert.Contains(t, get(a, "/").Body.String(), `href="/blog/c%23-tips"`)
}

func TestRobots(t *testing.T) {
	a := newTestApp(t, SiteConfig{URL: "https://lynn.zone"})
	rec := get(a, "/robots.txt")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sitemap: https://lynn.zone/sitemap.xml")
}

func TestAdminDisabledWithoutPassword(t *testing.T) {
	a := newTestApp(t, SiteConfig{URL: "https://lynn.zone"})
	assert.Equal(t, http.StatusNotFound, get(a, "/admin/posts").Code)
}

func TestAdminRequiresLogin(t *testing.T) {
	a := newTestApp(t, SiteConfig{URL: "https://lynn.zone", AdminPassword: "hunter2", SessionSecret: "0123456789abcdef0123456789abcdef"})

	rec := get(a, "/admin")
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Authenticated bool   `json:"authenticated"`
		CSRFToken     string `json:"csrf_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Authenticated)
	assert.NotEmpty(t, status.CSRFToken)

	assert.Equal(t, http.StatusUnauthorized, get(a, "/admin/posts").Code)
	assert.Equal(t, http.StatusUnauthorized, get(a, "/admin/images").Code)
}

func TestSetupRequiresSessionSecretWithAdmin(t *testing.T) {
	a := New(SiteConfig{AdminPassword: "hunter2", DatabasePath: filepath.Join(t.TempDir(), "site.db")}, WithLogger(zerolog.Nop()))
	err := a.Setup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SessionSecret")
}

func TestAnalyticsEndpointMounted(t *testing.T) {
	a := newTestApp(t, SiteConfig{URL: "https://lynn.zone", AnalyticsEnabled: true})

	req := httptest.NewRequest(http.MethodPost, "/api/event",
		strings.NewReader(`{"type":"pageview","params":{"dh":"lynn.zone","dp":"/","dt":"lynn.zone"}}`))
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:126.0) Gecko/20100101 Firefox/126.0")
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
