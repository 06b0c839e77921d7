package views

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"

	"github.com/lynnntropy/lynnzone/content"
)

var testSite = Site{Name: "lynn.zone", URL: "https://lynn.zone", Description: "Lynn's blog.", Author: "Lynn"}

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	if err := c.Render(context.Background(), &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	return buf.String()
}

func TestHomeEmpty(t *testing.T) {
	got := render(t, Home(testSite, nil))
	if !strings.HasPrefix(got, "<!doctype html>") {
		t.Errorf("expected a full document, got %q", got[:40])
	}
	if !strings.Contains(got, "Nothing here yet.") {
		t.Error("expected empty state")
	}
	if !strings.Contains(got, `<link rel="canonical" href="https://lynn.zone/">`) {
		t.Error("expected canonical link to the site root")
	}
}

func TestHomeEscapesTitles(t *testing.T) {
	posts := []content.Post{{ID: "x", Title: "<b>bold</b>", Date: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)}}
	got := render(t, Home(testSite, posts))
	if strings.Contains(got, "<b>bold</b>") {
		t.Error("title should be escaped")
	}
	if !strings.Contains(got, "June 2, 2024") {
		t.Error("expected formatted date")
	}
}

func TestPostShowsUpdatedDate(t *testing.T) {
	updated := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	post := content.Post{ID: "hello", Title: "Hello", Date: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), UpdatedDate: &updated, Body: "Some *text*."}
	got := render(t, Post(testSite, post))
	for _, want := range []string{
		"<title>Hello · lynn.zone</title>",
		`<meta property="og:type" content="article">`,
		"</time> · updated <time",
		"July 1, 2024",
		"<em>text</em>",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in output", want)
		}
	}
}

func TestLayoutRendersChildren(t *testing.T) {
	var buf bytes.Buffer
	ctx := templ.WithChildren(context.Background(), templ.Raw(`<p id="body">hi</p>`))
	if err := Layout(testSite, PageMeta{Title: "About"}).Render(ctx, &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	got := buf.String()
	for _, want := range []string{
		"<title>About · lynn.zone</title>",
		`<meta name="description" content="Lynn&#39;s blog.">`,
		`<meta property="og:type" content="website">`,
		`<link rel="alternate" type="application/rss+xml" title="lynn.zone" href="/rss.xml">`,
		`<main><p id="body">hi</p></main>`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in output", want)
		}
	}
	if strings.Contains(got, "canonical") {
		t.Error("no canonical link without a page URL")
	}
}

func TestHomeLinksEscapedPostIDs(t *testing.T) {
	posts := []content.Post{{ID: "c#-tips", Title: "C# tips", Date: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)}}
	got := render(t, Home(testSite, posts))
	if !strings.Contains(got, `<a href="/blog/c%23-tips">C# tips</a> <time datetime="2024-06-02T00:00:00Z">June 2, 2024</time>`) {
		t.Errorf("unexpected post list entry in %q", got)
	}
}

func TestLinksList(t *testing.T) {
	got := render(t, LinksList(Links, true, true))
	if !strings.HasPrefix(got, `<ul class="links links-center">`) {
		t.Errorf("unexpected list start: %q", got)
	}
	if strings.Count(got, `rel="me"`) != len(Links) {
		t.Errorf("expected %d links", len(Links))
	}
	if strings.Count(got, "links-break") != 1 {
		t.Error("condensed list should break once")
	}
	if strings.Contains(render(t, LinksList(Links, false, false)), "links-break") {
		t.Error("plain list should not break")
	}
}

func TestErrorPages(t *testing.T) {
	if got := render(t, NotFound(testSite)); !strings.Contains(got, "<h1>Not found</h1>") {
		t.Error("expected not found heading")
	}
	if got := render(t, ServerError(testSite)); !strings.Contains(got, "<h1>Something went wrong</h1>") {
		t.Error("expected server error heading")
	}
}

func TestBlogPostingJSONLD(t *testing.T) {
	post := content.Post{ID: "series/part-one", Title: "Part </script> one", Date: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)}
	raw := BlogPostingJSONLD(testSite, post)

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		t.Fatalf("invalid JSON-LD: %v", err)
	}
	if data["url"] != "https://lynn.zone/blog/series/part-one" {
		t.Errorf("url = %v", data["url"])
	}
	if _, ok := data["dateModified"]; ok {
		t.Error("dateModified should be omitted without an updated date")
	}

	page := render(t, Post(testSite, post))
	if strings.Contains(page, "Part </script> one") {
		t.Error("JSON-LD must not close the script element early")
	}
}
