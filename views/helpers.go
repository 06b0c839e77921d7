// Package views holds the site's page components. Templates live in the
// .templ files; run `templ generate` after editing them.
package views

import (
	"encoding/json"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/lynnntropy/lynnzone/content"
)

// Site carries the site-wide settings every page needs.
type Site struct {
	Name        string
	URL         string
	Description string
	Author      string
}

// PageMeta carries per-page OpenGraph and SEO metadata into <head>.
type PageMeta struct {
	Title       string
	Description string
	URL         string // canonical + og:url
	OGType      string // "website" or "article"
	JSONLD      string
}

// SocialLink is one entry of the links list on the home page.
type SocialLink struct {
	Name string
	Href string
	Icon string
}

// Links is the list shown under the site title.
var Links = []SocialLink{
	{Name: "lynnntropy", Href: "https://www.linkedin.com/in/lynnntropy/", Icon: "linkedin"},
	{Name: "lynnntropy", Href: "https://github.com/lynnntropy", Icon: "github"},
	{Name: "@lynn.zone", Href: "https://bsky.app/profile/lynn.zone", Icon: "bluesky"},
	{Name: "@lynnntropy@hachyderm.io", Href: "https://hachyderm.io/@lynnntropy", Icon: "mastodon"},
	{Name: "lynn@lynn.zone", Href: "mailto:lynn@lynn.zone", Icon: "mail"},
}

// FormatDate renders a post date the way the site shows it.
func FormatDate(t time.Time) string {
	return t.Format("January 2, 2006")
}

func pageURL(base string, segments ...string) string {
	u, err := url.Parse(base)
	if err != nil || base == "" {
		u = &url.URL{}
	}
	u.Path = path.Join("/", u.Path, path.Join(segments...))
	return u.String()
}

func postPath(id string) string {
	return pageURL("", "blog", id)
}

func pageTitle(site Site, meta PageMeta) string {
	if meta.Title == "" {
		return site.Name
	}
	return meta.Title + " · " + site.Name
}

func pageDescription(site Site, meta PageMeta) string {
	if meta.Description != "" {
		return meta.Description
	}
	return site.Description
}

func pageType(meta PageMeta) string {
	if meta.OGType == "" {
		return "website"
	}
	return meta.OGType
}

func homeMeta(site Site) PageMeta {
	return PageMeta{
		URL:    pageURL(site.URL),
		JSONLD: WebsiteJSONLD(site),
	}
}

func postMeta(site Site, post content.Post) PageMeta {
	return PageMeta{
		Title:  post.Title,
		URL:    pageURL(site.URL, "blog", post.ID),
		OGType: "article",
		JSONLD: BlogPostingJSONLD(site, post),
	}
}

// jsonLDScript wraps ld in a script tag. "</" is escaped so a value can
// never close the element early.
func jsonLDScript(ld string) string {
	return `<script type="application/ld+json">` + strings.ReplaceAll(ld, "</", `<\/`) + `</script>`
}

// WebsiteJSONLD returns a JSON-LD string for a WebSite schema.
func WebsiteJSONLD(site Site) string {
	data := map[string]interface{}{
		"@context":    "https://schema.org",
		"@type":       "WebSite",
		"name":        site.Name,
		"url":         pageURL(site.URL),
		"description": site.Description,
	}
	if site.Author != "" {
		data["author"] = map[string]string{"@type": "Person", "name": site.Author}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// BlogPostingJSONLD returns a JSON-LD string for a BlogPosting schema.
func BlogPostingJSONLD(site Site, post content.Post) string {
	postURL := pageURL(site.URL, "blog", post.ID)
	data := map[string]interface{}{
		"@context":      "https://schema.org",
		"@type":         "BlogPosting",
		"headline":      post.Title,
		"datePublished": post.Date.Format(time.RFC3339),
		"url":           postURL,
		"mainEntityOfPage": map[string]string{
			"@type": "WebPage",
			"@id":   postURL,
		},
	}
	if post.UpdatedDate != nil {
		data["dateModified"] = post.UpdatedDate.Format(time.RFC3339)
	}
	if site.Author != "" {
		data["author"] = map[string]string{"@type": "Person", "name": site.Author}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}
