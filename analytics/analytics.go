// Package analytics records page views sent by the site's beacon and
// aggregates them for the admin API. IP addresses are never stored; only a
// salted hash is kept to count unique visitors.
package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// EventPageView is the only event type the beacon sends.
const EventPageView = "pageview"

// Event is the body of POST /api/event.
type Event struct {
	Type   string      `json:"type"`
	Params EventParams `json:"params"`
}

// EventParams are the page-view fields: host, path and document title.
type EventParams struct {
	Host  string `json:"dh"`
	Path  string `json:"dp"`
	Title string `json:"dt"`
}

// PageView is a stored page view.
type PageView struct {
	ID        int64     `db:"id" json:"-"`
	Host      string    `db:"host" json:"host"`
	Path      string    `db:"path" json:"path"`
	Title     string    `db:"title" json:"title"`
	IPHash    string    `db:"ip_hash" json:"-"`
	Browser   string    `db:"browser" json:"browser"`
	Device    string    `db:"device" json:"device"`
	Timestamp time.Time `db:"-" json:"timestamp"`
}

// PageStat is the view count of one path.
type PageStat struct {
	Path  string `db:"path" json:"path"`
	Title string `db:"title" json:"title"`
	Views int    `db:"views" json:"views"`
}

// DailyView is the view count of one UTC day.
type DailyView struct {
	Date  string `db:"day" json:"date"`
	Views int    `db:"views" json:"views"`
}

// Stats is the aggregate returned by the admin endpoint.
type Stats struct {
	From           time.Time   `json:"from"`
	To             time.Time   `json:"to"`
	TotalViews     int         `json:"total_views"`
	UniqueVisitors int         `json:"unique_visitors"`
	TopPages       []PageStat  `json:"top_pages"`
	Daily          []DailyView `json:"daily"`
}

// hashIP creates a salted SHA-256 hash of an IP address.
func hashIP(salt, ip string) string {
	h := sha256.New()
	h.Write([]byte(salt + ip))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// ParseUserAgent extracts browser and device class from a User-Agent.
func ParseUserAgent(ua string) (browser, device string) {
	ua = strings.ToLower(ua)

	// more specific patterns first: Edge and Opera also say "chrome"
	switch {
	case strings.Contains(ua, "firefox"):
		browser = "Firefox"
	case strings.Contains(ua, "opera") || strings.Contains(ua, "opr/"):
		browser = "Opera"
	case strings.Contains(ua, "edg"):
		browser = "Edge"
	case strings.Contains(ua, "chrome"):
		browser = "Chrome"
	case strings.Contains(ua, "safari"):
		browser = "Safari"
	default:
		browser = "Other"
	}

	// iPad user agents contain "mobile" too
	switch {
	case strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad"):
		device = "Tablet"
	case strings.Contains(ua, "mobile"):
		device = "Mobile"
	default:
		device = "Desktop"
	}
	return browser, device
}

var botMarkers = []string{
	"bot", "crawler", "spider", "crawl", "slurp", "scrape",
	"facebookexternalhit", "yandex", "baidu", "headless",
}

// IsBot reports whether ua looks like a crawler.
func IsBot(ua string) bool {
	ua = strings.ToLower(ua)
	for _, m := range botMarkers {
		if strings.Contains(ua, m) {
			return true
		}
	}
	return false
}

// TruncateDay returns midnight UTC of t's day.
func TruncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
