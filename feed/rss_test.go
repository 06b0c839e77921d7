package feed

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument() Document {
	return Document{
		Title:       "lynn.zone (blog)",
		Description: "Lynn's blog.",
		Site:        "https://lynn.zone",
		Items: []Item{
			{
				Title:   "Second & newest",
				PubDate: time.Date(2024, time.June, 2, 15, 4, 5, 0, time.UTC),
				Link:    "/blog/second",
				Content: `<p>Hello <a href="https://lynn.zone/about">about</a> tricky</p>`,
			},
			{
				Title:   "First",
				PubDate: time.Date(2023, time.January, 9, 0, 0, 0, 0, time.UTC),
				Link:    "/blog/first",
			},
		},
	}
}

func TestWriteRSSRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRSS(&buf, sampleDocument()))

	parsed, err := gofeed.NewParser().ParseString(buf.String())
	require.NoError(t, err)

	assert.Equal(t, "rss", parsed.FeedType)
	assert.Equal(t, "2.0", parsed.FeedVersion)
	assert.Equal(t, "lynn.zone (blog)", parsed.Title)
	assert.Equal(t, "Lynn's blog.", parsed.Description)
	assert.Equal(t, "https://lynn.zone/", parsed.Link)

	require.Len(t, parsed.Items, 2)
	first := parsed.Items[0]
	assert.Equal(t, "Second & newest", first.Title)
	assert.Equal(t, "https://lynn.zone/blog/second", first.Link)
	assert.Equal(t, "https://lynn.zone/blog/second", first.GUID)
	require.NotNil(t, first.PublishedParsed)
	assert.True(t, first.PublishedParsed.Equal(time.Date(2024, time.June, 2, 15, 4, 5, 0, time.UTC)))
	assert.Equal(t, `<p>Hello <a href="https://lynn.zone/about">about</a> tricky</p>`, first.Content)

	assert.Equal(t, "https://lynn.zone/blog/first", parsed.Items[1].Link)
	assert.Empty(t, parsed.Items[1].Content)
}

func TestWriteRSSShape(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRSS(&buf, sampleDocument()))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, out, `xmlns:content="http://purl.org/rss/1.0/modules/content/"`)
	assert.Contains(t, out, "<pubDate>Sun, 02 Jun 2024 15:04:05 GMT</pubDate>")
	assert.Contains(t, out, "<content:encoded><![CDATA[")
}

func TestWriteRSSMetadataOnlyOmitsContentNamespace(t *testing.T) {
	doc := sampleDocument()
	for i := range doc.Items {
		doc.Items[i].Content = ""
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRSS(&buf, doc))
	assert.NotContains(t, buf.String(), "content:encoded")
	assert.NotContains(t, buf.String(), "xmlns:content")
}

func TestWriteRSSEmptyFeed(t *testing.T) {
	doc := sampleDocument()
	doc.Items = nil

	var buf bytes.Buffer
	require.NoError(t, WriteRSS(&buf, doc))

	parsed, err := gofeed.NewParser().ParseString(buf.String())
	require.NoError(t, err)
	assert.Empty(t, parsed.Items)
}

func TestWriteRSSRequiresChannelFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Document)
	}{
		{"title", func(d *Document) { d.Title = "" }},
		{"description", func(d *Document) { d.Description = " " }},
		{"site", func(d *Document) { d.Site = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := sampleDocument()
			tt.mutate(&doc)

			var buf bytes.Buffer
			err := WriteRSS(&buf, doc)

			var serErr *SerializationError
			require.ErrorAs(t, err, &serErr)
			assert.Zero(t, buf.Len(), "nothing is written for an invalid document")
		})
	}
}

func TestWriteRSSPubDateIsGMT(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	doc := Document{
		Title:       "t",
		Description: "d",
		Site:        "https://example.com",
		Items:       []Item{{Title: "a", Link: "/blog/a", PubDate: time.Date(2024, time.March, 1, 22, 30, 0, 0, est)}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteRSS(&buf, doc))
	assert.Contains(t, buf.String(), "<pubDate>Sat, 02 Mar 2024 03:30:00 GMT</pubDate>")
}

func TestResolveLink(t *testing.T) {
	tests := []struct {
		site, link    string
		trailingSlash bool
		want          string
	}{
		{"https://example.com", "/blog/my-post", false, "https://example.com/blog/my-post"},
		{"https://example.com", "/blog/my-post/", false, "https://example.com/blog/my-post"},
		{"https://example.com", "/blog/my-post", true, "https://example.com/blog/my-post/"},
		{"https://example.com", "https://elsewhere.org/x", false, "https://elsewhere.org/x"},
		{"https://example.com", "", false, "https://example.com/"},
		{"https://example.com/sub", "notes/a", false, "https://example.com/sub/notes/a"},
		{"https://example.com", "/blog/c%23-tips", false, "https://example.com/blog/c%23-tips"},
		{"https://example.com", "/blog/why%3F", false, "https://example.com/blog/why%3F"},
	}
	for _, tt := range tests {
		got, err := ResolveLink(tt.site, tt.link, tt.trailingSlash)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "ResolveLink(%q, %q, %v)", tt.site, tt.link, tt.trailingSlash)
	}
}
