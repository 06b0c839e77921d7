package feed

import (
	"encoding/xml"
	"io"
	"net/url"
	"strings"
)

// ContentType is the media type the feed is served with.
const ContentType = "application/rss+xml; charset=utf-8"

// pubDateLayout is RFC 1123 with the zone spelled GMT. Dates are converted to
// UTC before formatting.
const pubDateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

type rssXML struct {
	XMLName   xml.Name   `xml:"rss"`
	Version   string     `xml:"version,attr"`
	ContentNS string     `xml:"xmlns:content,attr,omitempty"`
	Channel   rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title   string      `xml:"title"`
	Link    string      `xml:"link"`
	GUID    rssGUID     `xml:"guid"`
	PubDate string      `xml:"pubDate,omitempty"`
	Content *rssContent `xml:"content:encoded,omitempty"`
}

type rssGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type rssContent struct {
	Value string `xml:",cdata"`
}

// ResolveLink turns an item link into an absolute URL against site. Links
// that are already absolute are returned unchanged. When trailingSlash is
// false any trailing slash on the path is removed.
func ResolveLink(site, link string, trailingSlash bool) (string, error) {
	base, err := url.Parse(site + "/")
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(link)
	if err != nil {
		return "", err
	}
	u := base.ResolveReference(ref)
	if trailingSlash {
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
	} else if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String(), nil
}

// WriteRSS writes doc to w as an RSS 2.0 document.
func WriteRSS(w io.Writer, doc Document) error {
	out, err := toRSS(doc)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return &SerializationError{Reason: "write", Err: err}
	}
	if err := xml.NewEncoder(w).Encode(out); err != nil {
		return &SerializationError{Reason: "encode", Err: err}
	}
	return nil
}

func toRSS(doc Document) (rssXML, error) {
	switch {
	case strings.TrimSpace(doc.Title) == "":
		return rssXML{}, &SerializationError{Reason: "channel title is required"}
	case strings.TrimSpace(doc.Description) == "":
		return rssXML{}, &SerializationError{Reason: "channel description is required"}
	case strings.TrimSpace(doc.Site) == "":
		return rssXML{}, &SerializationError{Reason: "channel link is required"}
	}

	siteLink, err := ResolveLink(doc.Site, "", doc.TrailingSlash)
	if err != nil {
		return rssXML{}, &SerializationError{Reason: "channel link", Err: err}
	}

	out := rssXML{
		Version: "2.0",
		Channel: rssChannel{
			Title:       doc.Title,
			Link:        siteLink,
			Description: doc.Description,
			Items:       make([]rssItem, 0, len(doc.Items)),
		},
	}
	for _, it := range doc.Items {
		link, err := ResolveLink(doc.Site, it.Link, doc.TrailingSlash)
		if err != nil {
			return rssXML{}, &SerializationError{Reason: "item link " + it.Link, Err: err}
		}
		item := rssItem{
			Title: it.Title,
			Link:  link,
			GUID:  rssGUID{IsPermaLink: true, Value: link},
		}
		if !it.PubDate.IsZero() {
			item.PubDate = it.PubDate.UTC().Format(pubDateLayout)
		}
		if it.Content != "" {
			item.Content = &rssContent{Value: it.Content}
			out.ContentNS = "http://purl.org/rss/1.0/modules/content/"
		}
		out.Channel.Items = append(out.Channel.Items, item)
	}
	return out, nil
}
