// Package feed builds the site's RSS feed from the blog collection.
//
// A Builder turns posts into a Document. In ModeFull every post body is
// rendered, its relative links and images are made absolute and scripts and
// styles are dropped. In ModeMetadata items only carry title, date and link.
// WriteRSS serializes a Document as RSS 2.0.
package feed

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/rs/zerolog"

	"github.com/lynnntropy/lynnzone/content"
)

// Mode selects how much of each post ends up in the feed.
type Mode int

const (
	ModeFull Mode = iota
	ModeMetadata
)

// ParseMode maps "full" and "metadata" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "full":
		return ModeFull, nil
	case "metadata", "meta":
		return ModeMetadata, nil
	}
	return ModeFull, fmt.Errorf("feed: unknown mode %q", s)
}

func (m Mode) String() string {
	if m == ModeMetadata {
		return "metadata"
	}
	return "full"
}

// SortOrder controls item ordering.
type SortOrder int

const (
	// SortDefault sorts by date in ModeFull and keeps store order in ModeMetadata.
	SortDefault SortOrder = iota
	SortDateDesc
	SortNone
)

// ParseSortOrder maps "date" and "none" to a SortOrder; "" is SortDefault.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return SortDefault, nil
	case "date", "date-desc":
		return SortDateDesc, nil
	case "none", "store":
		return SortNone, nil
	}
	return SortDefault, fmt.Errorf("feed: unknown sort order %q", s)
}

// ErrorPolicy decides what happens when one post fails to render.
type ErrorPolicy int

const (
	// OnErrorAbort fails the whole build.
	OnErrorAbort ErrorPolicy = iota
	// OnErrorSkip logs the failure and leaves the post out.
	OnErrorSkip
)

// Renderer renders a post body to a component.
type Renderer interface {
	Render(ctx context.Context, p content.Post) (templ.Component, error)
}

// Item is one syndicated entry.
type Item struct {
	Title   string
	PubDate time.Time
	Link    string
	Content string
}

// Document is everything the serializer needs.
type Document struct {
	Title         string
	Description   string
	Site          string
	TrailingSlash bool
	Items         []Item
}

// Options configure a Builder.
type Options struct {
	Title       string
	Description string
	Mode        Mode
	Sort        SortOrder
	OnError     ErrorPolicy
	// Renderer is required in ModeFull.
	Renderer Renderer
	Logger   zerolog.Logger
}

// Builder produces feed Documents. It holds no per-build state and is safe
// for concurrent use.
type Builder struct {
	opts Options
}

// NewBuilder returns a Builder for opts.
func NewBuilder(opts Options) *Builder {
	return &Builder{opts: opts}
}

// NormalizeSiteURL strips one trailing slash from base.
func NormalizeSiteURL(base string) string {
	return strings.TrimSuffix(strings.TrimSpace(base), "/")
}

// ItemLink is the site-relative link of a post. Each path segment of id is
// escaped, so characters like '#' and '?' stay part of the path.
func ItemLink(id string) string {
	segs := strings.Split(id, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return "/blog/" + strings.Join(segs, "/")
}

func (b *Builder) sorted() bool {
	switch b.opts.Sort {
	case SortDateDesc:
		return true
	case SortNone:
		return false
	}
	return b.opts.Mode == ModeFull
}

// Build assembles the feed for posts. posts is not modified.
func (b *Builder) Build(ctx context.Context, siteURL string, posts []content.Post) (Document, error) {
	base := NormalizeSiteURL(siteURL)
	if base == "" {
		return Document{}, &ConfigurationError{Field: "site URL"}
	}
	if b.opts.Mode == ModeFull && b.opts.Renderer == nil {
		return Document{}, &ConfigurationError{Field: "renderer"}
	}

	ordered := posts
	if b.sorted() {
		ordered = make([]content.Post, len(posts))
		copy(ordered, posts)
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].Date.After(ordered[j].Date)
		})
	}

	items := make([]Item, 0, len(ordered))
	for _, p := range ordered {
		if err := ctx.Err(); err != nil {
			return Document{}, err
		}
		item := Item{
			Title:   p.Title,
			PubDate: p.Date,
			Link:    ItemLink(p.ID),
		}
		if b.opts.Mode == ModeFull {
			html, err := b.renderContent(ctx, base, p)
			if err != nil {
				rerr := &RenderError{PostID: p.ID, Err: err}
				if b.opts.OnError == OnErrorSkip {
					b.opts.Logger.Warn().Err(rerr).Str("post", p.ID).Msg("skipping post in feed")
					continue
				}
				return Document{}, rerr
			}
			item.Content = html
		}
		items = append(items, item)
	}

	return Document{
		Title:         b.opts.Title,
		Description:   b.opts.Description,
		Site:          base,
		TrailingSlash: false,
		Items:         items,
	}, nil
}

func (b *Builder) renderContent(ctx context.Context, base string, p content.Post) (string, error) {
	cmp, err := b.opts.Renderer.Render(ctx, p)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := cmp.Render(ctx, &buf); err != nil {
		return "", err
	}
	return Transform(StripDoctype(buf.String()),
		AbsolutizeURLs(base),
		DropElements("script", "style"),
	)
}
