package lynnzone

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lynnntropy/lynnzone/feed"
)

// handleFeed serves the blog feed. The document is serialized into a buffer
// first so a build or serialization failure still becomes a 500 page.
func (a *App) handleFeed(c echo.Context) error {
	ctx := c.Request().Context()
	posts, err := a.Cache.ListPosts(ctx)
	if err != nil {
		return err
	}
	doc, err := a.Feed.Build(ctx, a.Config.URL, posts)
	if err != nil {
		return fmt.Errorf("build feed: %w", err)
	}
	var buf bytes.Buffer
	if err := feed.WriteRSS(&buf, doc); err != nil {
		return fmt.Errorf("write feed: %w", err)
	}
	return c.Blob(http.StatusOK, feed.ContentType, buf.Bytes())
}
