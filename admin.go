package lynnzone

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lynnntropy/lynnzone/content"
)

// postJSON is the admin API's view of a post.
type postJSON struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Date        time.Time  `json:"date"`
	UpdatedDate *time.Time `json:"updated_date,omitempty"`
	Body        string     `json:"body,omitempty"`
	URL         string     `json:"url"`
}

func toPostJSON(p content.Post, withBody bool) postJSON {
	out := postJSON{
		ID:          p.ID,
		Title:       p.Title,
		Date:        p.Date,
		UpdatedDate: p.UpdatedDate,
		URL:         PostPath(p.ID),
	}
	if withBody {
		out.Body = p.Body
	}
	return out
}

// savePostRequest is the body of POST /admin/posts.
type savePostRequest struct {
	ID          string `json:"id" form:"id"`
	Title       string `json:"title" form:"title"`
	Date        string `json:"date" form:"date"`
	UpdatedDate string `json:"updated_date" form:"updated_date"`
	Body        string `json:"body" form:"body"`
}

func jsonError(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"error": msg})
}

func (a *App) setupAdminRoutes() *echo.Group {
	e := a.Echo
	e.GET("/admin", a.handleAdmin)
	e.POST("/admin/login", a.handleAdminLogin)
	e.POST("/admin/logout", handleAdminLogout)

	g := e.Group("/admin", a.requireAdmin)
	g.GET("/posts", a.handleAdminPosts)
	g.GET("/posts/*", a.handleAdminPost)
	g.POST("/posts", a.handleAdminSave)
	g.DELETE("/posts/*", a.handleAdminDelete)
	g.GET("/images", a.handleImageList)
	g.POST("/images", a.handleImageUpload)
	g.DELETE("/images/:filename", a.handleImageDelete)
	return g
}

func (a *App) handleAdmin(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"authenticated": IsAdmin(c),
		"csrf_token":    CsrfToken(c),
	})
}

func (a *App) handleAdminLogin(c echo.Context) error {
	ip := c.RealIP()
	if !a.loginLimiter.Check(ip) {
		return jsonError(c, http.StatusTooManyRequests, "too many login attempts, try again later")
	}
	var req struct {
		Password string `json:"password" form:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request")
	}
	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(a.Config.AdminPassword)) != 1 {
		a.loginLimiter.Record(ip)
		a.Logger.Warn().Str("ip", ip).Msg("failed admin login")
		return jsonError(c, http.StatusUnauthorized, "wrong password")
	}
	if err := setAdminSession(c); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"authenticated": true})
}

func handleAdminLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *App) handleAdminPosts(c echo.Context) error {
	posts, err := a.Store.ListPosts(c.Request().Context())
	if err != nil {
		return err
	}
	out := make([]postJSON, 0, len(posts))
	for _, p := range content.SortByDate(posts) {
		out = append(out, toPostJSON(p, false))
	}
	return c.JSON(http.StatusOK, out)
}

func (a *App) handleAdminPost(c echo.Context) error {
	post, err := a.Store.GetPost(c.Request().Context(), c.Param("*"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return jsonError(c, http.StatusNotFound, "post not found")
		}
		return err
	}
	return c.JSON(http.StatusOK, toPostJSON(post, true))
}

// parsePost validates a save request. The id defaults to the slugified
// title and the date to today.
func parsePost(req savePostRequest, now time.Time) (content.Post, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return content.Post{}, errors.New("title is required")
	}
	id := strings.ToLower(strings.Trim(strings.TrimSpace(req.ID), "/"))
	if id == "" {
		id = Slugify(title)
	}
	if !validPostID(id) {
		return content.Post{}, errors.New("id is required; add a title or id")
	}

	date := now.UTC().Truncate(24 * time.Hour)
	if s := strings.TrimSpace(req.Date); s != "" {
		d, err := content.ParseDate(s)
		if err != nil {
			return content.Post{}, errors.New("invalid date, use YYYY-MM-DD or RFC 3339")
		}
		date = d
	}

	p := content.Post{ID: id, Title: title, Date: date, Body: req.Body}
	if s := strings.TrimSpace(req.UpdatedDate); s != "" {
		d, err := content.ParseDate(s)
		if err != nil {
			return content.Post{}, errors.New("invalid updated_date, use YYYY-MM-DD or RFC 3339")
		}
		p.UpdatedDate = &d
	}
	return p, nil
}

func (a *App) handleAdminSave(c echo.Context) error {
	var req savePostRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request")
	}
	post, err := parsePost(req, time.Now())
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	if err := a.Store.SavePost(c.Request().Context(), post); err != nil {
		return err
	}
	a.Cache.Invalidate()
	a.Logger.Info().Str("post", post.ID).Msg("post saved")
	return c.JSON(http.StatusOK, toPostJSON(post, true))
}

func (a *App) handleAdminDelete(c echo.Context) error {
	id := c.Param("*")
	if err := a.Store.DeletePost(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return jsonError(c, http.StatusNotFound, "post not found")
		}
		return err
	}
	a.Cache.Invalidate()
	a.Logger.Info().Str("post", id).Msg("post deleted")
	return c.NoContent(http.StatusNoContent)
}
