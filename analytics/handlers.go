package analytics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Handler serves the analytics endpoints.
type Handler struct {
	store   *Store
	limiter *rateLimiter
	logger  zerolog.Logger
	now     func() time.Time
}

// NewHandler creates a Handler. The collect endpoint is rate-limited to 60
// requests per IP per minute.
func NewHandler(store *Store, logger zerolog.Logger) *Handler {
	return &Handler{
		store:   store,
		limiter: newRateLimiter(60, time.Minute),
		logger:  logger,
		now:     time.Now,
	}
}

// Input validation limits for the collect endpoint.
const (
	maxHostLen  = 253
	maxPathLen  = 2048
	maxTitleLen = 512
)

func validateEvent(ev *Event) error {
	if ev.Type != EventPageView {
		return fmt.Errorf("unsupported event type %q", ev.Type)
	}
	p := ev.Params
	if p.Path == "" || !strings.HasPrefix(p.Path, "/") {
		return fmt.Errorf("dp must be a site path")
	}
	if len(p.Path) > maxPathLen {
		return fmt.Errorf("dp exceeds maximum length of %d", maxPathLen)
	}
	if len(p.Host) > maxHostLen {
		return fmt.Errorf("dh exceeds maximum length of %d", maxHostLen)
	}
	if len(p.Title) > maxTitleLen {
		return fmt.Errorf("dt exceeds maximum length of %d", maxTitleLen)
	}
	return nil
}

// Collect records one page view.
func (h *Handler) Collect(c echo.Context) error {
	ip := c.RealIP()
	if !h.limiter.allow(ip) {
		return c.NoContent(http.StatusTooManyRequests)
	}

	if c.Request().Header.Get("DNT") == "1" {
		return c.NoContent(http.StatusNoContent)
	}

	// sendBeacon posts text/plain, so the body is decoded regardless of
	// Content-Type.
	var ev Event
	body := http.MaxBytesReader(c.Response(), c.Request().Body, 8<<10)
	if err := json.NewDecoder(body).Decode(&ev); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if err := validateEvent(&ev); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	ua := c.Request().UserAgent()
	if IsBot(ua) {
		return c.NoContent(http.StatusNoContent)
	}

	browser, device := ParseUserAgent(ua)
	view := PageView{
		Host:      ev.Params.Host,
		Path:      ev.Params.Path,
		Title:     ev.Params.Title,
		IPHash:    h.store.HashIP(ip),
		Browser:   browser,
		Device:    device,
		Timestamp: h.now().UTC(),
	}
	if err := h.store.SavePageView(c.Request().Context(), view); err != nil {
		h.logger.Error().Err(err).Str("path", view.Path).Msg("failed to save page view")
	}
	return c.NoContent(http.StatusNoContent)
}

// Stats returns aggregates for the last ?days= days (default 30, max 365),
// counted in whole UTC days including today.
func (h *Handler) Stats(c echo.Context) error {
	days := 30
	if s := c.QueryParam("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 365 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "days must be between 1 and 365"})
		}
		days = n
	}
	to := TruncateDay(h.now()).AddDate(0, 0, 1)
	from := to.AddDate(0, 0, -days)

	stats, err := h.store.GetStats(c.Request().Context(), from, to, 10)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// RegisterRoutes mounts POST /api/event on e and, when admin is non-nil,
// GET /analytics on the admin group.
func (h *Handler) RegisterRoutes(e *echo.Echo, admin *echo.Group) {
	e.POST("/api/event", h.Collect)
	if admin != nil {
		admin.GET("/analytics", h.Stats)
	}
}
