package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const firefoxUA = "Mozilla/5.0 (X11; Linux x86_64; rv:126.0) Gecko/20100101 Firefox/126.0"

func newTestServer(t *testing.T) (*echo.Echo, *Handler, *Store) {
	t.Helper()
	s := newTestStore(t)
	h := NewHandler(s, zerolog.Nop())
	h.now = func() time.Time { return time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC) }
	e := echo.New()
	h.RegisterRoutes(e, e.Group("/admin"))
	return e, h, s
}

func postEvent(e *echo.Echo, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/event", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, "text/plain;charset=UTF-8")
	req.Header.Set("User-Agent", firefoxUA)
	req.RemoteAddr = "203.0.113.7:1234"
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func totalViews(t *testing.T, s *Store) int {
	t.Helper()
	views, _, err := s.Totals(context.Background(),
		time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return views
}

const pageview = `{"type":"pageview","params":{"dh":"lynn.zone","dp":"/blog/hello","dt":"Hello"}}`

func TestCollectStoresPageView(t *testing.T) {
	e, _, s := newTestServer(t)

	rec := postEvent(e, pageview, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, totalViews(t, s))

	top, err := s.TopPages(context.Background(),
		time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "/blog/hello", top[0].Path)
	assert.Equal(t, "Hello", top[0].Title)
}

func TestCollectRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `nope`},
		{"other type", `{"type":"click","params":{"dp":"/"}}`},
		{"missing path", `{"type":"pageview","params":{"dh":"lynn.zone"}}`},
		{"absolute path", `{"type":"pageview","params":{"dp":"https://evil.example/"}}`},
		{"long title", `{"type":"pageview","params":{"dp":"/","dt":"` + strings.Repeat("x", maxTitleLen+1) + `"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, s := newTestServer(t)
			rec := postEvent(e, tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, totalViews(t, s))
		})
	}
}

func TestCollectHonorsDoNotTrack(t *testing.T) {
	e, _, s := newTestServer(t)
	rec := postEvent(e, pageview, map[string]string{"DNT": "1"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, totalViews(t, s))
}

func TestCollectIgnoresBots(t *testing.T) {
	e, _, s := newTestServer(t)
	rec := postEvent(e, pageview, map[string]string{"User-Agent": "Googlebot/2.1"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, totalViews(t, s))
}

func TestCollectRateLimit(t *testing.T) {
	e, _, _ := newTestServer(t)
	for i := 0; i < 60; i++ {
		require.Equal(t, http.StatusNoContent, postEvent(e, pageview, nil).Code, "request %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, postEvent(e, pageview, nil).Code)
}

func TestStatsEndpoint(t *testing.T) {
	e, _, _ := newTestServer(t)
	require.Equal(t, http.StatusNoContent, postEvent(e, pageview, nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/analytics?days=7", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalViews)
	assert.Equal(t, 1, stats.UniqueVisitors)
	assert.Equal(t, time.Date(2024, 5, 27, 0, 0, 0, 0, time.UTC), stats.From)
	assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), stats.To)
	assert.Equal(t, []DailyView{{Date: "2024-06-02", Views: 1}}, stats.Daily)

	req = httptest.NewRequest(http.MethodGet, "/admin/analytics?days=0", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterRoutesWithoutAdmin(t *testing.T) {
	s := newTestStore(t)
	e := echo.New()
	NewHandler(s, zerolog.Nop()).RegisterRoutes(e, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/analytics", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
