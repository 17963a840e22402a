package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newEcho(mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.Use(mw...)
	e.GET("/api/state", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/api/boom", func(c echo.Context) error { panic("boom") })
	e.GET("/api/fail", func(c echo.Context) error { return errors.New("down") })
	return e
}

func serve(e *echo.Echo, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRecoverWritesInternalError(t *testing.T) {
	e := newEcho(Recover(nil))
	rec := serve(e, http.MethodGet, "/api/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsUseRouteTemplate(t *testing.T) {
	m := NewHTTPMetrics(prometheus.NewRegistry())
	e := newEcho(RequestLogging(nil), m.Middleware())

	serve(e, http.MethodGet, "/api/state?symbol=ES", nil)
	serve(e, http.MethodGet, "/api/state?symbol=NQ", nil)
	rec := serve(e, http.MethodGet, "/api/fail", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/state", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/fail", "GET", "500")))
}

func TestCORS(t *testing.T) {
	e := newEcho(CORS(CORSConfig{
		AllowOrigins: []string{"https://desk.example"},
		AllowMethods: []string{http.MethodGet},
	}))

	rec := serve(e, http.MethodGet, "/api/state", map[string]string{"Origin": "https://desk.example"})
	assert.Equal(t, "https://desk.example", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	rec = serve(e, http.MethodGet, "/api/state", map[string]string{"Origin": "https://other.example"})
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}
