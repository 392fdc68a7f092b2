package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareCountsRequests(t *testing.T) {
	m := newWith(prometheus.NewRegistry())
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/patients", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/patients")

	h := m.Middleware()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/patients", "200")); got != 1 {
		t.Errorf("expected 1 request counted, got %v", got)
	}
}

func TestMiddlewareUsesHTTPErrorStatus(t *testing.T) {
	m := newWith(prometheus.NewRegistry())
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/patients/abc", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/patients/:id")

	h := m.Middleware()(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	})
	if err := h(c); err == nil {
		t.Fatal("expected error to propagate")
	}

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/patients/:id", "404")); got != 1 {
		t.Errorf("expected 404 counted, got %v", got)
	}
}

func TestMiddlewarePropagatesPlainErrors(t *testing.T) {
	m := newWith(prometheus.NewRegistry())
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	sentinel := errors.New("boom")
	h := m.Middleware()(func(c echo.Context) error { return sentinel })
	if err := h(c); !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error back, got %v", err)
	}
}
