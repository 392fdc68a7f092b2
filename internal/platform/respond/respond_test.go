package respond

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/clinrec/clinrec/internal/platform/apperr"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("body is not an envelope: %v (%s)", err, rec.Body.String())
	}
	return env
}

func TestErrorHandler_HTTPError(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler()
	e.GET("/patients", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/patients", nil))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Status != "danger" || env.Code != http.StatusTooManyRequests {
		t.Errorf("unexpected envelope: %+v", env)
	}
	if env.Message != "rate limit exceeded" {
		t.Errorf("expected middleware message preserved, got %q", env.Message)
	}
}

func TestErrorHandler_AppError(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler()
	e.GET("/patients", func(c echo.Context) error {
		return apperr.Auth("missing authorization header")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/patients", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Status != "danger" || env.Code != http.StatusUnauthorized {
		t.Errorf("unexpected envelope: %+v", env)
	}
	if env.Message != "missing authorization header" {
		t.Errorf("unexpected message: %q", env.Message)
	}
}

func TestErrorHandler_RouterNotFound(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler()

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/no-such-route", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Status != "danger" || env.Code != http.StatusNotFound {
		t.Errorf("unexpected envelope: %+v", env)
	}
}

func TestErrorHandler_Committed(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler()
	e.GET("/patients", func(c echo.Context) error {
		_ = c.NoContent(http.StatusOK)
		return errors.New("late failure")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/patients", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("committed response must not be rewritten, got %d", rec.Code)
	}
}
