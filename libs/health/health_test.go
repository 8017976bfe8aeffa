package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestReadinessReportsFailingChecks(t *testing.T) {
	gin.SetMode(gin.TestMode)

	m := NewManager(true)
	m.AddCheck("postgres", func(context.Context) error { return nil })
	m.AddCheck("redis", func(context.Context) error { return errors.New("down") })

	r := gin.New()
	r.GET("/readyz", ReadinessHandler(m))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}

	m.AddCheck("redis", func(context.Context) error { return nil })
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestReadinessRespectsFlag(t *testing.T) {
	gin.SetMode(gin.TestMode)

	m := NewManager(false)
	r := gin.New()
	r.GET("/readyz", ReadinessHandler(m))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
