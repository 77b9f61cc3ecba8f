package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/martinsuchenak/labconsole/internal/app"
	"github.com/martinsuchenak/labconsole/internal/config"
	"github.com/martinsuchenak/labconsole/internal/labtest"
	"github.com/martinsuchenak/labconsole/internal/mcp"
	"github.com/martinsuchenak/labconsole/internal/metrics"
)

func newRoutes(t *testing.T, token string) http.Handler {
	t.Helper()
	backend, _ := labtest.NewServer()
	t.Cleanup(backend.Close)

	cfg := config.Load(&config.Config{ServerURL: backend.URL, LabID: "1"})
	m := metrics.New()
	lab, err := app.Connect(context.Background(), cfg, app.WithMetrics(m), app.WithoutTerminals())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(lab.Close)

	return Routes(&ServerConfig{
		Config:    cfg,
		Lab:       lab,
		MCPServer: mcp.NewServer(lab, "test", token),
		Metrics:   m,
	})
}

func TestHealthz(t *testing.T) {
	h := newRoutes(t, "")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Body.String(); got != "ok\n" {
		t.Errorf("body = %q", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := w.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS set on plain HTTP: %q", got)
	}
}

func TestMetricsExposed(t *testing.T) {
	h := newRoutes(t, "")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), "labconsole_backend_requests_total") {
		t.Errorf("metrics output missing backend request counter")
	}
}

func TestMCPRequiresToken(t *testing.T) {
	h := newRoutes(t, "secret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/mcp", strings.NewReader(`{}`)))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestHSTSBehindTLSProxy(t *testing.T) {
	h := SecurityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get("Strict-Transport-Security"); got == "" {
		t.Error("HSTS header missing behind TLS proxy")
	}
}
