package gateway

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubResolver struct {
	urls map[string]string
}

func (r *stubResolver) GetServiceURL(name string) (string, error) {
	if u, ok := r.urls[name]; ok {
		return u, nil
	}
	return "", errors.New("no healthy instances")
}

func newBackend(t *testing.T, name string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(name + " " + r.Method + " " + r.URL.Path))
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestEngine(g *Gateway) *gin.Engine {
	r := gin.New()
	r.GET("/health", g.HealthCheck)
	r.GET("/services", g.ListServices)
	g.Route(r, "/api/orders", "order-service")
	g.Route(r, "/api/inventory", "inventory-service")
	return r
}

func TestGatewayRoutesToResolvedServices(t *testing.T) {
	orders := newBackend(t, "orders")
	inventory := newBackend(t, "inventory")

	g := New(&stubResolver{urls: map[string]string{
		"order-service":     orders.URL,
		"inventory-service": inventory.URL,
	}}, map[string]string{
		"order-service":     "http://127.0.0.1:1",
		"inventory-service": "http://127.0.0.1:1",
	}, zap.NewNop())
	r := newTestEngine(g)

	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodPost, "/api/orders", "orders POST /api/orders"},
		{http.MethodGet, "/api/orders/7", "orders GET /api/orders/7"},
		{http.MethodPut, "/api/inventory/11", "inventory PUT /api/inventory/11"},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
		if w.Body.String() != tt.want {
			t.Fatalf("%s %s: expected %q, got %q", tt.method, tt.path, tt.want, w.Body.String())
		}
	}
}

func TestGatewayFallsBackWithoutResolver(t *testing.T) {
	orders := newBackend(t, "orders")
	g := New(nil, map[string]string{"order-service": orders.URL}, zap.NewNop())

	w := httptest.NewRecorder()
	newTestEngine(g).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	if !strings.HasPrefix(w.Body.String(), "orders") {
		t.Fatalf("expected fallback backend, got %q", w.Body.String())
	}
}

func TestGatewayUnknownServiceIsUnavailable(t *testing.T) {
	g := New(nil, map[string]string{}, zap.NewNop())

	w := httptest.NewRecorder()
	newTestEngine(g).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/inventory", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestGatewayBadGatewayWhenBackendDown(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	backend.Close()
	g := New(nil, map[string]string{"order-service": backend.URL}, zap.NewNop())

	w := httptest.NewRecorder()
	newTestEngine(g).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
}

func TestGatewayHealthReportsDegraded(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(healthy.Close)
	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()

	g := New(nil, map[string]string{
		"order-service":     healthy.URL,
		"inventory-service": down.URL,
	}, zap.NewNop())

	w := httptest.NewRecorder()
	newTestEngine(g).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	body := w.Body.String()
	if !strings.Contains(body, `"status":"degraded"`) || !strings.Contains(body, `"inventory-service":"unhealthy"`) {
		t.Fatalf("unexpected health body %s", body)
	}
}
