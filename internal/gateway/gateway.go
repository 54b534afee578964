package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Resolver looks up the base URL of a healthy service instance.
// *discovery.ConsulClient implements it.
type Resolver interface {
	GetServiceURL(serviceName string) (string, error)
}

type Gateway struct {
	resolver  Resolver
	fallbacks map[string]string
	logger    *zap.Logger

	mutex    sync.RWMutex
	proxies  map[string]*httputil.ReverseProxy
	services map[string]string
}

// New builds a gateway for the services named in fallbacks. resolver may be
// nil, in which case only the fallback URLs are used.
func New(resolver Resolver, fallbacks map[string]string, logger *zap.Logger) *Gateway {
	g := &Gateway{
		resolver:  resolver,
		fallbacks: fallbacks,
		logger:    logger.With(zap.String("component", "gateway")),
		proxies:   make(map[string]*httputil.ReverseProxy),
		services:  make(map[string]string),
	}
	g.Refresh()
	return g
}

// Refresh re-resolves every known service.
func (g *Gateway) Refresh() {
	names := make([]string, 0, len(g.fallbacks))
	for name := range g.fallbacks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		serviceURL := g.fallbacks[name]
		if g.resolver != nil {
			resolved, err := g.resolver.GetServiceURL(name)
			if err != nil {
				g.logger.Warn("Service not found in registry, using fallback",
					zap.String("service", name),
					zap.String("fallback", serviceURL),
					zap.Error(err))
			} else {
				serviceURL = resolved
			}
		}
		g.updateProxy(name, serviceURL)
	}
}

// Watch refreshes routes every interval until ctx is cancelled.
func (g *Gateway) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Refresh()
		}
	}
}

func (g *Gateway) updateProxy(serviceName, serviceURL string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.services[serviceName] == serviceURL {
		return
	}

	target, err := url.Parse(serviceURL)
	if err != nil {
		g.logger.Error("Invalid service URL", zap.String("service", serviceName), zap.Error(err))
		return
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		g.logger.Error("Proxy error", zap.String("service", serviceName), zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `{"error": "service unavailable"}`)
	}

	g.proxies[serviceName] = proxy
	g.services[serviceName] = serviceURL
	g.logger.Info("Updated route", zap.String("service", serviceName), zap.String("url", serviceURL))
}

func (g *Gateway) getProxy(serviceName string) *httputil.ReverseProxy {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.proxies[serviceName]
}

// Proxy forwards the request unchanged to serviceName.
func (g *Gateway) Proxy(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		proxy := g.getProxy(serviceName)
		if proxy == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": serviceName + " unavailable"})
			return
		}
		proxy.ServeHTTP(c.Writer, c.Request)
	}
}

// Route sends prefix and everything below it to serviceName.
func (g *Gateway) Route(r gin.IRouter, prefix, serviceName string) {
	r.Any(prefix, g.Proxy(serviceName))
	r.Any(prefix+"/*path", g.Proxy(serviceName))
}

func (g *Gateway) HealthCheck(c *gin.Context) {
	g.mutex.RLock()
	services := make(map[string]string, len(g.services))
	for name, u := range g.services {
		services[name] = u
	}
	g.mutex.RUnlock()

	statuses := make(map[string]string)
	allHealthy := true

	client := &http.Client{Timeout: 2 * time.Second}

	for name, serviceURL := range services {
		req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, serviceURL+"/health", nil)
		if err != nil {
			statuses[name] = "unhealthy"
			allHealthy = false
			continue
		}
		resp, err := client.Do(req)
		if err != nil || resp.StatusCode != http.StatusOK {
			statuses[name] = "unhealthy"
			allHealthy = false
		} else {
			statuses[name] = "healthy"
		}
		if resp != nil {
			resp.Body.Close()
		}
	}

	status := "healthy"
	if !allHealthy {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"service":  "api-gateway",
		"services": statuses,
	})
}

func (g *Gateway) ListServices(c *gin.Context) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	c.JSON(http.StatusOK, gin.H{"services": g.services})
}
