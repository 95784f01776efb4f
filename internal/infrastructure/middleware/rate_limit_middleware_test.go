package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"relaygate/pkg/config"

	"github.com/gin-gonic/gin"
)

func handshakeRouter(rps float64, burst int) *gin.Engine {
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.RateLimit.Handshake.RequestsPerSecond = rps
	cfg.RateLimit.Handshake.Burst = burst

	router := gin.New()
	router.GET("/ws", NewHandshakeRateLimitMiddleware(cfg), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestHandshakeRateLimit_AllowsWithinBurst(t *testing.T) {
	router := handshakeRouter(1, 3)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/ws", nil)
		req.RemoteAddr = "192.0.2.1:5000"
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
	}
}

func TestHandshakeRateLimit_RejectsOverBurst(t *testing.T) {
	router := handshakeRouter(1, 2)

	var last int
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/ws", nil)
		req.RemoteAddr = "192.0.2.1:5000"
		router.ServeHTTP(w, req)
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("expected 429 after burst exhausted, got %d", last)
	}
}

func TestHandshakeRateLimit_PerIPIsolation(t *testing.T) {
	router := handshakeRouter(1, 1)

	w1 := httptest.NewRecorder()
	req1, _ := http.NewRequest(http.MethodGet, "/ws", nil)
	req1.RemoteAddr = "192.0.2.1:5000"
	router.ServeHTTP(w1, req1)

	// Exhausted for the first IP.
	w2 := httptest.NewRecorder()
	req2, _ := http.NewRequest(http.MethodGet, "/ws", nil)
	req2.RemoteAddr = "192.0.2.1:6000"
	router.ServeHTTP(w2, req2)
	if w2.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 for same IP, got %d", w2.Code)
	}

	// A different IP has its own limiter.
	w3 := httptest.NewRecorder()
	req3, _ := http.NewRequest(http.MethodGet, "/ws", nil)
	req3.RemoteAddr = "192.0.2.2:5000"
	router.ServeHTTP(w3, req3)
	if w3.Code != http.StatusOK {
		t.Errorf("expected 200 for different IP, got %d", w3.Code)
	}
}

func TestClientIP(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/ws", nil)
	req.RemoteAddr = "192.0.2.9:1234"
	if got := clientIP(req); got != "192.0.2.9" {
		t.Errorf("expected host part of remote addr, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	if got := clientIP(req); got != "203.0.113.7" {
		t.Errorf("expected forwarded IP, got %q", got)
	}
}
