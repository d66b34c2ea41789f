package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestAllowWithinBurst(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60, BurstSize: 5, CleanupInterval: time.Minute})
	defer l.Stop()

	for i := 0; i < 5; i++ {
		if !l.Allow("client1") {
			t.Fatalf("request %d should be allowed within burst", i)
		}
	}
	if l.Allow("client1") {
		t.Error("request beyond burst should be denied")
	}
}

func TestAllowPerClientIsolation(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60, BurstSize: 2, CleanupInterval: time.Minute})
	defer l.Stop()

	l.Allow("client1")
	l.Allow("client1")
	if l.Allow("client1") {
		t.Error("client1 should be exhausted")
	}
	if !l.Allow("client2") {
		t.Error("client2 has its own bucket")
	}
}

func TestTokenRefill(t *testing.T) {
	l := New(Config{RequestsPerMinute: 6000, BurstSize: 1, CleanupInterval: time.Minute})
	defer l.Stop()

	if !l.Allow("client1") {
		t.Fatal("first request should pass")
	}
	if l.Allow("client1") {
		t.Fatal("bucket should be empty")
	}

	// 6000 rpm refills 100 tokens/sec; 50ms is plenty for one token.
	time.Sleep(50 * time.Millisecond)
	if !l.Allow("client1") {
		t.Error("bucket should have refilled")
	}
}

func TestMiddlewareReturns429(t *testing.T) {
	gin.SetMode(gin.TestMode)

	l := New(Config{RequestsPerMinute: 60, BurstSize: 1, CleanupInterval: time.Minute})
	defer l.Stop()

	router := gin.New()
	router.Use(l.Middleware())
	router.GET("/test", func(c *gin.Context) { c.String(200, "ok") })

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("first request status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != 429 {
		t.Errorf("second request status = %d, want 429", w.Code)
	}
}
