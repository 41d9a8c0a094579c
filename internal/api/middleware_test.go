package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRateLimitMiddlewareThrottles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimitMiddleware(1, 2))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make(map[int]int)
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		r.ServeHTTP(w, req)
		codes[w.Code]++

		if w.Code == http.StatusTooManyRequests {
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode throttle body: %v", err)
			}
			if body["code"] != "BUSY" {
				t.Errorf("expected BUSY error code, got %q", body["code"])
			}
		}
	}

	if codes[http.StatusOK] != 2 {
		t.Errorf("expected burst of 2 to pass, got %d", codes[http.StatusOK])
	}
	if codes[http.StatusTooManyRequests] != 3 {
		t.Errorf("expected 3 throttled requests, got %d", codes[http.StatusTooManyRequests])
	}
}

func TestRequestIDMiddlewareEchoesHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "trace-123")
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "trace-123" {
		t.Errorf("expected caller's request ID echoed, got %q", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated request ID")
	}
}

func TestTimeoutMiddlewareCutsSlowRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TimeoutMiddleware(50 * time.Millisecond))
	r.GET("/slow", func(c *gin.Context) {
		select {
		case <-c.Request.Context().Done():
		case <-time.After(time.Second):
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	start := time.Now()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))

	if w.Code != http.StatusRequestTimeout {
		t.Errorf("expected 408, got %d", w.Code)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("timeout did not cut the request: %v", elapsed)
	}
}
