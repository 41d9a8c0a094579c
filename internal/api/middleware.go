package api

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"bot-core/internal/monitor"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ipLimiterTable keeps one token bucket per client IP. Instead of a
// background cleaner, the whole table is rebuilt lazily once it ages out;
// active clients just get a fresh bucket on their next request.
type ipLimiterTable struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
	builtAt  time.Time
	maxAge   time.Duration
}

func newIPLimiterTable(rps float64, burst int, maxAge time.Duration) *ipLimiterTable {
	return &ipLimiterTable{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		builtAt:  time.Now(),
		maxAge:   maxAge,
	}
}

func (t *ipLimiterTable) get(ip string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	if time.Since(t.builtAt) > t.maxAge {
		t.limiters = make(map[string]*rate.Limiter)
		t.builtAt = time.Now()
	}
	lim, ok := t.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(t.rps, t.burst)
		t.limiters[ip] = lim
	}
	return lim
}

// RateLimitMiddleware throttles each client IP to rps sustained requests per
// second with the given burst allowance. Throttled requests get the same
// BUSY error shape the ledger's lock bound produces.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	table := newIPLimiterTable(rps, burst, 5*time.Minute)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !table.get(ip).Allow() {
			log.Printf("[RATE_LIMIT] %s throttled on %s %s", ip, c.Request.Method, c.Request.URL.Path)
			respondError(c, http.StatusTooManyRequests, "BUSY", "too many requests, slow down")
			c.Abort()
			return
		}
		c.Next()
	}
}

// CORSMiddleware handles Cross-Origin Resource Sharing
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Accept, Origin, Cache-Control, X-Requested-With")
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequestIDMiddleware tags every request with an ID for log correlation.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("RequestID", requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Next()
	}
}

// TimeoutMiddleware bounds how long a request may hold a handler goroutine.
func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)

		finished := make(chan struct{})
		panicChan := make(chan any, 1)

		go func() {
			defer func() {
				if p := recover(); p != nil {
					panicChan <- p
				}
			}()
			c.Next()
			finished <- struct{}{}
		}()

		select {
		case <-panicChan:
			respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			c.Abort()
		case <-finished:
			return
		case <-ctx.Done():
			log.Printf("[TIMEOUT] %s %s exceeded %v", c.Request.Method, c.Request.URL.Path, timeout)
			respondError(c, http.StatusRequestTimeout, "TIMEOUT", "request took too long to process")
			c.Abort()
		}
	}
}

// shortID truncates a request ID for log lines.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// RequestLogger logs API requests with timing and feeds the latency
// histogram. Health probes are skipped to keep the log readable.
func RequestLogger(metrics *monitor.SystemMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		if path == "/health" {
			return
		}

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		if metrics != nil {
			metrics.APILatency.RecordDuration(latency)
			if statusCode >= 500 {
				metrics.IncrementErrors()
			}
		}

		log.Printf("[API] %s | %s %s | %d | %v | %s",
			shortID(c.GetString("RequestID")), method, path, statusCode, latency, c.ClientIP())
	}
}
