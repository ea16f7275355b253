package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/climate-outlook-service/internal/traffic"
)

// TestCorrelationIDMiddleware_GeneratesID verifies a request without a
// correlation ID gets one generated, stored in context and echoed back.
func TestCorrelationIDMiddleware_GeneratesID(t *testing.T) {
	var gotCtxID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v, ok := r.Context().Value("correlation_id").(string); ok {
			gotCtxID = v
		}
	})
	handler := CorrelationIDMiddleware(zap.NewNop())(inner)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/outlook", nil))

	headerID := rec.Header().Get("X-Correlation-ID")
	if headerID == "" {
		t.Fatal("X-Correlation-ID header not set")
	}
	if gotCtxID != headerID {
		t.Errorf("context id = %q, header id = %q, want equal", gotCtxID, headerID)
	}
}

// TestCorrelationIDMiddleware_PropagatesID verifies a caller-supplied
// correlation ID is kept rather than replaced.
func TestCorrelationIDMiddleware_PropagatesID(t *testing.T) {
	handler := CorrelationIDMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest("GET", "/outlook", nil)
	req.Header.Set("X-Correlation-ID", "client-supplied-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Correlation-ID"); got != "client-supplied-id" {
		t.Errorf("X-Correlation-ID = %q, want client-supplied-id", got)
	}
}

// TestTimeoutMiddleware verifies the deadline reaches downstream handlers.
func TestTimeoutMiddleware(t *testing.T) {
	var hadDeadline bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hadDeadline = r.Context().Deadline()
	})
	handler := TimeoutMiddleware(50 * time.Millisecond)(inner)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/outlook", nil))
	if !hadDeadline {
		t.Error("downstream context has no deadline")
	}
}

// TestRateLimitMiddleware_Denies verifies exhausting the bucket produces a
// 429 with the standard error envelope and records the denial.
func TestRateLimitMiddleware_Denies(t *testing.T) {
	traffic.Reset()
	defer traffic.Reset()

	limiter := rate.NewLimiter(rate.Limit(1), 1)
	var hits int
	handler := RateLimitMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest("GET", "/outlook", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest("GET", "/outlook", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", second.Code)
	}
	if hits != 1 {
		t.Errorf("handler hits = %d, want 1", hits)
	}
	if got := traffic.DenialCount(time.Minute); got != 1 {
		t.Errorf("denials = %d, want 1", got)
	}
}

// TestRateLimitMiddleware_NilLimiterPassesThrough verifies a nil limiter
// disables rate limiting entirely.
func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	var hits int
	handler := RateLimitMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	for i := 0; i < 20; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/outlook", nil))
	}
	if hits != 20 {
		t.Errorf("handler hits = %d, want 20", hits)
	}
}

// TestStatusCodeString verifies the class bucketing used for metric labels.
func TestStatusCodeString(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{404, "4xx"},
		{502, "5xx"},
	}
	for _, tt := range tests {
		if got := statusCodeString(tt.code); got != tt.want {
			t.Errorf("statusCodeString(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
