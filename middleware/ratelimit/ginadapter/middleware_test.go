package ginadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/domain"

	"github.com/gin-gonic/gin"
)

type countingEngine struct {
	limit int64
	seen  int64
}

func (e *countingEngine) Check(_ context.Context, _ domain.Policy, _ domain.Key, _ int64) (domain.Decision, error) {
	e.seen++
	remaining := e.limit - e.seen
	if remaining < 0 {
		remaining = 0
	}
	return domain.Decision{
		Allowed:    e.seen <= e.limit,
		Limit:      e.limit,
		Remaining:  remaining,
		RetryAfter: 10 * time.Second,
	}, nil
}

func newRouter(t *testing.T, eng domain.Engine) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg, err := domain.NewRegistry(domain.Policy{
		Name:      "api",
		Algorithm: domain.FixedWindow,
		Limit:     1,
		Window:    time.Minute,
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	r := gin.New()
	r.Use(Middleware(ratelimit.Options{
		Registry: reg,
		Engines:  map[domain.Algorithm]domain.Engine{domain.FixedWindow: eng},
		Policy:   "api",
	}))
	r.GET("/things", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func TestGinMiddleware_AllowsThenRejects(t *testing.T) {
	r := newRouter(t, &countingEngine{limit: 1})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "1" {
		t.Fatalf("expected X-RateLimit-Limit=1, got %q", got)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "10" {
		t.Fatalf("expected Retry-After=10, got %q", got)
	}

	var body struct {
		Success    bool   `json:"success"`
		Error      string `json:"error"`
		RetryAfter int64  `json:"retryAfter"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success || body.RetryAfter != 10 || body.Error == "" {
		t.Fatalf("unexpected reject body: %+v", body)
	}
}

func TestGinMiddleware_AbortStopsHandlerChain(t *testing.T) {
	gin.SetMode(gin.TestMode)

	reg, err := domain.NewRegistry(domain.Policy{
		Name:      "api",
		Algorithm: domain.FixedWindow,
		Limit:     1,
		Window:    time.Minute,
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	hits := 0
	r := gin.New()
	r.Use(Middleware(ratelimit.Options{
		Registry: reg,
		Engines:  map[domain.Algorithm]domain.Engine{domain.FixedWindow: &countingEngine{limit: 0}},
		Policy:   "api",
	}))
	r.GET("/things", func(c *gin.Context) { hits++ })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/things", nil))
	if hits != 0 {
		t.Fatalf("rejected request must not reach the handler, hits=%d", hits)
	}
}
