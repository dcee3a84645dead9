package ratelimit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// countingEngine admite as primeiras `limit` chamadas e rejeita o resto.
type countingEngine struct {
	limit int64
	seen  int64
}

func (e *countingEngine) Check(_ context.Context, p domain.Policy, _ domain.Key, _ int64) (domain.Decision, error) {
	e.seen++
	remaining := e.limit - e.seen
	if remaining < 0 {
		remaining = 0
	}
	return domain.Decision{
		Allowed:    e.seen <= e.limit,
		Limit:      e.limit,
		Remaining:  remaining,
		RetryAfter: 30 * time.Second,
		ResetAt:    time.Now().Add(30 * time.Second),
	}, nil
}

type recordingStats struct {
	events []domain.StatsEvent
}

func (s *recordingStats) Record(_ context.Context, ev domain.StatsEvent) error {
	s.events = append(s.events, ev)
	return nil
}

func newTestRegistry(t *testing.T) *domain.Registry {
	t.Helper()
	reg, err := domain.NewRegistry(domain.Policy{
		Name:      "api",
		Algorithm: domain.FixedWindow,
		Limit:     2,
		Window:    time.Minute,
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func okHandler(hits *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hits++
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_AllowsThenRejectsSameKey(t *testing.T) {
	eng := &countingEngine{limit: 2}
	hits := 0
	handler := Middleware(Options{
		Registry: newTestRegistry(t),
		Engines:  map[domain.Algorithm]domain.Engine{domain.FixedWindow: eng},
		Policy:   "api",
	})(okHandler(&hits))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/things", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/things", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on 3rd request, got %d", rec.Code)
	}
	if hits != 2 {
		t.Fatalf("rejected request must not reach the handler: hits=%d", hits)
	}
}

func TestMiddleware_RejectContract(t *testing.T) {
	eng := &countingEngine{limit: 0}
	hits := 0
	handler := Middleware(Options{
		Registry: newTestRegistry(t),
		Engines:  map[domain.Algorithm]domain.Engine{domain.FixedWindow: eng},
		Policy:   "api",
	})(okHandler(&hits))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/things", nil))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("expected Retry-After=30, got %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected JSON content type, got %q", got)
	}

	var body struct {
		Success    bool   `json:"success"`
		Error      string `json:"error"`
		RetryAfter int64  `json:"retryAfter"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Success {
		t.Fatalf("expected success=false")
	}
	if body.Error == "" {
		t.Fatalf("expected an error message")
	}
	if body.RetryAfter != 30 {
		t.Fatalf("expected retryAfter=30, got %d", body.RetryAfter)
	}
}

func TestMiddleware_SetsInformativeHeadersOnAllow(t *testing.T) {
	eng := &countingEngine{limit: 2}
	hits := 0
	handler := Middleware(Options{
		Registry: newTestRegistry(t),
		Engines:  map[domain.Algorithm]domain.Engine{domain.FixedWindow: eng},
		Policy:   "api",
	})(okHandler(&hits))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/things", nil))

	if got := rec.Header().Get("X-RateLimit-Limit"); got != "2" {
		t.Fatalf("expected X-RateLimit-Limit=2, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "1" {
		t.Fatalf("expected X-RateLimit-Remaining=1, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Reset"); got == "" {
		t.Fatalf("expected X-RateLimit-Reset to be set")
	}
}

func TestMiddleware_ExemptOriginSkipsPolicy(t *testing.T) {
	eng := &countingEngine{limit: 0} // rejeitaria qualquer um
	hits := 0
	handler := Middleware(Options{
		Registry: newTestRegistry(t),
		Engines:  map[domain.Algorithm]domain.Engine{domain.FixedWindow: eng},
		Policy:   "api",
		Exempt:   []string{"10.9.9.9"},
	})(okHandler(&hits))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/things", nil)
	req.RemoteAddr = "10.9.9.9:5555"
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected exempt origin to pass, got %d", rec.Code)
	}
	if eng.seen != 0 {
		t.Fatalf("exempt request must not consume budget: engine saw %d calls", eng.seen)
	}
}

func TestMiddleware_ExemptionIgnoresPrincipal(t *testing.T) {
	eng := &countingEngine{limit: 0}
	hits := 0
	handler := Middleware(Options{
		Registry: newTestRegistry(t),
		Engines:  map[domain.Algorithm]domain.Engine{domain.FixedWindow: eng},
		Policy:   "api",
		Exempt:   []string{"svc-batch"},
	})(okHandler(&hits))

	// principal coincide com a entrada da lista, mas a isenção compara só o
	// endereço de origem
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/things", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req = req.WithContext(WithPrincipal(req.Context(), "svc-batch"))
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("principal must not grant exemption, got %d", rec.Code)
	}
}

func TestMiddleware_RecordsStats(t *testing.T) {
	eng := &countingEngine{limit: 1}
	stats := &recordingStats{}
	hits := 0
	handler := Middleware(Options{
		Registry: newTestRegistry(t),
		Engines:  map[domain.Algorithm]domain.Engine{domain.FixedWindow: eng},
		Policy:   "api",
		Stats:    stats,
	})(okHandler(&hits))

	req := httptest.NewRequest(http.MethodPost, "/v1/things", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	handler.ServeHTTP(httptest.NewRecorder(), req)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if len(stats.events) != 2 {
		t.Fatalf("expected 2 recorded events, got %d", len(stats.events))
	}
	first, second := stats.events[0], stats.events[1]
	if !first.Allowed || second.Allowed {
		t.Fatalf("expected allow then deny, got %v %v", first.Allowed, second.Allowed)
	}
	if first.Policy != "api" || first.Method != http.MethodPost || first.Path != "/v1/things" {
		t.Fatalf("unexpected event fields: %+v", first)
	}
	if first.Key != domain.Key("ratelimit:api:10.0.0.1") {
		t.Fatalf("expected namespaced key in event, got %q", first.Key)
	}
}

func TestMiddleware_FailsOpenOnEngineError(t *testing.T) {
	reg := newTestRegistry(t)
	hits := 0
	handler := Middleware(Options{
		Registry: reg,
		Engines: map[domain.Algorithm]domain.Engine{
			domain.FixedWindow: brokenEngine{},
		},
		Policy: "api",
		Logger: quietTestLogger(),
	})(okHandler(&hits))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/things", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected fail-open 200 when the store is down, got %d", rec.Code)
	}
	if hits != 1 {
		t.Fatalf("expected the handler to run, hits=%d", hits)
	}
}

func quietTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type brokenEngine struct{}

func (brokenEngine) Check(context.Context, domain.Policy, domain.Key, int64) (domain.Decision, error) {
	return domain.Decision{}, domain.ErrStoreUnavailable
}
