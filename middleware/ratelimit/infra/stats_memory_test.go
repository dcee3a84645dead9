package infra

import (
	"context"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

func TestMemoryStatsStore_AggregatesByPolicyAndRoute(t *testing.T) {
	s := NewMemoryStatsStore()
	ctx := context.Background()

	ev := domain.StatsEvent{
		Policy: "auth", Key: "ratelimit:auth:1.2.3.4",
		Method: "POST", Path: "/login",
		At: time.Now(),
	}

	ev.Allowed = true
	_ = s.Record(ctx, ev)
	_ = s.Record(ctx, ev)
	ev.Allowed = false
	_ = s.Record(ctx, ev)

	total := s.Total()
	if total.Allowed != 2 || total.Denied != 1 {
		t.Fatalf("expected total 2/1, got %+v", total)
	}
	if got := s.ByPolicy()["auth"]; got.Allowed != 2 || got.Denied != 1 {
		t.Fatalf("expected policy auth 2/1, got %+v", got)
	}
	if got := s.ByRoute()["POST /login"]; got.Allowed != 2 || got.Denied != 1 {
		t.Fatalf("expected route POST /login 2/1, got %+v", got)
	}
}

func TestMemoryStatsStore_TracksKeysOnlyWhenEnabled(t *testing.T) {
	ctx := context.Background()
	ev := domain.StatsEvent{Policy: "auth", Key: "ratelimit:auth:k", Allowed: true, Method: "GET", Path: "/"}

	off := NewMemoryStatsStore()
	_ = off.Record(ctx, ev)
	if len(off.ByKey()) != 0 {
		t.Fatalf("expected no per-key series by default")
	}

	on := NewMemoryStatsStore(WithTrackKeys(true))
	_ = on.Record(ctx, ev)
	if got := on.ByKey()["ratelimit:auth:k"]; got.Allowed != 1 {
		t.Fatalf("expected tracked key counter, got %+v", got)
	}
}
