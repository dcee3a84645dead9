package infra

import (
	"context"
	"strings"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisInspector implementa domain.Inspector varrendo o namespace de uma
// política com SCAN (nunca KEYS — isso bloquearia o store que toda instância
// usa para admitir requests).
type RedisInspector struct {
	rdb    *redis.Client
	prefix string
}

type InspectorOption func(*RedisInspector)

func WithInspectorPrefix(prefix string) InspectorOption {
	return func(i *RedisInspector) { i.prefix = strings.Trim(prefix, ":") }
}

func NewRedisInspector(rdb *redis.Client, opts ...InspectorOption) *RedisInspector {
	i := &RedisInspector{rdb: rdb, prefix: "ratelimit"}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Snapshot conta as chaves da política e amostra até sampleLimit delas
// com TTL e uma descrição curta do valor.
func (i *RedisInspector) Snapshot(ctx context.Context, policy string, sampleLimit int) (domain.PolicySnapshot, error) {
	snap := domain.PolicySnapshot{Policy: policy, Sample: []domain.KeySample{}}

	pattern := i.prefix + ":" + policy + ":*"
	iter := i.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		snap.Keys++
		if len(snap.Sample) >= sampleLimit {
			continue
		}
		ttl, err := i.rdb.PTTL(ctx, k).Result()
		if err != nil {
			return snap, storeErr(err)
		}
		snap.Sample = append(snap.Sample, domain.KeySample{
			Key:   k,
			TTL:   ttl,
			Value: i.describe(ctx, k),
		})
	}
	if err := iter.Err(); err != nil {
		return snap, storeErr(err)
	}
	return snap, nil
}

// describe resume o valor conforme o tipo que cada engine usa.
func (i *RedisInspector) describe(ctx context.Context, key string) string {
	typ, err := i.rdb.Type(ctx, key).Result()
	if err != nil {
		return ""
	}
	switch typ {
	case "string":
		v, err := i.rdb.Get(ctx, key).Result()
		if err != nil {
			return ""
		}
		return "count=" + v
	case "zset":
		n, err := i.rdb.ZCard(ctx, key).Result()
		if err != nil {
			return ""
		}
		return "entries=" + formatInt64(n)
	case "set":
		n, err := i.rdb.SCard(ctx, key).Result()
		if err != nil {
			return ""
		}
		return "leases=" + formatInt64(n)
	case "hash":
		v, err := i.rdb.HGet(ctx, key, "tokens").Result()
		if err != nil {
			return ""
		}
		return "tokens=" + v
	default:
		return typ
	}
}

// Reset remove o registro de uma chave (desbloqueio manual pelo operador).
func (i *RedisInspector) Reset(ctx context.Context, key string) error {
	if err := i.rdb.Del(ctx, key).Err(); err != nil {
		return storeErr(err)
	}
	return nil
}
