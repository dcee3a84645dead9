package domain

import (
	"context"
	"time"
)

// KeySample é uma amostra de uma chave rastreada pelo store, para diagnóstico.
type KeySample struct {
	Key   string        `json:"key"`
	TTL   time.Duration `json:"ttl"`
	Value string        `json:"value"`
}

// PolicySnapshot resume o estado de uma política no store.
type PolicySnapshot struct {
	Policy string      `json:"policy"`
	Keys   int         `json:"keys"`
	Sample []KeySample `json:"sample"`
}

// Inspector expõe introspecção somente-leitura do store e o reset manual de
// uma chave (desbloqueio iniciado por operador).
type Inspector interface {
	Snapshot(ctx context.Context, policy string, sampleLimit int) (PolicySnapshot, error)
	Reset(ctx context.Context, key string) error
}
