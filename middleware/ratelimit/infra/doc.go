// Package infra contém implementações concretas (infraestrutura) para os
// contratos definidos no pacote domain.
//
// Engines distribuídos (estado no Redis, compartilhado entre instâncias):
//   - RedisFixedWindow: contador de janela fixa (script INCR + TTL atômico)
//   - RedisTokenBucket: bucket de tokens (script no relógio do servidor)
//   - RedisSlidingWindow: log ordenado de timestamps (MULTI/EXEC)
//   - RedisCostBudget: orçamento de pontos (script check-and-add)
//   - RedisLeasePool: leases de concorrência (set + TTL-teto)
//   - LockedFixedWindow: variante opt-in serializada por RedisLock
//
// Engines locais (estado no processo, para dev/teste/instância única):
//   - MemoryStore: token bucket por chave usando golang.org/x/time/rate
//   - ChanLeasePool: semáforo de channel por chave
//
// Também vivem aqui os stores de estatísticas (memória/Redis), o hook de
// métricas Prometheus e o RedisInspector do surface administrativo.
package infra
