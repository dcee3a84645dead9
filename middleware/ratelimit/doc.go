// Package ratelimit fornece adapters HTTP (net/http) para admissão
// distribuída de requests: rate limit por política e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (decisão allow/deny com fail-open, acquire/release de lease)
//   - infra: implementações concretas (engines Redis e em memória, stats, métricas, inspector)
//   - ratelimit (este pacote): middlewares HTTP + wiring/extração de chave + tradução
//     para status/headers + surface administrativo
//   - ginadapter: o mesmo ponto de decisão como gin.HandlerFunc
//
// Fluxo no gateway:
//
//  1. Se a origem está na lista de isenção, pula tudo
//  2. Extrai a identidade do caller (principal autenticado / header / IP-XFF)
//  3. Chama a camada application para obter a decisão da política
//  4. Se bloqueado, responde 429 com JSON {"success":false,...} e Retry-After
//  5. Se permitido, grava headers X-RateLimit-* e chama o próximo handler
//
// O estado dos contadores vive no store compartilhado (Redis), então várias
// instâncias do serviço atrás de um load balancer aplicam o mesmo orçamento.
// Se o store cair, a admissão faz fail-open: a request passa e o evento é
// logado como modo degradado — este subsistema nunca é causa de outage.
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o
// comportamento, como REDIS_ADDR, RATE_POLICY_<NOME>, RATE_EXEMPT_IPS,
// CONCURRENCY_MAX e STORE_TIMEOUT.
package ratelimit
