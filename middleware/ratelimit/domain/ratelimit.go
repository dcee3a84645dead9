package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

// Key é a chave completa usada no store compartilhado, já com namespace
// de política (ex: "ratelimit:auth:10.0.0.1").
type Key string

// Algorithm identifica a estratégia de admissão de uma política.
type Algorithm string

const (
	FixedWindow Algorithm = "fixed_window"
	// FixedWindowLocked serializa o incremento via lock distribuído.
	// Use apenas quando o store não oferecer incremento atômico com TTL;
	// a forma canônica é FixedWindow.
	FixedWindowLocked Algorithm = "fixed_window_locked"
	TokenBucket       Algorithm = "token_bucket"
	SlidingWindow     Algorithm = "sliding_window"
	CostBudget        Algorithm = "cost_budget"
)

// Policy é a configuração imutável de uma política de admissão.
//
// Carregada uma vez na inicialização e idêntica em todas as instâncias do
// serviço — nunca mutada depois disso.
type Policy struct {
	Name      string
	Algorithm Algorithm

	// Limit e Window valem para FixedWindow, SlidingWindow e CostBudget
	// (em CostBudget, Limit é o orçamento máximo de pontos por janela).
	Limit  int64
	Window time.Duration

	// Capacity e RefillPerSecond valem para TokenBucket.
	Capacity        int64
	RefillPerSecond float64

	// MaxConcurrent vale para o limite de concorrência (leases).
	MaxConcurrent int
}

// Key deriva a chave do store para uma identidade sob esta política.
//
// É uma função pura de (política, identidade): mesma entrada, mesma chave,
// em qualquer instância do serviço.
func (p Policy) Key(identity string) Key {
	return Key("ratelimit:" + p.Name + ":" + identity)
}

// Decision é o resultado de uma checagem de admissão.
type Decision struct {
	Allowed bool

	// Limit e Remaining alimentam os headers informativos.
	Limit     int64
	Remaining int64

	// RetryAfter é o valor recomendado para Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration

	// ResetAt indica quando a janela/bucket volta a admitir (quando computável).
	ResetAt time.Time
}

// Engine decide se uma ação de custo `cost` pode acontecer agora para `key`.
//
// Toda implementação deve expressar a sequência ler/computar/gravar como UMA
// operação atômica do store (incremento atômico, MULTI/EXEC ou script),
// porque várias instâncias escrevem na mesma chave ao mesmo tempo.
// Erros retornados aqui significam "store indisponível / estado inválido";
// quem decide o fail-open é a camada de application, nunca o engine.
type Engine interface {
	Check(ctx context.Context, p Policy, key Key, cost int64) (Decision, error)
}
