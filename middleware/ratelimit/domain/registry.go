package domain

import (
	"fmt"
	"sort"
)

// Registry é a tabela imutável de políticas, construída uma vez na
// inicialização e passada explicitamente para quem decide.
//
// Não há registro global mutável de propósito: instâncias diferentes do
// serviço precisam enxergar exatamente a mesma tabela.
type Registry struct {
	policies map[string]Policy
}

// NewRegistry valida e congela o conjunto de políticas.
func NewRegistry(policies ...Policy) (*Registry, error) {
	m := make(map[string]Policy, len(policies))
	for _, p := range policies {
		if p.Name == "" {
			return nil, fmt.Errorf("policy without name")
		}
		if _, dup := m[p.Name]; dup {
			return nil, fmt.Errorf("duplicate policy %q", p.Name)
		}
		switch p.Algorithm {
		case FixedWindow, FixedWindowLocked, SlidingWindow, CostBudget:
			if p.Limit <= 0 || p.Window <= 0 {
				return nil, fmt.Errorf("policy %q: limit and window must be > 0", p.Name)
			}
		case TokenBucket:
			if p.Capacity <= 0 || p.RefillPerSecond <= 0 {
				return nil, fmt.Errorf("policy %q: capacity and refillPerSecond must be > 0", p.Name)
			}
		default:
			return nil, fmt.Errorf("policy %q: unknown algorithm %q", p.Name, p.Algorithm)
		}
		m[p.Name] = p
	}
	return &Registry{policies: m}, nil
}

// Get retorna a política pelo nome.
func (r *Registry) Get(name string) (Policy, bool) {
	if r == nil {
		return Policy{}, false
	}
	p, ok := r.policies[name]
	return p, ok
}

// Names lista os nomes de política em ordem estável (útil para logs/admin).
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.policies))
	for name := range r.policies {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
