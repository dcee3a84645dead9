package ratelimit

import (
	"net/http"
	"strings"
)

// DefaultCosts classifica o custo de uma request por método e formato do
// path: operações em massa custam mais que uma leitura simples. A tabela é
// consumida pelas políticas de orçamento de pontos (cost_budget).
func DefaultCosts() CostFunc {
	return func(r *http.Request) int64 {
		path := strings.ToLower(r.URL.Path)
		switch {
		case strings.Contains(path, "/bulk"):
			return 10
		case strings.Contains(path, "/export"):
			return 8
		case strings.Contains(path, "/upload"):
			return 5
		case strings.Contains(path, "/search"):
			return 3
		}

		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return 1
		default:
			// POST/PUT/PATCH/DELETE mexem em estado
			return 2
		}
	}
}
