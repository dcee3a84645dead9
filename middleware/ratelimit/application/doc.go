// Package application contém os casos de uso (regras de aplicação) para
// admissão de requests e limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Decide(ctx, policy, identity, cost) retorna uma Decision
// (allow/deny + retry-after), já aplicando o fail-open quando o store
// compartilhado está indisponível.
package application
