package domain

import "context"

// LeasePool representa um orçamento de concorrência por chave: cada request
// em voo segura um lease, devolvido exatamente uma vez ao terminar.
//
// A semântica é: Acquire tenta obter um lease para `key` respeitando `max`
// requests simultâneos. Ao adquirir, retorna uma função de release que é
// idempotente — caminhos de erro e de sucesso podem ambos chamá-la sem
// liberar duas vezes.
//
// ok=false sem erro significa orçamento esgotado (rejeição de política);
// erro significa store indisponível (quem chama decide o fail-open).
type LeasePool interface {
	Acquire(ctx context.Context, key Key, max int) (release func(), ok bool, err error)
}
