// Package domain define contratos e tipos de domínio para admissão de
// requests: políticas, decisões, engines de algoritmo, leases de concorrência,
// introspecção e a taxonomia de erros.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura.
package domain
