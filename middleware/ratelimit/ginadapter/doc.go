// Package ginadapter adapta o ponto de decisão de admissão para aplicações
// gin. A lógica de política/engine é a mesma do middleware net/http; este
// pacote só traduz a decisão para o fluxo Abort/Next do gin.
package ginadapter
