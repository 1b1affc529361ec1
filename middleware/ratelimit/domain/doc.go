// Package domain define contratos e tipos de domínio para rate limit e concorrência.
//
// Este pacote não depende de net/http nem de implementações concretas.
// O contrato principal é WindowStore: a janela deslizante por chave que vive
// numa store compartilhada (redis) e é consultada por várias instâncias do gateway.
package domain
