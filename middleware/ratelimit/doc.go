// Package ratelimit liga o rate limit e o limite de concorrência ao gateway.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (janela deslizante, token bucket, acquire/timeout)
//   - infra: implementações concretas (redis, memória, semáforo, estatísticas)
//   - ratelimit (este pacote): passo de pipeline do dispatch, middleware HTTP de
//     concorrência e extração de chave
//
// Fluxo de Handler dentro do pipeline de um resolver:
//
//  1. Extrai a chave do cliente (header/XFF/RemoteAddr)
//  2. Consulta o token bucket local e depois a janela deslizante compartilhada
//  3. Se bloqueado, responde 429 com Retry-After e finaliza a resposta
//  4. Se permitido, a cadeia segue para o próximo handler
//
// Com a store fora do ar a requisição passa (fail-open), a menos que
// Options.FailClosed esteja ligado.
package ratelimit
