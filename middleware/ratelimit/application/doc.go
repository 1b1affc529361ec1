// Package application contém os casos de uso (regras de aplicação) para rate limit
// e limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: SlidingWindow.IncrementRequest(ctx, key, limits) devolve as contagens por
// limite; SlidingWindow.Decide transforma as contagens numa Decision
// (allow/deny + retry-after). Service faz o mesmo para o limite local (token bucket).
package application
