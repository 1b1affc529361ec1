// Package domain define os tipos do núcleo de dispatch: Route, Target, Request,
// Response e a taxonomia de erros.
//
// Este pacote não faz I/O e não depende de net/http além de http.Header.
package domain
