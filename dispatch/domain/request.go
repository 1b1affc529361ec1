package domain

import (
	"net"
	"net/http"
	"strings"
)

// Request é a visão mínima de uma requisição de entrada usada no dispatch.
type Request struct {
	Host       string
	Path       string
	Method     string
	Header     http.Header
	RemoteAddr string
}

// FromHTTP monta um Request a partir de um *http.Request.
func FromHTTP(r *http.Request) *Request {
	return &Request{
		Host:       r.Host,
		Path:       r.URL.Path,
		Method:     r.Method,
		Header:     r.Header,
		RemoteAddr: r.RemoteAddr,
	}
}

// Response é o destino da resposta. End marca a resposta como finalizada;
// depois disso nenhum middleware é executado.
type Response interface {
	End()
	Finished() bool
}

// HostOnly tira a porta e os colchetes de IPv6 de um Host.
func HostOnly(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.Trim(host, "[]")
}
