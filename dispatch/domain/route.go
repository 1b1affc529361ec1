package domain

import (
	"net"
	"net/url"
	"sync/atomic"
)

// Target é um upstream já parseado (scheme, hostname, porta e path).
type Target struct {
	Scheme   string
	Hostname string
	Port     string
	Path     string
}

// Host devolve hostname:porta, ou só o hostname quando não há porta.
func (t *Target) Host() string {
	if t.Port == "" {
		return t.Hostname
	}
	return net.JoinHostPort(t.Hostname, t.Port)
}

func (t *Target) URL() *url.URL {
	return &url.URL{Scheme: t.Scheme, Host: t.Host(), Path: t.Path}
}

func (t *Target) String() string { return t.URL().String() }

// Route mapeia um prefixo de path para um ou mais upstreams.
//
// Invariante: se IsResolved é true, URLs não é vazio. Depois de IsResolved
// ser marcado a rota não é mais alterada; o cursor de round-robin fica fora
// dos campos públicos.
type Route struct {
	Path       string
	URLs       []*Target
	IsResolved bool

	rr atomic.Uint64
}

// NextTarget devolve o próximo upstream em round-robin, ou nil se a rota não tem URLs.
func (r *Route) NextTarget() *Target {
	if r == nil || len(r.URLs) == 0 {
		return nil
	}
	n := r.rr.Add(1) - 1
	return r.URLs[n%uint64(len(r.URLs))]
}
