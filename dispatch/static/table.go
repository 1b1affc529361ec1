// Package static mantém a tabela de rotas registradas por host e prefixo de path.
// É a fonte do resolver padrão do dispatch.
package static

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"dispatch-gateway/dispatch/domain"
	"dispatch-gateway/dispatch/registry"
	"dispatch-gateway/dispatch/route"
)

var ErrNoTarget = errors.New("at least one target is required")

// Table guarda, por host, as rotas ordenadas do prefixo mais longo para o mais curto.
//
// Rotas publicadas não são alteradas: registrar um target novo num prefixo
// existente troca a rota inteira.
type Table struct {
	mu    sync.RWMutex
	hosts map[string][]*domain.Route
}

func NewTable() *Table {
	return &Table{hosts: make(map[string][]*domain.Route)}
}

// Register associa src ("host" ou "host/prefixo") a um ou mais targets.
func (t *Table) Register(src string, targets ...string) error {
	if len(targets) == 0 {
		return ErrNoTarget
	}
	host, path, err := parseSource(src)
	if err != nil {
		return err
	}
	parsed := make([]*domain.Target, 0, len(targets))
	for _, raw := range targets {
		tg, err := route.ParseTarget(raw)
		if err != nil {
			return fmt.Errorf("invalid target %q: %w", raw, err)
		}
		parsed = append(parsed, tg)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	routes := slices.Clone(t.hosts[host])
	idx := slices.IndexFunc(routes, func(r *domain.Route) bool { return r.Path == path })
	if idx < 0 {
		routes = append(routes, &domain.Route{Path: path, URLs: parsed, IsResolved: true})
	} else {
		urls := slices.Clone(routes[idx].URLs)
		for _, tg := range parsed {
			if !containsTarget(urls, tg) {
				urls = append(urls, tg)
			}
		}
		routes[idx] = &domain.Route{Path: path, URLs: urls, IsResolved: true}
	}
	slices.SortStableFunc(routes, func(a, b *domain.Route) int {
		return len(b.Path) - len(a.Path)
	})
	t.hosts[host] = routes
	return nil
}

// Unregister remove os targets informados de src; sem targets, remove a rota inteira.
// Uma rota que fica sem targets é removida.
func (t *Table) Unregister(src string, targets ...string) {
	host, path, err := parseSource(src)
	if err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	routes := slices.Clone(t.hosts[host])
	idx := slices.IndexFunc(routes, func(r *domain.Route) bool { return r.Path == path })
	if idx < 0 {
		return
	}

	var urls []*domain.Target
	if len(targets) > 0 {
		urls = slices.Clone(routes[idx].URLs)
		for _, raw := range targets {
			tg, err := route.ParseTarget(raw)
			if err != nil {
				continue
			}
			urls = slices.DeleteFunc(urls, func(u *domain.Target) bool { return sameTarget(u, tg) })
		}
	}

	if len(urls) == 0 {
		routes = slices.Delete(routes, idx, idx+1)
	} else {
		routes[idx] = &domain.Route{Path: path, URLs: urls, IsResolved: true}
	}
	if len(routes) == 0 {
		delete(t.hosts, host)
		return
	}
	t.hosts[host] = routes
}

// Lookup devolve a rota de maior prefixo que casa com path, ou nil.
func (t *Table) Lookup(host, path string) *domain.Route {
	host = normalizeHost(host)
	if path == "" {
		path = "/"
	}

	t.mu.RLock()
	routes := t.hosts[host]
	t.mu.RUnlock()

	for _, r := range routes {
		if strings.HasPrefix(path, r.Path) {
			return r
		}
	}
	return nil
}

// Routes devolve uma cópia da tabela (host -> rotas).
func (t *Table) Routes() map[string][]*domain.Route {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string][]*domain.Route, len(t.hosts))
	for h, rs := range t.hosts {
		out[h] = slices.Clone(rs)
	}
	return out
}

// Resolver devolve o callback usado como resolver padrão (prioridade 0).
func (t *Table) Resolver() *registry.Callback {
	return registry.Func(func(_ context.Context, host, path string, _ *domain.Request) (any, error) {
		if r := t.Lookup(host, path); r != nil {
			return r, nil
		}
		return nil, nil
	})
}

func parseSource(src string) (host, path string, err error) {
	tg, err := route.ParseTarget(src)
	if err != nil {
		return "", "", fmt.Errorf("invalid source %q: %w", src, err)
	}
	path = tg.Path
	if path == "" {
		path = "/"
	}
	return strings.ToLower(tg.Hostname), path, nil
}

func normalizeHost(host string) string {
	return strings.ToLower(domain.HostOnly(host))
}

func sameTarget(a, b *domain.Target) bool {
	return a.Scheme == b.Scheme && a.Hostname == b.Hostname && a.Port == b.Port && a.Path == b.Path
}

func containsTarget(list []*domain.Target, t *domain.Target) bool {
	return slices.ContainsFunc(list, func(u *domain.Target) bool { return sameTarget(u, t) })
}
