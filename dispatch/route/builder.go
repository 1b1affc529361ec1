// Package route normaliza as várias formas de especificar uma rota em um *domain.Route.
//
// Formas aceitas:
//
//   - *domain.Route: devolvida sem alteração
//   - string: uma URL, path "/"
//   - *Spec: {Path, URL, URLs}
//
// Qualquer outra coisa devolve nil. O resultado é memorizado pela identidade da
// entrada (ponteiro para *Spec, valor para string), então a mesma entrada devolve
// sempre a mesma instância de *domain.Route enquanto estiver no cache.
package route

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"dispatch-gateway/dispatch/domain"
)

// DefaultCacheSize é o número de entradas distintas memorizadas por Builder.
const DefaultCacheSize = 5000

// Spec é a forma "objeto" de uma rota: um prefixo e uma ou mais URLs.
type Spec struct {
	Path string
	URL  string
	URLs []string
}

type Builder struct {
	cache *lru.Cache[any, *domain.Route]
}

// NewBuilder cria um Builder com cache LRU de tamanho size (DefaultCacheSize se <= 0).
func NewBuilder(size int) *Builder {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[any, *domain.Route](size)
	if err != nil {
		// só acontece com size <= 0
		panic(err)
	}
	return &Builder{cache: c}
}

var defaultBuilder = NewBuilder(DefaultCacheSize)

// Build usa o Builder padrão do pacote.
func Build(input any) *domain.Route { return defaultBuilder.Build(input) }

// Build converte input em uma rota canônica, ou nil se a forma não é suportada.
func (b *Builder) Build(input any) *domain.Route {
	var key any
	switch v := input.(type) {
	case *domain.Route:
		return v
	case string:
		key = v
	case *Spec:
		if v == nil {
			return nil
		}
		key = v
	default:
		return nil
	}

	if r, ok := b.cache.Get(key); ok {
		return r
	}

	var r *domain.Route
	switch v := input.(type) {
	case string:
		r = buildRoute("/", []string{v})
	case *Spec:
		urls := v.URLs
		if v.URL != "" {
			urls = append([]string{v.URL}, urls...)
		}
		r = buildRoute(v.Path, urls)
	}
	if r == nil {
		return nil
	}
	// duas goroutines podem montar a mesma rota; fica a primeira que entrou no cache
	if prev, ok, _ := b.cache.PeekOrAdd(key, r); ok {
		return prev
	}
	return r
}

func buildRoute(path string, urls []string) *domain.Route {
	if len(urls) == 0 {
		return nil
	}
	targets := make([]*domain.Target, 0, len(urls))
	for _, u := range urls {
		t, err := ParseTarget(u)
		if err != nil {
			return nil
		}
		targets = append(targets, t)
	}
	return &domain.Route{
		Path:       normalizePath(path),
		URLs:       targets,
		IsResolved: true,
	}
}

var schemeRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// ParseTarget parseia uma URL de upstream. Sem scheme, assume http://.
func ParseTarget(raw string) (*domain.Target, error) {
	raw = strings.TrimSpace(raw)
	if !schemeRe.MatchString(raw) {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Hostname() == "" {
		return nil, &url.Error{Op: "parse", URL: raw, Err: errMissingHost}
	}
	return &domain.Target{
		Scheme:   u.Scheme,
		Hostname: u.Hostname(),
		Port:     u.Port(),
		Path:     u.Path,
	}, nil
}

var errMissingHost = errors.New("missing host")

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}
