// Package registry guarda os resolvers registrados, ordenados por prioridade.
//
// Regras:
//
//   - ordem decrescente de prioridade; empate mantém a ordem de registro
//   - identidade única: registrar de novo o mesmo *Callback/*Matcher não muda nada
//   - sempre existe exatamente uma entrada padrão, criada em New, que não pode ser removida
//
// Leitores (dispatch em andamento) usam Entries(), um snapshot imutável.
// Add/Remove publicam uma cópia nova da lista.
package registry

import (
	"cmp"
	"context"
	"regexp"
	"slices"
	"sync"
	"sync/atomic"

	"dispatch-gateway/dispatch/domain"
	"dispatch-gateway/dispatch/pipeline"
)

type Kind int

const (
	KindCallback Kind = iota
	KindDeclarative
)

func (k Kind) String() string {
	if k == KindDeclarative {
		return "declarative"
	}
	return "callback"
}

// ResolverFunc devolve uma especificação de rota (ver route.Build) ou nil para recusar.
type ResolverFunc func(ctx context.Context, host, path string, req *domain.Request) (any, error)

// Callback é um resolver programático. A identidade é o ponteiro.
type Callback struct {
	Fn       ResolverFunc
	Priority int
}

// Func cria um *Callback com prioridade 0.
func Func(fn ResolverFunc) *Callback { return &Callback{Fn: fn} }

// WithPriority ajusta a prioridade e devolve o próprio callback.
// Só tem efeito antes do registro.
func (c *Callback) WithPriority(p int) *Callback {
	c.Priority = p
	return c
}

// Matcher é um resolver declarativo: casa path (Match), host e método.
//
// Target é a rota devolvida quando casa (qualquer forma aceita por route.Build).
// Sem Target, devolve uma rota só de middleware (sem URLs, IsResolved=false).
type Matcher struct {
	Match    *regexp.Regexp
	Host     *regexp.Regexp
	Method   string
	Priority int
	Target   any
}

// Entry é um resolver registrado.
type Entry struct {
	identity  any
	kind      Kind
	priority  int
	isDefault bool

	callback *Callback
	matcher  *Matcher
	route    *domain.Route

	pipeline *pipeline.Pipeline
}

func (e *Entry) Kind() Kind { return e.kind }

// Priority é a prioridade capturada no registro.
func (e *Entry) Priority() int { return e.priority }

func (e *Entry) IsDefault() bool { return e.isDefault }

func (e *Entry) Pipeline() *pipeline.Pipeline { return e.pipeline }

func (e *Entry) Callback() *Callback { return e.callback }

func (e *Entry) Matcher() *Matcher { return e.matcher }

// Accepts verifica método, host e path de uma entrada declarativa.
// Entradas callback aceitam qualquer requisição.
func (e *Entry) Accepts(req *domain.Request) bool {
	m := e.matcher
	if m == nil {
		return true
	}
	if m.Method != "" && m.Method != req.Method {
		return false
	}
	if m.Host != nil && !m.Host.MatchString(domain.HostOnly(req.Host)) {
		return false
	}
	return m.Match.MatchString(req.Path)
}

// Resolve invoca o resolver. Para entradas declarativas, Accepts deve ter sido verificado antes.
func (e *Entry) Resolve(ctx context.Context, req *domain.Request) (any, error) {
	if e.kind == KindCallback {
		return e.callback.Fn(ctx, req.Host, req.Path, req)
	}
	if e.matcher.Target != nil {
		return e.matcher.Target, nil
	}
	return e.route, nil
}

// Handle permite registrar middleware nas entradas criadas por um Add.
type Handle struct {
	pipelines []*pipeline.Pipeline
}

// Use registra h em todas as entradas do handle e devolve o próprio handle.
func (h *Handle) Use(handler pipeline.Handler) *Handle {
	for _, p := range h.pipelines {
		p.Use(handler)
	}
	return h
}

func (h *Handle) Pipelines() []*pipeline.Pipeline { return h.pipelines }

type Registry struct {
	mu      sync.Mutex
	entries atomic.Pointer[[]*Entry]
	def     *Entry
}

// New cria um registro com o resolver padrão def (prioridade 0).
func New(def *Callback) *Registry {
	if def == nil || def.Fn == nil {
		panic("registry: default resolver is required")
	}
	r := &Registry{}
	r.def = &Entry{
		identity:  def,
		kind:      KindCallback,
		priority:  def.Priority,
		isDefault: true,
		callback:  def,
		pipeline:  pipeline.New(),
	}
	list := []*Entry{r.def}
	r.entries.Store(&list)
	return r
}

// Entries devolve o snapshot atual, já ordenado. Não altere o slice.
func (r *Registry) Entries() []*Entry { return *r.entries.Load() }

func (r *Registry) Len() int { return len(r.Entries()) }

// Default devolve o handle da entrada padrão.
func (r *Registry) Default() *Handle {
	return &Handle{pipelines: []*pipeline.Pipeline{r.def.pipeline}}
}

// Add registra spec: *Callback, *Matcher ou um slice deles ([]any, []*Callback, []*Matcher).
// Em caso de erro nada é registrado.
func (r *Registry) Add(spec any) (*Handle, error) {
	specs := expand(spec)
	fresh := make([]*Entry, 0, len(specs))
	for _, s := range specs {
		e, err := newEntry(s)
		if err != nil {
			return nil, err
		}
		fresh = append(fresh, e)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.Entries()
	next := slices.Clone(current)
	h := &Handle{}
	for _, e := range fresh {
		if existing := find(next, e.identity); existing != nil {
			h.pipelines = append(h.pipelines, existing.pipeline)
			continue
		}
		next = append(next, e)
		h.pipelines = append(h.pipelines, e.pipeline)
	}
	if len(next) != len(current) {
		sortEntries(next)
		r.entries.Store(&next)
	}
	return h, nil
}

// Remove tira spec (e o seu pipeline) do registro. A entrada padrão e
// specs desconhecidos são ignorados.
func (r *Registry) Remove(spec any) {
	specs := expand(spec)

	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.Entries()
	next := slices.DeleteFunc(slices.Clone(current), func(e *Entry) bool {
		if e.isDefault {
			return false
		}
		for _, s := range specs {
			if e.identity == s {
				return true
			}
		}
		return false
	})
	if len(next) != len(current) {
		r.entries.Store(&next)
	}
}

func find(list []*Entry, identity any) *Entry {
	for _, e := range list {
		if e.identity == identity {
			return e
		}
	}
	return nil
}

// sortEntries é estável: empates mantêm a ordem de registro.
func sortEntries(list []*Entry) {
	slices.SortStableFunc(list, func(a, b *Entry) int {
		return cmp.Compare(b.priority, a.priority)
	})
}

func expand(spec any) []any {
	switch v := spec.(type) {
	case []any:
		return v
	case []*Callback:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out
	case []*Matcher:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out
	default:
		return []any{spec}
	}
}

func newEntry(spec any) (*Entry, error) {
	switch v := spec.(type) {
	case *Callback:
		if v == nil || v.Fn == nil {
			return nil, &domain.ConfigurationError{Spec: spec, Reason: "callback without function"}
		}
		return &Entry{
			identity: v,
			kind:     KindCallback,
			priority: v.Priority,
			callback: v,
			pipeline: pipeline.New(),
		}, nil
	case *Matcher:
		if v == nil || v.Match == nil {
			return nil, &domain.ConfigurationError{Spec: spec, Reason: "matcher without match pattern"}
		}
		return &Entry{
			identity: v,
			kind:     KindDeclarative,
			priority: v.Priority,
			matcher:  v,
			route:    &domain.Route{Path: "/"},
			pipeline: pipeline.New(),
		}, nil
	default:
		return nil, &domain.ConfigurationError{Spec: spec, Reason: "unsupported resolver type"}
	}
}
