// Package pipeline implementa a cadeia de middlewares de um resolver.
//
// Cada handler é registrado com seu tipo explícito (Normal ou OnError). No modo
// normal os ErrorHandlers são pulados; quando um erro aparece a cadeia passa
// para o modo de erro e avança até o próximo ErrorHandler. Um ErrorHandler que
// sinaliza next() sem erro consome o erro e a cadeia volta ao modo normal.
//
// Antes de cada handler a resposta é verificada: se já foi finalizada (End), a
// cadeia para.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"dispatch-gateway/dispatch/domain"
)

type Kind int

const (
	KindNormal Kind = iota
	KindError
)

func (k Kind) String() string {
	if k == KindError {
		return "error"
	}
	return "normal"
}

// Next avança a cadeia. Com err != nil, entra (ou continua) no modo de erro.
type Next func(err error)

type HandlerFunc func(ctx context.Context, req *domain.Request, res domain.Response, next Next) error

type ErrorHandlerFunc func(ctx context.Context, err error, req *domain.Request, res domain.Response, next Next) error

// Handler é um passo da cadeia com o tipo definido no registro.
type Handler struct {
	kind    Kind
	normal  HandlerFunc
	onError ErrorHandlerFunc
}

func (h Handler) Kind() Kind { return h.kind }

func Normal(fn HandlerFunc) Handler { return Handler{kind: KindNormal, normal: fn} }

func OnError(fn ErrorHandlerFunc) Handler { return Handler{kind: KindError, onError: fn} }

// Pipeline é a lista ordenada de handlers de um resolver.
//
// Use devolve o próprio ponteiro para permitir encadear registros.
type Pipeline struct {
	mu       sync.RWMutex
	handlers []Handler
}

func New() *Pipeline { return &Pipeline{} }

func (p *Pipeline) Use(h Handler) *Pipeline {
	if h.normal == nil && h.onError == nil {
		return p
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	// copy-on-write: Run em andamento continua com a lista antiga
	next := make([]Handler, len(p.handlers), len(p.handlers)+1)
	copy(next, p.handlers)
	p.handlers = append(next, h)
	return p
}

func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.handlers)
}

func (p *Pipeline) snapshot() []Handler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.handlers
}

// Run executa a cadeia uma vez. Devolve o erro que nenhum ErrorHandler consumiu.
func (p *Pipeline) Run(ctx context.Context, req *domain.Request, res domain.Response) error {
	var pending error
	for _, h := range p.snapshot() {
		if res != nil && res.Finished() {
			return nil
		}
		switch {
		case pending == nil && h.kind == KindError:
			continue
		case pending != nil && h.kind == KindNormal:
			continue
		}
		pending = invoke(ctx, h, pending, req, res)
	}
	if res != nil && res.Finished() {
		return nil
	}
	return pending
}

// invoke roda um handler e devolve o erro pendente depois dele.
func invoke(ctx context.Context, h Handler, pending error, req *domain.Request, res domain.Response) (out error) {
	var (
		once   sync.Once
		signal error
	)
	next := func(err error) {
		once.Do(func() { signal = err })
	}

	defer func() {
		if r := recover(); r != nil {
			out = panicError(r)
		}
	}()

	var ret error
	if h.kind == KindError {
		ret = h.onError(ctx, pending, req, res, next)
	} else {
		ret = h.normal(ctx, req, res, next)
	}
	// se o handler não chamou next, o retorno vale como next(ret);
	// chamadas a next depois daqui não têm efeito
	next(ret)
	return signal
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("middleware panic: %w", err)
	}
	return fmt.Errorf("middleware panic: %v", r)
}
