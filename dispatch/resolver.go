package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dispatch-gateway/dispatch/domain"
	"dispatch-gateway/dispatch/registry"
	"dispatch-gateway/dispatch/route"
	"dispatch-gateway/dispatch/static"
)

const tracerName = "dispatch-gateway/dispatch"

type Option func(*Resolver)

// WithLogger troca o logger (padrão: logrus.StandardLogger()).
func WithLogger(l log.FieldLogger) Option {
	return func(r *Resolver) { r.log = l }
}

// WithMetrics liga as métricas de resolução.
func WithMetrics(m *Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithBuilder troca o RouteBuilder (padrão: o builder do pacote route).
func WithBuilder(b *route.Builder) Option {
	return func(r *Resolver) { r.builder = b }
}

// WithTracerProvider troca o provider de tracing (padrão: otel global).
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Resolver) { r.tracer = tp.Tracer(tracerName) }
}

// Resolver decide qual rota atende uma requisição.
//
// O resolver padrão (tabela estática) é criado junto e não pode ser removido.
type Resolver struct {
	table    *static.Table
	registry *registry.Registry
	builder  *route.Builder
	log      log.FieldLogger
	metrics  *Metrics
	tracer   trace.Tracer
}

func New(opts ...Option) *Resolver {
	r := &Resolver{
		table: static.NewTable(),
		log:   log.StandardLogger(),
	}
	r.registry = registry.New(r.table.Resolver())
	for _, opt := range opts {
		opt(r)
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(tracerName)
	}
	return r
}

func (r *Resolver) Registry() *registry.Registry { return r.registry }

func (r *Resolver) Table() *static.Table { return r.table }

// AddResolver registra spec (ver registry.Registry.Add) e devolve o handle para Use.
func (r *Resolver) AddResolver(spec any) (*registry.Handle, error) {
	return r.registry.Add(spec)
}

func (r *Resolver) RemoveResolver(spec any) { r.registry.Remove(spec) }

// Register adiciona uma rota estática, servida pelo resolver padrão.
func (r *Resolver) Register(src string, targets ...string) error {
	return r.table.Register(src, targets...)
}

func (r *Resolver) Unregister(src string, targets ...string) {
	r.table.Unregister(src, targets...)
}

// Resolve escolhe a rota de req e roda o pipeline do resolver escolhido.
//
// Retornos:
//   - (rota, nil): rota resolvida e pipeline concluído (res pode ter sido finalizado)
//   - (nil, nil): nenhum resolver devolveu rota
//   - (nil, *domain.ResolutionError): um resolver falhou
//   - (nil, *domain.MiddlewareError): erro não tratado no pipeline
func (r *Resolver) Resolve(ctx context.Context, req *domain.Request, res domain.Response) (rt *domain.Route, err error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "dispatch.resolve", trace.WithAttributes(
		attribute.String("http.host", req.Host),
		attribute.String("url.path", req.Path),
		attribute.String("http.method", req.Method),
	))
	defer func() {
		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case rt != nil:
			span.SetAttributes(attribute.String("dispatch.route", rt.Path))
		}
		span.End()
		r.metrics.observe(outcomeOf(rt, err), start)
	}()

	for _, e := range r.registry.Entries() {
		if !e.Accepts(req) {
			continue
		}

		out, err := invokeResolver(ctx, e, req)
		if err != nil {
			return nil, &domain.ResolutionError{Err: err}
		}

		candidate := r.build(out)
		if candidate == nil {
			continue
		}
		if !pathMatches(candidate.Path, req.Path) {
			r.log.WithFields(log.Fields{
				"host":  req.Host,
				"path":  req.Path,
				"route": candidate.Path,
			}).Debug("route prefix does not match request path, trying next resolver")
			continue
		}

		if err := e.Pipeline().Run(ctx, req, res); err != nil {
			return nil, &domain.MiddlewareError{Err: err}
		}
		return candidate, nil
	}
	return nil, nil
}

func (r *Resolver) build(out any) *domain.Route {
	if out == nil {
		return nil
	}
	if r.builder != nil {
		return r.builder.Build(out)
	}
	return route.Build(out)
}

func invokeResolver(ctx context.Context, e *registry.Entry, req *domain.Request) (out any, err error) {
	defer func() {
		if p := recover(); p != nil {
			if perr, ok := p.(error); ok {
				err = fmt.Errorf("resolver panic: %w", perr)
				return
			}
			err = fmt.Errorf("resolver panic: %v", p)
		}
	}()
	return e.Resolve(ctx, req)
}

func pathMatches(prefix, path string) bool {
	if prefix == "" || prefix == "/" {
		return true
	}
	return strings.HasPrefix(path, prefix)
}
