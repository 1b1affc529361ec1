package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"dispatch-gateway/dispatch"
	"dispatch-gateway/dispatch/domain"
)

var (
	errNoRoute  = errors.New("no route")
	errNoTarget = errors.New("route has no target")
)

type upstreamKey struct{}

type upstream struct {
	route  *domain.Route
	target *domain.Target
	id     string
}

// gateway resolve cada requisição e encaminha para o próximo upstream da rota.
type gateway struct {
	resolver *dispatch.Resolver
	proxy    *httputil.ReverseProxy
	log      log.FieldLogger
}

func newGateway(r *dispatch.Resolver, logger log.FieldLogger) *gateway {
	g := &gateway{resolver: r, log: logger}
	g.proxy = &httputil.ReverseProxy{
		Rewrite: rewrite,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			g.log.WithError(err).WithField("path", r.URL.Path).Warn("proxy error")
			http.Error(w, "bad gateway", http.StatusBadGateway)
		},
	}
	return g
}

func (g *gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get("X-Request-Id")
	if id == "" {
		id = uuid.NewString()
	}
	logger := g.log.WithFields(log.Fields{
		"request_id": id,
		"host":       r.Host,
		"path":       r.URL.Path,
	})

	res := dispatch.NewHTTPResponse(w)
	req := domain.FromHTTP(r)

	rt, err := g.resolver.Resolve(r.Context(), req, res)
	if err != nil {
		logger.WithError(err).Error("dispatch failed")
		dispatch.WriteError(res, err)
		return
	}
	if res.Finished() {
		return
	}
	// rota só de middleware: o upstream vem da tabela estática
	if rt != nil && !rt.IsResolved {
		rt = g.resolver.Table().Lookup(req.Host, req.Path)
	}
	if rt == nil {
		logger.Debug("no route")
		dispatch.WriteError(res, domain.WithStatus(errNoRoute, http.StatusNotFound))
		return
	}
	target := rt.NextTarget()
	if target == nil {
		dispatch.WriteError(res, domain.WithStatus(errNoTarget, http.StatusBadGateway))
		return
	}

	logger.WithFields(log.Fields{"route": rt.Path, "target": target.String()}).Debug("forwarding")
	ctx := context.WithValue(r.Context(), upstreamKey{}, upstream{route: rt, target: target, id: id})
	g.proxy.ServeHTTP(w, r.WithContext(ctx))
}

// rewrite troca o prefixo da rota pelo path do upstream.
func rewrite(pr *httputil.ProxyRequest) {
	up := pr.In.Context().Value(upstreamKey{}).(upstream)

	pr.SetURL(up.target.URL())
	pr.Out.URL.Path = upstreamPath(up.route.Path, up.target.Path, pr.In.URL.Path)
	pr.Out.URL.RawPath = ""
	pr.SetXForwarded()
	pr.Out.Header.Set("X-Request-Id", up.id)
}

func upstreamPath(routePath, targetPath, reqPath string) string {
	rest := reqPath
	if routePath != "/" {
		rest = strings.TrimPrefix(reqPath, strings.TrimSuffix(routePath, "/"))
	}
	base := strings.TrimSuffix(targetPath, "/")
	if rest == "" || rest[0] != '/' {
		rest = "/" + rest
	}
	return base + rest
}
