package main

import (
	"cmp"
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"dispatch-gateway/dispatch"
)

type routeView struct {
	Host    string   `json:"host"`
	Path    string   `json:"path"`
	Targets []string `json:"targets"`
}

type resolverView struct {
	Kind     string `json:"kind"`
	Priority int    `json:"priority"`
	Match    string `json:"match,omitempty"`
	Method   string `json:"method,omitempty"`
	Default  bool   `json:"default,omitempty"`
	Handlers int    `json:"handlers"`
}

// opsRouter expõe /metrics, /healthz e /routes numa porta separada do tráfego.
func opsRouter(r *dispatch.Resolver, reg prometheus.Gatherer, rdb redis.UniversalClient) http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)

	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	mux.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if rdb != nil {
			ctx, cancel := context.WithTimeout(req.Context(), time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.Get("/routes", func(w http.ResponseWriter, _ *http.Request) {
		var out struct {
			Routes    []routeView    `json:"routes"`
			Resolvers []resolverView `json:"resolvers"`
		}
		for host, routes := range r.Table().Routes() {
			for _, rt := range routes {
				v := routeView{Host: host, Path: rt.Path}
				for _, t := range rt.URLs {
					v.Targets = append(v.Targets, t.String())
				}
				out.Routes = append(out.Routes, v)
			}
		}
		slices.SortFunc(out.Routes, func(a, b routeView) int {
			return cmp.Or(cmp.Compare(a.Host, b.Host), cmp.Compare(a.Path, b.Path))
		})
		for _, e := range r.Registry().Entries() {
			v := resolverView{
				Kind:     e.Kind().String(),
				Priority: e.Priority(),
				Default:  e.IsDefault(),
				Handlers: e.Pipeline().Len(),
			}
			if m := e.Matcher(); m != nil {
				v.Match = m.Match.String()
				v.Method = m.Method
			}
			out.Resolvers = append(out.Resolvers, v)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})

	return mux
}
