package ratelimit

import (
	"net"
	"strings"

	ddomain "dispatch-gateway/dispatch/domain"
)

// KeyFunc extrai a identidade limitada de uma requisição.
type KeyFunc func(req *ddomain.Request) string

// DefaultKeyFunc usa, nesta ordem: o header keyHeader, o primeiro IP de
// X-Forwarded-For (se trustXFF) e o host de RemoteAddr.
func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(req *ddomain.Request) string {
		if keyHeader != "" && req.Header != nil {
			if v := strings.TrimSpace(req.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF && req.Header != nil {
			// primeiro IP do X-Forwarded-For (cliente original)
			if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		addr := strings.TrimSpace(req.RemoteAddr)
		if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
			return host
		}
		if addr != "" {
			return addr
		}
		return "unknown"
	}
}
