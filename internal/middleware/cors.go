// Package middleware holds HTTP middleware shared by the relay front doors.
package middleware

import (
	"net/http"
	"strings"
)

// OriginPolicy 记录允许跨域访问的来源，"*" 匹配任意来源。
type OriginPolicy struct {
	wildcard bool
	explicit map[string]struct{}
}

// NewOriginPolicy 解析 CORS_ALLOWED_ORIGINS 形式的来源列表
func NewOriginPolicy(allowedOrigins []string) OriginPolicy {
	p := OriginPolicy{explicit: make(map[string]struct{}, len(allowedOrigins))}
	for _, o := range allowedOrigins {
		o = strings.TrimSpace(o)
		switch o {
		case "":
		case "*":
			p.wildcard = true
		default:
			p.explicit[o] = struct{}{}
		}
	}
	return p
}

// Allows reports whether origin may call the API. Named origins also get
// credentials.
func (p OriginPolicy) Allows(origin string) (allowed, named bool) {
	if origin == "" {
		return false, false
	}
	_, named = p.explicit[origin]
	return named || p.wildcard, named
}

// CheckOrigin 用于 websocket 握手：没有 Origin 头的非浏览器客户端（Unity）直接放行，
// 浏览器来源按与 CORS 相同的规则判断
func (p OriginPolicy) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	allowed, _ := p.Allows(origin)
	return allowed
}

// CORS 允许游戏前端（Unity WebGL、浏览器调试页）跨域访问客户端接口。
// allowedOrigins 中的 "*" 匹配任意来源，但不会附带凭据。
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := NewOriginPolicy(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowed, named := policy.Allows(origin); allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
				h.Add("Vary", "Origin")
				if named {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
