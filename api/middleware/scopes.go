package middleware

import (
	"net"
	"net/http"
	"strings"
)

type routeMatcher func(string) bool

type scopeRule struct {
	method  string
	matcher routeMatcher
	scope   string
}

// Coordination endpoints carry a client idempotency key; abuse-prone
// endpoints are throttled. Both middlewares resolve the same scope names so
// counters, replays and metrics line up.
var (
	idempotencyRules = []scopeRule{
		{method: http.MethodPost, matcher: matchSuffix("/reserve"), scope: "reserve"},
		{method: http.MethodPost, matcher: matchSuffix("/unreserve"), scope: "unreserve"},
		{method: http.MethodPost, matcher: matchSuffix("/contributions"), scope: "contribute"},
	}

	rateLimitRules = []scopeRule{
		{method: http.MethodPost, matcher: matchSuffix("/reserve"), scope: "reserve"},
		{method: http.MethodPost, matcher: matchSuffix("/unreserve"), scope: "unreserve"},
		{method: http.MethodPost, matcher: matchSuffix("/contributions"), scope: "contribute"},
		{method: http.MethodPost, matcher: matchSuffix("/images/prepare"), scope: "upload"},
		{method: http.MethodPost, matcher: matchPrefix("/api/v1/uploads/"), scope: "upload"},
		{method: http.MethodPost, matcher: matchPrefix("/api/v1/wishlists"), scope: "default"},
		{method: http.MethodPatch, matcher: matchPrefix("/api/v1/wishlists"), scope: "default"},
		{method: http.MethodDelete, matcher: matchPrefix("/api/v1/wishlists"), scope: "default"},
	}
)

func resolveScope(rules []scopeRule, method, path string) (string, bool) {
	for _, rule := range rules {
		if rule.method != method {
			continue
		}
		if rule.matcher(path) {
			return rule.scope, true
		}
	}
	return "", false
}

func matchPrefix(prefix string) routeMatcher {
	return func(path string) bool {
		return strings.HasPrefix(path, prefix)
	}
}

func matchSuffix(suffix string) routeMatcher {
	return func(path string) bool {
		return strings.HasSuffix(path, suffix)
	}
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
