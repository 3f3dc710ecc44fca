package middleware

import (
	"net/http"
	"strings"
)

const (
	corsMethods = "GET, POST, PUT, DELETE, OPTIONS"
	// The browser client sends the Supabase headers on every call.
	corsHeaders = "Authorization, X-Client-Info, Apikey, Content-Type, X-Trace-ID"
)

// CORSMiddleware answers preflights and tags responses for the web client.
// An entry of "*" admits every origin, and an entry starting with "." admits
// that domain's subdomains.
type CORSMiddleware struct {
	exact    map[string]bool
	suffixes []string
	allowAll bool
}

func NewCORSMiddleware(allowedOrigins []string) *CORSMiddleware {
	m := &CORSMiddleware{exact: make(map[string]bool)}
	for _, origin := range allowedOrigins {
		switch {
		case origin == "*":
			m.allowAll = true
		case strings.HasPrefix(origin, "."):
			m.suffixes = append(m.suffixes, origin)
		case origin != "":
			m.exact[origin] = true
		}
	}
	return m
}

func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		h := w.Header()
		h.Add("Vary", "Origin")

		if m.allows(origin) {
			if origin == "" {
				origin = "*"
			}
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", corsMethods)
			h.Set("Access-Control-Allow-Headers", corsHeaders)
			h.Set("Access-Control-Expose-Headers", traceHeader)
			h.Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *CORSMiddleware) allows(origin string) bool {
	if m.allowAll || m.exact[origin] {
		return true
	}
	for _, suffix := range m.suffixes {
		if strings.HasSuffix(origin, suffix) {
			return true
		}
	}
	return false
}
