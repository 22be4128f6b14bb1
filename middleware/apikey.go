package middleware

import (
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"lyrics-sync-go/logcolors"
)

// RequireAPIKey guards mutating routes with the X-API-Key header.
//
// With required false every request passes. With required true and no key configured the
// request passes with a warning, so a missing API_KEY never locks the operator out. Public
// paths pass unconditionally; a trailing * makes a prefix match.
func RequireAPIKey(apiKey string, required bool, publicPaths []string) func(http.Handler) http.Handler {
	exact := make(map[string]bool)
	var prefixes []string
	for _, p := range publicPaths {
		if strings.HasSuffix(p, "*") {
			prefixes = append(prefixes, strings.TrimSuffix(p, "*"))
		} else {
			exact[p] = true
		}
	}

	isPublic := func(path string) bool {
		if exact[path] {
			return true
		}
		for _, prefix := range prefixes {
			if strings.HasPrefix(path, prefix) {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !required || isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if apiKey == "" {
				log.Warnf("%s API key required but not configured, allowing %s", logcolors.LogAPIKey, r.URL.Path)
				next.ServeHTTP(w, r)
				return
			}

			switch provided := r.Header.Get("X-API-Key"); provided {
			case apiKey:
				next.ServeHTTP(w, r)
			case "":
				log.Warnf("%s Missing API key from %s for %s", logcolors.LogAPIKey, r.RemoteAddr, r.URL.Path)
				unauthorized(w, "API key required", "Provide a valid API key via X-API-Key header")
			default:
				log.Warnf("%s Invalid API key from %s for %s", logcolors.LogAPIKey, r.RemoteAddr, r.URL.Path)
				unauthorized(w, "Invalid API key", "The provided API key is not valid")
			}
		})
	}
}

func unauthorized(w http.ResponseWriter, errMsg, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + errMsg + `","message":"` + message + `"}`))
}
