package main

import (
	"net/http"

	"github.com/gorilla/mux"
)

// setupRoutes configures all HTTP routes of the status server
func setupRoutes(router *mux.Router, s *server, guard func(http.Handler) http.Handler) {
	// Playback and lyrics
	router.HandleFunc("/state", s.getState).Methods(http.MethodGet)
	router.HandleFunc("/lyrics", s.getLyrics).Methods(http.MethodGet)
	router.HandleFunc("/events/recent", s.getRecentEvents).Methods(http.MethodGet)

	// Cache
	router.HandleFunc("/cache/lookup", s.cacheLookup).Methods(http.MethodGet)
	router.HandleFunc("/cache/stats", s.cacheStats).Methods(http.MethodGet)
	router.Handle("/cache/cleanup", guard(http.HandlerFunc(s.cacheCleanup))).Methods(http.MethodPost)
	router.Handle("/cache/checkpoint", guard(http.HandlerFunc(s.cacheCheckpoint))).Methods(http.MethodPost)

	// Access token
	router.HandleFunc("/token", s.getTokenStatus).Methods(http.MethodGet)
	router.Handle("/token/invalidate", guard(http.HandlerFunc(s.invalidateToken))).Methods(http.MethodPost)

	// Circuit breakers
	router.HandleFunc("/circuit-breaker", s.getCircuitBreakerStatus).Methods(http.MethodGet)
	router.Handle("/circuit-breaker/reset", guard(http.HandlerFunc(s.resetCircuitBreaker))).Methods(http.MethodPost)

	// Health and stats
	router.HandleFunc("/health", s.getHealthStatus).Methods(http.MethodGet)
	router.HandleFunc("/stats", s.getStats).Methods(http.MethodGet)

	router.HandleFunc("/", helpHandler)
}
