package main

import (
	"encoding/json"
	"net/http"
)

// APIResponse sets the standard headers and writes JSON bodies
type APIResponse struct {
	w           http.ResponseWriter
	cacheStatus string
	provider    string
}

// Respond creates a response helper
func Respond(w http.ResponseWriter) *APIResponse {
	return &APIResponse{w: w}
}

// SetCacheStatus sets the X-Cache-Status header value
func (a *APIResponse) SetCacheStatus(status string) *APIResponse {
	a.cacheStatus = status
	return a
}

// SetProvider sets the X-Provider header value
func (a *APIResponse) SetProvider(provider string) *APIResponse {
	a.provider = provider
	return a
}

func (a *APIResponse) writeHeaders() {
	a.w.Header().Set("Content-Type", "application/json")
	if a.cacheStatus != "" {
		a.w.Header().Set("X-Cache-Status", a.cacheStatus)
	}
	if a.provider != "" {
		a.w.Header().Set("X-Provider", a.provider)
	}
}

// JSON writes data with 200 OK
func (a *APIResponse) JSON(data interface{}) error {
	a.writeHeaders()
	return json.NewEncoder(a.w).Encode(data)
}

// Error writes data with statusCode
func (a *APIResponse) Error(statusCode int, data interface{}) error {
	a.writeHeaders()
	a.w.WriteHeader(statusCode)
	return json.NewEncoder(a.w).Encode(data)
}

// errorBody is the {"error": ...} shape every failing handler returns
func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
