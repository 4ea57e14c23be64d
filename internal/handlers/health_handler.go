package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

var startedAt = time.Now()

type HealthResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// HealthCheck reports supervisor liveness. The body deliberately contains
// "healthy" so the supervisor itself satisfies the same readiness contract it
// polls on the API.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{
		Status:    "healthy",
		Uptime:    time.Since(startedAt).Round(time.Second).String(),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// ReadyCheck mirrors HealthCheck for readiness probes.
func ReadyCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{
		Status:    "ready",
		Uptime:    time.Since(startedAt).Round(time.Second).String(),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}
