// Package api wires the HTTP surface: request submission and correlation
// endpoints, telemetry reads, and a small admin surface.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pulserelay/internal/sweeper"
	"pulserelay/pkg/auth"
	"pulserelay/pkg/mailbox"
	"pulserelay/pkg/telemetry"
)

// Server holds the handler dependencies.
type Server struct {
	Mailbox   *mailbox.Mailbox
	Sweeper   *sweeper.Sweeper
	Telemetry *telemetry.Service
	Ready     func() bool
}

// Router builds the full route table behind the auth gateway.
func (s *Server) Router(sec auth.SecConfig) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/requests", s.handleSubmit).Methods(http.MethodPost)
	v1.HandleFunc("/requests/pending", s.handlePending).Methods(http.MethodGet)
	v1.HandleFunc("/requests/healing", s.handleSubmitHealing).Methods(http.MethodPost)
	v1.HandleFunc("/requests/correlation", s.handleSubmitCorrelation).Methods(http.MethodPost)
	v1.HandleFunc("/requests/{id}/response", s.handleAwait).Methods(http.MethodGet)
	v1.HandleFunc("/requests/{id}/status", s.handleUpdateStatus).Methods(http.MethodPost)
	v1.HandleFunc("/requests/{id}", s.handleCancel).Methods(http.MethodDelete)

	v1.HandleFunc("/telemetry/metrics", s.handleNetworkMetrics).Methods(http.MethodGet)
	v1.HandleFunc("/telemetry/sensors", s.handleSensorData).Methods(http.MethodGet)
	v1.HandleFunc("/telemetry/anomalies", s.handleAnomalies).Methods(http.MethodGet)
	v1.HandleFunc("/telemetry/anomalies/{id}/resolve", s.handleResolveAnomaly).Methods(http.MethodPost)
	v1.HandleFunc("/telemetry/actions", s.handleAgentActions).Methods(http.MethodGet)
	v1.HandleFunc("/telemetry/actions", s.handleSaveAgentAction).Methods(http.MethodPost)
	v1.HandleFunc("/telemetry/agent/state", s.handleAgentState).Methods(http.MethodGet)
	v1.HandleFunc("/telemetry/agent/state", s.handleSaveAgentState).Methods(http.MethodPut)

	v1.HandleFunc("/admin/sweep", s.handleSweep).Methods(http.MethodPost)

	return auth.AuthenticateRequestMiddleware(sec)(r)
}
