package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"pulserelay/pkg/httpx"
	"pulserelay/pkg/store"
	"pulserelay/pkg/telemetry"
)

// Telemetry read endpoints. Device id defaults to the mailbox's own
// device when the query param is absent.

func (s *Server) deviceID(r *http.Request) string {
	if v := r.URL.Query().Get("device_id"); v != "" {
		return v
	}
	return s.Mailbox.Config().DeviceID
}

func (s *Server) handleNetworkMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.Telemetry.NetworkMetrics(r.Context(), queryLimit(r))
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = httpx.JSONWrite(w, http.StatusOK, map[string]any{"metrics": metrics})
}

func (s *Server) handleSensorData(w http.ResponseWriter, r *http.Request) {
	kind := telemetry.SensorKind(r.URL.Query().Get("sensor_type"))
	data, err := s.Telemetry.SensorData(r.Context(), s.deviceID(r), kind, queryLimit(r))
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = httpx.JSONWrite(w, http.StatusOK, map[string]any{"sensors": data})
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	includeResolved := r.URL.Query().Get("include_resolved") == "true"
	anoms, err := s.Telemetry.Anomalies(r.Context(), s.deviceID(r), includeResolved)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = httpx.JSONWrite(w, http.StatusOK, map[string]any{"anomalies": anoms})
}

type resolveBody struct {
	Resolved bool `json:"resolved"`
}

func (s *Server) handleResolveAnomaly(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	body := resolveBody{Resolved: true}
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(w, r, &body); err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}
	if err := s.Telemetry.ResolveAnomaly(r.Context(), id, body.Resolved); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.JSONError(w, http.StatusNotFound, "anomaly not found")
			return
		}
		httpx.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAgentActions(w http.ResponseWriter, r *http.Request) {
	actions, err := s.Telemetry.AgentActions(r.Context(), queryLimit(r))
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = httpx.JSONWrite(w, http.StatusOK, map[string]any{"actions": actions})
}

func (s *Server) handleSaveAgentAction(w http.ResponseWriter, r *http.Request) {
	var a telemetry.AgentAction
	if err := httpx.DecodeJSON(w, r, &a); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	id, err := s.Telemetry.SaveAgentAction(r.Context(), a)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.ID = id
	_ = httpx.JSONWrite(w, http.StatusCreated, a)
}

func (s *Server) handleAgentState(w http.ResponseWriter, r *http.Request) {
	st, err := s.Telemetry.AgentState(r.Context())
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if st == nil {
		httpx.JSONError(w, http.StatusNotFound, "agent state not published")
		return
	}
	_ = httpx.JSONWrite(w, http.StatusOK, st)
}

func (s *Server) handleSaveAgentState(w http.ResponseWriter, r *http.Request) {
	var st telemetry.AgentState
	if err := httpx.DecodeJSON(w, r, &st); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if st.Status == "" {
		httpx.JSONError(w, http.StatusBadRequest, "status is required")
		return
	}
	if err := s.Telemetry.SaveAgentState(r.Context(), st); err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
