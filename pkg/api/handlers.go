package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"pulserelay/pkg/httpx"
	"pulserelay/pkg/logger"
	"pulserelay/pkg/mailbox"
	"pulserelay/pkg/models"
	"pulserelay/pkg/prompts"
	"pulserelay/pkg/wire"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	_ = httpx.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.Ready != nil && !s.Ready() {
		httpx.JSONError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	_ = httpx.JSONWrite(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitBody struct {
	Kind    string            `json:"request_type"`
	Prompt  string            `json:"prompt"`
	Context map[string]string `json:"context,omitempty"`
}

type submitReply struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	ExpiresAt string `json:"expires_at"`
}

// handleSubmit appends a request document and returns 202 with its id.
// The caller follows up on /v1/requests/{id}/response to collect the
// correlated answer.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body submitBody
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	kind := models.Kind(body.Kind)
	if !kind.Valid() {
		httpx.JSONError(w, http.StatusBadRequest, "unknown request_type")
		return
	}
	cfg := s.Mailbox.Config()
	req := models.NewRequest(kind, body.Prompt, cfg.DeviceID, cfg.ExpirationWindow)
	req.Context = body.Context
	id, err := s.Mailbox.Submit(r.Context(), req)
	if err != nil {
		logger.Error("submit_failed", "error", err)
		httpx.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = httpx.JSONWrite(w, http.StatusAccepted, submitReply{
		ID:        id,
		Status:    string(req.Status),
		ExpiresAt: wire.FormatTime(req.ExpiresAt),
	})
}

type healingBody struct {
	AnomalyID string `json:"anomaly_id"`
	Context   string `json:"context,omitempty"`
}

// handleSubmitHealing builds the healing prompt for one anomaly and
// submits it as a suggest_healing request.
func (s *Server) handleSubmitHealing(w http.ResponseWriter, r *http.Request) {
	var body healingBody
	if err := httpx.DecodeJSON(w, r, &body); err != nil || body.AnomalyID == "" {
		httpx.JSONError(w, http.StatusBadRequest, "anomaly_id required")
		return
	}
	cfg := s.Mailbox.Config()
	anoms, err := s.Telemetry.Anomalies(r.Context(), cfg.DeviceID, true)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var target *models.Request
	for _, a := range anoms {
		if a.ID != body.AnomalyID {
			continue
		}
		prompt := prompts.BuildHealingActions(a, body.Context)
		target = models.NewRequest(models.KindSuggestHealing, prompt, cfg.DeviceID, cfg.ExpirationWindow)
		target.Context = map[string]string{"anomaly_id": a.ID}
		break
	}
	if target == nil {
		httpx.JSONError(w, http.StatusNotFound, "anomaly not found")
		return
	}
	id, err := s.Mailbox.Submit(r.Context(), target)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = httpx.JSONWrite(w, http.StatusAccepted, submitReply{
		ID:        id,
		Status:    string(target.Status),
		ExpiresAt: wire.FormatTime(target.ExpiresAt),
	})
}

// handleSubmitCorrelation summarizes the recent telemetry window into a
// correlation prompt and submits it.
func (s *Server) handleSubmitCorrelation(w http.ResponseWriter, r *http.Request) {
	cfg := s.Mailbox.Config()
	metrics, err := s.Telemetry.NetworkMetrics(r.Context(), cfg.FetchLimit)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sensors, err := s.Telemetry.SensorData(r.Context(), cfg.DeviceID, "", cfg.FetchLimit)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	prompt := prompts.BuildCorrelationAnalysis(metrics, sensors)
	req := models.NewRequest(models.KindAnalyzeCorrelations, prompt, cfg.DeviceID, cfg.ExpirationWindow)
	id, err := s.Mailbox.Submit(r.Context(), req)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = httpx.JSONWrite(w, http.StatusAccepted, submitReply{
		ID:        id,
		Status:    string(req.Status),
		ExpiresAt: wire.FormatTime(req.ExpiresAt),
	})
}

// handleAwait blocks until the correlated response lands or the timeout
// elapses. timeout=0 polls without blocking.
func (s *Server) handleAwait(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	timeout := s.Mailbox.Config().RequestTimeout
	if v := r.URL.Query().Get("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			httpx.JSONError(w, http.StatusBadRequest, "invalid timeout")
			return
		}
		timeout = d
	}

	if timeout == 0 {
		resp, err := s.Mailbox.FetchResponse(r.Context(), id)
		if err != nil {
			httpx.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if resp == nil {
			httpx.JSONError(w, http.StatusNotFound, "no response yet")
			return
		}
		_ = httpx.JSONWrite(w, http.StatusOK, resp)
		return
	}

	resp, err := s.Mailbox.Await(r.Context(), id, timeout)
	switch {
	case err == nil:
		_ = httpx.JSONWrite(w, http.StatusOK, resp)
	case errors.Is(err, mailbox.ErrTimeout):
		httpx.JSONError(w, http.StatusGatewayTimeout, "response timed out")
	case errors.Is(err, mailbox.ErrCancelled):
		httpx.JSONError(w, http.StatusConflict, "request cancelled")
	default:
		httpx.JSONError(w, http.StatusInternalServerError, err.Error())
	}
}

type statusBody struct {
	Status string `json:"status"`
}

// handleUpdateStatus is the worker-side transition endpoint.
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body statusBody
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	st := models.Status(body.Status)
	if !st.Valid() {
		httpx.JSONError(w, http.StatusBadRequest, "unknown status")
		return
	}
	if err := s.Mailbox.UpdateStatus(r.Context(), id, st); err != nil {
		httpx.JSONError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.Mailbox.Cancel(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.Mailbox.Pending(r.Context())
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = httpx.JSONWrite(w, http.StatusOK, map[string]any{"requests": reqs})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	n, err := s.Sweeper.RunOnce(r.Context())
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = httpx.JSONWrite(w, http.StatusOK, map[string]int{"swept": n})
}

// queryLimit parses a limit query param, 0 when absent or invalid.
func queryLimit(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 0
}
