package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"stackvisor/internal/models"
	"stackvisor/internal/service"
)

type ProcessHandler struct {
	pm     *service.ProcessManager
	logger *zap.Logger
}

func NewProcessHandler(pm *service.ProcessManager, logger *zap.Logger) *ProcessHandler {
	return &ProcessHandler{pm: pm, logger: logger}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type SuccessResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (h *ProcessHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("encoding response", zap.Error(err))
	}
}

func (h *ProcessHandler) writeError(w http.ResponseWriter, status int, err error, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   err.Error(),
		Message: message,
	})
}

func roleFrom(r *http.Request) (models.Role, bool) {
	role := models.Role(mux.Vars(r)["role"])
	return role, role.Valid()
}

func (h *ProcessHandler) GetProcesses(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.pm.Processes())
}

func (h *ProcessHandler) GetProcess(w http.ResponseWriter, r *http.Request) {
	role, ok := roleFrom(r)
	if !ok {
		h.writeError(w, http.StatusNotFound, service.ErrProcessNotFound, "unknown role")
		return
	}

	proc, ok := h.pm.Process(role)
	if !ok {
		h.writeError(w, http.StatusNotFound, service.ErrProcessNotFound, "unknown role")
		return
	}
	h.writeJSON(w, http.StatusOK, proc)
}

func (h *ProcessHandler) StartProcess(w http.ResponseWriter, r *http.Request) {
	role, ok := roleFrom(r)
	if !ok {
		h.writeError(w, http.StatusNotFound, service.ErrProcessNotFound, "unknown role")
		return
	}

	if err := h.pm.Start(role); err != nil {
		switch {
		case errors.Is(err, service.ErrProcessNotFound):
			h.writeError(w, http.StatusNotFound, err, "process not found: "+string(role))
		case errors.Is(err, service.ErrProcessAlreadyRunning):
			h.writeError(w, http.StatusConflict, err, "process already running: "+string(role))
		default:
			h.writeError(w, http.StatusInternalServerError, err, "failed to start process")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, SuccessResponse{Status: "started", Message: string(role) + " started"})
}

func (h *ProcessHandler) StopProcess(w http.ResponseWriter, r *http.Request) {
	role, ok := roleFrom(r)
	if !ok {
		h.writeError(w, http.StatusNotFound, service.ErrProcessNotFound, "unknown role")
		return
	}

	if err := h.pm.Stop(role); err != nil {
		switch {
		case errors.Is(err, service.ErrProcessNotFound):
			h.writeError(w, http.StatusNotFound, err, "process not found: "+string(role))
		case errors.Is(err, service.ErrProcessNotRunning):
			h.writeError(w, http.StatusConflict, err, "process not running: "+string(role))
		default:
			h.writeError(w, http.StatusInternalServerError, err, "failed to stop process")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, SuccessResponse{Status: "stopped", Message: string(role) + " stopped"})
}

func (h *ProcessHandler) RestartProcess(w http.ResponseWriter, r *http.Request) {
	role, ok := roleFrom(r)
	if !ok {
		h.writeError(w, http.StatusNotFound, service.ErrProcessNotFound, "unknown role")
		return
	}

	if err := h.pm.Restart(role); err != nil {
		if errors.Is(err, service.ErrProcessNotFound) {
			h.writeError(w, http.StatusNotFound, err, "process not found: "+string(role))
			return
		}
		h.writeError(w, http.StatusInternalServerError, err, "failed to restart process")
		return
	}

	h.writeJSON(w, http.StatusOK, SuccessResponse{Status: "restarted", Message: string(role) + " restarted"})
}

func limitFrom(r *http.Request) int {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	return limit
}

func (h *ProcessHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.pm.Logs().Last(limitFrom(r)))
}

func (h *ProcessHandler) GetProcessLogs(w http.ResponseWriter, r *http.Request) {
	role, ok := roleFrom(r)
	if !ok {
		h.writeError(w, http.StatusNotFound, service.ErrProcessNotFound, "unknown role")
		return
	}
	h.writeJSON(w, http.StatusOK, h.pm.Logs().LastByRole(role, limitFrom(r)))
}
