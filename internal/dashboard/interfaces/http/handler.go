package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"sitewatch/internal/dashboard/application"
)

// Handler serves the dashboard projections.
type Handler struct {
	powerFlow *application.PowerFlowService
	energyMix *application.EnergyMixService
}

// NewHandler constructs a handler.
func NewHandler(powerFlow *application.PowerFlowService, energyMix *application.EnergyMixService) (*Handler, error) {
	if powerFlow == nil || energyMix == nil {
		return nil, errors.New("dashboard handler: nil service")
	}
	return &Handler{powerFlow: powerFlow, energyMix: energyMix}, nil
}

// ServeHTTP handles /api/v1/dashboard/power-flow and /energy-mix.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case "/api/v1/dashboard/power-flow":
		h.handlePowerFlow(w, r)
	case "/api/v1/dashboard/energy-mix":
		h.handleEnergyMix(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handlePowerFlow(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.powerFlow.Snapshot(r.Context(), parseScope(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, snapshot)
}

func (h *Handler) handleEnergyMix(w http.ResponseWriter, r *http.Request) {
	hours := application.DefaultMixHours
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid hours", http.StatusBadRequest)
			return
		}
		hours = parsed
	}
	series, err := h.energyMix.Series(r.Context(), parseScope(r), hours)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, series)
}

func parseScope(r *http.Request) application.Scope {
	q := r.URL.Query()
	return application.Scope{
		Region:  q.Get("region"),
		Cluster: q.Get("cluster"),
		Site:    q.Get("site"),
	}
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, application.ErrScopeEmpty) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
