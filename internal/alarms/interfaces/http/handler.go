package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	alarmapp "sitewatch/internal/alarms/application"
	alarms "sitewatch/internal/alarms/domain"
)

// Handler provides alarm HTTP endpoints.
type Handler struct {
	service *alarmapp.Service
}

// NewHandler constructs a handler.
func NewHandler(service *alarmapp.Service) (*Handler, error) {
	if service == nil {
		return nil, errors.New("alarms handler: nil service")
	}
	return &Handler{service: service}, nil
}

// ServeHTTP handles /api/v1/alarms and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/alarms":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleList(w, r)
	case r.URL.Path == "/api/v1/alarms/clear":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleClear(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/alarms/"):
		h.handleAlarm(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	list, err := h.service.List(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []alarms.Alarm{}
	}
	writeJSON(w, list)
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	action := alarms.ClearAction(r.URL.Query().Get("action"))
	if action == "" {
		action = alarms.ClearArchive
	}
	if !action.Valid() {
		http.Error(w, "action must be archive or delete", http.StatusBadRequest)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cleared, err := h.service.Clear(r.Context(), action, filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]int64{"cleared_count": cleared})
}

func (h *Handler) handleAlarm(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/alarms/")
	if id == "" || strings.Contains(id, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch r.Method {
	case http.MethodGet:
		alarm, err := h.service.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, alarm)
	case http.MethodPut:
		var payload struct {
			Status string `json:"status"`
			By     string `json:"by"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		alarm, err := h.service.UpdateStatus(r.Context(), id, payload.Status, payload.By)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, alarm)
	case http.MethodDelete:
		if err := h.service.Delete(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func parseFilter(r *http.Request) (alarms.Filter, error) {
	filter := alarms.Filter{
		Status:   r.URL.Query().Get("status"),
		Severity: r.URL.Query().Get("severity"),
		Category: r.URL.Query().Get("category"),
	}
	if filter.Status != "" && !alarms.ValidStatus(filter.Status) {
		return alarms.Filter{}, errors.New("unknown status")
	}
	if raw := r.URL.Query().Get("site_id"); raw != "" {
		siteID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return alarms.Filter{}, errors.New("invalid site_id")
		}
		filter.SiteID = siteID
	}
	if raw := r.URL.Query().Get("include_archived"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			return alarms.Filter{}, errors.New("invalid include_archived")
		}
		filter.IncludeArchived = include
	}
	return filter, nil
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, alarms.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, alarms.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
