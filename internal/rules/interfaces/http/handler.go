package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"sitewatch/internal/rules/application"
	rules "sitewatch/internal/rules/domain"
)

// Handler exposes rule CRUD and the derived threshold view.
type Handler struct {
	service *application.Service
}

// NewHandler constructs a handler.
func NewHandler(service *application.Service) (*Handler, error) {
	if service == nil {
		return nil, errors.New("rules handler: nil service")
	}
	return &Handler{service: service}, nil
}

// ServeHTTP handles /api/v1/rules and /api/v1/thresholds.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/rules":
		h.handleRules(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/rules/"):
		h.handleRule(w, r)
	case r.URL.Path == "/api/v1/thresholds":
		h.handleThresholds(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/thresholds/"):
		h.handleThreshold(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		result, err := h.service.ListRules(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, result)
	case http.MethodPost:
		var rule rules.CompositeRule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if err := h.service.CreateRule(r.Context(), &rule); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, rule)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleRule(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r.URL.Path, "/api/v1/rules/")
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		rule, err := h.service.GetRule(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, rule)
	case http.MethodPut:
		var rule rules.CompositeRule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		rule.ID = id
		if err := h.service.UpdateRule(r.Context(), &rule); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, rule)
	case http.MethodDelete:
		if err := h.service.DeleteRule(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleThresholds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	result, err := h.service.ListThresholds(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) handleThreshold(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, ok := parseID(w, r.URL.Path, "/api/v1/thresholds/")
	if !ok {
		return
	}
	threshold, err := h.service.GetThreshold(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, threshold)
}

func parseID(w http.ResponseWriter, path, prefix string) (int64, bool) {
	raw := strings.TrimPrefix(path, prefix)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rules.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, rules.ErrInvalidRule):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
