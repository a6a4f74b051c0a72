package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"sitewatch/internal/reports/application"
	reports "sitewatch/internal/reports/domain"
	"sitewatch/internal/reports/interfaces"
)

// Handler exposes report generation, the cache and file downloads.
type Handler struct {
	service *application.Service
}

// NewHandler constructs a handler.
func NewHandler(service *application.Service) (*Handler, error) {
	if service == nil {
		return nil, errors.New("reports handler: nil service")
	}
	return &Handler{service: service}, nil
}

type generateRequest struct {
	ReportType string          `json:"report_type"`
	PeriodDays int             `json:"period_days"`
	Filters    reports.Filters `json:"filters"`
}

// ServeHTTP handles /api/v1/reports.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/reports":
		h.handleList(w, r)
	case r.URL.Path == "/api/v1/reports/generate":
		h.handleGenerate(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/reports/"):
		h.handleReport(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	report, err := h.service.Generate(r.Context(), reports.ReportType(req.ReportType), req.PeriodDays, req.Filters)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"report_id": report.ID, "status": "completed"})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	result, err := h.service.List(r.Context(), reports.ReportType(r.URL.Query().Get("type")), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if result == nil {
		result = []reports.GeneratedReport{}
	}
	writeJSON(w, result)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/reports/")
	id, format, _ := strings.Cut(rest, "/download/")
	if id == "" {
		http.Error(w, "missing report id", http.StatusBadRequest)
		return
	}

	report, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	switch format {
	case "":
		writeJSON(w, report)
	case "xlsx":
		payload, err := interfaces.BuildReportXLSX(report)
		if err != nil {
			writeError(w, err)
			return
		}
		sendFile(w, report, payload, "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	case "pdf":
		payload, err := interfaces.BuildReportPDF(report)
		if err != nil {
			writeError(w, err)
			return
		}
		sendFile(w, report, payload, "pdf", "application/pdf")
	default:
		http.Error(w, "unsupported download format", http.StatusBadRequest)
	}
}

func sendFile(w http.ResponseWriter, report *reports.GeneratedReport, payload []byte, ext, contentType string) {
	filename := fmt.Sprintf("%s_%s.%s", report.Type, report.GeneratedAt.Format("20060102_150405"), ext)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = w.Write(payload)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reports.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, reports.ErrUnknownType):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
