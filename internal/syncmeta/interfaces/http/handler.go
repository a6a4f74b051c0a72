package http

import (
	"encoding/json"
	"errors"
	"net/http"

	syncmeta "sitewatch/internal/syncmeta/domain"
)

// Handler serves the ingestion feed status.
type Handler struct {
	metadata syncmeta.MetadataRepository
}

// NewHandler constructs a handler.
func NewHandler(metadata syncmeta.MetadataRepository) (*Handler, error) {
	if metadata == nil {
		return nil, errors.New("sync handler: nil repository")
	}
	return &Handler{metadata: metadata}, nil
}

// ServeHTTP handles /api/v1/sync/status.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/v1/sync/status" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	metadata, err := h.metadata.Get(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if metadata == nil {
		metadata = &syncmeta.Metadata{Status: syncmeta.StatusNeverRun}
	}
	if metadata.Errors == nil {
		metadata.Errors = []syncmeta.SyncError{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(metadata); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
