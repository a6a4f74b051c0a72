package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	masterdata "sitewatch/internal/masterdata/domain"
)

// Handler provides read-only site and asset endpoints.
type Handler struct {
	sites  masterdata.SiteRepository
	assets masterdata.AssetRepository
}

// NewHandler constructs a handler.
func NewHandler(sites masterdata.SiteRepository, assets masterdata.AssetRepository) (*Handler, error) {
	if sites == nil || assets == nil {
		return nil, errors.New("masterdata handler: nil repository")
	}
	return &Handler{sites: sites, assets: assets}, nil
}

// ServeHTTP handles /api/v1/sites and /api/v1/assets.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch {
	case r.URL.Path == "/api/v1/sites":
		h.handleListSites(w, r)
	case r.URL.Path == "/api/v1/assets":
		h.handleListAssets(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/sites/"):
		h.handleGetSite(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleListSites(w http.ResponseWriter, r *http.Request) {
	var (
		sites []masterdata.Site
		err   error
	)
	switch {
	case r.URL.Query().Get("region") != "":
		sites, err = h.sites.ListByRegion(r.Context(), r.URL.Query().Get("region"))
	case r.URL.Query().Get("cluster") != "":
		sites, err = h.sites.ListByCluster(r.Context(), r.URL.Query().Get("cluster"))
	default:
		sites, err = h.sites.List(r.Context())
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, sites)
}

func (h *Handler) handleGetSite(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/api/v1/sites/")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		http.Error(w, "invalid site id", http.StatusBadRequest)
		return
	}
	site, err := h.sites.Get(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if site == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, site)
}

func (h *Handler) handleListAssets(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("site_id"); raw != "" {
		siteID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid site_id", http.StatusBadRequest)
			return
		}
		assets, err := h.assets.ListBySite(r.Context(), siteID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, assets)
		return
	}
	assets, err := h.assets.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, assets)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
