package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	masterdata "sitewatch/internal/masterdata/domain"
	"sitewatch/internal/observability/metrics"
	readings "sitewatch/internal/readings/domain"
)

// IngestHandler accepts reading batches from collectors and ETL loaders.
// It is a thin transport over the reading store; payload normalization is the
// loader's job.
type IngestHandler struct {
	store  readings.ReadingRepository
	assets masterdata.AssetRepository
	logger *log.Logger
}

// NewIngestHandler constructs an ingest handler.
func NewIngestHandler(store readings.ReadingRepository, assets masterdata.AssetRepository, logger *log.Logger) (*IngestHandler, error) {
	if store == nil {
		return nil, errors.New("readings ingest: nil store")
	}
	if assets == nil {
		return nil, errors.New("readings ingest: nil asset repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &IngestHandler{store: store, assets: assets, logger: logger}, nil
}

type ingestRequest struct {
	Readings []ingestReading `json:"readings"`
}

type ingestReading struct {
	AssetID     int64              `json:"asset_id"`
	ReadingType string             `json:"reading_type"`
	Timestamp   time.Time          `json:"timestamp"`
	Data        map[string]float64 `json:"data"`
}

// ServeHTTP handles POST /ingest/readings.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		metrics.IncIngest("error")
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req ingestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		metrics.IncIngest("error")
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(req.Readings) == 0 {
		metrics.IncIngest("error")
		http.Error(w, "no readings", http.StatusBadRequest)
		return
	}

	inserted := 0
	for _, item := range req.Readings {
		reading := readings.Reading{
			AssetID:     item.AssetID,
			ReadingType: readings.ReadingType(item.ReadingType),
			Timestamp:   item.Timestamp,
			Data:        item.Data,
		}
		if err := h.store.Insert(r.Context(), &reading); err != nil {
			h.logger.Printf("readings ingest: insert error asset=%d: %v", item.AssetID, err)
			metrics.IncIngest("error")
			http.Error(w, "insert error", http.StatusInternalServerError)
			return
		}
		if err := h.assets.TouchLastReading(r.Context(), item.AssetID, item.Timestamp); err != nil {
			h.logger.Printf("readings ingest: touch asset error asset=%d: %v", item.AssetID, err)
		}
		inserted++
	}

	metrics.IncIngest("success")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"inserted": inserted})
}
