package syncmeta

import (
	"context"
	"time"
)

// Status values of the last ingestion run.
const (
	StatusNeverRun = "never_run"
	StatusRunning  = "running"
	StatusSuccess  = "success"
	StatusFailed   = "failed"
)

// maxErrors bounds the retained error history.
const maxErrors = 10

// SyncError is one recorded failure of the ingestion loader.
type SyncError struct {
	Time  time.Time `json:"time"`
	Error string    `json:"error"`
}

// Metadata is the singleton status row of the external ingestion feed.
type Metadata struct {
	LastSyncTime    time.Time   `json:"last_sync_time,omitempty"`
	LastSuccessTime time.Time   `json:"last_success_time,omitempty"`
	Status          string      `json:"status"`
	SitesSynced     int         `json:"sites_synced"`
	AssetsSynced    int         `json:"assets_synced"`
	ReadingsSynced  int         `json:"readings_synced"`
	Errors          []SyncError `json:"errors"`
	UpdatedAt       time.Time   `json:"updated_at,omitempty"`
}

// RecordFailure appends an error, keeping only the most recent entries.
func (m *Metadata) RecordFailure(at time.Time, message string) {
	m.Status = StatusFailed
	m.Errors = append(m.Errors, SyncError{Time: at, Error: message})
	if len(m.Errors) > maxErrors {
		m.Errors = m.Errors[len(m.Errors)-maxErrors:]
	}
}

// MetadataRepository manages the singleton sync status row. Get returns
// (nil, nil) when no run has ever been recorded.
type MetadataRepository interface {
	Get(ctx context.Context) (*Metadata, error)
	Save(ctx context.Context, metadata *Metadata) error
}
