package api

import (
	"context"

	"github.com/starford/cardsync/internal/ledger"
	"github.com/starford/cardsync/internal/models"
)

// Syncer is the sync service behind the API.
type Syncer interface {
	Scan(ctx context.Context, folder string) (*models.Report, error)
	SyncDocument(ctx context.Context, path string) (*models.Report, error)
	DeleteDocument(ctx context.Context, path string) error
	Ping(ctx context.Context) error
	Running() bool
	Runs(ctx context.Context, limit int) ([]ledger.Run, error)
	Documents(ctx context.Context) ([]ledger.Document, error)
}

// ScanRequest is the optional request body of POST /api/scan.
type ScanRequest struct {
	Folder string `json:"folder,omitempty" example:"cards"`
}

// StatusResponse describes the service and its recent runs.
type StatusResponse struct {
	Running bool         `json:"running" validate:"required"`
	Runs    []ledger.Run `json:"runs" validate:"required"`
}

// DocumentListResponse wraps the last known state of every synced document.
type DocumentListResponse struct {
	Documents []ledger.Document `json:"documents" validate:"required"`
	Total     int               `json:"total" example:"42" validate:"required"`
}

// PingResponse is returned when Anki answers.
type PingResponse struct {
	OK bool `json:"ok" validate:"required"`
}
