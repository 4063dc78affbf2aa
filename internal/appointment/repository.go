package appointment

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRecordNotFound    = errors.New("appointment record not found")
	ErrClinicianNotFound = errors.New("clinician not found")
	ErrInvalidHref       = errors.New("href must be an absolute http(s) URL")
	ErrInvalidStatus     = errors.New("invalid appointment status")
)

// Repository contains all persistence needed by the service.
type Repository interface {
	// UpsertRecord merges in into the record keyed by in.Href, creating it
	// when absent. now stamps log entries and timestamps.
	UpsertRecord(ctx context.Context, in UpsertInput, now time.Time) (*Record, error)
	GetRecordByHref(ctx context.Context, href string) (*Record, error)

	// Reconciliation
	ListRecordsByStatus(ctx context.Context, status Status) ([]Record, error)

	// HTTP listing
	ListRecords(ctx context.Context, filter ListFilter) ([]Record, error)
}

// ClinicianLookup resolves a clinician id to a display name.
type ClinicianLookup interface {
	GetClinicianName(ctx context.Context, clinicianID string) (string, error)
}
