package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/gfaxardo/contractor-tracker-sub000/internal/model"
)

// ErrNotFound is returned when a lookup by key matches no row. Callers
// should test with eris.Is.
var ErrNotFound = eris.New("not found")

// ResultFilter specifies criteria for listing match results.
type ResultFilter struct {
	Source      model.Source `json:"source,omitempty"`
	DriverID    string       `json:"driver_id,omitempty"`
	OnlyMatched bool         `json:"only_matched,omitempty"`
	Limit       int          `json:"limit,omitempty"`
	Offset      int          `json:"offset,omitempty"`
}

// Store defines the persistence interface for the identity matching engine.
type Store interface {
	// Drivers
	UpsertDrivers(ctx context.Context, drivers []model.CanonicalDriver) (int64, error)
	GetDriver(ctx context.Context, driverID string) (*model.CanonicalDriver, error)
	ListDriversByHireDate(ctx context.Context, from, to time.Time) ([]model.CanonicalDriver, error)

	// External records
	UpsertExternalRecords(ctx context.Context, records []model.ExternalRecord) (int64, error)
	GetExternalRecord(ctx context.Context, source model.Source, externalID string) (*model.ExternalRecord, error)
	ListExternalRecords(ctx context.Context, source model.Source) ([]model.ExternalRecord, error)

	// Match results
	SaveMatchResults(ctx context.Context, results []model.MatchResult) (int64, error)
	GetMatchResult(ctx context.Context, source model.Source, externalID string) (*model.MatchResult, error)
	ListMatchResults(ctx context.Context, filter ResultFilter) ([]model.MatchResult, error)
	SetManualMatch(ctx context.Context, source model.Source, externalID, driverID string) error
	ClearOverride(ctx context.Context, source model.Source, externalID string) error
	SetDiscarded(ctx context.Context, source model.Source, externalID string, discarded bool) error
	DeleteMatchResult(ctx context.Context, source model.Source, externalID string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
