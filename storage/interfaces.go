package storage

import (
	"context"

	"realestate-ingest/models"
)

// WriteResult counts the outcome of one write call. Failures are per record;
// a failed record never aborts the rest of the batch.
type WriteResult struct {
	Written int
	Failed  int
}

// Add accumulates other into r.
func (r *WriteResult) Add(other WriteResult) {
	r.Written += other.Written
	r.Failed += other.Failed
}

// BuildingWriter is the interface any building sink must satisfy.
type BuildingWriter interface {
	WriteBuildings(ctx context.Context, buildings []*models.Building) (WriteResult, error)
	Close() error
}

// FacilityWriter is the interface for sinks that also accept facilities.
type FacilityWriter interface {
	WriteFacilities(ctx context.Context, facilities []*models.Facility) (WriteResult, error)
	Close() error
}
