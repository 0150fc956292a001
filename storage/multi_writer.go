package storage

import (
	"context"
	"errors"
	"fmt"

	"realestate-ingest/models"
	"realestate-ingest/utils"
)

type namedBuildingWriter struct {
	name string
	w    BuildingWriter
}

type namedFacilityWriter struct {
	name string
	w    FacilityWriter
}

// MultiWriter fans canonical records out to every configured sink. A sink
// that fails does not stop the others.
type MultiWriter struct {
	buildings  []namedBuildingWriter
	facilities []namedFacilityWriter
	closers    []func() error
	logger     *utils.Logger
}

func NewMultiWriter(logger *utils.Logger) *MultiWriter {
	return &MultiWriter{logger: logger}
}

// Add registers a sink under name. It receives buildings, facilities or
// both depending on which writer interfaces it implements.
func (m *MultiWriter) Add(name string, sink interface{ Close() error }) {
	if w, ok := sink.(BuildingWriter); ok {
		m.buildings = append(m.buildings, namedBuildingWriter{name, w})
	}
	if w, ok := sink.(FacilityWriter); ok {
		m.facilities = append(m.facilities, namedFacilityWriter{name, w})
	}
	m.closers = append(m.closers, sink.Close)
}

// Len returns the number of registered sinks.
func (m *MultiWriter) Len() int { return len(m.closers) }

// Write sends buildings and facilities to every sink and returns the
// per-sink totals. The error joins every sink-level failure.
func (m *MultiWriter) Write(ctx context.Context, buildings []*models.Building, facilities []*models.Facility) (map[string]WriteResult, error) {
	results := make(map[string]WriteResult)
	var errs []error

	for _, s := range m.buildings {
		res, err := s.w.WriteBuildings(ctx, buildings)
		total := results[s.name]
		total.Add(res)
		results[s.name] = total
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: write buildings: %w", s.name, err))
			m.logger.Error("[storage] %s: %v", s.name, err)
			continue
		}
		m.logger.Info("[storage] %s: %d buildings written, %d failed", s.name, res.Written, res.Failed)
	}

	for _, s := range m.facilities {
		res, err := s.w.WriteFacilities(ctx, facilities)
		total := results[s.name]
		total.Add(res)
		results[s.name] = total
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: write facilities: %w", s.name, err))
			m.logger.Error("[storage] %s: %v", s.name, err)
			continue
		}
		m.logger.Info("[storage] %s: %d facilities written, %d failed", s.name, res.Written, res.Failed)
	}

	return results, errors.Join(errs...)
}

// Close closes every sink and joins the errors.
func (m *MultiWriter) Close() error {
	var errs []error
	for _, c := range m.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
