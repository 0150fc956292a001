package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"realestate-ingest/models"
)

// ErrNotFound is returned by a Geocoder that answered but found no match.
var ErrNotFound = errors.New("geocode: no result")

// Geocoder resolves a free-form address to a WGS84 coordinate.
type Geocoder interface {
	Name() string
	Geocode(ctx context.Context, address string) (models.Coordinates, error)
}

// Chain tries each geocoder in order and returns the first success.
type Chain []Geocoder

func (c Chain) Name() string {
	names := make([]string, 0, len(c))
	for _, g := range c {
		names = append(names, g.Name())
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

func (c Chain) Geocode(ctx context.Context, address string) (models.Coordinates, error) {
	if len(c) == 0 {
		return models.Coordinates{}, ErrNotFound
	}
	var errs []error
	for _, g := range c {
		coords, err := g.Geocode(ctx, address)
		if err == nil {
			return coords, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", g.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	return models.Coordinates{}, errors.Join(errs...)
}
