package geocode

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"realestate-ingest/models"
	"realestate-ingest/utils"
)

type lookupResult struct {
	coords models.Coordinates
	ok     bool
}

// Resolver turns addresses into coordinates: geocoder first, deterministic
// fallback second. Each distinct address reaches the geocoder at most once
// per Resolver.
type Resolver struct {
	geocoder  Geocoder
	districts []District
	timeout   time.Duration
	logger    *utils.Logger

	mu    sync.Mutex
	cache map[string]lookupResult
}

// NewResolver creates a Resolver. A nil geocoder bypasses live geocoding and
// every Resolve call takes the fallback path.
func NewResolver(g Geocoder, timeout time.Duration, logger *utils.Logger) *Resolver {
	return &Resolver{
		geocoder:  g,
		districts: DefaultDistricts,
		timeout:   timeout,
		logger:    logger,
		cache:     make(map[string]lookupResult),
	}
}

// Enabled reports whether a live geocoder is configured.
func (r *Resolver) Enabled() bool { return r.geocoder != nil }

// Resolve returns the geocoded coordinate when available and the fallback otherwise.
func (r *Resolver) Resolve(ctx context.Context, address string) (models.Coordinates, models.CoordinateSource) {
	if coords, ok := r.Lookup(ctx, address); ok {
		return coords, models.SourceGeocoder
	}
	return r.Fallback(address), models.SourceFallback
}

// Lookup asks the geocoder only. Failures are logged at debug level and
// reported as ok == false.
func (r *Resolver) Lookup(ctx context.Context, address string) (models.Coordinates, bool) {
	if r.geocoder == nil {
		return models.Coordinates{}, false
	}
	key := norm.NFC.String(strings.TrimSpace(address))
	if key == "" {
		return models.Coordinates{}, false
	}

	r.mu.Lock()
	if res, hit := r.cache[key]; hit {
		r.mu.Unlock()
		return res.coords, res.ok
	}
	r.mu.Unlock()

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	coords, err := r.geocoder.Geocode(callCtx, key)
	res := lookupResult{coords: coords, ok: err == nil}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.logger.Debug("[geocode] %s: no result for %q", r.geocoder.Name(), key)
		} else {
			r.logger.Debug("[geocode] %s failed for %q: %v", r.geocoder.Name(), key, err)
		}
		// A cancelled run should not poison the cache for the next one.
		if ctx.Err() != nil {
			return models.Coordinates{}, false
		}
	}

	r.mu.Lock()
	r.cache[key] = res
	r.mu.Unlock()
	return res.coords, res.ok
}

// Cached reports whether a lookup for address would be answered from the
// memo without calling the geocoder.
func (r *Resolver) Cached(address string) bool {
	key := norm.NFC.String(strings.TrimSpace(address))
	r.mu.Lock()
	defer r.mu.Unlock()
	_, hit := r.cache[key]
	return hit
}

// Fallback returns the deterministic pseudo-coordinate for address.
func (r *Resolver) Fallback(address string) models.Coordinates {
	return Fallback(address, r.districts)
}

// Forget drops every cached lookup.
func (r *Resolver) Forget() {
	r.mu.Lock()
	r.cache = make(map[string]lookupResult)
	r.mu.Unlock()
}
