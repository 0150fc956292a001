package services

import (
	"context"
	"time"

	"realestate-ingest/geocode"
	"realestate-ingest/utils"
)

// Ticker is the part of *time.Ticker the rescanner uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock creates tickers. Tests substitute a manual clock.
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

type realClock struct{}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }

func (r realTicker) Stop() { r.t.Stop() }

func (realClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

// SystemClock is the wall clock.
var SystemClock Clock = realClock{}

// Rescanner runs a backfill pass on every tick until its context ends.
// Before each pass the resolver forgets earlier misses so that addresses the
// geocoder could not place are tried again.
type Rescanner struct {
	backfill *Backfiller
	resolver *geocode.Resolver
	interval time.Duration
	clock    Clock
	logger   *utils.Logger
}

func NewRescanner(backfill *Backfiller, resolver *geocode.Resolver, interval time.Duration, clock Clock, logger *utils.Logger) *Rescanner {
	if clock == nil {
		clock = SystemClock
	}
	return &Rescanner{
		backfill: backfill,
		resolver: resolver,
		interval: interval,
		clock:    clock,
		logger:   logger,
	}
}

// Run blocks until ctx is done and returns the number of completed passes.
// A failing pass is logged and the loop keeps going.
func (r *Rescanner) Run(ctx context.Context) int {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("[rescan] Re-scanning fallback coordinates every %s", r.interval)

	passes := 0
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("[rescan] Stopped after %d pass(es)", passes)
			return passes
		case <-ticker.C():
		}

		r.resolver.Forget()
		res, err := r.backfill.Run(ctx)
		passes++
		if err != nil {
			r.logger.Error("[rescan] Pass %d failed: %v", passes, err)
			continue
		}
		r.logger.Info("[rescan] Pass %d: %d candidate(s), %d updated", passes, res.Candidates, res.Updated)
	}
}
