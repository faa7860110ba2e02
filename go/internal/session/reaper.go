package session

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Purger removes expired state older than a cutoff derived from now.
type Purger interface {
	Purge(ctx context.Context, now time.Time) (int64, error)
}

// Reaper runs a set of purgers on a fixed interval.
type Reaper struct {
	clock    clockwork.Clock
	interval time.Duration
	purgers  map[string]Purger
}

func NewReaper(clock clockwork.Clock, interval time.Duration) *Reaper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{clock: clock, interval: interval, purgers: make(map[string]Purger)}
}

// Add registers p under name. Not safe to call once Run has started.
func (r *Reaper) Add(name string, p Purger) {
	r.purgers[name] = p
}

// Run purges on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", r.interval).Msg("reaper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reaper shutting down")
			return
		case <-ticker.Chan():
			r.RunOnce(ctx)
		}
	}
}

// RunOnce runs every purger once. A failing purger does not stop the others.
func (r *Reaper) RunOnce(ctx context.Context) {
	now := r.clock.Now()
	for name, p := range r.purgers {
		n, err := p.Purge(ctx, now)
		if err != nil {
			log.Error().Err(err).Str("purger", name).Msg("purge failed")
			continue
		}
		if n > 0 {
			log.Info().Str("purger", name).Int64("removed", n).Msg("purged expired records")
		}
	}
}
