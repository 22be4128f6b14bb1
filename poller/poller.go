// Package poller drives the sync engine from a playback source polled at a fixed interval.
package poller

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"lyrics-sync-go/engine"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/playback"
	"lyrics-sync-go/stats"
)

const (
	baseBackoff = 100 * time.Millisecond
	maxBackoff  = 30 * time.Second
	// errorEscalation is the number of consecutive failures after which they are logged at error level
	errorEscalation = 5
)

// ErrUnauthorized is wrapped by sources when the upstream rejected their credentials
var ErrUnauthorized = errors.New("playback source rejected credentials")

// Source reports what a player is doing right now.
//
// Poll returns a snapshot whose Position is the position reported by the player. A nil Track
// means nothing is playing.
type Source interface {
	Name() string
	Poll(ctx context.Context) (playback.Snapshot, error)
}

// AuthRefresher is implemented by sources that can renew their credentials after an
// ErrUnauthorized
type AuthRefresher interface {
	RefreshAuth(ctx context.Context) error
}

// Poller feeds snapshots from a Source into an engine
type Poller struct {
	source   Source
	engine   *engine.Engine
	interval time.Duration
	now      func() time.Time
}

// New creates a poller polling source every interval
func New(source Source, e *engine.Engine, interval time.Duration) *Poller {
	return &Poller{
		source:   source,
		engine:   e,
		interval: interval,
		now:      time.Now,
	}
}

// Backoff returns the wait after the given number of consecutive failures:
// 100ms * 2^min(failures, 10), capped at 30s
func Backoff(failures int) time.Duration {
	if failures < 0 {
		failures = 0
	}
	if failures > 10 {
		failures = 10
	}
	backoff := baseBackoff * time.Duration(1<<uint(failures))
	if backoff > maxBackoff {
		return maxBackoff
	}
	return backoff
}

// PollOnce polls the source and applies the snapshot to the engine.
//
// The reported position is assumed to date from halfway through the request, so half the
// request latency is added to it.
func (p *Poller) PollOnce(ctx context.Context) error {
	start := p.now()
	snapshot, err := p.source.Poll(ctx)
	stats.Get().RecordPoll(err)
	if err != nil {
		return err
	}

	observed := p.now()
	if snapshot.Track != nil {
		snapshot.Position += observed.Sub(start) / 2
	}
	snapshot.ObservedAt = observed

	p.engine.UpdateState(snapshot)
	return nil
}

// Run polls until ctx is done. Failures back off exponentially and never stop the loop.
func (p *Poller) Run(ctx context.Context) error {
	log.Infof("%s Polling %s every %v", logcolors.LogPoller, p.source.Name(), p.interval)

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			log.Infof("%s Shutting down", logcolors.LogPoller)
			return nil
		case <-timer.C:
		}

		wait := p.interval
		if err := p.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			failures++
			wait = Backoff(failures)

			if failures >= errorEscalation {
				log.Errorf("%s Poll failed (%d consecutive), waiting %v: %v", logcolors.LogPoller, failures, wait, err)
			} else {
				log.Warnf("%s Poll failed (attempt %d), retrying in %v: %v", logcolors.LogPoller, failures, wait, err)
			}

			if refresher, ok := p.source.(AuthRefresher); ok && errors.Is(err, ErrUnauthorized) {
				if err := refresher.RefreshAuth(ctx); err != nil {
					log.Errorf("%s Credential refresh failed: %v", logcolors.LogPoller, err)
				}
			}
		} else {
			if failures > 0 {
				log.Infof("%s Recovered after %d failed polls", logcolors.LogPoller, failures)
			}
			failures = 0
		}

		timer.Reset(wait)
	}
}
