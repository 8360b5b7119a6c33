// Package sweeper expires help requests that sat pending for too long.
package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/frontdesk/backend/internal/models"
)

type RequestStore interface {
	ListPendingRequests(ctx context.Context) ([]models.HelpRequest, error)
	TransitionRequest(ctx context.Context, id string, expected models.RequestStatus, upd models.RequestTransition) error
}

const (
	defaultInterval = 6 * time.Hour
	defaultMaxAge   = 48 * time.Hour
)

// Sweeper periodically marks stale pending requests unresolved. Each
// request's transition is an independent conditional update, so stopping
// mid-interval never corrupts anything: an unfinished pass is simply
// picked up by the next tick. No customer notification is sent on expiry.
type Sweeper struct {
	Store  RequestStore
	Logger zerolog.Logger

	// Interval and MaxPendingAge are read at every wake, so changes apply
	// from the next tick without a restart.
	Interval      time.Duration
	MaxPendingAge time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func (s *Sweeper) interval() time.Duration {
	if s.Interval <= 0 {
		return defaultInterval
	}
	return s.Interval
}

func (s *Sweeper) maxAge() time.Duration {
	if s.MaxPendingAge <= 0 {
		return defaultMaxAge
	}
	return s.MaxPendingAge
}

// Start launches the sweep loop. It is a no-op when already running.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.Logger.Info().Dur("interval", s.interval()).Dur("max_pending_age", s.maxAge()).Msg("sweeper started")
	go s.loop(s.stop, s.done)
}

// Stop requests shutdown and waits for the loop to exit. The sleep phase
// is the only cancellation point: a scan in flight finishes first.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
	s.Logger.Info().Msg("sweeper stopped")
}

func (s *Sweeper) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		s.SweepOnce(context.Background())
		select {
		case <-time.After(s.interval()):
		case <-stop:
			return
		}
	}
}

// SweepOnce scans all pending requests and expires those older than the
// configured age. The scan is a full pass every tick; very large pending
// sets degrade linearly.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	pending, err := s.Store.ListPendingRequests(ctx)
	if err != nil {
		s.Logger.Error().Err(err).Msg("pending scan failed")
		return
	}

	sweepTime := time.Now().UTC()
	cutoff := sweepTime.Add(-s.maxAge())
	expired := 0
	for _, req := range pending {
		if !req.CreatedAt.Before(cutoff) {
			continue
		}
		err := s.Store.TransitionRequest(ctx, req.ID, models.StatusPending, models.RequestTransition{
			Status:     models.StatusUnresolved,
			ResolvedAt: sweepTime,
		})
		switch {
		case err == nil:
			expired++
			s.Logger.Info().Str("request_id", req.ID).Time("created_at", req.CreatedAt).Msg("pending request expired")
		case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrNotFound):
			// Lost to a concurrent resolution. Benign.
			s.Logger.Debug().Str("request_id", req.ID).Msg("request resolved before expiry")
		default:
			s.Logger.Error().Err(err).Str("request_id", req.ID).Msg("expiry transition failed")
		}
	}
	if expired > 0 {
		s.Logger.Info().Int("expired", expired).Int("scanned", len(pending)).Msg("sweep complete")
	}
}
