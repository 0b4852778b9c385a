// Package retention runs the expired-credential sweep on a cron schedule.
package retention

import (
	"context"
	"time"

	"github.com/adhocore/gronx"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Sweeper deletes expired entries and reports how many went.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Scheduler wakes at every tick of a cron expression and runs one sweep.
type Scheduler struct {
	expr    string
	sweeper Sweeper
	now     func() time.Time
	after   func(time.Duration) <-chan time.Time
}

// New validates expr and returns a Scheduler.
func New(expr string, s Sweeper) (*Scheduler, error) {
	if !gronx.IsValid(expr) {
		return nil, errors.Errorf("retention: invalid cron expression %q", expr)
	}
	return &Scheduler{expr: expr, sweeper: s, now: time.Now, after: time.After}, nil
}

// Start runs the scheduler in a goroutine until the returned cancel func is
// called or ctx ends.
func Start(ctx context.Context, expr string, s Sweeper) (context.CancelFunc, error) {
	sched, err := New(expr, s)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	go sched.Run(ctx)
	log.Info().Str("cron", expr).Msg("sweep scheduler started")
	return cancel, nil
}

// Run blocks, sweeping at each tick, until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		now := s.now()
		next, err := gronx.NextTickAfter(s.expr, now.UTC(), false)
		if err != nil {
			log.Error().Err(err).Str("cron", s.expr).Msg("next sweep tick")
			next = now.Add(30 * time.Second)
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("sweep scheduler stopping")
			return
		case <-s.after(next.Sub(now)):
		}
		_, _ = RunOnce(ctx, s.sweeper)
	}
}

// RunOnce performs a single sweep and logs the outcome.
func RunOnce(ctx context.Context, s Sweeper) (int, error) {
	start := time.Now()
	n, err := s.Sweep(ctx)
	if err != nil {
		log.Error().Err(err).Msg("credential sweep failed")
		return 0, err
	}
	log.Info().Int("removed", n).Dur("took", time.Since(start)).Msg("credential sweep done")
	return n, nil
}
