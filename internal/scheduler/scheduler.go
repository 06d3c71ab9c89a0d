// Package scheduler pre-generates monthly insights on a cron schedule. Each
// run covers the previous calendar month for every user with transactions in
// it, so the first request of the month is usually a store hit.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-insights-backend/internal/domain"
	"github.com/tbourn/go-insights-backend/internal/services"
)

// Generator produces an insight for a user and period.
type Generator interface {
	Generate(ctx context.Context, userID string, req services.GenerateRequest) (*domain.Insight, error)
}

// UserLister returns the users with transactions in [start, end].
type UserLister interface {
	ListActiveUsers(ctx context.Context, start, end time.Time) ([]string, error)
}

// Scheduler runs the monthly job.
type Scheduler struct {
	cron    *cron.Cron
	users   UserLister
	gen     Generator
	monthly cron.EntryID

	// Now is the clock used to pick the previous month; nil uses time.Now.
	Now func() time.Time
	// PerUserTimeout bounds a single user's generation; 0 disables it.
	PerUserTimeout time.Duration
}

// New parses spec (standard five-field cron, UTC) and registers the monthly
// job. An empty spec registers no monthly job, leaving the scheduler to run
// only maintenance tasks added with Every. The scheduler is not started.
func New(spec string, users UserLister, gen Generator) (*Scheduler, error) {
	s := &Scheduler{users: users, gen: gen, PerUserTimeout: 2 * time.Minute}
	logger := cronLogger{l: log.Logger}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if spec == "" {
		return s, nil
	}
	id, err := s.cron.AddFunc(spec, func() { s.RunOnce(context.Background()) })
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid schedule %q: %w", spec, err)
	}
	s.monthly = id
	return s, nil
}

// Every registers a maintenance task. Errors from fn are logged under name.
func (s *Scheduler) Every(spec, name string, timeout time.Duration, fn func(context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Warn().Err(err).Str("task", name).Msg("scheduled maintenance failed")
		}
	})
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q for %s: %w", spec, name, err)
	}
	return nil
}

// Start runs the cron loop in its own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and returns a context that is done once a running
// job has finished.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }

// Next reports the next monthly activation, or the zero time when no
// monthly job is registered or the scheduler is not running.
func (s *Scheduler) Next() time.Time {
	if s.monthly == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.monthly).Next
}

// PreviousMonth returns the first and last day of the calendar month before
// now, in UTC.
func PreviousMonth(now time.Time) (time.Time, time.Time) {
	y, m, _ := now.UTC().Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, -1, 0), first.AddDate(0, 0, -1)
}

// RunOnce generates last month's insight for every active user. A failing
// user is logged and skipped.
func (s *Scheduler) RunOnce(ctx context.Context) (generated, failed int) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	start, end := PreviousMonth(now())
	req := services.GenerateRequest{StartDate: start.Format(time.DateOnly), EndDate: end.Format(time.DateOnly)}

	users, err := s.users.ListActiveUsers(ctx, start, end)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: listing active users failed")
		return 0, 0
	}

	for _, u := range users {
		if ctx.Err() != nil {
			break
		}
		uctx, cancel := ctx, context.CancelFunc(func() {})
		if s.PerUserTimeout > 0 {
			uctx, cancel = context.WithTimeout(ctx, s.PerUserTimeout)
		}
		in, err := s.gen.Generate(uctx, u, req)
		cancel()
		if err != nil {
			failed++
			log.Warn().Err(err).Str("user_id", u).Str("period_start", req.StartDate).Msg("scheduled insight generation failed")
			continue
		}
		generated++
		log.Debug().Str("user_id", u).Str("insight_id", in.ID).Bool("placeholder", in.Placeholder).Msg("scheduled insight ready")
	}

	log.Info().
		Str("period_start", req.StartDate).
		Str("period_end", req.EndDate).
		Int("users", len(users)).
		Int("generated", generated).
		Int("failed", failed).
		Msg("scheduled insight run finished")
	return generated, failed
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ l zerolog.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.l.Debug().Fields(kv).Msg("cron: " + msg)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Error().Err(err).Fields(kv).Msg("cron: " + msg)
}
