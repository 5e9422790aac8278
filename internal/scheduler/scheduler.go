package scheduler

import (
	"context"
	"log/slog"
	"time"

	"polysignal/internal/config"
	"polysignal/internal/model"
	"polysignal/internal/report"
)

// Selector produces one decision per call.
type Selector interface {
	SelectMarket(ctx context.Context) model.Decision
}

// Scheduler re-runs market selection on a fixed interval until cancelled.
type Scheduler struct {
	selector    Selector
	tracker     *report.Tracker
	cfg         config.ScheduleConfig
	onDecision  func(model.Decision)
	maintenance func(context.Context)
}

type Option func(*Scheduler)

// WithDecisionHook is called after every cycle, e.g. to print the payload.
func WithDecisionHook(fn func(model.Decision)) Option {
	return func(s *Scheduler) { s.onDecision = fn }
}

// WithMaintenance runs fn alongside every summary, e.g. to purge expired
// cache rows.
func WithMaintenance(fn func(context.Context)) Option {
	return func(s *Scheduler) { s.maintenance = fn }
}

func New(selector Selector, tracker *report.Tracker, cfg config.ScheduleConfig, opts ...Option) *Scheduler {
	s := &Scheduler{selector: selector, tracker: tracker, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts the selection loop and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler starting",
		"interval", s.cfg.Interval.Duration,
		"summary_interval", s.cfg.SummaryInterval.Duration,
	)

	// Run first cycle immediately.
	s.runCycle(ctx)

	cycleTicker := time.NewTicker(s.cfg.Interval.Duration)
	summaryTicker := time.NewTicker(s.cfg.SummaryInterval.Duration)
	defer cycleTicker.Stop()
	defer summaryTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler shutting down")
			report.LogSummary(s.tracker.Summary())
			return ctx.Err()
		case <-cycleTicker.C:
			s.runCycle(ctx)
		case <-summaryTicker.C:
			s.runSummary(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	slog.Info("starting selection cycle")
	d := s.selector.SelectMarket(ctx)
	if ctx.Err() != nil {
		// Cut short by shutdown; not a real decision.
		return
	}
	s.tracker.Record(d)
	report.LogDecision(d)
	if s.onDecision != nil {
		s.onDecision(d)
	}
}

func (s *Scheduler) runSummary(ctx context.Context) {
	report.LogSummary(s.tracker.Summary())
	if s.maintenance != nil {
		s.maintenance(ctx)
	}
}
