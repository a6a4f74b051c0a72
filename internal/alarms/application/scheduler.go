package application

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"sitewatch/internal/observability/metrics"
)

// DefaultEvaluationInterval matches the monitor cadence of the ingestion feed.
const DefaultEvaluationInterval = 2 * time.Minute

// Scheduler drives periodic rule evaluation. It keeps no state between
// cycles; everything it needs lives in the rule and alarm tables, so the
// process can restart at any point.
type Scheduler struct {
	service  *Service
	interval time.Duration
	logger   *log.Logger
	running  atomic.Bool
}

// NewScheduler constructs a Scheduler.
func NewScheduler(service *Service, interval time.Duration, logger *log.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultEvaluationInterval
	}
	return &Scheduler{service: service, interval: interval, logger: logger}
}

// Start runs the evaluation loop until the context is cancelled. A tick is
// skipped when the previous cycle is still in flight.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.service == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.running.CompareAndSwap(false, true) {
				if s.logger != nil {
					s.logger.Printf("scheduler: previous cycle still running, skipping tick")
				}
				continue
			}
			s.RunCycle(ctx)
			s.running.Store(false)
		}
	}
}

// RunCycle evaluates every enabled rule once. A rule that fails to evaluate
// is logged and skipped; the cycle continues with the remaining rules.
func (s *Scheduler) RunCycle(ctx context.Context) {
	if s == nil || s.service == nil {
		return
	}
	started := time.Now()
	enabled, err := s.service.rules.ListEnabled(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("scheduler: loading enabled rules: %v", err)
		}
		metrics.ObserveEvaluationCycle("error", time.Since(started))
		return
	}

	var failures int
	for _, rule := range enabled {
		metrics.IncRuleEvaluated()
		if err := s.service.EvaluateRule(ctx, rule); err != nil {
			failures++
			metrics.IncRuleFailure()
			if s.logger != nil {
				s.logger.Printf("scheduler: rule %d (%s): %v", rule.ID, rule.Name, err)
			}
		}
	}

	result := "success"
	if failures > 0 {
		result = "error"
	}
	metrics.ObserveEvaluationCycle(result, time.Since(started))
	if s.logger != nil {
		s.logger.Printf("scheduler: cycle done rules=%d failures=%d elapsed=%s", len(enabled), failures, time.Since(started).Round(time.Millisecond))
	}
}
