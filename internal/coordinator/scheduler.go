// Package coordinator runs the background loops: the daily report scheduler and per-agent watchers.
package coordinator

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"huddle/internal/domain"
	"huddle/internal/engine"
)

// Scheduler generates the daily report once per day after the configured hour.
type Scheduler struct {
	Engine   engine.Engine
	Interval time.Duration
	Log      log.FieldLogger
}

func (s Scheduler) log() log.FieldLogger {
	if s.Log != nil {
		return s.Log
	}
	return log.StandardLogger()
}

// Tick generates today's report when it is due and not yet stored.
func (s Scheduler) Tick(ctx context.Context) (bool, error) {
	now, err := s.Engine.LocalNow()
	if err != nil {
		return false, err
	}
	if now.Hour() < s.Engine.Config.Reports.Hour {
		return false, nil
	}
	date := now.Format(time.DateOnly)
	exists, err := s.Engine.HasReport(ctx, date)
	if err != nil || exists {
		return false, err
	}
	if _, err := s.Engine.DailyReport(ctx); err != nil {
		return false, err
	}
	if _, err := s.Engine.Notify(ctx, fmt.Sprintf("Daily report generated for %s", date), domain.PriorityNormal); err != nil {
		return true, err
	}
	return true, nil
}

// Run ticks until ctx is done. Errors are logged and retried on the next tick.
func (s Scheduler) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = s.Engine.Config.Polling.Interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.log().WithError(err).Warn("daily report tick failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
