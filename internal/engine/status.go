package engine

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"huddle/internal/domain"
	"huddle/internal/notify"
	"huddle/internal/repo"
	"huddle/internal/store"
)

// UpdateStatus overwrites the agent's status snapshot.
func (e Engine) UpdateStatus(ctx context.Context, agent string, st domain.AgentStatus) (domain.AgentStatus, error) {
	if agent == "" {
		return domain.AgentStatus{}, fmt.Errorf("%w: agent is required", domain.ErrInvalid)
	}
	st.Agent = agent
	st.UpdatedAt = e.now()
	err := e.Store.Update(ctx, func(tx store.Tx) error {
		return e.repo(tx).PutStatus(st)
	})
	if err != nil {
		return domain.AgentStatus{}, err
	}
	return st, nil
}

func (e Engine) TeamStatus(ctx context.Context) ([]domain.AgentStatus, error) {
	var out []domain.AgentStatus
	err := e.Store.View(ctx, func(tx store.Tx) error {
		sts, err := e.repo(tx).ListStatus()
		out = sts
		return err
	})
	return out, err
}

// Notify appends a supervisory notification. Critical and high ones also go out on the urgent topic.
func (e Engine) Notify(ctx context.Context, message, priority string) (domain.Notification, error) {
	var n domain.Notification
	err := e.Store.Update(ctx, func(tx store.Tx) error {
		var err error
		n, err = e.events().Append(e.repo(tx), priority, message)
		return err
	})
	if err != nil {
		return domain.Notification{}, err
	}
	if domain.Urgent(priority) {
		e.signal(ctx, notify.TopicUrgent, notify.Signal{Type: notify.SignalUrgent, Priority: priority, Message: message})
	}
	return n, nil
}

// Notifications returns the newest notifications first. limit <= 0 returns all.
func (e Engine) Notifications(ctx context.Context, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	err := e.Store.View(ctx, func(tx store.Tx) error {
		ns, err := e.repo(tx).ListNotifications()
		out = ns
		return err
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LocalNow is the current time in the report time zone.
func (e Engine) LocalNow() (time.Time, error) {
	loc, err := e.config().Location()
	if err != nil {
		return time.Time{}, err
	}
	return e.now().In(loc), nil
}

// DailyReport builds today's report from the store and persists it, replacing any earlier report
// for the same date.
func (e Engine) DailyReport(ctx context.Context) (domain.Report, error) {
	cfg := e.config()
	loc, err := cfg.Location()
	if err != nil {
		return domain.Report{}, err
	}
	now := e.now()
	rep := domain.Report{
		Date:                now.In(loc).Format(time.DateOnly),
		GeneratedAt:         now,
		CompletedToday:      []domain.Task{},
		InProgress:          []domain.Task{},
		Blocked:             []domain.Task{},
		PendingHighPriority: []domain.Task{},
		TeamStatus:          []domain.AgentStatus{},
		DecisionsNeeded:     []domain.Message{},
	}
	err = e.Store.Update(ctx, func(tx store.Tx) error {
		r := e.repo(tx)
		tasks, err := r.ListTasks()
		if err != nil {
			return err
		}
		for _, t := range tasks {
			switch t.Status {
			case domain.StatusCompleted:
				if repo.SameDay(t.UpdatedAt, rep.Date, loc) {
					rep.CompletedToday = append(rep.CompletedToday, t)
				}
			case domain.StatusInProgress:
				rep.InProgress = append(rep.InProgress, t)
			case domain.StatusBlocked:
				rep.Blocked = append(rep.Blocked, t)
			case domain.StatusPending:
				if t.Priority >= cfg.Reports.HighPriority {
					rep.PendingHighPriority = append(rep.PendingHighPriority, t)
				}
			}
		}
		sortByUrgency(rep.PendingHighPriority)
		sts, err := r.ListStatus()
		if err != nil {
			return err
		}
		rep.TeamStatus = append(rep.TeamStatus, sts...)
		approvals, err := r.ListApprovals()
		if err != nil {
			return err
		}
		rep.DecisionsNeeded = append(rep.DecisionsNeeded, approvals...)
		return r.PutReport(rep)
	})
	if err != nil {
		return domain.Report{}, err
	}
	e.log().WithFields(log.Fields{
		"date":      rep.Date,
		"completed": len(rep.CompletedToday),
		"blocked":   len(rep.Blocked),
		"decisions": len(rep.DecisionsNeeded),
	}).Info("daily report generated")
	return rep, nil
}

func (e Engine) GetReport(ctx context.Context, date string) (domain.Report, error) {
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return domain.Report{}, fmt.Errorf("%w: report date %q must be YYYY-MM-DD", domain.ErrInvalid, date)
	}
	var rep domain.Report
	err := e.Store.View(ctx, func(tx store.Tx) error {
		var err error
		rep, err = e.repo(tx).GetReport(date)
		return err
	})
	return rep, err
}

// HasReport reports whether a report exists for date.
func (e Engine) HasReport(ctx context.Context, date string) (bool, error) {
	dates, err := e.ListReports(ctx)
	if err != nil {
		return false, err
	}
	for _, d := range dates {
		if d == date {
			return true, nil
		}
	}
	return false, nil
}

// ListReports returns the dates that have a stored report, oldest first.
func (e Engine) ListReports(ctx context.Context) ([]string, error) {
	var out []string
	err := e.Store.View(ctx, func(tx store.Tx) error {
		dates, err := e.repo(tx).ReportDates()
		out = dates
		return err
	})
	return out, err
}
