package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"huddle/internal/domain"
	"huddle/internal/notify"
	"huddle/internal/store"
)

const defaultPriority = 3

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ID          string
	Type        string
	Title       string
	Description string
	AssignedTo  string
	CreatedBy   string
	Priority    int
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, fmt.Errorf("%w: title is required", domain.ErrInvalid)
	}
	if opts.AssignedTo == "" {
		return domain.Task{}, fmt.Errorf("%w: assigned_to is required", domain.ErrInvalid)
	}
	if opts.Priority == 0 {
		opts.Priority = defaultPriority
	}
	if opts.Priority < 1 || opts.Priority > 5 {
		return domain.Task{}, fmt.Errorf("%w: priority must be between 1 and 5", domain.ErrInvalid)
	}
	if opts.Type == "" {
		opts.Type = "general"
	}
	if opts.CreatedBy == "" {
		opts.CreatedBy = e.config().Team.Supervisor
	}
	now := e.now()
	id := opts.ID
	if id == "" {
		id = "task_" + now.Format("20060102_150405") + "_" + uuid.NewString()[:8]
	}
	t := domain.Task{
		ID:          id,
		Type:        opts.Type,
		Title:       opts.Title,
		Description: opts.Description,
		AssignedTo:  opts.AssignedTo,
		CreatedBy:   opts.CreatedBy,
		Status:      domain.StatusPending,
		Priority:    opts.Priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := e.Store.Update(ctx, func(tx store.Tx) error {
		return e.repo(tx).InsertTask(t)
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.log().WithFields(log.Fields{"task": t.ID, "assigned_to": t.AssignedTo}).Debug("task created")
	e.signal(ctx, notify.AgentTopic(t.AssignedTo), notify.Signal{Type: notify.SignalNewTask, TaskID: t.ID})
	return t, nil
}

func (e Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	var t domain.Task
	err := e.Store.View(ctx, func(tx store.Tx) error {
		loc, err := e.repo(tx).FindTask(id)
		t = loc.Task
		return err
	})
	return t, err
}

// ListForAgent returns the agent's unfinished tasks, most urgent first.
func (e Engine) ListForAgent(ctx context.Context, agent string) ([]domain.Task, error) {
	if agent == "" {
		return nil, fmt.Errorf("%w: agent is required", domain.ErrInvalid)
	}
	var out []domain.Task
	err := e.Store.View(ctx, func(tx store.Tx) error {
		tasks, err := e.repo(tx).ListTasks(domain.ActiveStatuses...)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if t.AssignedTo == agent {
				out = append(out, t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortByUrgency(out)
	return out, nil
}

// ListTasks returns every task in the given statuses, or all tasks when none are given.
func (e Engine) ListTasks(ctx context.Context, statuses ...domain.TaskStatus) ([]domain.Task, error) {
	for _, st := range statuses {
		if !st.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalid, st)
		}
	}
	var out []domain.Task
	err := e.Store.View(ctx, func(tx store.Tx) error {
		tasks, err := e.repo(tx).ListTasks(statuses...)
		out = tasks
		return err
	})
	return out, err
}

// Transition moves a task to a new status. Only the assignee or the supervisor may move a task.
func (e Engine) Transition(ctx context.Context, id string, to domain.TaskStatus, actor string) (domain.Task, error) {
	if !to.Valid() {
		return domain.Task{}, fmt.Errorf("%w: unknown status %q", domain.ErrInvalid, to)
	}
	var out domain.Task
	err := e.Store.Update(ctx, func(tx store.Tx) error {
		r := e.repo(tx)
		loc, err := r.FindTask(id)
		if err != nil {
			return err
		}
		if err := e.policy().CanTransition(actor, loc.Task); err != nil {
			return err
		}
		if err := ensureTaskTransition(loc.Task.Status, to); err != nil {
			return fmt.Errorf("task %s: %w", id, err)
		}
		t := loc.Task
		t.Status = to
		// Writers may run on machines whose clocks disagree; updated_at never moves backwards.
		t.UpdatedAt = e.now()
		if t.UpdatedAt.Before(loc.Task.UpdatedAt) {
			t.UpdatedAt = loc.Task.UpdatedAt
		}
		if t.UpdatedAt.Before(t.CreatedAt) {
			t.UpdatedAt = t.CreatedAt
		}
		if err := r.SaveTask(loc, t); err != nil {
			return err
		}
		switch to {
		case domain.StatusCompleted:
			if _, err := e.events().Append(r, domain.PriorityNormal, fmt.Sprintf("Task %s completed by %s: %s", t.ID, actor, t.Title)); err != nil {
				return err
			}
		case domain.StatusBlocked:
			if _, err := e.events().Append(r, domain.PriorityHigh, fmt.Sprintf("Task %s blocked by %s: %s", t.ID, actor, t.Title)); err != nil {
				return err
			}
		}
		if len(loc.Stale) > 0 {
			e.log().WithFields(log.Fields{"task": id, "stale": loc.Stale}).Warn("removed stale task copies")
		}
		out = t
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.log().WithFields(log.Fields{"task": out.ID, "status": out.Status, "actor": actor}).Debug("task moved")
	if to == domain.StatusBlocked {
		e.signal(ctx, notify.TopicUrgent, notify.Signal{Type: notify.SignalUrgent, TaskID: out.ID, Priority: domain.PriorityHigh})
	}
	return out, nil
}

func ensureTaskTransition(from, to domain.TaskStatus) error {
	switch from {
	case domain.StatusPending:
		if to == domain.StatusInProgress || to == domain.StatusBlocked {
			return nil
		}
	case domain.StatusInProgress:
		if to == domain.StatusReview || to == domain.StatusCompleted || to == domain.StatusBlocked {
			return nil
		}
	case domain.StatusReview:
		if to == domain.StatusCompleted || to == domain.StatusInProgress || to == domain.StatusBlocked {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
}

// sortByUrgency orders by priority descending, then creation time, then id.
func sortByUrgency(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
