package engine

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"huddle/internal/domain"
	"huddle/internal/notify"
	"huddle/internal/store"
)

// Follow-up task priorities per verdict.
var followUpPriority = map[string]int{
	domain.VerdictApprove: 5,
	domain.VerdictModify:  4,
}

// Approvals lists escalated messages still waiting for a decision.
func (e Engine) Approvals(ctx context.Context) ([]domain.Message, error) {
	var out []domain.Message
	err := e.Store.View(ctx, func(tx store.Tx) error {
		ms, err := e.repo(tx).ListApprovals()
		out = ms
		return err
	})
	return out, err
}

// Decide records the supervisor's verdict on an escalated message. Approve and modify hand a
// follow-up task back to the sender.
func (e Engine) Decide(ctx context.Context, approvalID, verdict, note, actor string) (domain.Decision, error) {
	if err := e.policy().CanDecide(actor); err != nil {
		return domain.Decision{}, err
	}
	switch verdict {
	case domain.VerdictApprove, domain.VerdictReject, domain.VerdictModify:
	default:
		return domain.Decision{}, fmt.Errorf("%w: verdict must be approve, reject or modify", domain.ErrInvalid)
	}
	var d domain.Decision
	var followUp *domain.Task
	err := e.Store.Update(ctx, func(tx store.Tx) error {
		r := e.repo(tx)
		m, err := r.GetApproval(approvalID)
		if err != nil {
			return err
		}
		if err := r.DeleteApproval(approvalID); err != nil {
			return err
		}
		now := e.now()
		d = domain.Decision{
			ID:        approvalID,
			Message:   m,
			Verdict:   verdict,
			Note:      note,
			DecidedBy: actor,
			DecidedAt: now,
		}
		if prio, ok := followUpPriority[verdict]; ok {
			t := followUpTask(m, verdict, note, actor, prio, approvalID)
			t.CreatedAt, t.UpdatedAt = now, now
			if err := r.InsertTask(t); err != nil {
				return err
			}
			d.FollowUpTaskID = t.ID
			followUp = &t
		}
		if err := r.InsertDecision(d); err != nil {
			return err
		}
		_, err = e.events().Append(r, domain.PriorityNormal, fmt.Sprintf("Decision on %q from %s: %s", m.Subject, m.FromAgent, verdict))
		return err
	})
	if err != nil {
		return domain.Decision{}, err
	}
	e.log().WithFields(log.Fields{"approval": approvalID, "verdict": verdict}).Info("decision recorded")
	if followUp != nil {
		e.signal(ctx, notify.AgentTopic(followUp.AssignedTo), notify.Signal{Type: notify.SignalNewTask, TaskID: followUp.ID})
	}
	return d, nil
}

func followUpTask(m domain.Message, verdict, note, actor string, priority int, approvalID string) domain.Task {
	title := "Approved: " + m.Subject
	if verdict == domain.VerdictModify {
		title = "Revise: " + m.Subject
	}
	desc := m.Content
	if note != "" {
		desc = note + "\n\n" + m.Content
	}
	return domain.Task{
		ID:          "task_decision_" + approvalID,
		Type:        "decision",
		Title:       title,
		Description: desc,
		AssignedTo:  m.FromAgent,
		CreatedBy:   actor,
		Status:      domain.StatusPending,
		Priority:    priority,
	}
}

func (e Engine) Decisions(ctx context.Context) ([]domain.Decision, error) {
	var out []domain.Decision
	err := e.Store.View(ctx, func(tx store.Tx) error {
		ds, err := e.repo(tx).ListDecisions()
		out = ds
		return err
	})
	return out, err
}
