package engine

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"huddle/internal/domain"
	"huddle/internal/notify"
	"huddle/internal/store"
)

const maxIDAttempts = 8

// SendResult reports the delivered message and whether its supervisory copy was written.
type SendResult struct {
	Message   domain.Message `json:"message"`
	Escalated bool           `json:"escalated"`
}

// messageID derives an id from the recipient and send time. Retries on collision append the attempt.
func messageID(m domain.Message, attempt int) string {
	id := fmt.Sprintf("%s_%d", m.ToAgent, m.Timestamp.UnixNano())
	if attempt > 0 {
		id = fmt.Sprintf("%s_%d", id, attempt)
	}
	return id
}

// Send delivers m to its recipient. A message that requires supervisory approval is copied into the
// supervisory inbox in a second transaction; a failed copy is logged and leaves Escalated false.
func (e Engine) Send(ctx context.Context, m domain.Message) (SendResult, error) {
	if m.FromAgent == "" || m.ToAgent == "" {
		return SendResult{}, fmt.Errorf("%w: from_agent and to_agent are required", domain.ErrInvalid)
	}
	if m.Subject == "" && m.Content == "" {
		return SendResult{}, fmt.Errorf("%w: subject or content is required", domain.ErrInvalid)
	}
	m.Timestamp = e.now()
	err := e.Store.Update(ctx, func(tx store.Tx) error {
		r := e.repo(tx)
		for attempt := 0; attempt < maxIDAttempts; attempt++ {
			m.ID = messageID(m, attempt)
			err := r.InsertMessage(m)
			if !errors.Is(err, domain.ErrDuplicateID) {
				return err
			}
		}
		return fmt.Errorf("message to %s: %w", m.ToAgent, domain.ErrDuplicateID)
	})
	if err != nil {
		return SendResult{}, err
	}
	res := SendResult{Message: m}
	if m.RequiresCEOApproval {
		res.Escalated = e.escalate(ctx, m)
	}
	e.log().WithFields(log.Fields{"message": m.ID, "from": m.FromAgent, "to": m.ToAgent, "escalated": res.Escalated}).Debug("message sent")
	e.signal(ctx, notify.AgentTopic(m.ToAgent), notify.Signal{Type: notify.SignalNewMessage, From: m.FromAgent})
	return res, nil
}

func (e Engine) escalate(ctx context.Context, m domain.Message) bool {
	err := e.Store.Update(ctx, func(tx store.Tx) error {
		return e.repo(tx).InsertApproval(m)
	})
	if err != nil {
		e.log().WithError(err).WithField("message", m.ID).Warn("supervisory copy not written")
		return false
	}
	supervisor := e.config().Team.Supervisor
	e.signal(ctx, notify.AgentTopic(supervisor), notify.Signal{Type: notify.SignalNewMessage, From: m.FromAgent})
	return true
}

// Receive consumes every message addressed to agent, oldest first. Messages are deleted in the same
// transaction that reads them, so each is handed out at most once.
func (e Engine) Receive(ctx context.Context, agent string) ([]domain.Message, error) {
	if agent == "" {
		return nil, fmt.Errorf("%w: agent is required", domain.ErrInvalid)
	}
	var out []domain.Message
	err := e.Store.Update(ctx, func(tx store.Tx) error {
		r := e.repo(tx)
		msgs, err := r.MessagesFor(agent)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			if err := r.DeleteMessage(m.ID); err != nil {
				return err
			}
		}
		out = msgs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Peek returns the agent's pending messages without consuming them.
func (e Engine) Peek(ctx context.Context, agent string) ([]domain.Message, error) {
	if agent == "" {
		return nil, fmt.Errorf("%w: agent is required", domain.ErrInvalid)
	}
	var out []domain.Message
	err := e.Store.View(ctx, func(tx store.Tx) error {
		msgs, err := e.repo(tx).MessagesFor(agent)
		out = msgs
		return err
	})
	return out, err
}

// Broadcast sends one message to every roster member except the sender. Delivery continues past
// individual failures; the joined error lists them.
func (e Engine) Broadcast(ctx context.Context, from, subject, content string) ([]SendResult, error) {
	var (
		out  []SendResult
		errs []error
	)
	for _, agent := range e.config().Team.Roster {
		if agent == from {
			continue
		}
		res, err := e.Send(ctx, domain.Message{FromAgent: from, ToAgent: agent, Subject: subject, Content: content})
		if err != nil {
			errs = append(errs, fmt.Errorf("to %s: %w", agent, err))
			continue
		}
		out = append(out, res)
	}
	return out, errors.Join(errs...)
}
