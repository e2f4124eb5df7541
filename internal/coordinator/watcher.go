package coordinator

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"huddle/internal/domain"
	"huddle/internal/engine"
	"huddle/internal/notify"
)

// Inbox is what an agent has to act on after a wake-up.
type Inbox struct {
	Tasks    []domain.Task    `json:"tasks"`
	Messages []domain.Message `json:"messages"`
}

func (in Inbox) Empty() bool { return len(in.Tasks) == 0 && len(in.Messages) == 0 }

// Watcher wakes an agent on a fan-out signal or the poll interval, whichever comes first.
type Watcher struct {
	Engine   engine.Engine
	Agent    string
	Interval time.Duration
	Log      log.FieldLogger
	// Handle receives every non-empty inbox. Consumed messages are not redelivered.
	Handle func(ctx context.Context, in Inbox) error
}

func (w Watcher) log() log.FieldLogger {
	l := w.Log
	if l == nil {
		l = log.StandardLogger()
	}
	return l.WithField("agent", w.Agent)
}

// Poll lists the agent's open tasks and consumes its messages.
func (w Watcher) Poll(ctx context.Context) (Inbox, error) {
	tasks, err := w.Engine.ListForAgent(ctx, w.Agent)
	if err != nil {
		return Inbox{}, err
	}
	msgs, err := w.Engine.Receive(ctx, w.Agent)
	if err != nil {
		return Inbox{Tasks: tasks}, err
	}
	return Inbox{Tasks: tasks, Messages: msgs}, nil
}

func (w Watcher) wake(ctx context.Context, reason string) {
	in, err := w.Poll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log().WithError(err).Warn("poll failed, retrying on next wake-up")
		}
		return
	}
	if in.Empty() || w.Handle == nil {
		return
	}
	w.log().WithFields(log.Fields{"reason": reason, "tasks": len(in.Tasks), "messages": len(in.Messages)}).Debug("agent woken")
	if err := w.Handle(ctx, in); err != nil {
		w.log().WithError(err).Warn("inbox handler failed")
	}
}

// Run watches until ctx is done.
func (w Watcher) Run(ctx context.Context) error {
	interval := w.Interval
	if interval <= 0 {
		interval = w.Engine.Config.Polling.Interval
	}
	var signals <-chan notify.Signal
	if w.Engine.Notifier != nil {
		sub, err := w.Engine.Notifier.Subscribe(ctx, notify.AgentTopic(w.Agent), notify.TopicBroadcast)
		if err != nil {
			w.log().WithError(err).Warn("fan-out subscribe failed, polling only")
		} else {
			defer sub.Close()
			signals = sub.C()
		}
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.wake(ctx, "start")
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				signals = nil
				w.log().Warn("fan-out subscription closed, polling only")
				continue
			}
			w.wake(ctx, sig.Type)
		case <-ticker.C:
			w.wake(ctx, "poll")
		}
	}
}
