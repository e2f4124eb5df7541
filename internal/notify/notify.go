// Package notify carries best-effort wake-up signals between processes. Signals are hints only: every
// consumer must still read the store to learn what changed.
package notify

import (
	"context"
)

// Signal types.
const (
	SignalNewTask    = "new_task"
	SignalNewMessage = "new_message"
	SignalSpecUpdate = "spec_update"
	SignalUrgent     = "urgent"
)

// Topics.
const (
	TopicBroadcast = "broadcast"
	TopicUrgent    = "ceo:urgent"
)

// AgentTopic is the per-agent wake-up topic.
func AgentTopic(agent string) string { return "agent:" + agent }

type Signal struct {
	Type     string `json:"type"`
	TaskID   string `json:"task_id,omitempty"`
	From     string `json:"from,omitempty"`
	Product  string `json:"product,omitempty"`
	Priority string `json:"priority,omitempty"`
	Message  string `json:"message,omitempty"`
	// Topic is filled in on receipt.
	Topic string `json:"-"`
}

type Notifier interface {
	Publish(ctx context.Context, topic string, sig Signal) error
	Subscribe(ctx context.Context, topics ...string) (Subscription, error)
	Close() error
}

type Subscription interface {
	// C delivers signals until Close. It may drop signals when the consumer falls behind.
	C() <-chan Signal
	Close() error
}

// Nop is the notifier used when no fan-out service is configured. Its subscriptions never fire.
type Nop struct{}

func (Nop) Publish(context.Context, string, Signal) error { return nil }

func (Nop) Subscribe(context.Context, ...string) (Subscription, error) { return nopSub{}, nil }

func (Nop) Close() error { return nil }

type nopSub struct{}

func (nopSub) C() <-chan Signal { return nil }

func (nopSub) Close() error { return nil }
